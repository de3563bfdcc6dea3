package core

import (
	"strings"
	"sync"
)

type (
	// Broadcaster publishes changes made through the gateway.
	Broadcaster interface {
		Broadcast(change Change)
	}

	// SimpleEmitter fans changes out to subscribers. Subscribers that don't
	// keep up will miss changes.
	SimpleEmitter struct {
		changesLock sync.Mutex
		changes     map[chan Change]struct{}
	}

	Change struct {
		Type       string      `json:"type"`
		Database   string      `json:"database"`
		Collection string      `json:"collection"`
		ID         interface{} `json:"id"`
	}
)

const subscriberBuffer = 16

func NewSimpleEmitter() *SimpleEmitter {
	return &SimpleEmitter{
		changes: make(map[chan Change]struct{}),
	}
}

func (s *SimpleEmitter) Subscribe() chan Change {
	channel := make(chan Change, subscriberBuffer)

	s.changesLock.Lock()
	s.changes[channel] = struct{}{}
	s.changesLock.Unlock()

	return channel
}

func (s *SimpleEmitter) Unsubscribe(ch chan Change) {
	s.changesLock.Lock()
	delete(s.changes, ch)
	s.changesLock.Unlock()
}

func (s *SimpleEmitter) Broadcast(change Change) {
	s.changesLock.Lock()
	defer s.changesLock.Unlock()

	for ch := range s.changes {
		select {
		case ch <- change:
		default:
		}
	}
}

// Matches reports whether the change concerns database and collection.
func (c Change) Matches(database string, collection string) bool {
	return strings.EqualFold(c.Database, database) && strings.EqualFold(c.Collection, collection)
}
