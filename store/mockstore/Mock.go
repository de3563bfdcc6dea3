package mockstore

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/store"
)

type (
	// Mock is an in-memory store.Handle that can help in writing tests. It
	// understands equality filters and "$set" updates, nothing more.
	Mock struct {
		lock        sync.Mutex
		collections map[string][]bson.M
		calls       int
		closed      bool

		// Fail will be returned by every operation if set.
		Fail error
	}

	// Dialer hands out Mock handles, one per database name.
	Dialer struct {
		lock    sync.Mutex
		handles map[string]*Mock
		dials   map[string]int

		// Gate, if set, must be closed before dials complete.
		Gate chan struct{}

		// Failures is the number of dials that will fail before dials start
		// to succeed.
		Failures int
	}
)

var (
	// ErrDial is returned by Dialer while failing.
	ErrDial = errors.New("no reachable servers")
)

func NewMock() *Mock {
	return &Mock{
		collections: make(map[string][]bson.M),
	}
}

func NewDialer() *Dialer {
	return &Dialer{
		handles: make(map[string]*Mock),
		dials:   make(map[string]int),
	}
}

// Database returns the Mock backing database, creating it if needed.
func (d *Dialer) Database(database string) *Mock {
	d.lock.Lock()
	defer d.lock.Unlock()

	m, found := d.handles[database]
	if !found {
		m = NewMock()
		d.handles[database] = m
	}

	return m
}

// Dials returns the number of times database has been dialed.
func (d *Dialer) Dials(database string) int {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.dials[database]
}

func (d *Dialer) Dial(database string) (store.Handle, error) {
	d.lock.Lock()
	d.dials[database]++
	gate := d.Gate
	fail := d.Failures > 0
	if fail {
		d.Failures--
	}
	d.lock.Unlock()

	if gate != nil {
		<-gate
	}

	if fail {
		return nil, ErrDial
	}

	return d.Database(database), nil
}

// Put stores documents in collection without counting as a call.
func (m *Mock) Put(collection string, docs ...bson.M) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.collections[collection] = append(m.collections[collection], docs...)
}

// Documents returns the documents currently stored in collection.
func (m *Mock) Documents(collection string) []bson.M {
	m.lock.Lock()
	defer m.lock.Unlock()

	return append([]bson.M{}, m.collections[collection]...)
}

// Calls returns the number of storage operations executed.
func (m *Mock) Calls() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.calls
}

func (m *Mock) Closed() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.closed
}

func matches(doc bson.M, filter bson.M) bool {
	for key, value := range filter {
		if !reflect.DeepEqual(doc[key], value) {
			return false
		}
	}

	return true
}

func project(doc bson.M, projection bson.M) bson.M {
	if len(projection) == 0 {
		return doc
	}

	result := bson.M{}
	for key := range projection {
		if value, found := doc[key]; found {
			result[key] = value
		}
	}

	return result
}

func (m *Mock) Find(collection string, filter bson.M, projection bson.M) ([]bson.M, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.calls++
	if m.Fail != nil {
		return nil, m.Fail
	}

	result := []bson.M{}
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			result = append(result, project(doc, projection))
		}
	}

	return result, nil
}

func (m *Mock) InsertOne(collection string, doc bson.M) (*store.WriteResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.calls++
	if m.Fail != nil {
		return nil, m.Fail
	}

	copied := bson.M{}
	for key, value := range doc {
		copied[key] = value
	}

	if _, found := copied["_id"]; !found {
		copied["_id"] = bson.NewObjectId()
	}

	m.collections[collection] = append(m.collections[collection], copied)

	return &store.WriteResult{Acknowledged: true, InsertedID: copied["_id"]}, nil
}

func (m *Mock) UpdateOne(collection string, filter bson.M, update bson.M, upsert bool) (*store.WriteResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.calls++
	if m.Fail != nil {
		return nil, m.Fail
	}

	for key := range update {
		if key != "$set" && key != "$inc" {
			return nil, fmt.Errorf("unsupported update operator '%s'", key)
		}
	}

	for _, doc := range m.collections[collection] {
		if !matches(doc, filter) {
			continue
		}

		if set, ok := update["$set"].(bson.M); ok {
			for key, value := range set {
				doc[key] = value
			}
		}

		if inc, ok := update["$inc"].(bson.M); ok {
			for key, value := range inc {
				current, _ := doc[key].(int)
				delta, _ := value.(int)
				doc[key] = current + delta
			}
		}

		return &store.WriteResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
	}

	if upsert {
		return nil, errors.New("upsert not supported by mock")
	}

	return &store.WriteResult{Acknowledged: true}, nil
}

func (m *Mock) Ping() error {
	return m.Fail
}

func (m *Mock) Close() {
	m.lock.Lock()
	m.closed = true
	m.lock.Unlock()
}
