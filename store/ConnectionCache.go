package store

import (
	"context"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/zeebo/errs"

	"github.com/kinome/kinome-toolbox/logger"
)

var (
	// ErrUnavailable is the class of errors returned when a database cannot
	// be reached.
	ErrUnavailable = errs.Class("could not connect to database")
)

type (
	// ConnectionCache hands out one shared Handle per database name. The
	// first request for a name starts a single dial that every concurrent
	// request will wait for.
	ConnectionCache struct {
		dialer Dialer

		lock     sync.Mutex
		attempts map[string]*attempt
		closed   bool

		dials    metrics.Counter
		failures metrics.Counter
	}

	// attempt is a dial in flight or resolved. handle and err must only be
	// read after done is closed.
	attempt struct {
		done   chan struct{}
		handle Handle
		err    error
	}
)

// NewConnectionCache will instantiate a new cache dialing through dialer.
// registry may be nil.
func NewConnectionCache(dialer Dialer, registry metrics.Registry) *ConnectionCache {
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	return &ConnectionCache{
		dialer:   dialer,
		attempts: make(map[string]*attempt),
		dials:    metrics.GetOrRegisterCounter("store.dial.attempts", registry),
		failures: metrics.GetOrRegisterCounter("store.dial.failures", registry),
	}
}

func (a *attempt) failed() bool {
	select {
	case <-a.done:
		return a.err != nil
	default:
		return false
	}
}

// start begins a new dial for name. Must be called with c.lock held.
func (c *ConnectionCache) start(name string) *attempt {
	a := &attempt{done: make(chan struct{})}
	c.dials.Inc(1)

	go func() {
		handle, err := c.dialer.Dial(name)

		c.lock.Lock()
		defer c.lock.Unlock()

		a.handle, a.err = handle, err
		close(a.done)

		if err != nil {
			c.failures.Inc(1)
			logger.Red("store", "Dialing '%s' failed: %s", name, err.Error())
			return
		}

		// Close has already given up on this attempt.
		if c.closed {
			logger.Yellow("store", "Closing '%s' dialed after close", name)
			handle.Close()
			return
		}

		logger.Green("store", "Connected to '%s'", name)
	}()

	return a
}

// Acquire returns the shared Handle for database name, dialing it if needed.
// A failed dial is not cached: the next Acquire after a failure starts one
// fresh dial, while callers already waiting on the failed dial all receive
// its error. Cancelling ctx only stops this caller from waiting.
func (c *ConnectionCache) Acquire(ctx context.Context, name string) (Handle, error) {
	c.lock.Lock()
	a, found := c.attempts[name]
	if !found || a.failed() {
		a = c.start(name)
		c.attempts[name] = a
	}
	c.lock.Unlock()

	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if a.err != nil {
		return nil, ErrUnavailable.Wrap(a.err)
	}

	return a.handle, nil
}

// Close will close all established handles. Handles of dials still in
// flight are closed as soon as they complete. The cache must not be used
// afterwards.
func (c *ConnectionCache) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.closed = true

	for name, a := range c.attempts {
		select {
		case <-a.done:
			if a.err == nil {
				a.handle.Close()
			}
		default:
			logger.Yellow("store", "Dial of '%s' still in flight during close", name)
		}

		delete(c.attempts, name)
	}
}
