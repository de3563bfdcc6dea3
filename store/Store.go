package store

import (
	"context"

	"gopkg.in/mgo.v2/bson"
)

type (
	// Handle is an established session to one logical database. Handles are
	// shared between all requests targeting the same database and must be
	// safe for concurrent use.
	Handle interface {
		// Find returns all documents in collection matching filter. A nil
		// projection returns complete documents. The result is never nil.
		Find(collection string, filter bson.M, projection bson.M) ([]bson.M, error)

		// InsertOne inserts doc as a new document.
		InsertOne(collection string, doc bson.M) (*WriteResult, error)

		// UpdateOne applies update to the first document matching filter.
		UpdateOne(collection string, filter bson.M, update bson.M, upsert bool) (*WriteResult, error)

		// Ping checks that the storage session is still alive.
		Ping() error

		Close()
	}

	// Dialer will establish a new Handle for a named database.
	Dialer interface {
		Dial(database string) (Handle, error)
	}

	// Connector hands out shared handles by database name.
	Connector interface {
		Acquire(ctx context.Context, database string) (Handle, error)
	}

	// DialerFunc adapts a function to the Dialer interface.
	DialerFunc func(database string) (Handle, error)

	// WriteResult is the acknowledgment returned by the storage engine after
	// a write.
	WriteResult struct {
		Acknowledged  bool        `json:"acknowledged"`
		InsertedID    interface{} `json:"insertedId,omitempty"`
		MatchedCount  int         `json:"matchedCount"`
		ModifiedCount int         `json:"modifiedCount"`
	}
)

// Dial implements Dialer.
func (f DialerFunc) Dial(database string) (Handle, error) {
	return f(database)
}
