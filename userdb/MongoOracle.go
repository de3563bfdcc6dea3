package userdb

import (
	"context"

	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/logger"
	"github.com/kinome/kinome-toolbox/store"
)

const (
	// KeysCollection holds one document per API key or login session.
	KeysCollection = "active_keys"
)

type (
	// MongoOracle resolves permissions from the active keys of the users
	// database. A document looks like:
	//
	//	{_id: ObjectId, email: "...", key: "...", session: "...",
	//	 permissions: [{database: "kinome", collections: [{name: "samples", read: true, write: false}]}]}
	MongoOracle struct {
		connector store.Connector
		database  string
		anonymous []Grant
	}
)

// NewMongoOracle will instantiate a new MongoOracle reading from database.
// Callers without an identity will get anonymous as grants. If anonymous is
// nil, such callers are rejected.
func NewMongoOracle(connector store.Connector, database string, anonymous []Grant) *MongoOracle {
	return &MongoOracle{
		connector: connector,
		database:  database,
		anonymous: anonymous,
	}
}

func (o *MongoOracle) anonymousPermissions() (*Permissions, error) {
	if o.anonymous == nil {
		return nil, ErrorUnknownIdentity
	}

	grants := make([]Grant, len(o.anonymous))
	copy(grants, o.anonymous)

	return &Permissions{ID: GodId, Grants: grants}, nil
}

// Permission looks up the API key if present, else the session cookie. An
// unknown API key is an error, while an unknown or missing session falls
// back to anonymous access.
func (o *MongoOracle) Permission(ctx context.Context, credentials Credentials) (*Permissions, error) {
	var filter bson.M

	switch {
	case credentials.APIKey != "":
		filter = bson.M{"key": credentials.APIKey}
	case credentials.Cookie != "":
		filter = bson.M{"session": credentials.Cookie}
	default:
		return o.anonymousPermissions()
	}

	handle, err := o.connector.Acquire(ctx, o.database)
	if err != nil {
		return nil, err
	}

	documents, err := handle.Find(KeysCollection, filter, nil)
	if err != nil {
		return nil, err
	}

	if len(documents) == 0 {
		if credentials.APIKey != "" {
			logger.Yellow("userdb", "Unknown API key")
			return nil, ErrorUnknownIdentity
		}

		return o.anonymousPermissions()
	}

	return decodePermissions(documents[0])
}

func decodePermissions(document bson.M) (*Permissions, error) {
	raw, err := bson.Marshal(document)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var permissions Permissions
	err = bson.Unmarshal(raw, &permissions)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &permissions, nil
}
