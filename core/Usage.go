package core

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/store"
	"github.com/kinome/kinome-toolbox/userdb"
)

type (
	// Usage describes one successful operation performed under a capability.
	Usage struct {
		Capability *Capability
		Operation  string
		Database   string
		Collection string
		Time       time.Time
	}

	// UsageRecorder records usage against the identity of a capability.
	UsageRecorder interface {
		RecordUsage(ctx context.Context, usage Usage) error
	}

	// UsageRecorders records to all recorders in turn.
	UsageRecorders []UsageRecorder

	// KeyUsage counts operations on the active key document of the
	// capability in the users database.
	KeyUsage struct {
		connector store.Connector
		database  string
	}
)

func (u UsageRecorders) RecordUsage(ctx context.Context, usage Usage) error {
	var group errs.Group

	for _, recorder := range u {
		group.Add(recorder.RecordUsage(ctx, usage))
	}

	return group.Err()
}

func NewKeyUsage(connector store.Connector, database string) *KeyUsage {
	return &KeyUsage{
		connector: connector,
		database:  database,
	}
}

func (k *KeyUsage) RecordUsage(ctx context.Context, usage Usage) error {
	handle, err := k.connector.Acquire(ctx, k.database)
	if err != nil {
		return err
	}

	update := bson.M{
		"$inc": bson.M{"usage." + usage.Operation: 1},
		"$set": bson.M{"last_used": usage.Time},
	}

	_, err = handle.UpdateOne(userdb.KeysCollection, bson.M{"_id": usage.Capability.ID}, update, false)

	return err
}
