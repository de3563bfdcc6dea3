package core

import (
	"context"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/logger"
	"github.com/kinome/kinome-toolbox/store"
	"github.com/kinome/kinome-toolbox/userdb"
)

const (
	OperationList   = "list"
	OperationGet    = "get"
	OperationInsert = "insert"
	OperationPatch  = "patch"
)

type (
	// Gateway executes authorized operations against the document store.
	// Every operation authorizes first, then validates its input, then
	// acquires the shared handle for the database and finally executes.
	Gateway struct {
		gate        *Gate
		connections store.Connector
		identifiers *Identifiers
		registry    metrics.Registry

		changes Broadcaster
		usage   UsageRecorder

		recording sync.WaitGroup
	}
)

// usageTimeout bounds a single usage recording, retries included.
const usageTimeout = 30 * time.Second

// NewGateway will instantiate a new Gateway. registry may be nil.
func NewGateway(gate *Gate, connections store.Connector, identifiers *Identifiers, registry metrics.Registry) *Gateway {
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	return &Gateway{
		gate:        gate,
		connections: connections,
		identifiers: identifiers,
		registry:    registry,
	}
}

// SetBroadcaster makes the gateway publish successful writes to changes.
func (g *Gateway) SetBroadcaster(changes Broadcaster) {
	g.changes = changes
}

// SetUsageRecorder makes the gateway record successful operations.
func (g *Gateway) SetUsageRecorder(usage UsageRecorder) {
	g.usage = usage
}

func (g *Gateway) timer(operation string) func() {
	start := time.Now()
	timer := metrics.GetOrRegisterTimer("gateway."+operation, g.registry)

	return func() {
		timer.UpdateSince(start)
	}
}

func (g *Gateway) acquire(ctx context.Context, database string) (store.Handle, error) {
	handle, err := g.connections.Acquire(ctx, database)
	if err != nil {
		return nil, newError(StorageUnavailable, err, "storage unavailable")
	}

	return handle, nil
}

// record hands usage to the recorder in the background. The caller's
// response never waits for it.
func (g *Gateway) record(capability *Capability, operation string, r *Request) {
	if g.usage == nil {
		return
	}

	usage := Usage{
		Capability: capability,
		Operation:  operation,
		Database:   r.Database,
		Collection: r.Collection,
		Time:       time.Now(),
	}

	g.recording.Add(1)
	go func() {
		defer g.recording.Done()

		ctx, cancel := context.WithTimeout(context.Background(), usageTimeout)
		defer cancel()

		err := g.usage.RecordUsage(ctx, usage)
		if err != nil {
			logger.Red("core", "Recording %s usage for %s failed: %s", operation, capability.ID.Hex(), err.Error())
		}
	}()
}

// Wait blocks until all usage recorded so far has been handed to the
// recorder.
func (g *Gateway) Wait() {
	g.recording.Wait()
}

func (g *Gateway) broadcast(typ string, r *Request, id interface{}) {
	if g.changes == nil {
		return
	}

	g.changes.Broadcast(Change{
		Type:       typ,
		Database:   r.Database,
		Collection: r.Collection,
		ID:         id,
	})
}

// List returns all documents in the collection. Unless r.All is "true" only
// the identifiers are returned.
func (g *Gateway) List(ctx context.Context, r *Request) (*Result, error) {
	defer g.timer(OperationList)()

	capability, err := g.gate.Authorize(ctx, r, userdb.Read)
	if err != nil {
		return nil, err
	}

	handle, err := g.acquire(ctx, r.Database)
	if err != nil {
		return nil, err
	}

	var projection bson.M
	if !r.wantsAll() {
		projection = bson.M{"_id": 1}
	}

	documents, err := handle.Find(r.Collection, bson.M{}, projection)
	if err != nil {
		return nil, newError(StorageOperationFailed, err, "Server failed to connect to collection")
	}

	g.record(capability, OperationList, r)

	return readResult(r, documents), nil
}

// Get returns the document identified by r.DocID, if any.
func (g *Gateway) Get(ctx context.Context, r *Request) (*Result, error) {
	defer g.timer(OperationGet)()

	capability, err := g.gate.Authorize(ctx, r, userdb.Read)
	if err != nil {
		return nil, err
	}

	id, err := g.identifiers.For(r.Database).ReadID(r.DocID)
	if err != nil {
		return nil, err
	}

	handle, err := g.acquire(ctx, r.Database)
	if err != nil {
		return nil, err
	}

	documents, err := handle.Find(r.Collection, bson.M{"_id": id}, nil)
	if err != nil {
		return nil, newError(StorageOperationFailed, err, "Server failed to connect to collection")
	}

	g.record(capability, OperationGet, r)

	return readResult(r, documents), nil
}

// Insert adds r.Body as a new document.
func (g *Gateway) Insert(ctx context.Context, r *Request) (*Result, error) {
	defer g.timer(OperationInsert)()

	capability, err := g.gate.Authorize(ctx, r, userdb.Write)
	if err != nil {
		return nil, err
	}

	err = r.checkContentType()
	if err != nil {
		return nil, err
	}

	handle, err := g.acquire(ctx, r.Database)
	if err != nil {
		return nil, err
	}

	document := bson.M{}
	for key, value := range r.Body {
		document[key] = value
	}

	ack, err := handle.InsertOne(r.Collection, document)
	if err != nil {
		return nil, newError(StorageOperationFailed, err, "Failed to add a new object")
	}

	g.broadcast(OperationInsert, r, ack.InsertedID)
	g.record(capability, OperationInsert, r)

	return writeResult(r, ack), nil
}

// Patch sets the fields of r.Body on the document identified by r.DocID.
// Fields not in r.Body are left alone and no document is created if none
// matches.
func (g *Gateway) Patch(ctx context.Context, r *Request) (*Result, error) {
	defer g.timer(OperationPatch)()

	capability, err := g.gate.Authorize(ctx, r, userdb.Write)
	if err != nil {
		return nil, err
	}

	id, err := g.identifiers.For(r.Database).WriteID(r.DocID)
	if err != nil {
		return nil, err
	}

	err = r.checkContentType()
	if err != nil {
		return nil, err
	}

	handle, err := g.acquire(ctx, r.Database)
	if err != nil {
		return nil, err
	}

	fields := bson.M{}
	for key, value := range r.Body {
		fields[key] = value
	}

	ack, err := handle.UpdateOne(r.Collection, bson.M{"_id": id}, bson.M{"$set": fields}, false)
	if err != nil {
		return nil, newError(StorageOperationFailed, err, "Failed to update object")
	}

	if ack.MatchedCount > 0 {
		g.broadcast(OperationPatch, r, id)
	}
	g.record(capability, OperationPatch, r)

	return writeResult(r, ack), nil
}

// Authorize checks r against the gate without performing any operation.
func (g *Gateway) Authorize(ctx context.Context, r *Request, mode userdb.Mode) (*Capability, error) {
	return g.gate.Authorize(ctx, r, mode)
}

// Permission returns the permissions of the caller behind r.
func (g *Gateway) Permission(ctx context.Context, r *Request) (*userdb.Permissions, error) {
	return g.gate.Permission(ctx, r)
}

// Ping checks that database can be reached.
func (g *Gateway) Ping(ctx context.Context, database string) error {
	handle, err := g.acquire(ctx, database)
	if err != nil {
		return err
	}

	err = handle.Ping()
	if err != nil {
		return newError(StorageUnavailable, err, "storage unavailable")
	}

	return nil
}
