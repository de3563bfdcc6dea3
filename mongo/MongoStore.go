package mongo

import (
	"strings"
	"time"

	"github.com/zeebo/errs"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/configuration"
	"github.com/kinome/kinome-toolbox/logger"
	"github.com/kinome/kinome-toolbox/store"
)

var (
	// Error is the class of all errors returned from MongoDB.
	Error = errs.Class("mongo")
)

type (
	// Dialer is an implementation of store.Dialer using MongoDB as a backend.
	Dialer struct {
		url     string
		timeout time.Duration
	}

	// MongoStore is a store.Handle for a single MongoDB database.
	MongoStore struct {
		sess     *mgo.Session
		database string
	}
)

// NewDialer will instantiate a new Dialer reaching databases below the
// server described by config.
func NewDialer(config configuration.MongoConfiguration) *Dialer {
	return &Dialer{
		url:     config.Url,
		timeout: config.DialTimeout(),
	}
}

// databaseUrl returns the connection string for database.
func (d *Dialer) databaseUrl(database string) string {
	url := strings.TrimRight(d.url, "/")

	if !strings.Contains(url, "://") {
		url = "mongodb://" + url
	}

	return url + "/" + database
}

func (d *Dialer) Dial(database string) (store.Handle, error) {
	url := d.databaseUrl(database)

	sess, err := mgo.DialWithTimeout(url, d.timeout)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	sess.SetMode(mgo.Monotonic, true)
	logger.Green("mongo", "Connected to mongo/%s at %s", database, d.url)

	return &MongoStore{
		sess:     sess,
		database: database,
	}, nil
}

// with runs f against a copy of the shared session.
func (s *MongoStore) with(collection string, f func(c *mgo.Collection) error) error {
	sess := s.sess.Copy()
	defer sess.Close()

	return Error.Wrap(f(sess.DB(s.database).C(collection)))
}

func (s *MongoStore) Find(collection string, filter bson.M, projection bson.M) ([]bson.M, error) {
	var documents []bson.M

	err := s.with(collection, func(c *mgo.Collection) error {
		query := c.Find(filter)
		if len(projection) > 0 {
			query = query.Select(projection)
		}

		return query.All(&documents)
	})
	if err != nil {
		logger.Red("mongo", "Error finding in %s.%s: %s", s.database, collection, err.Error())
		return nil, err
	}

	if documents == nil {
		documents = []bson.M{}
	}

	return documents, nil
}

// InsertOne will insert doc. If doc has no "_id" a new ObjectId is assigned,
// the same way the official drivers do it.
func (s *MongoStore) InsertOne(collection string, doc bson.M) (*store.WriteResult, error) {
	if doc == nil {
		doc = bson.M{}
	}

	id, found := doc["_id"]
	if !found {
		id = bson.NewObjectId()
		doc["_id"] = id
	}

	err := s.with(collection, func(c *mgo.Collection) error {
		return c.Insert(doc)
	})
	if err != nil {
		return nil, err
	}

	return &store.WriteResult{
		Acknowledged: true,
		InsertedID:   id,
	}, nil
}

// UpdateOne is implemented as a single operation bulk write since that is
// the only way mgo will report matched and modified counts for a single
// document update.
func (s *MongoStore) UpdateOne(collection string, filter bson.M, update bson.M, upsert bool) (*store.WriteResult, error) {
	var result *mgo.BulkResult

	err := s.with(collection, func(c *mgo.Collection) error {
		var err error

		bulk := c.Bulk()
		if upsert {
			bulk.Upsert(filter, update)
		} else {
			bulk.Update(filter, update)
		}

		result, err = bulk.Run()
		return err
	})
	if err != nil {
		return nil, err
	}

	return &store.WriteResult{
		Acknowledged:  true,
		MatchedCount:  result.Matched,
		ModifiedCount: result.Modified,
	}, nil
}

func (s *MongoStore) Ping() error {
	sess := s.sess.Copy()
	defer sess.Close()

	return Error.Wrap(sess.Ping())
}

func (s *MongoStore) Close() {
	s.sess.Close()
}
