package core

import (
	"strings"

	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/store"
	"github.com/kinome/kinome-toolbox/userdb"
)

const (
	// JSONContentType is the only content type accepted for writes.
	JSONContentType = "application/json"
)

type (
	// Request is a single gateway operation, as handed over by the HTTP
	// layer.
	Request struct {
		Database   string
		Collection string
		DocID      string

		// All is the raw "all" query parameter.
		All string

		Credentials userdb.Credentials

		ContentType string
		Host        string
		URL         string

		Body bson.M
	}

	Links struct {
		Self string `json:"self"`
	}

	// Result is sent to callers on success.
	Result struct {
		Success bool          `json:"success,omitempty"`
		Data    []interface{} `json:"data"`
		Message string        `json:"message"`
		Links   Links         `json:"links"`
	}
)

func (r *Request) self() string {
	return "http://" + r.Host + r.URL
}

// wantsAll reports whether complete documents were requested.
func (r *Request) wantsAll() bool {
	return strings.ToLower(r.All) == "true"
}

func (r *Request) checkContentType() error {
	if strings.ToLower(r.ContentType) != JSONContentType {
		return newError(UnsupportedMediaType, nil, "Only JSON type is accepted.")
	}

	return nil
}

func readResult(r *Request, documents []bson.M) *Result {
	data := make([]interface{}, len(documents))
	for i, doc := range documents {
		data[i] = doc
	}

	return &Result{
		Data:    data,
		Message: "Successfully connected and queried database",
		Links:   Links{Self: r.self()},
	}
}

func writeResult(r *Request, ack *store.WriteResult) *Result {
	return &Result{
		Success: true,
		Data:    []interface{}{ack},
		Message: "Successfully posted object",
		Links:   Links{Self: r.self()},
	}
}
