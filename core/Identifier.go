package core

import (
	"regexp"
	"strings"

	"gopkg.in/mgo.v2/bson"
)

type (
	// IdentifierFormat turns a document id from a URL into the value stored
	// in "_id".
	IdentifierFormat interface {
		// ReadID parses raw for lookups.
		ReadID(raw string) (interface{}, error)

		// WriteID parses raw for updates.
		WriteID(raw string) (interface{}, error)
	}

	// ObjectIdFormat is the native MongoDB ObjectId.
	ObjectIdFormat struct{}

	// LegacyFormat is used by databases predating ObjectIds. Lookups accept
	// any string, updates require a UUID.
	LegacyFormat struct{}

	// Identifiers selects an IdentifierFormat by database name.
	Identifiers struct {
		formats  map[string]IdentifierFormat
		fallback IdentifierFormat
	}
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func malformedIdentifier(raw string) error {
	return newError(MalformedIdentifier, nil, "Improperly formed id for database entry: '%s'", raw)
}

func (ObjectIdFormat) ReadID(raw string) (interface{}, error) {
	if !bson.IsObjectIdHex(raw) {
		return nil, malformedIdentifier(raw)
	}

	return bson.ObjectIdHex(raw), nil
}

func (f ObjectIdFormat) WriteID(raw string) (interface{}, error) {
	return f.ReadID(raw)
}

func (LegacyFormat) ReadID(raw string) (interface{}, error) {
	return raw, nil
}

func (LegacyFormat) WriteID(raw string) (interface{}, error) {
	if !uuidPattern.MatchString(raw) {
		return nil, malformedIdentifier(raw)
	}

	return raw, nil
}

// NewIdentifiers returns Identifiers using LegacyFormat for the legacy
// databases and ObjectIdFormat for everything else.
func NewIdentifiers(legacy ...string) *Identifiers {
	i := &Identifiers{
		formats:  make(map[string]IdentifierFormat),
		fallback: ObjectIdFormat{},
	}

	for _, database := range legacy {
		i.Register(database, LegacyFormat{})
	}

	return i
}

// Register sets the format for database. Database names are matched
// case-insensitively.
func (i *Identifiers) Register(database string, format IdentifierFormat) {
	i.formats[strings.ToLower(database)] = format
}

// For returns the format used by database.
func (i *Identifiers) For(database string) IdentifierFormat {
	format, found := i.formats[strings.ToLower(database)]
	if !found {
		return i.fallback
	}

	return format
}
