package userdb

import (
	"strings"

	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/configuration"
)

type (
	// CollectionGrant gives read and/or write access to one collection.
	CollectionGrant struct {
		Name  string `json:"name" bson:"name"`
		Read  bool   `json:"read" bson:"read"`
		Write bool   `json:"write" bson:"write"`
	}

	// Grant scopes access to one database.
	Grant struct {
		Database    string            `json:"database" bson:"database"`
		Collections []CollectionGrant `json:"collections" bson:"collections"`
	}

	// Permissions is everything a caller has been granted. ID references the
	// account the grants belong to.
	Permissions struct {
		ID     bson.ObjectId `json:"_id" bson:"_id"`
		Email  string        `json:"email,omitempty" bson:"email,omitempty"`
		Grants []Grant       `json:"permissions" bson:"permissions"`
	}
)

// Allows reports whether the grant permits mode.
func (c CollectionGrant) Allows(mode Mode) bool {
	switch mode {
	case Read:
		return c.Read
	case Write:
		return c.Write
	}

	return false
}

// Lookup finds the collection grant for database and collection. Names are
// compared case-insensitively. The first grant naming database is
// authoritative, and so is the first collection grant within it, even when
// later duplicates would be more permissive.
func (p *Permissions) Lookup(database string, collection string) (CollectionGrant, bool) {
	for _, grant := range p.Grants {
		if !strings.EqualFold(grant.Database, database) {
			continue
		}

		for _, c := range grant.Collections {
			if strings.EqualFold(c.Name, collection) {
				return c, true
			}
		}

		return CollectionGrant{}, false
	}

	return CollectionGrant{}, false
}

// Allows reports whether mode access to database and collection is granted.
func (p *Permissions) Allows(database string, collection string, mode Mode) bool {
	grant, found := p.Lookup(database, collection)

	return found && grant.Allows(mode)
}

// GrantsFromConfiguration converts configured grants.
func GrantsFromConfiguration(grants []configuration.GrantConfiguration) []Grant {
	result := make([]Grant, 0, len(grants))

	for _, g := range grants {
		grant := Grant{
			Database:    g.Database,
			Collections: make([]CollectionGrant, 0, len(g.Collections)),
		}

		for _, c := range g.Collections {
			grant.Collections = append(grant.Collections, CollectionGrant{
				Name:  c.Name,
				Read:  c.Read,
				Write: c.Write,
			})
		}

		result = append(result, grant)
	}

	return result
}
