package userdb

import (
	"context"

	"gopkg.in/mgo.v2/bson"
)

var (
	// GodId is the account used in single user installations.
	GodId = bson.ObjectIdHex("000000000000000000000000")
)

type (
	// SingleUser is an Oracle for a single user system. Everyone presenting
	// the right key, or no key at all if no key is configured, is given the
	// same grants.
	SingleUser struct {
		key    string
		grants []Grant
	}
)

func NewSingleUser(key string, grants []Grant) *SingleUser {
	return &SingleUser{
		key:    key,
		grants: grants,
	}
}

func (s *SingleUser) Permission(_ context.Context, credentials Credentials) (*Permissions, error) {
	if s.key != "" && credentials.APIKey != s.key {
		return nil, ErrorUnknownIdentity
	}

	grants := make([]Grant, len(s.grants))
	copy(grants, s.grants)

	return &Permissions{
		ID:     GodId,
		Grants: grants,
	}, nil
}
