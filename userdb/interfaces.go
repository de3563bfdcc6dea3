package userdb

import (
	"context"
	"errors"

	"github.com/zeebo/errs"
)

type (
	// Mode is the kind of access requested on a collection.
	Mode int

	// Credentials carry whatever the caller presented. An empty APIKey means
	// that permissions should be derived from the ambient credential, the
	// session cookie.
	Credentials struct {
		APIKey string
		Cookie string
	}

	// Oracle resolves the permissions of a caller.
	Oracle interface {
		Permission(ctx context.Context, credentials Credentials) (*Permissions, error)
	}
)

const (
	Read Mode = iota + 1
	Write
)

var (
	// Error is the class of errors from looking up users.
	Error = errs.Class("userdb")

	// ErrorUnknownIdentity is returned when no identity can be derived from
	// the credentials presented.
	ErrorUnknownIdentity error = errors.New("401: unable to determine identity")
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	}

	return "unknown"
}
