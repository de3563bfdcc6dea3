package core

import (
	"context"
	"errors"

	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/logger"
	"github.com/kinome/kinome-toolbox/userdb"
)

type (
	// Capability is handed out by a successful authorization. ID is the
	// account that usage can be recorded against.
	Capability struct {
		ID bson.ObjectId
	}

	// Gate decides whether a request may touch its database and collection.
	Gate struct {
		oracle userdb.Oracle
	}
)

func NewGate(oracle userdb.Oracle) *Gate {
	return &Gate{oracle: oracle}
}

// Permission returns the permissions of the caller behind r.
func (g *Gate) Permission(ctx context.Context, r *Request) (*userdb.Permissions, error) {
	permissions, err := g.oracle.Permission(ctx, r.Credentials)
	if errors.Is(err, userdb.ErrorUnknownIdentity) {
		return nil, newError(Unauthenticated, nil, "unable to determine identity")
	}

	if err != nil {
		logger.Red("core", "Permission lookup failed: %s", err.Error())
		return nil, newError(AuthorizationUnavailable, err, "Check for authentication failed.")
	}

	return permissions, nil
}

// Authorize checks that the caller behind r has mode access to r.Database
// and r.Collection. Failing to determine permissions at all is reported as
// AuthorizationUnavailable, never as Unauthorized.
func (g *Gate) Authorize(ctx context.Context, r *Request, mode userdb.Mode) (*Capability, error) {
	permissions, err := g.oracle.Permission(ctx, r.Credentials)
	if err != nil {
		logger.Red("core", "Permission lookup failed: %s", err.Error())
		return nil, newError(AuthorizationUnavailable, err, "Check for authentication failed.")
	}

	if !permissions.Allows(r.Database, r.Collection, mode) {
		logger.Yellow("core", "%s denied %s access to %s/%s", permissions.ID.Hex(), mode, r.Database, r.Collection)
		return nil, newError(Unauthorized, nil, "User is not authorized to %s %s/%s.", mode, r.Database, r.Collection)
	}

	return &Capability{ID: permissions.ID}, nil
}
