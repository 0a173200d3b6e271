// Package directory is the boundary to the identity and relationship
// collaborators. Messaging only reads from it.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/contact"
	"github.com/Alijeyrad/carelink/internal/model"
)

var ErrUnknownDriver = errors.New("unknown directory driver")

type Directory interface {
	// Snapshot returns the current relationship graph.
	Snapshot(ctx context.Context) (*contact.Graph, error)
	// Users returns the users among ids that exist. Unknown ids are
	// omitted.
	Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error)
}

// usersFromGraph is the Users lookup for implementations that already hold
// a snapshot.
func usersFromGraph(g *contact.Graph, ids []uuid.UUID) map[uuid.UUID]model.User {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[uuid.UUID]model.User, len(ids))
	for _, u := range g.Users {
		if _, ok := want[u.ID]; ok {
			out[u.ID] = u
		}
	}
	return out
}
