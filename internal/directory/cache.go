package directory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/Alijeyrad/carelink/internal/contact"
	"github.com/Alijeyrad/carelink/internal/model"
)

var _ Directory = (*Cached)(nil)

const (
	snapshotKey = "carelink:directory:snapshot"

	// loadTimeout bounds a shared load, which outlives the caller that
	// started it.
	loadTimeout = 30 * time.Second
)

// Cached keeps the graph snapshot in Redis for ttl so every instance does
// not rescan the relationship tables on each contact lookup. Concurrent
// misses on one instance share a single load, which is detached from the
// cancellation of whichever caller started it. Redis failures fall back to
// the wrapped directory.
type Cached struct {
	next  Directory
	rdb   redis.UniversalClient
	ttl   time.Duration
	group singleflight.Group
}

func NewCached(next Directory, rdb redis.UniversalClient, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl}
}

func (c *Cached) Snapshot(ctx context.Context) (*contact.Graph, error) {
	if g, ok := c.fromRedis(ctx); ok {
		return g, nil
	}

	ch := c.group.DoChan(snapshotKey, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		g, err := c.next.Snapshot(lctx)
		if err != nil {
			return nil, err
		}
		c.store(lctx, g)
		return g, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*contact.Graph), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cached) Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error) {
	g, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return usersFromGraph(g, ids), nil
}

// Invalidate drops the shared snapshot.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, snapshotKey).Err()
}

func (c *Cached) fromRedis(ctx context.Context) (*contact.Graph, bool) {
	data, err := c.rdb.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("directory: cache read failed", "error", err)
		return nil, false
	}
	var w cachedGraph
	if err := cbor.Unmarshal(data, &w); err != nil {
		slog.Warn("directory: cached snapshot is corrupt", "error", err)
		return nil, false
	}
	g, err := w.graph()
	if err != nil {
		slog.Warn("directory: cached snapshot is corrupt", "error", err)
		return nil, false
	}
	return g, true
}

func (c *Cached) store(ctx context.Context, g *contact.Graph) {
	data, err := cbor.Marshal(toCached(g))
	if err != nil {
		slog.Warn("directory: encode snapshot", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, snapshotKey, data, c.ttl).Err(); err != nil {
		slog.Warn("directory: cache write failed", "error", err)
	}
}

// cachedGraph is the Redis form of a snapshot. It carries profile emails,
// which the JSON facing model types hide.
type cachedGraph struct {
	Users    []cachedUser        `cbor:"1,keyasint"`
	Nurses   map[string][]string `cbor:"2,keyasint"`
	Carers   map[string][]string `cbor:"3,keyasint"`
	Facility map[string][]string `cbor:"4,keyasint"`
}

type cachedUser struct {
	ID     string   `cbor:"1,keyasint"`
	Name   string   `cbor:"2,keyasint"`
	Avatar string   `cbor:"3,keyasint"`
	Email  string   `cbor:"4,keyasint"`
	Roles  []string `cbor:"5,keyasint"`
}

func toCached(g *contact.Graph) cachedGraph {
	w := cachedGraph{
		Nurses:   encodeEdges(g.NurseMembers),
		Carers:   encodeEdges(g.CarerMembers),
		Facility: encodeEdges(g.FacilityMembers),
	}
	for _, u := range g.Users {
		cu := cachedUser{
			ID:     u.ID.String(),
			Name:   u.Profile.DisplayName,
			Avatar: u.Profile.AvatarURL,
			Email:  u.Profile.Email,
		}
		for _, r := range u.Roles {
			cu.Roles = append(cu.Roles, string(r))
		}
		w.Users = append(w.Users, cu)
	}
	return w
}

func (w cachedGraph) graph() (*contact.Graph, error) {
	g := &contact.Graph{}
	var err error
	if g.NurseMembers, err = decodeEdges(w.Nurses); err != nil {
		return nil, err
	}
	if g.CarerMembers, err = decodeEdges(w.Carers); err != nil {
		return nil, err
	}
	if g.FacilityMembers, err = decodeEdges(w.Facility); err != nil {
		return nil, err
	}
	for _, cu := range w.Users {
		id, err := uuid.Parse(cu.ID)
		if err != nil {
			return nil, err
		}
		u := model.User{
			ID:      id,
			Profile: model.Profile{UserID: id, DisplayName: cu.Name, AvatarURL: cu.Avatar, Email: cu.Email},
		}
		for _, r := range cu.Roles {
			u.Roles = append(u.Roles, model.Role(r))
		}
		g.Users = append(g.Users, u)
	}
	return g, nil
}

func encodeEdges(m map[uuid.UUID][]uuid.UUID) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, vs := range m {
		ss := make([]string, len(vs))
		for i, v := range vs {
			ss[i] = v.String()
		}
		out[k.String()] = ss
	}
	return out
}

func decodeEdges(m map[string][]string) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(m))
	for k, vs := range m {
		key, err := uuid.Parse(k)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0, len(vs))
		for _, v := range vs {
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		out[key] = ids
	}
	return out, nil
}
