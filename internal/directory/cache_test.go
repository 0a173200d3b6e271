package directory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Alijeyrad/carelink/internal/contact"
	"github.com/Alijeyrad/carelink/internal/model"
)

// gatedDirectory blocks every Snapshot until release is closed and honours
// the context it is handed.
type gatedDirectory struct {
	graph   *contact.Graph
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (d *gatedDirectory) Snapshot(ctx context.Context) (*contact.Graph, error) {
	if d.calls.Add(1) == 1 {
		close(d.started)
	}
	select {
	case <-d.release:
		return d.graph, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *gatedDirectory) Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error) {
	g, err := d.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return usersFromGraph(g, ids), nil
}

// unreachableRedis fails every command at once, so each lookup is a miss.
func unreachableRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCachedLoadSurvivesLeaderCancel(t *testing.T) {
	dir := &gatedDirectory{
		graph:   &contact.Graph{Users: []model.User{{ID: nora, Roles: []model.Role{model.RoleNurse}}}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewCached(dir, unreachableRedis(t), time.Minute)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Snapshot(leaderCtx)
		leaderErr <- err
	}()

	select {
	case <-dir.started:
	case <-time.After(2 * time.Second):
		t.Fatal("load never started")
	}

	type result struct {
		g   *contact.Graph
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		g, err := c.Snapshot(context.Background())
		waiter <- result{g, err}
	}()
	// Let the waiter join the load in flight.
	time.Sleep(100 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("leader err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled leader did not return")
	}

	close(dir.release)
	select {
	case r := <-waiter:
		if r.err != nil {
			t.Fatalf("waiter err = %v", r.err)
		}
		if len(r.g.Users) != 1 || r.g.Users[0].ID != nora {
			t.Errorf("waiter graph = %+v", r.g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not return")
	}

	if n := dir.calls.Load(); n != 1 {
		t.Errorf("loads = %d, want 1 shared load", n)
	}
}

func TestCachedCallerCancelReturnsPromptly(t *testing.T) {
	dir := &gatedDirectory{
		graph:   &contact.Graph{},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	defer close(dir.release)
	c := NewCached(dir, unreachableRedis(t), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Snapshot(ctx)
		done <- err
	}()
	<-dir.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Snapshot ignored caller cancellation")
	}
}
