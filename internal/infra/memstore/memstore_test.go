package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/model"
)

func TestResultStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore()

	if _, err := s.Get(ctx, "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	now := time.Now()
	if err := s.Begin(ctx, "alice", model.NewProcessing("t1", now)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "alice")
	if err != nil || got.Status != model.TaskStatusProcessing {
		t.Fatalf("expected processing, got %+v err=%v", got, err)
	}

	ok, err := s.Finish(ctx, "alice", model.NewDone("t1", now, []byte(`{"a":1}`), ""))
	if err != nil || !ok {
		t.Fatalf("finish current turn: ok=%v err=%v", ok, err)
	}
	got, _ = s.Get(ctx, "alice")
	if got.Status != model.TaskStatusDone || string(got.ChatResponse) != `{"a":1}` {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestResultStore_StaleTurnCannotOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore()
	now := time.Now()

	_ = s.Begin(ctx, "bob", model.NewProcessing("old", now))
	_ = s.Begin(ctx, "bob", model.NewProcessing("new", now))

	ok, _ := s.Finish(ctx, "bob", model.NewFailed("old", now, errors.New("late failure")))
	if ok {
		t.Fatal("superseded turn must not overwrite the newer record")
	}
	got, _ := s.Get(ctx, "bob")
	if got.TurnID != "new" || got.Status != model.TaskStatusProcessing {
		t.Fatalf("unexpected record %+v", got)
	}

	if ok, _ := s.Finish(ctx, "nobody", model.NewDone("x", now, nil, "")); ok {
		t.Fatal("finish without begin must be refused")
	}
}

func TestResultStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore()
	_ = s.Begin(ctx, "carol", model.NewProcessing("t1", time.Now()))

	a, _ := s.Get(ctx, "carol")
	a.Status = model.TaskStatusError
	b, _ := s.Get(ctx, "carol")
	if b.Status != model.TaskStatusProcessing {
		t.Fatal("callers must not be able to mutate stored records")
	}
}

func TestStores_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	rs := NewResultStore()
	ss := NewSessionStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%4)
			turn := fmt.Sprintf("t%d", i)
			_ = rs.Begin(ctx, user, model.NewProcessing(turn, time.Now()))
			_, _ = rs.Get(ctx, user)
			_, _ = rs.Finish(ctx, user, model.NewDone(turn, time.Now(), nil, ""))
			_ = ss.Put(ctx, user, turn)
			_, _ = ss.Get(ctx, user)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		if _, err := rs.Get(ctx, fmt.Sprintf("u%d", i)); err != nil {
			t.Fatalf("u%d: %v", i, err)
		}
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	if _, err := s.Get(ctx, "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = s.Put(ctx, "alice", "sess-1")
	if tok, _ := s.Get(ctx, "alice"); tok != "sess-1" {
		t.Fatalf("got %q", tok)
	}
}

func TestResultStore_SweepKeepsProcessingAndFreshRecords(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore()
	old := time.Now().Add(-2 * time.Hour)
	fresh := time.Now()

	_ = s.Begin(ctx, "stale-done", model.NewProcessing("a", old))
	_, _ = s.Finish(ctx, "stale-done", model.NewDone("a", old, nil, ""))
	_ = s.Begin(ctx, "stale-error", model.NewProcessing("b", old))
	_, _ = s.Finish(ctx, "stale-error", model.NewFailed("b", old, errors.New("x")))
	_ = s.Begin(ctx, "fresh", model.NewProcessing("c", fresh))
	_, _ = s.Finish(ctx, "fresh", model.NewDone("c", fresh, nil, ""))
	_ = s.Begin(ctx, "running", model.NewProcessing("d", old))

	n, err := s.Sweep(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	for _, u := range []string{"stale-done", "stale-error"} {
		if _, err := s.Get(ctx, u); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("%s should be swept", u)
		}
	}
	for _, u := range []string{"fresh", "running"} {
		if _, err := s.Get(ctx, u); err != nil {
			t.Errorf("%s should be kept: %v", u, err)
		}
	}
}
