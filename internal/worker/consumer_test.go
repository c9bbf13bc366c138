package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nchandak/fanout/internal/invocation"
	"github.com/nchandak/fanout/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func enqueue(t *testing.T, st *store.Store, id string) {
	t.Helper()

	err := st.Invocations().Enqueue(&invocation.Invocation{
		ID:         id,
		PluginName: "echo",
		Action:     "echo",
	})
	if err != nil {
		t.Fatalf("Enqueue(%s) error = %v", id, err)
	}
}

func TestConsumer_Poll(t *testing.T) {
	t.Run("processes a claimed batch and records results", func(t *testing.T) {
		st := newTestStore(t)
		svc := newFakeService()

		var published []string
		c, err := NewConsumer(ConsumerConfig{
			Store:  st,
			Worker: New(svc, nil),
			OnResult: func(res *invocation.Result) {
				published = append(published, res.InvocationID)
			},
		})
		if err != nil {
			t.Fatalf("NewConsumer() error = %v", err)
		}

		enqueue(t, st, "a")
		enqueue(t, st, "b")

		if err := c.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}

		for _, id := range []string{"a", "b"} {
			inv, err := st.Invocations().Get(id)
			if err != nil {
				t.Fatalf("Get(%s) error = %v", id, err)
			}
			if inv.Status != invocation.StatusCompleted {
				t.Errorf("invocation %s status = %s, want %s", id, inv.Status, invocation.StatusCompleted)
			}
			if _, err := st.Invocations().GetResult(id); err != nil {
				t.Errorf("GetResult(%s) error = %v", id, err)
			}
		}

		if len(published) != 2 {
			t.Errorf("published %d results, want 2", len(published))
		}
	})

	t.Run("reschedules the batch when the fan-out fails", func(t *testing.T) {
		st := newTestStore(t)
		svc := newFakeService()
		svc.failIDs["bad"] = errors.New("process died")

		c, err := NewConsumer(ConsumerConfig{
			Store:       st,
			Worker:      New(svc, nil),
			MaxAttempts: 3,
			RetryDelay:  time.Minute,
		})
		if err != nil {
			t.Fatalf("NewConsumer() error = %v", err)
		}

		enqueue(t, st, "good")
		enqueue(t, st, "bad")

		if err := c.Poll(context.Background()); err == nil {
			t.Fatal("Poll() expected error, got nil")
		}

		// Both claimed invocations go back to pending with a retry delay.
		for _, id := range []string{"good", "bad"} {
			inv, err := st.Invocations().Get(id)
			if err != nil {
				t.Fatalf("Get(%s) error = %v", id, err)
			}
			if inv.Status != invocation.StatusPending {
				t.Errorf("invocation %s status = %s, want %s", id, inv.Status, invocation.StatusPending)
			}
			if inv.Attempt != 1 {
				t.Errorf("invocation %s attempt = %d, want 1", id, inv.Attempt)
			}
			if !inv.NotBefore.After(time.Now()) {
				t.Errorf("invocation %s should be delayed, not_before = %v", id, inv.NotBefore)
			}
		}

		// The delayed batch is not claimable on the next poll.
		if err := c.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if n := svc.callCount("good"); n != 1 {
			t.Errorf("invocation good executed %d times, want 1", n)
		}
	})

	t.Run("marks invocations failed once out of attempts", func(t *testing.T) {
		st := newTestStore(t)
		svc := newFakeService()
		svc.failIDs["bad"] = errors.New("process died")

		c, err := NewConsumer(ConsumerConfig{
			Store:       st,
			Worker:      New(svc, nil),
			MaxAttempts: 1,
			RetryDelay:  time.Minute,
		})
		if err != nil {
			t.Fatalf("NewConsumer() error = %v", err)
		}

		enqueue(t, st, "bad")

		if err := c.Poll(context.Background()); err == nil {
			t.Fatal("Poll() expected error, got nil")
		}

		inv, err := st.Invocations().Get("bad")
		if err != nil {
			t.Fatalf("Get(bad) error = %v", err)
		}
		if inv.Status != invocation.StatusFailed {
			t.Errorf("status = %s, want %s", inv.Status, invocation.StatusFailed)
		}
		if inv.LastError == "" {
			t.Error("expected last_error to be recorded")
		}
	})

	t.Run("short-circuits redelivered invocations", func(t *testing.T) {
		st := newTestStore(t)
		svc := newFakeService()

		c, err := NewConsumer(ConsumerConfig{
			Store:  st,
			Worker: New(svc, nil),
		})
		if err != nil {
			t.Fatalf("NewConsumer() error = %v", err)
		}

		enqueue(t, st, "dup")
		if err := c.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}

		// Simulate a redelivery: force the completed invocation back into
		// the claimable state.
		if _, err := st.DB().Exec(`UPDATE invocations SET status = 'pending' WHERE id = 'dup'`); err != nil {
			t.Fatalf("failed to requeue invocation: %v", err)
		}

		if err := c.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}

		if n := svc.callCount("dup"); n != 1 {
			t.Errorf("invocation dup executed %d times, want 1", n)
		}
		inv, err := st.Invocations().Get("dup")
		if err != nil {
			t.Fatalf("Get(dup) error = %v", err)
		}
		if inv.Status != invocation.StatusCompleted {
			t.Errorf("status = %s, want %s", inv.Status, invocation.StatusCompleted)
		}
	})
}

func TestConsumer_StartStop(t *testing.T) {
	st := newTestStore(t)
	svc := newFakeService()

	c, err := NewConsumer(ConsumerConfig{
		Store:        st,
		Worker:       New(svc, nil),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}

	enqueue(t, st, "looped")

	c.Start()
	defer c.Stop()

	deadline := time.After(2 * time.Second)
	for {
		inv, err := st.Invocations().Get("looped")
		if err != nil {
			t.Fatalf("Get(looped) error = %v", err)
		}
		if inv.Status == invocation.StatusCompleted {
			return
		}

		select {
		case <-deadline:
			t.Fatalf("invocation not processed, status = %s", inv.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConsumer_RequeuesStaleRunningOnStart(t *testing.T) {
	st := newTestStore(t)
	svc := newFakeService()

	enqueue(t, st, "stale")
	if _, err := st.Invocations().Claim(1); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	c, err := NewConsumer(ConsumerConfig{
		Store:        st,
		Worker:       New(svc, nil),
		PollInterval: time.Hour, // keep the loop from interfering
	})
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}

	c.Start()
	defer c.Stop()

	inv, err := st.Invocations().Get("stale")
	if err != nil {
		t.Fatalf("Get(stale) error = %v", err)
	}
	if inv.Status != invocation.StatusPending {
		t.Errorf("status = %s, want %s", inv.Status, invocation.StatusPending)
	}
}
