package rendezvous

import (
	"context"
	"testing"
	"time"
)

func TestAwaitWakesOnPublish(t *testing.T) {
	r := New()
	r.Register("a")

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- r.Await(ctx, "a")
	}()

	time.Sleep(10 * time.Millisecond)
	r.Publish("a")

	if err := <-done; err != nil {
		t.Fatalf("expected Await to return nil, got %v", err)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	r := New()
	r.Register("b")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := r.Await(ctx, "b"); err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPublishIsIdempotentAndSafeWithoutWaiter(t *testing.T) {
	r := New()
	r.Publish("never-registered")
	r.Publish("never-registered")
}

func TestPublishWakesOnlyOnce(t *testing.T) {
	r := New()
	r.Register("c")
	r.Publish("c")

	first, cancelFirst := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelFirst()
	if err := r.Await(first, "c"); err != nil {
		t.Fatalf("expected first Await after publish to return nil, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// A second Await for an id whose signal already fired and was
	// consumed starts a fresh wait, since Publish removes the entry;
	// this should time out rather than return stale success.
	if err := r.Await(ctx, "c"); err != ErrTimeout {
		t.Fatalf("expected ErrTimeout on re-await after publish, got %v", err)
	}
}
