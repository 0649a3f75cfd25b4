package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

func TestBusDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBus()
	ch, _ := b.Subscribe(ctx, "ch:line")

	_ = b.Publish(ctx, "ch:line", []byte("hello"))
	_ = b.Publish(ctx, "other", []byte("ignored"))

	select {
	case msg := <-ch:
		if string(msg) != "hello" {
			t.Fatalf("msg = %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected message after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestLocksExclusiveUntilRelease(t *testing.T) {
	l := NewLocks()
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "cleanup", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "cleanup", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}
	unlock()
	unlock()
	if _, err := l.Acquire(ctx, "cleanup", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestLocksExpire(t *testing.T) {
	l := NewLocks()
	now := time.Now()
	l.nowFn = func() time.Time { return now }

	if _, err := l.Acquire(context.Background(), "k", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := l.Acquire(context.Background(), "k", time.Second); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
}
