package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/config"
	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/service"
)

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Database.Driver = "memory"
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.BcryptCost = 4
	cfg.Server.Port = 0
	return &cfg
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWireMemoryFallbacks(t *testing.T) {
	cfg := memoryConfig()
	deps, cleanup, err := Wire(context.Background(), cfg, quiet())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer cleanup()

	if deps.MarketCache != nil || deps.RateLimiter != nil {
		t.Fatal("redis-only dependencies set without redis")
	}
	if deps.Bus == nil || deps.Locks == nil || deps.Blobs == nil || deps.Archiver == nil {
		t.Fatalf("fallbacks missing: %+v", deps)
	}
	if len(deps.Health) != 0 {
		t.Fatalf("health deps = %v", deps.Health)
	}
}

func TestServicesRegisterAndCleanup(t *testing.T) {
	cfg := memoryConfig()
	a := New(cfg, quiet())
	deps, cleanup, err := Wire(context.Background(), cfg, quiet())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer cleanup()

	ctx := context.Background()
	svcs := a.NewServices(deps)
	for _, name := range []string{"keep", "gone"} {
		if _, err := svcs.Accounts.Register(ctx, service.RegisterRequest{
			Name: name, Email: name + "@uwaterloo.ca", Password: "long-enough",
		}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	cfg.Cleanup.KeepEmail = "keep@uwaterloo.ca"
	if err := a.CleanupMode(ctx, deps); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := deps.Users.GetByEmail(ctx, "gone@uwaterloo.ca"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("gone user err = %v", err)
	}
	if _, err := deps.Users.GetByEmail(ctx, "keep@uwaterloo.ca"); err != nil {
		t.Fatalf("kept user: %v", err)
	}
}

func TestServerModeStopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	a := New(cfg, quiet())
	deps, cleanup, err := Wire(context.Background(), cfg, quiet())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServerMode(ctx, deps) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("server mode: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server mode did not stop")
	}
}
