package control

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/pdfmend/internal/core/config"
)

func TestApp_Lifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0 // Random port

	app, err := NewApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.archive.Repo == nil {
		t.Fatal("expected memory archive")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the server goroutine spin up
	time.Sleep(50 * time.Millisecond)

	if err := app.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestOpenArchive_Backends(t *testing.T) {
	tests := []struct {
		backend string
		hasRepo bool
	}{
		{config.BackendNone, false},
		{config.BackendMemory, true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Archive.Backend = tt.backend

			a, err := OpenArchive(context.Background(), cfg)
			if err != nil {
				t.Fatalf("OpenArchive failed: %v", err)
			}
			if (a.Repo != nil) != tt.hasRepo {
				t.Errorf("repo present = %v, want %v", a.Repo != nil, tt.hasRepo)
			}
			if err := a.Health(context.Background()); err != nil {
				t.Errorf("Health failed: %v", err)
			}
			if err := a.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		})
	}
}

func TestOpenArchive_RedisUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Backend = config.BackendRedis
	cfg.Redis.URL = "redis://127.0.0.1:1"

	if _, err := OpenArchive(context.Background(), cfg); err == nil {
		t.Error("expected connection error")
	}
}
