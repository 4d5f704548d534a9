package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRun_ReturnsStartupErrors(t *testing.T) {
	log := zerolog.Nop()
	cases := map[string]string{
		"missing config":       filepath.Join(t.TempDir(), "absent.yaml"),
		"unknown driver":       writeConfig(t, "storage:\n  driver: \"floppy\"\n"),
		"queue without rabbit": writeConfig(t, "storage:\n  driver: \"memory\"\nnotify:\n  mode: \"queue\"\n"),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			if err := run(context.Background(), options{configPath: path}, &log); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	log := zerolog.Nop()
	path := writeConfig(t, `server:
  port: "0"
  timezone: "UTC"
  gin_mode: "test"
storage:
  driver: "memory"
ratelimit:
  enabled: false
`)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, options{configPath: path}, &log) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
