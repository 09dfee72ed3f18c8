package nodetype

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestWatch_CoalescesDefinitionChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, slog.New(slog.NewTextHandler(io.Discard, nil)), func() {
			changes <- struct{}{}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	for i, body := range []string{"name: A\n", "name: A\ngatetypes: [gen]\n"} {
		if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(body), 0600); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
	select {
	case <-changes:
		t.Error("burst of writes produced more than one notification")
	case <-time.After(3 * watchDebounce):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestWatch_MissingDir(t *testing.T) {
	defer goleak.VerifyNone(t)

	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent"), nil, func() {})
	if err == nil {
		t.Error("expected error for a missing directory")
	}
}
