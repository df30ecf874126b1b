package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

func TestFSNotifyWatcher_Creation(t *testing.T) {
	watcher, err := NewFSNotifyWatcher([]string{".txt", ".md"}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()
}

func TestFSNotifyWatcher_DefaultExtensions(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, nil)
	defer watcher.Stop()

	if len(watcher.extensions) != len(DefaultExtensions) {
		t.Errorf("expected %d default extensions, got %d", len(DefaultExtensions), len(watcher.extensions))
	}
}

func TestFSNotifyWatcher_WatchDirectory(t *testing.T) {
	dir := t.TempDir()

	watcher, _ := NewFSNotifyWatcher([]string{".txt"}, zap.NewNop())
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "test.txt"), []byte("hi"), 0644)
	}()

	select {
	case event := <-events:
		if event.Operation != ports.FileCreated {
			t.Errorf("expected create event, got %v", event.Operation)
		}
	case <-ctx.Done():
		t.Error("timeout waiting for event")
	}
}

func TestFSNotifyWatcher_WatchesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "billing")
	os.Mkdir(sub, 0755)

	watcher, _ := NewFSNotifyWatcher([]string{".md"}, zap.NewNop())
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(sub, "pricing.md"), []byte("# Pricing"), 0644)
	}()

	select {
	case event := <-events:
		if filepath.Base(event.Path) != "pricing.md" {
			t.Errorf("unexpected event path: %s", event.Path)
		}
	case <-ctx.Done():
		t.Error("timeout waiting for nested event")
	}
}

func TestFSNotifyWatcher_WatchSingleFile(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.yaml")
	os.WriteFile(corpus, []byte("[]"), 0644)

	watcher, _ := NewFSNotifyWatcher(nil, zap.NewNop())
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, corpus)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("[]"), 0644)
		os.WriteFile(corpus, []byte("- id: x"), 0644)
	}()

	select {
	case event := <-events:
		if filepath.Clean(event.Path) != corpus {
			t.Errorf("sibling file leaked through: %s", event.Path)
		}
	case <-ctx.Done():
		t.Error("timeout waiting for event")
	}
}

func TestFSNotifyWatcher_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()

	watcher, _ := NewFSNotifyWatcher([]string{".txt"}, zap.NewNop())
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	events, _ := watcher.Watch(ctx, dir)

	os.WriteFile(filepath.Join(dir, "test.png"), []byte("x"), 0644)

	select {
	case <-events:
		t.Error("should not receive event for .png")
	case <-time.After(300 * time.Millisecond):
		// Expected - no event
	}
}

func TestFSNotifyWatcher_MissingPath(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, zap.NewNop())
	defer watcher.Stop()

	if _, err := watcher.Watch(context.Background(), "/nonexistent/corpus"); err == nil {
		t.Error("watching a missing path should fail")
	}
}

func TestFSNotifyWatcher_Stop(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, nil)
	if err := watcher.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
}
