package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRelevantFiltersEvents(t *testing.T) {
	w := New(t.TempDir(), false, 0, testLogger())

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"supported file created", fsnotify.Event{Name: "/in/doc.pdf", Op: fsnotify.Create}, true},
		{"supported file written", fsnotify.Event{Name: "/in/scan.png", Op: fsnotify.Write}, true},
		{"unsupported extension", fsnotify.Event{Name: "/in/notes.txt", Op: fsnotify.Create}, false},
		{"chmod only", fsnotify.Event{Name: "/in/doc.pdf", Op: fsnotify.Chmod}, false},
		{"removal", fsnotify.Event{Name: "/in/doc.pdf", Op: fsnotify.Remove}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.event))
		})
	}
}

func TestRelevantDirectoryEventsDependOnRecursion(t *testing.T) {
	event := fsnotify.Event{Name: "/in/newdir", Op: fsnotify.Create}

	assert.True(t, New("/in", true, 0, testLogger()).relevant(event))
	assert.False(t, New("/in", false, 0, testLogger()).relevant(event))
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, false, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) {})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestRunFiresAfterDebouncedChange(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, false, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	go func() {
		_ = w.Run(ctx, func(context.Context) {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before producing the event
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.pdf"), []byte("x"), 0o644))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire after a relevant change")
	}
}
