package watch

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tessro/rig/internal/logging"
)

func startWatcher(t *testing.T, root string) <-chan string {
	t.Helper()
	logging.SetupTest(io.Discard)

	removed := make(chan string, 8)
	w := New(root, func(name string) { removed <- name })
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return removed
}

func expectName(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Errorf("onRemove(%q), want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no callback for %q", want)
	}
}

func expectNothing(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case got := <-ch:
		t.Errorf("unexpected onRemove(%q)", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_Remove(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "alpha", "server"), 0755); err != nil {
		t.Fatal(err)
	}
	removed := startWatcher(t, root)

	if err := os.RemoveAll(filepath.Join(root, "alpha")); err != nil {
		t.Fatal(err)
	}
	expectName(t, removed, "alpha")
}

func TestWatcher_Rename(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "alpha"), 0755); err != nil {
		t.Fatal(err)
	}
	removed := startWatcher(t, root)

	if err := os.Rename(filepath.Join(root, "alpha"), filepath.Join(t.TempDir(), "alpha")); err != nil {
		t.Fatal(err)
	}
	expectName(t, removed, "alpha")
}

func TestWatcher_IgnoresOtherEvents(t *testing.T) {
	root := t.TempDir()
	removed := startWatcher(t, root)

	// Creation is not removal.
	if err := os.Mkdir(filepath.Join(root, "alpha"), 0755); err != nil {
		t.Fatal(err)
	}
	// Nested changes are outside the watched level.
	if err := os.WriteFile(filepath.Join(root, "alpha", "x"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	// Hidden entries are not projects.
	hidden := filepath.Join(root, ".cache")
	if err := os.Mkdir(hidden, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(hidden); err != nil {
		t.Fatal(err)
	}
	expectNothing(t, removed)
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), nil)
	if err := w.Start(); err == nil {
		w.Close()
		t.Fatal("Start() on missing root succeeded")
	}
}

func TestWatcher_CloseTwice(t *testing.T) {
	w := New(t.TempDir(), nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := w.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close() = %v, want ErrClosed", err)
	}
}
