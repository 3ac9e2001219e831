package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const deadPID = 999999999

func TestPIDFile_WriteRead(t *testing.T) {
	f := NewPIDFile(filepath.Join(t.TempDir(), "nested", "rig.pid"))

	if err := f.Write(4242); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	pid, err := f.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if pid != 4242 {
		t.Errorf("Read() = %d, want 4242", pid)
	}
}

func TestPIDFile_DefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RIG_DIR", dir)
	t.Setenv("RIG_PID_PATH", "")

	if got, want := NewPIDFile("").Path, filepath.Join(dir, "rig.pid"); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestPIDFile_ReadErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := NewPIDFile(filepath.Join(t.TempDir(), "none.pid")).Read()
		if !os.IsNotExist(err) {
			t.Errorf("Read() = %v, want not-exist", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rig.pid")
		if err := os.WriteFile(path, []byte("not-a-number\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewPIDFile(path).Read(); err == nil {
			t.Error("Read() error = nil for invalid content")
		}
	})
}

func TestPIDFile_Remove(t *testing.T) {
	f := NewPIDFile(filepath.Join(t.TempDir(), "rig.pid"))
	if err := f.Remove(); err != nil {
		t.Errorf("Remove() on missing file = %v", err)
	}
	if err := f.Write(1); err != nil {
		t.Fatal(err)
	}
	if err := f.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Error("PID file still exists after Remove()")
	}
}

func TestPIDFile_Acquire(t *testing.T) {
	t.Run("fresh", func(t *testing.T) {
		f := NewPIDFile(filepath.Join(t.TempDir(), "rig.pid"))
		if err := f.Acquire(); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if running, pid := f.Running(); !running || pid != os.Getpid() {
			t.Errorf("Running() = %v, %d", running, pid)
		}
	})

	t.Run("stale", func(t *testing.T) {
		f := NewPIDFile(filepath.Join(t.TempDir(), "rig.pid"))
		if err := f.Write(deadPID); err != nil {
			t.Fatal(err)
		}
		if IsProcessRunning(deadPID) {
			t.Skip("unexpectedly high PID exists")
		}
		if err := f.Acquire(); err != nil {
			t.Fatalf("Acquire() over stale file error = %v", err)
		}
	})

	t.Run("held by live process", func(t *testing.T) {
		f := NewPIDFile(filepath.Join(t.TempDir(), "rig.pid"))
		// PID 1 is always alive.
		if err := f.Write(1); err != nil {
			t.Fatal(err)
		}
		if err := f.Acquire(); !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("Acquire() = %v, want ErrAlreadyRunning", err)
		}
	})
}

func TestPIDFile_CleanStale(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		if NewPIDFile(filepath.Join(t.TempDir(), "rig.pid")).CleanStale() {
			t.Error("CleanStale() = true without a file")
		}
	})

	t.Run("stale", func(t *testing.T) {
		if IsProcessRunning(deadPID) {
			t.Skip("unexpectedly high PID exists")
		}
		f := NewPIDFile(filepath.Join(t.TempDir(), "rig.pid"))
		if err := f.Write(deadPID); err != nil {
			t.Fatal(err)
		}
		if !f.CleanStale() {
			t.Error("CleanStale() = false for stale file")
		}
		if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
			t.Error("stale PID file not removed")
		}
	})

	t.Run("live", func(t *testing.T) {
		f := NewPIDFile(filepath.Join(t.TempDir(), "rig.pid"))
		if err := f.Write(os.Getpid()); err != nil {
			t.Fatal(err)
		}
		if f.CleanStale() {
			t.Error("CleanStale() removed a live PID file")
		}
	})
}

func TestIsProcessRunning(t *testing.T) {
	if !IsProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	for _, pid := range []int{0, -1} {
		if IsProcessRunning(pid) {
			t.Errorf("IsProcessRunning(%d) = true", pid)
		}
	}
}
