package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if first.Path() != path {
		t.Fatalf("unexpected path %s", first.Path())
	}

	if _, err := Acquire(path); err == nil {
		t.Fatal("second acquire should fail while the lock is held")
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}

func TestForSource(t *testing.T) {
	dir := t.TempDir()
	a := ForSource(dir)
	if filepath.Dir(a) != os.TempDir() {
		t.Fatalf("lock %s not in temp dir", a)
	}
	if b := ForSource(dir + string(filepath.Separator) + "."); b != a {
		t.Fatalf("same directory gave %s and %s", a, b)
	}
	if c := ForSource(filepath.Join(dir, "other")); c == a {
		t.Fatal("different directories share a lock")
	}
}

func TestAcquireEmptyPath(t *testing.T) {
	if _, err := Acquire(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
