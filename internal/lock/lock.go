package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

type Lock struct {
	file *flock.Flock
	path string
}

// ForSource returns the default lock path for deploys of dir. Spellings of
// the same directory share one lock.
func ForSource(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(os.TempDir(), "arpm-"+hex.EncodeToString(sum[:8])+".lock")
}

// Acquire obtains a filesystem lock so two deploys never upload at once.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another deploy is already running (lock: %s)", path)
	}
	return &Lock{file: lock, path: path}, nil
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
