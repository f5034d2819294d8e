package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rehash-tools/rehash/internal/store"
)

// ErrSessionLocked indicates another process holds the session lock for the
// same repository.
var ErrSessionLocked = errors.New("another session is already running for this repository")

// lockFilePerm is the permission for lock files.
const lockFilePerm = 0o600

// Lock is an advisory per-repository lock. It uses flock, so a crashed
// process releases it automatically.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the exclusive lock for a repository, failing fast when a
// concurrent session holds it.
func AcquireLock(repoPath string) (*Lock, error) {
	path := filepath.Join(os.TempDir(), "rehash-"+store.RepoHash(repoPath)+".lock")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePerm)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	flockErr := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if flockErr != nil {
		file.Close()

		if errors.Is(flockErr, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrSessionLocked, path)
		}

		return nil, fmt.Errorf("acquire lock: %w", flockErr)
	}

	// Best effort: record the holder for humans inspecting the file.
	truncErr := file.Truncate(0)
	if truncErr == nil {
		_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &Lock{path: path, file: file}, nil
}

// Release drops the lock. The lock file stays behind: unlinking it would let
// a process holding the old inode and one recreating the path each believe
// they own the lock.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("release lock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}

	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}
