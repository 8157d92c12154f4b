package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// KeyedMutex serialises work per key while letting distinct keys proceed
// in parallel.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// ThreadLocker hands out cross-process locks, one lock file per thread id,
// so two processes sharing a checkpoint database never drive the same
// thread at once.
type ThreadLocker struct {
	Dir   string
	Retry time.Duration
}

func NewThreadLocker(dir string) (*ThreadLocker, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	return &ThreadLocker{Dir: dir, Retry: 100 * time.Millisecond}, nil
}

// Lock acquires the thread's lock file, waiting until ctx is done.
func (l *ThreadLocker) Lock(ctx context.Context, threadID string) (func(), error) {
	path := filepath.Join(l.Dir, unsafeKeyChars.ReplaceAllString(threadID, "_")+".lock")
	fl := flock.New(path)

	ok, err := fl.TryLockContext(ctx, l.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to acquire lock on %s", path)
	}
	return func() { _ = fl.Unlock() }, nil
}
