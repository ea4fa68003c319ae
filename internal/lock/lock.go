// Package lock holds exclusive OS-level locks on local files on behalf of
// remote peers, and tracks them in a Table keyed by share-relative filename.
package lock

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnavailable indicates a file could not be locked: it is missing,
// already held elsewhere, or access was denied.
var ErrUnavailable = errors.New("file unavailable for locking")

// State describes the outcome of the single acquisition attempt for an entry.
type State int

const (
	// Locked means an exclusive OS lock is held.
	Locked State = iota
	// Failed means the attempt failed and will not be retried while the
	// entry exists.
	Failed
)

func (s State) String() string {
	if s == Locked {
		return "locked"
	}
	return "failed"
}

// fileLock is a held OS-level lock.
type fileLock interface {
	Unlock() error
}

// Entry is the per-file state in a Table.
type Entry struct {
	Key   string
	Path  string
	State State
	Since time.Time
	// Err is the cause of a failed attempt.
	Err error

	handle fileLock
}

// view returns a copy without the OS handle.
func (e *Entry) view() Entry {
	c := *e
	c.handle = nil
	return c
}

// Table maps share-relative filenames to lock entries.
// It is not safe for concurrent use; a single reconcile loop owns it.
type Table struct {
	entries map[string]*Entry
	acquire func(path string) (fileLock, error)
	now     func() time.Time
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithClock sets the clock used to stamp entries.
func WithClock(now func() time.Time) TableOption {
	return func(t *Table) {
		t.now = now
	}
}

// withAcquirer replaces the OS lock primitive. Used by tests.
func withAcquirer(fn func(path string) (fileLock, error)) TableOption {
	return func(t *Table) {
		t.acquire = fn
	}
}

// NewTable creates an empty Table backed by the platform lock primitive.
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		entries: make(map[string]*Entry),
		acquire: acquireFile,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Has reports whether key has an entry, locked or failed.
func (t *Table) Has(key string) bool {
	_, ok := t.entries[key]
	return ok
}

// Get returns a copy of the entry for key.
func (t *Table) Get(key string) (Entry, bool) {
	e, ok := t.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.view(), true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Keys returns all keys in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns copies of all entries sorted by key.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, k := range t.Keys() {
		out = append(out, t.entries[k].view())
	}
	return out
}

// Acquire records an entry for key and makes one attempt to lock path.
// An existing entry is returned unchanged. A failed attempt still records
// an entry so the file is not retried every cycle.
func (t *Table) Acquire(key, path string) Entry {
	if e, ok := t.entries[key]; ok {
		return e.view()
	}

	e := &Entry{
		Key:   key,
		Path:  path,
		Since: t.now(),
	}

	h, err := t.acquire(path)
	if err != nil {
		e.State = Failed
		e.Err = err
	} else {
		e.State = Locked
		e.handle = h
	}

	t.entries[key] = e
	return e.view()
}

// Release unlocks and closes the file held for key, then removes the entry.
// The entry is removed even when unlocking fails; the error is returned for
// logging only. Releasing an unknown key is a no-op.
func (t *Table) Release(key string) error {
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	delete(t.entries, key)

	if e.handle == nil {
		return nil
	}
	if err := e.handle.Unlock(); err != nil {
		return fmt.Errorf("release %s: %w", e.Path, err)
	}
	return nil
}

// ReleaseAll releases every entry and returns the errors encountered.
func (t *Table) ReleaseAll() error {
	var errs []error
	for _, k := range t.Keys() {
		if err := t.Release(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
