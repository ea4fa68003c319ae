package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLock records whether it was released.
type fakeLock struct {
	released bool
	err      error
}

func (f *fakeLock) Unlock() error {
	f.released = true
	return f.err
}

func TestTable_Acquire(t *testing.T) {
	t.Run("records locked entry", func(t *testing.T) {
		held := &fakeLock{}
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		table := NewTable(
			withAcquirer(func(string) (fileLock, error) { return held, nil }),
			WithClock(func() time.Time { return now }),
		)

		e := table.Acquire("docs\\a.txt", "/share/docs/a.txt")

		assert.Equal(t, Locked, e.State)
		assert.Equal(t, "/share/docs/a.txt", e.Path)
		assert.Equal(t, now, e.Since)
		assert.NoError(t, e.Err)
		assert.True(t, table.Has("docs\\a.txt"))
		assert.Equal(t, 1, table.Len())
	})

	t.Run("records failed entry", func(t *testing.T) {
		table := NewTable(withAcquirer(func(string) (fileLock, error) {
			return nil, ErrUnavailable
		}))

		e := table.Acquire("a.txt", "/share/a.txt")

		assert.Equal(t, Failed, e.State)
		assert.ErrorIs(t, e.Err, ErrUnavailable)
		assert.True(t, table.Has("a.txt"))
	})

	t.Run("attempts only once per appearance", func(t *testing.T) {
		attempts := 0
		table := NewTable(withAcquirer(func(string) (fileLock, error) {
			attempts++
			return nil, ErrUnavailable
		}))

		table.Acquire("a.txt", "/share/a.txt")
		table.Acquire("a.txt", "/share/a.txt")
		table.Acquire("a.txt", "/share/a.txt")

		assert.Equal(t, 1, attempts)
	})

	t.Run("retries after release", func(t *testing.T) {
		attempts := 0
		table := NewTable(withAcquirer(func(string) (fileLock, error) {
			attempts++
			return nil, ErrUnavailable
		}))

		table.Acquire("a.txt", "/share/a.txt")
		require.NoError(t, table.Release("a.txt"))
		table.Acquire("a.txt", "/share/a.txt")

		assert.Equal(t, 2, attempts)
	})
}

func TestTable_Release(t *testing.T) {
	t.Run("unlocks held entry", func(t *testing.T) {
		held := &fakeLock{}
		table := NewTable(withAcquirer(func(string) (fileLock, error) { return held, nil }))
		table.Acquire("a.txt", "/share/a.txt")

		require.NoError(t, table.Release("a.txt"))

		assert.True(t, held.released)
		assert.False(t, table.Has("a.txt"))
	})

	t.Run("failed entry is just removed", func(t *testing.T) {
		table := NewTable(withAcquirer(func(string) (fileLock, error) { return nil, ErrUnavailable }))
		table.Acquire("a.txt", "/share/a.txt")

		require.NoError(t, table.Release("a.txt"))
		assert.Zero(t, table.Len())
	})

	t.Run("entry removed even when unlock fails", func(t *testing.T) {
		held := &fakeLock{err: errors.New("handle already closed")}
		table := NewTable(withAcquirer(func(string) (fileLock, error) { return held, nil }))
		table.Acquire("a.txt", "/share/a.txt")

		err := table.Release("a.txt")

		assert.Error(t, err)
		assert.False(t, table.Has("a.txt"))
	})

	t.Run("unknown key is a no-op", func(t *testing.T) {
		table := NewTable()
		assert.NoError(t, table.Release("missing"))
	})
}

func TestTable_ReleaseAll(t *testing.T) {
	locks := map[string]*fakeLock{}
	table := NewTable(withAcquirer(func(path string) (fileLock, error) {
		l := &fakeLock{}
		locks[path] = l
		return l, nil
	}))

	table.Acquire("b.txt", "/share/b.txt")
	table.Acquire("a.txt", "/share/a.txt")

	assert.Equal(t, []string{"a.txt", "b.txt"}, table.Keys())
	require.NoError(t, table.ReleaseAll())

	assert.Zero(t, table.Len())
	for path, l := range locks {
		assert.True(t, l.released, path)
	}
}

func TestTable_EntriesHideHandles(t *testing.T) {
	table := NewTable(withAcquirer(func(string) (fileLock, error) { return &fakeLock{}, nil }))
	table.Acquire("a.txt", "/share/a.txt")

	entries := table.Entries()
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].handle)
	assert.Equal(t, "a.txt", entries[0].Key)
}

func TestAcquireFile(t *testing.T) {
	t.Run("locks an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.docx")
		require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

		table := NewTable()
		e := table.Acquire("report.docx", path)
		require.Equal(t, Locked, e.State, "error: %v", e.Err)

		assert.True(t, IsLocked(path))

		require.NoError(t, table.Release("report.docx"))
		assert.False(t, IsLocked(path))
	})

	t.Run("missing file fails without creating it", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.docx")

		table := NewTable()
		e := table.Acquire("missing.docx", path)

		assert.Equal(t, Failed, e.State)
		assert.ErrorIs(t, e.Err, ErrUnavailable)
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("second table cannot lock a held file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "shared.xlsx")
		require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

		first := NewTable()
		second := NewTable()

		require.Equal(t, Locked, first.Acquire("shared.xlsx", path).State)
		defer first.ReleaseAll()

		e := second.Acquire("shared.xlsx", path)
		assert.Equal(t, Failed, e.State)
		assert.ErrorIs(t, e.Err, ErrUnavailable)
	})
}

func TestIsLocked(t *testing.T) {
	t.Run("missing file is not locked", func(t *testing.T) {
		assert.False(t, IsLocked(filepath.Join(t.TempDir(), "nope")))
	})

	t.Run("unheld file is not locked", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "free.txt")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		assert.False(t, IsLocked(path))
	})
}
