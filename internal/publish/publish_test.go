package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsjo/berth/internal/snapshot"
)

// fakeEnumerator returns canned output.
type fakeEnumerator struct {
	out   string
	err   error
	calls int
}

func (f *fakeEnumerator) Enumerate(context.Context) ([]byte, error) {
	f.calls++
	return []byte(f.out), f.err
}

// row formats one enumerator row for an absolute path.
func row(mode, path string) string {
	return fmt.Sprintf(`"NODE1","11","alice","Windows","1","%s","%s"`, mode, path) + "\r\n"
}

// touch creates a file under root and returns its absolute path.
func touch(t *testing.T, root string, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	return path
}

func readSnapshot(t *testing.T, path, root string) []snapshot.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := snapshot.Decode(f, root)
	require.NoError(t, err)
	return records
}

func TestPublish(t *testing.T) {
	t.Run("publishes open files under the share", func(t *testing.T) {
		share := t.TempDir()
		report := touch(t, share, "docs", "report.docx")

		enum := &fakeEnumerator{out: row("Write", report)}
		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat"}, enum)

		result, err := p.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Enumerated)
		assert.Equal(t, 1, result.Published)
		assert.Equal(t, filepath.Join(share, "openfiles.dat"), result.Path)

		data, err := os.ReadFile(result.Path)
		require.NoError(t, err)
		assert.Equal(t, `NODE1,11,alice,Windows,1,Write,docs\report.docx`+"\r\n", string(data))
	})

	t.Run("drops files outside the share or missing locally", func(t *testing.T) {
		share := t.TempDir()
		outside := touch(t, t.TempDir(), "elsewhere.txt")
		kept := touch(t, share, "kept.txt")

		enum := &fakeEnumerator{out: strings.Join([]string{
			row("Read", outside),
			row("Read", filepath.Join(share, "deleted.txt")),
			row("Read", filepath.Join(share, "docs")),
			row("Read", kept),
		}, "")}
		require.NoError(t, os.MkdirAll(filepath.Join(share, "docs"), 0755))

		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat"}, enum)
		result, err := p.Publish(context.Background())
		require.NoError(t, err)

		records := readSnapshot(t, result.Path, share)
		require.Len(t, records, 1)
		assert.Equal(t, kept, records[0].Filename)
		assert.Equal(t, 4, result.Enumerated)
		assert.Equal(t, 0, result.Excluded)
	})

	t.Run("exception suffixes are excluded", func(t *testing.T) {
		share := t.TempDir()
		tmp := touch(t, share, "Docs", "Draft.tmp")
		upper := touch(t, share, "DOCS", "NOTES.TMP")
		doc := touch(t, share, "docs", "final.docx")

		enum := &fakeEnumerator{out: row("Write", tmp) + row("Write", upper) + row("Write", doc)}
		p := NewPublisher(Config{
			LocalShare:   share,
			SnapshotName: "openfiles.dat",
			Exceptions:   []string{".tmp"},
		}, enum)

		result, err := p.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Excluded)

		records := readSnapshot(t, result.Path, share)
		require.Len(t, records, 2)
		assert.Equal(t, upper, records[0].Filename, "suffix match is case-sensitive")
		assert.Equal(t, doc, records[1].Filename)
	})

	t.Run("empty exception matches nothing", func(t *testing.T) {
		share := t.TempDir()
		file := touch(t, share, "a.txt")

		enum := &fakeEnumerator{out: row("Read", file)}
		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat", Exceptions: []string{""}}, enum)

		result, err := p.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Published)
	})

	t.Run("never publishes the snapshot file itself", func(t *testing.T) {
		share := t.TempDir()
		snap := touch(t, share, "openfiles.dat")
		file := touch(t, share, "a.txt")

		enum := &fakeEnumerator{out: row("Read", snap) + row("Read", file)}
		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat"}, enum)

		result, err := p.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Published)
		assert.Equal(t, 1, result.Excluded)
	})

	t.Run("snapshot exclusion ignores case", func(t *testing.T) {
		share := t.TempDir()
		snap := touch(t, share, "OPENFILES.DAT")
		file := touch(t, share, "a.txt")

		enum := &fakeEnumerator{out: row("Read", snap) + row("Read", file)}
		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat"}, enum)

		result, err := p.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Published)
		assert.Equal(t, 1, result.Excluded)
	})

	t.Run("truncates the previous snapshot", func(t *testing.T) {
		share := t.TempDir()
		file := touch(t, share, "a.txt")
		enum := &fakeEnumerator{out: row("Read", file) + row("Write", file)}
		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat"}, enum)

		_, err := p.Publish(context.Background())
		require.NoError(t, err)

		enum.out = ""
		result, err := p.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, result.Published)

		data, err := os.ReadFile(result.Path)
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("skips header block from the enumerator", func(t *testing.T) {
		share := t.TempDir()
		file := touch(t, share, "a.txt")
		out := "-------------------- ----- ----\r\n" +
			"Hostname,ID,Accessed By,Type,#Locks,Open Mode,Open File\r\n" +
			row("Read", file)

		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat"}, &fakeEnumerator{out: out})
		result, err := p.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Enumerated)
		assert.Equal(t, 1, result.Published)
	})
}

func TestPublish_Errors(t *testing.T) {
	t.Run("enumeration failure", func(t *testing.T) {
		share := t.TempDir()
		enum := &fakeEnumerator{err: errors.New("openfiles.exe: exit status 1")}
		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat"}, enum)

		_, err := p.Publish(context.Background())
		assert.ErrorIs(t, err, ErrEnumerate)

		_, statErr := os.Stat(filepath.Join(share, "openfiles.dat"))
		assert.True(t, os.IsNotExist(statErr), "no snapshot should be written")
	})

	t.Run("write failure", func(t *testing.T) {
		share := filepath.Join(t.TempDir(), "missing")
		p := NewPublisher(Config{LocalShare: share, SnapshotName: "openfiles.dat"}, &fakeEnumerator{})

		_, err := p.Publish(context.Background())
		assert.ErrorIs(t, err, ErrWrite)
	})
}
