package snapshot

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpenMode(t *testing.T) {
	tests := []struct {
		token string
		want  OpenMode
	}{
		{"Read", Read},
		{"Write", Write},
		{"Read/Write", ReadWrite},
		{"read", ReadWrite},
		{"", ReadWrite},
		{"garbage", ReadWrite},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOpenMode(tt.token))
		})
	}
}

func TestReadRows(t *testing.T) {
	t.Run("parses fields in order", func(t *testing.T) {
		input := `"NODE1","42","alice","Windows","3","Write","C:\share\docs\report.docx"` + "\r\n"

		rows, err := ReadRows(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, rows, 1)

		assert.Equal(t, Record{
			Hostname:   "NODE1",
			LockID:     "42",
			AccessedBy: "alice",
			LockType:   "Windows",
			LockCount:  3,
			OpenMode:   Write,
			Filename:   `C:\share\docs\report.docx`,
		}, rows[0])
	})

	t.Run("invalid lock count parses as zero", func(t *testing.T) {
		input := "h,1,u,t,N/A,Read,a.txt\nh,2,u,t,,Read,b.txt\nh,3,u,t,-4,Read,c.txt\n"

		rows, err := ReadRows(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for _, row := range rows {
			assert.Equal(t, 0, row.LockCount)
		}
	})

	t.Run("skips header block", func(t *testing.T) {
		input := strings.Join([]string{
			"========== ---------- ==========",
			"Hostname,ID,Accessed By,Type,#Locks,Open Mode,Open File",
			"h,1,u,t,0,Read,a.txt",
			"h,2,u,t,0,Write,b.txt",
		}, "\r\n")

		rows, err := ReadRows(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "a.txt", rows[0].Filename)
		assert.Equal(t, "b.txt", rows[1].Filename)
	})

	t.Run("header row with seven fields is still discarded", func(t *testing.T) {
		input := "------\nHostname,ID,Accessed By,Type,#Locks,Open Mode,Open File\nh,1,u,t,0,Read,a.txt\n"

		rows, err := ReadRows(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "h", rows[0].Hostname)
	})

	t.Run("short dash runs are not a header rule", func(t *testing.T) {
		input := "h,1,u,t,0,Read,my-file--name.txt\nh,2,u,t,0,Read,b.txt\n"

		rows, err := ReadRows(strings.NewReader(input))
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("dash rule after data is a filename", func(t *testing.T) {
		input := strings.Join([]string{
			"h,1,u,t,0,Read,a.txt",
			"h,2,u,t,0,Write,minutes-----draft.docx",
			"h,3,u,t,0,Write,budget.xlsx",
		}, "\r\n")

		rows, err := ReadRows(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "minutes-----draft.docx", rows[1].Filename)
		assert.Equal(t, "budget.xlsx", rows[2].Filename)
	})

	t.Run("fields keep inner spaces", func(t *testing.T) {
		rows, err := ReadRows(strings.NewReader("h,1,Jane Doe,t, 2 ,Read, notes.txt\r\n"))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Jane Doe", rows[0].AccessedBy)
		assert.Equal(t, 2, rows[0].LockCount)
		assert.Equal(t, " notes.txt", rows[0].Filename)
	})

	t.Run("empty input", func(t *testing.T) {
		rows, err := ReadRows(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestReadRows_MalformedRowTolerance(t *testing.T) {
	valid := []string{
		"h,1,u,t,0,Read,a.txt",
		"h,2,u,t,1,Write,b.txt",
	}
	malformed := []string{
		"h,1,u,t,0,Read",
		"h,1,u,t,0,Read,a.txt,extra",
		"no separators at all",
		"h,1,u,t,0,Rea", // truncated tail from a concurrent writer
	}

	base, err := ReadRows(strings.NewReader(strings.Join(valid, "\r\n")))
	require.NoError(t, err)

	for _, bad := range malformed {
		t.Run(bad, func(t *testing.T) {
			lines := []string{valid[0], bad, valid[1]}
			got, err := ReadRows(strings.NewReader(strings.Join(lines, "\r\n")))
			require.NoError(t, err)
			assert.Equal(t, base, got)
		})
	}
}

func TestDecode(t *testing.T) {
	root := t.TempDir()

	t.Run("absolutizes against local root", func(t *testing.T) {
		input := `NODE1,1,alice,Windows,0,Write,docs\report.docx` + "\r\n"

		records, err := Decode(strings.NewReader(input), root)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, filepath.Join(root, "docs", "report.docx"), records[0].Filename)
		assert.True(t, records[0].Timestamp.IsZero(), "timestamp is stamped by the reconciler")
	})

	t.Run("drops rows escaping the root", func(t *testing.T) {
		input := strings.Join([]string{
			`h,1,u,t,0,Read,..\..\etc\passwd`,
			`h,2,u,t,0,Read,docs\..\..\outside.txt`,
			`h,3,u,t,0,Read,inside.txt`,
		}, "\r\n")

		records, err := Decode(strings.NewReader(input), root)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, filepath.Join(root, "inside.txt"), records[0].Filename)
	})
}

func TestEncode(t *testing.T) {
	root := t.TempDir()

	t.Run("writes relative wire rows without header", func(t *testing.T) {
		var buf bytes.Buffer
		err := Encode(&buf, []Record{{
			Hostname:   "NODE1",
			LockID:     "7",
			AccessedBy: "bob",
			LockType:   "Windows",
			LockCount:  1,
			OpenMode:   Write,
			Filename:   filepath.Join(root, "docs", "report.docx"),
		}}, root)
		require.NoError(t, err)

		assert.Equal(t, `NODE1,7,bob,Windows,1,Write,docs\report.docx`+"\r\n", buf.String())
	})

	t.Run("rejects records outside the root", func(t *testing.T) {
		var buf bytes.Buffer
		err := Encode(&buf, []Record{{Filename: filepath.Join(filepath.Dir(root), "elsewhere.txt")}}, root)
		assert.ErrorIs(t, err, ErrOutsideRoot)
	})

	t.Run("empty input writes nothing", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, nil, root))
		assert.Zero(t, buf.Len())
	})
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	root := t.TempDir()

	records := []Record{
		{Hostname: "A", LockID: "1", AccessedBy: "u1", LockType: "Windows", LockCount: 0, OpenMode: Read, Filename: filepath.Join(root, "a.txt")},
		{Hostname: "A", LockID: "2", AccessedBy: "u2", LockType: "Windows", LockCount: 5, OpenMode: Write, Filename: filepath.Join(root, "docs", "b.docx")},
		{Hostname: "B", LockID: "3", AccessedBy: "u3", LockType: "Macintosh", LockCount: 2, OpenMode: ReadWrite, Filename: filepath.Join(root, "x", "y", "z.bin")},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, records, root))

	decoded, err := Decode(&buf, root)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestEncodeDecode_DifferentRoots(t *testing.T) {
	publisherRoot := t.TempDir()
	peerRoot := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []Record{{
		Hostname: "NODE1",
		OpenMode: Write,
		Filename: filepath.Join(publisherRoot, "docs", "report.docx"),
	}}, publisherRoot))

	decoded, err := Decode(&buf, peerRoot)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, filepath.Join(peerRoot, "docs", "report.docx"), decoded[0].Filename)
	assert.Equal(t, Write, decoded[0].OpenMode)
}

func TestEncodeDecode_RoundTripAwkwardNames(t *testing.T) {
	root := t.TempDir()

	records := []Record{
		{Hostname: "A", LockID: "1", OpenMode: Write, Filename: filepath.Join(root, "minutes-----draft.docx")},
		{Hostname: "A", LockID: "2", OpenMode: Write, Filename: filepath.Join(root, "budget.xlsx")},
		{Hostname: "A", LockID: "3", OpenMode: Read, Filename: filepath.Join(root, " leading space.txt")},
		{Hostname: "A", LockID: "4", OpenMode: Read, Filename: filepath.Join(root, "c.txt")},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, records, root))

	decoded, err := Decode(&buf, root)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}
