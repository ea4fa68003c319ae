package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// headerRule marks the separator row of a human-readable header block.
	headerRule = "-----"
	// fieldSeparator separates the fields of a data row.
	fieldSeparator = ","
	// fieldCount is the number of fields in a valid data row.
	fieldCount = 7
	// rowTerminator ends every encoded row.
	rowTerminator = "\r\n"

	maxRowLength = 1024 * 1024
)

// ErrOutsideRoot indicates a record names a file outside the share root.
var ErrOutsideRoot = errors.New("filename outside share root")

// ReadRows parses raw snapshot or enumerator text into records.
//
// Before the first data row, a row containing a dash rule is dropped together
// with the row after it (the column header); once a data row has been read
// every later row is data. Quote characters are stripped, the row is trimmed
// and it must split into exactly seven fields; rows that do not are ignored,
// which tolerates the truncated tail of a snapshot still being written.
// Fields, filenames included, are returned verbatim.
func ReadRows(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRowLength)

	var records []Record
	skipNext, seenData := false, false
	for scanner.Scan() {
		line := scanner.Text()

		if skipNext {
			skipNext = false
			continue
		}
		if !seenData && strings.Contains(line, headerRule) {
			skipNext = true
			continue
		}

		rec, ok := parseRow(line)
		if !ok {
			continue
		}
		seenData = true
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot rows: %w", err)
	}

	return records, nil
}

// parseRow splits a single data row.
func parseRow(line string) (Record, bool) {
	line = strings.TrimSpace(strings.ReplaceAll(line, `"`, ""))
	if !strings.Contains(line, fieldSeparator) {
		return Record{}, false
	}

	fields := strings.Split(line, fieldSeparator)
	if len(fields) != fieldCount {
		return Record{}, false
	}
	count, err := strconv.Atoi(strings.TrimSpace(fields[4]))
	if err != nil || count < 0 {
		count = 0
	}

	return Record{
		Hostname:   fields[0],
		LockID:     fields[1],
		AccessedBy: fields[2],
		LockType:   fields[3],
		LockCount:  count,
		OpenMode:   ParseOpenMode(fields[5]),
		Filename:   fields[6],
	}, true
}

// Decode parses a peer snapshot and re-absolutizes every filename against the
// local share root. Rows whose filename would resolve outside root are dropped.
func Decode(r io.Reader, root string) ([]Record, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, rec := range rows {
		abs, ok := Absolute(rec.Filename, root)
		if !ok {
			continue
		}
		rec.Filename = abs
		records = append(records, rec)
	}

	return records, nil
}

// Encode writes one row per record, without a header. Filenames are made
// relative to root. Each row is handed to w in a single Write call so an
// unbuffered file receives whole rows.
func Encode(w io.Writer, records []Record, root string) error {
	for _, rec := range records {
		rel, ok := Relative(rec.Filename, root)
		if !ok {
			return fmt.Errorf("%s: %w", rec.Filename, ErrOutsideRoot)
		}

		row := strings.Join([]string{
			rec.Hostname,
			rec.LockID,
			rec.AccessedBy,
			rec.LockType,
			strconv.Itoa(rec.LockCount),
			rec.OpenMode.String(),
			rel,
		}, fieldSeparator) + rowTerminator

		if _, err := io.WriteString(w, row); err != nil {
			return fmt.Errorf("write snapshot row: %w", err)
		}
	}
	return nil
}
