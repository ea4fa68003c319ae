// Package snapshot encodes and decodes the open-file snapshots exchanged between peers.
package snapshot

import "time"

// OpenMode is the access mode a peer reports for an open file.
type OpenMode int

const (
	// ReadWrite is the default for any mode token that is not recognized.
	ReadWrite OpenMode = iota
	Read
	Write
)

// ParseOpenMode maps a raw mode token to an OpenMode.
// Matching is exact; anything other than "Read" or "Write" is ReadWrite.
func ParseOpenMode(s string) OpenMode {
	switch s {
	case "Read":
		return Read
	case "Write":
		return Write
	default:
		return ReadWrite
	}
}

// String returns the wire token for the mode.
func (m OpenMode) String() string {
	switch m {
	case Read:
		return "Read"
	case Write:
		return "Write"
	default:
		return "Read/Write"
	}
}

// Record is one row of a snapshot: a file a node reports as open.
type Record struct {
	Hostname   string
	LockID     string
	AccessedBy string
	LockType   string
	LockCount  int
	OpenMode   OpenMode
	// Filename is absolute once decoded against a local share root, and
	// relative to the share root on the wire.
	Filename string
	// Timestamp is stamped at ingestion time and never written to the wire.
	Timestamp time.Time
}
