// Package publish writes this node's open-file snapshot into its shared folder.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cameronsjo/berth/internal/enumerate"
	"github.com/cameronsjo/berth/internal/snapshot"
)

var (
	// ErrEnumerate indicates the open-file enumerator failed or produced
	// unreadable output.
	ErrEnumerate = errors.New("enumerate open files")
	// ErrWrite indicates the snapshot file could not be written.
	ErrWrite = errors.New("write snapshot")
)

// Config holds the publisher settings.
type Config struct {
	// LocalShare is the root of the shared folder on this node.
	LocalShare string
	// SnapshotName is the snapshot filename inside LocalShare.
	SnapshotName string
	// Exceptions are filename suffixes never published (case-sensitive).
	Exceptions []string
}

// Result summarizes one publish run.
type Result struct {
	Path       string
	Enumerated int
	Published  int
	Excluded   int
}

// Publisher turns the enumerator's output into a snapshot file.
// It keeps no state between runs.
type Publisher struct {
	config     Config
	enumerator enumerate.Enumerator
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config, enumerator enumerate.Enumerator) *Publisher {
	return &Publisher{config: cfg, enumerator: enumerator}
}

// Path returns the snapshot file location.
func (p *Publisher) Path() string {
	return filepath.Join(p.config.LocalShare, p.config.SnapshotName)
}

// Publish enumerates open files and rewrites the snapshot file.
//
// Only files that exist under the share root are kept, minus exceptions
// and the snapshot file itself. The file is truncated and rewritten row by
// row; it is not replaced atomically, peers tolerate a truncated tail.
func (p *Publisher) Publish(ctx context.Context) (*Result, error) {
	raw, err := p.enumerator.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumerate, err)
	}

	rows, err := snapshot.ReadRows(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumerate, err)
	}

	result := &Result{Path: p.Path(), Enumerated: len(rows)}
	records := p.filter(rows, result)

	f, err := os.Create(result.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	if err := snapshot.Encode(f, records, p.config.LocalShare); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	result.Published = len(records)
	return result, nil
}

// filter keeps the rows peers should lock.
func (p *Publisher) filter(rows []snapshot.Record, result *Result) []snapshot.Record {
	var kept []snapshot.Record
	for _, rec := range rows {
		rel, ok := snapshot.Relative(rec.Filename, p.config.LocalShare)
		if !ok || !isRegularFile(rec.Filename) {
			continue
		}
		if strings.EqualFold(rel, snapshot.ToWire(p.config.SnapshotName)) || p.isException(rel) {
			result.Excluded++
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// isException reports whether rel ends with any configured suffix.
func (p *Publisher) isException(rel string) bool {
	for _, suffix := range p.config.Exceptions {
		if suffix != "" && strings.HasSuffix(rel, suffix) {
			return true
		}
	}
	return false
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
