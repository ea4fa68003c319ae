package reconcile

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/uuid"
)

// DefaultStagingName is the staging filename template.
const DefaultStagingName = "{{ .Host }}_{{ .Snapshot }}"

// syntheticPrefix marks host identifiers derived from the location itself.
const syntheticPrefix = "loc-"

// ErrStagingName indicates the staging template renders an unusable or
// colliding filename.
var ErrStagingName = errors.New("invalid staging name")

// HostIdentifier returns the host segment of a network share path such as
// \\host\share or //host/share. Locations without a network prefix get a
// stable synthetic identifier derived from the whole location, so two of
// them never share a staging file.
func HostIdentifier(location string) string {
	if host := networkHost(location); host != "" {
		return host
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(location))
	return syntheticPrefix + id.String()[:8]
}

// networkHost returns the segment after the first network prefix, or "".
func networkHost(location string) string {
	idx := -1
	for _, prefix := range []string{`\\`, "//"} {
		if i := strings.Index(location, prefix); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx < 0 {
		return ""
	}

	rest := strings.TrimLeft(location[idx:], `\/`)
	if end := strings.IndexAny(rest, `\/`); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// stagingData is exposed to the staging name template.
type stagingData struct {
	Host     string
	Snapshot string
	Location string
}

// stagingNamer renders staging filenames for remote locations.
type stagingNamer struct {
	tmpl *template.Template
}

func newStagingNamer(text string) (*stagingNamer, error) {
	if text == "" {
		text = DefaultStagingName
	}
	tmpl, err := template.New("staging").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStagingName, err)
	}
	return &stagingNamer{tmpl: tmpl}, nil
}

// Name renders the staging filename for location. The result must be a
// plain filename.
func (n *stagingNamer) Name(location, snapshotName string) (string, error) {
	var buf bytes.Buffer
	data := stagingData{
		Host:     HostIdentifier(location),
		Snapshot: snapshotName,
		Location: location,
	}
	if err := n.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStagingName, err)
	}

	name := strings.TrimSpace(buf.String())
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q for %s", ErrStagingName, name, location)
	}
	return name, nil
}

// stagingNames renders a distinct staging filename for every location.
func stagingNames(text, snapshotName string, locations []string) (map[string]string, error) {
	namer, err := newStagingNamer(text)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(locations))
	owner := make(map[string]string, len(locations))
	for _, loc := range locations {
		if _, dup := names[loc]; dup {
			return nil, fmt.Errorf("%w: remote location %s listed twice", ErrStagingName, loc)
		}
		name, err := namer.Name(loc, snapshotName)
		if err != nil {
			return nil, err
		}
		// Case-insensitive so Windows working folders behave the same.
		folded := strings.ToLower(name)
		if prev, ok := owner[folded]; ok {
			return nil, fmt.Errorf("%w: %s and %s both stage to %q", ErrStagingName, prev, loc, name)
		}
		owner[folded] = loc
		names[loc] = name
	}
	return names, nil
}
