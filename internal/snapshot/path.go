package snapshot

import (
	"os"
	"path/filepath"
	"strings"
)

// wireSeparator separates path segments in snapshot filenames. Peers running
// the Windows tooling emit backslashes, so every node writes them.
const wireSeparator = `\`

// ToWire converts a relative OS path to its wire form.
func ToWire(rel string) string {
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", wireSeparator)
}

// FromWire converts a wire filename to a relative OS path.
func FromWire(name string) string {
	return filepath.FromSlash(strings.ReplaceAll(name, wireSeparator, "/"))
}

// Relative returns name relative to root in wire form.
// The prefix comparison ignores case. It reports false when name does not
// fall strictly under root.
func Relative(name, root string) (string, bool) {
	if name == "" || root == "" {
		return "", false
	}
	name = filepath.Clean(name)
	root = filepath.Clean(root)

	if len(name) <= len(root) || !strings.EqualFold(name[:len(root)], root) {
		return "", false
	}

	rest := name[len(root):]
	// "C:\share2\x" must not match root "C:\share".
	if !os.IsPathSeparator(rest[0]) && !os.IsPathSeparator(root[len(root)-1]) {
		return "", false
	}

	rest = strings.TrimLeft(rest, string(filepath.Separator))
	if rest == "" {
		return "", false
	}
	return ToWire(rest), true
}

// Key returns the lock table key for name under root: its wire form folded
// to lower case, since the shares it names are case-insensitive.
func Key(name, root string) (string, bool) {
	rel, ok := Relative(name, root)
	if !ok {
		return "", false
	}
	return strings.ToLower(rel), true
}

// Absolute resolves a wire filename against the local root.
// It reports false for names that are blank, rooted, or escape root.
// Surrounding spaces are part of the name.
func Absolute(name, root string) (string, bool) {
	rel := strings.TrimLeft(FromWire(name), `/\`)
	if strings.TrimSpace(rel) == "" || root == "" || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", false
	}

	abs := filepath.Join(root, rel)
	if _, ok := Relative(abs, root); !ok {
		return "", false
	}
	return abs, true
}
