// Package preflight checks that this node can publish, fetch and lock
// before the daemon starts.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/docker/go-units"

	"github.com/cameronsjo/berth/internal/fileutil"
	"github.com/cameronsjo/berth/internal/lock"
)

// Check is the outcome of one pre-flight check.
type Check struct {
	Name     string
	OK       bool
	Required bool // false = warning only
	Detail   string
	Hint     string
}

// Inputs are the settings the checks exercise.
type Inputs struct {
	EnumeratorCommand string
	LocalShare        string
	WorkingFolder     string
	SnapshotName      string
	RemoteLocations   []string
}

// IsBinaryAvailable checks if a specific binary is available in PATH.
func IsBinaryAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// CheckEnumerator verifies the enumerator command can be found.
func CheckEnumerator(command string) Check {
	c := Check{Name: "enumerator " + command, Required: true}
	path, err := exec.LookPath(command)
	if err != nil {
		c.Detail = err.Error()
		c.Hint = "openfiles.exe ships with Windows; set enumerator.command on other systems"
		return c
	}
	c.OK = true
	c.Detail = path
	return c
}

// CheckShareRoot verifies the share root is a writable directory, since
// the snapshot is published there.
func CheckShareRoot(dir string) Check {
	c := Check{Name: "local share " + dir, Required: true}
	if err := fileutil.CheckWritableDir(dir); err != nil {
		c.Detail = err.Error()
		c.Hint = "local_share must exist and be writable by this user"
		return c
	}
	c.OK = true
	return c
}

// CheckWorkingFolder creates the working folder if needed and verifies it
// is writable.
func CheckWorkingFolder(dir string) Check {
	c := Check{Name: "working folder " + dir, Required: true}
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.Detail = err.Error()
		return c
	}
	if err := fileutil.CheckWritableDir(dir); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	return c
}

// CheckLocking verifies an exclusive lock can be taken and observed in dir.
func CheckLocking(dir string) Check {
	c := Check{Name: "file locking", Required: true}

	f, err := os.CreateTemp(dir, ".berth-lock-*")
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	table := lock.NewTable()
	entry := table.Acquire("preflight", path)
	defer table.ReleaseAll()

	if entry.State != lock.Locked {
		c.Detail = fmt.Sprintf("acquire: %v", entry.Err)
		return c
	}
	if !lock.IsLocked(path) {
		c.Detail = "lock held but not observed by a second open"
		c.Hint = "the filesystem may not support advisory locks"
		return c
	}
	c.OK = true
	return c
}

// CheckRemote verifies a peer's snapshot can be read and reports its size
// and age. An unreachable peer is a warning: the daemon tolerates it.
func CheckRemote(location, snapshotName string) Check {
	c := Check{Name: "remote " + location}
	info, err := os.Stat(filepath.Join(location, snapshotName))
	if err != nil {
		c.Detail = err.Error()
		c.Hint = "the peer may be offline or not publishing yet"
		return c
	}
	c.OK = true
	c.Detail = fmt.Sprintf("%s, updated %s ago",
		units.HumanSize(float64(info.Size())), units.HumanDuration(time.Since(info.ModTime())))
	return c
}

// Run performs every check in order.
func Run(in Inputs) []Check {
	checks := []Check{
		CheckEnumerator(in.EnumeratorCommand),
		CheckShareRoot(in.LocalShare),
		CheckWorkingFolder(in.WorkingFolder),
	}
	if checks[2].OK {
		checks = append(checks, CheckLocking(in.WorkingFolder))
	}
	for _, loc := range in.RemoteLocations {
		checks = append(checks, CheckRemote(loc, in.SnapshotName))
	}
	return checks
}

// Summarize splits failed checks into warnings and errors.
// Errors are failed required checks, warnings are failed optional ones.
func Summarize(checks []Check) (warnings []string, errors []string) {
	for _, c := range checks {
		if c.OK {
			continue
		}
		msg := c.Name + ": " + c.Detail
		if c.Hint != "" {
			msg += " (" + c.Hint + ")"
		}
		if c.Required {
			errors = append(errors, msg)
		} else {
			warnings = append(warnings, msg)
		}
	}
	return warnings, errors
}
