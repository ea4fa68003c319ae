// Package ui provides leveled, colored console output with an optional
// rotating log file.
package ui

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Colors
	Red    = color.New(color.FgRed)
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Blue   = color.New(color.FgBlue)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Faint  = color.New(color.Faint)
)

// Verbosity selects how chatty output is, from V1 (essential) to V3 (trace).
type Verbosity int

const (
	V1 Verbosity = iota + 1
	V2
	V3
)

var (
	mu        sync.Mutex
	verbosity = V1
	logFile   *lumberjack.Logger
	now       = time.Now
)

// SetVerbosity sets the output level, clamped to 1..3.
func SetVerbosity(level int) {
	mu.Lock()
	defer mu.Unlock()
	verbosity = Verbosity(max(int(V1), min(int(V3), level)))
}

// Enabled reports whether messages at v are printed.
func Enabled(v Verbosity) bool {
	mu.Lock()
	defer mu.Unlock()
	return v <= verbosity
}

// ConfigureColor applies a color mode: "always", "never", or "auto"
// (color only when stdout is a terminal).
func ConfigureColor(mode string) {
	switch mode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	default:
		color.NoColor = color.NoColor || !term.IsTerminal(int(os.Stdout.Fd()))
	}
}

// SetLogFile mirrors every printed message, uncolored and timestamped, to
// path. The file is rotated once it exceeds maxSizeMB.
func SetLogFile(path string, maxSizeMB, maxBackups int) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	if path == "" {
		return
	}
	logFile = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
}

// CloseLogFile flushes and closes the log file, if any.
func CloseLogFile() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// emit prints one line at level v.
func emit(v Verbosity, c *color.Color, kind, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if v > verbosity {
		return
	}

	msg := fmt.Sprintf(format, args...)
	c.Fprintln(color.Output, prefix+msg)

	if logFile != nil {
		fmt.Fprintf(logFile, "[%s %s V%d] %s\n", now().Format(time.DateTime), kind, v, msg)
	}
}

// Success prints a green success message with checkmark.
func Success(format string, args ...any) {
	emit(V1, Green, "INFO", "✓ ", format, args...)
}

// Error prints a red error message with X.
func Error(format string, args ...any) {
	emit(V1, Red, "ERROR", "✗ ", format, args...)
}

// Warning prints a yellow warning message.
func Warning(format string, args ...any) {
	emit(V1, Yellow, "WARN", "⚠ ", format, args...)
}

// Info prints a blue info message.
func Info(format string, args ...any) {
	emit(V1, Blue, "INFO", "", format, args...)
}

// Detail prints a message shown from verbosity 2.
func Detail(format string, args ...any) {
	emit(V2, Cyan, "INFO", "", format, args...)
}

// Trace prints a message shown only at verbosity 3.
func Trace(format string, args ...any) {
	emit(V3, Faint, "DEBUG", "", format, args...)
}

// Header prints a bold header.
func Header(format string, args ...any) {
	emit(V1, Bold, "INFO", "", format, args...)
}

// Anchor reports a lock taken on behalf of a peer. Shown from verbosity 2.
func Anchor(format string, args ...any) {
	emit(V2, Blue, "INFO", "⚓ ", format, args...)
}

// Snapshot reports a published snapshot. Shown from verbosity 2.
func Snapshot(format string, args ...any) {
	emit(V2, Blue, "INFO", "📸 ", format, args...)
}

// Fatal prints an error to stderr and exits.
func Fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	mu.Lock()
	if logFile != nil {
		fmt.Fprintf(logFile, "[%s FATAL V1] %s\n", now().Format(time.DateTime), msg)
	}
	mu.Unlock()

	Red.Fprintln(os.Stderr, "✗ "+msg)
	CloseLogFile()
	os.Exit(1)
}
