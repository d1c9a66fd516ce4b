// Package aggregate merges in-scope pattern files into one payload.
package aggregate

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"strudelwatch/internal/logging"
)

// HeaderPrefix starts the provenance comment line opening each segment.
const HeaderPrefix = "// file: "

// separator is the blank line between segments.
const separator = "\n\n"

// FileReadError reports a file that could not be read at aggregation time.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

// Payload is the merged pattern text plus what went into it.
type Payload struct {
	Text string
	// Files lists the included paths in canonical order.
	Files []string
	// Skipped lists files left out because they could not be read.
	Skipped []*FileReadError
}

// Options configure an Aggregator.
type Options struct {
	// Display renders a path in segment headers; the path itself when nil.
	Display  func(path string) string
	ReadFile func(path string) ([]byte, error)
	Logger   *logging.AppLogger
}

// Aggregator reads files fresh on every call; nothing is cached.
type Aggregator struct {
	display  func(string) string
	readFile func(string) ([]byte, error)
	logger   *logging.AppLogger
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	a := &Aggregator{
		display:  opts.Display,
		readFile: opts.ReadFile,
		logger:   opts.Logger,
	}
	if a.display == nil {
		a.display = filepath.ToSlash
	}
	if a.readFile == nil {
		a.readFile = os.ReadFile
	}
	if a.logger == nil {
		a.logger = logging.GetDefault()
	}
	return a
}

// Aggregate sorts paths lexicographically, drops duplicates, and joins each
// file as a header line plus its content with trailing newlines trimmed.
// Unreadable files are logged and skipped; the rest is still returned.
func (a *Aggregator) Aggregate(paths []string) Payload {
	ordered := slices.Clone(paths)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	var (
		payload  Payload
		segments []string
	)
	for _, p := range ordered {
		data, err := a.readFile(p)
		if err != nil {
			readErr := &FileReadError{Path: p, Err: err}
			a.logger.Warn("Skipping unreadable pattern file", "file", a.display(p), "error", err)
			payload.Skipped = append(payload.Skipped, readErr)
			continue
		}
		segments = append(segments, Segment(a.display(p), string(data)))
		payload.Files = append(payload.Files, p)
	}

	payload.Text = strings.Join(segments, separator)
	return payload
}

// Segment renders one file block.
func Segment(name, content string) string {
	return HeaderPrefix + name + "\n" + strings.TrimRight(content, "\r\n")
}
