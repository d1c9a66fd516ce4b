// Package scope decides which pattern files are authoritative inputs.
//
// Resolve turns command-line arguments (literal paths, glob expressions, or
// nothing) into the initial file list and a Matcher. The Matcher answers the
// same question for files that appear while the watcher runs, and tells the
// watcher which directories to observe. Literal, glob, and auto-scan
// discovery all go through the same scanner and exclusion list.
package scope

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"strudelwatch/pkg/fileops"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// Extensions are the accepted pattern source suffixes.
var Extensions = []string{".strudel", ".str"}

// ExcludedDirs are never scanned or watched: dependency, version-control and
// build-output directories.
var ExcludedDirs = []string{"node_modules", ".git", "dist"}

const maxScanDepth = 32

// NoMatchingFilesError is returned when explicit arguments resolved to nothing.
type NoMatchingFilesError struct {
	Args []string
}

func (e *NoMatchingFilesError) Error() string {
	return fmt.Sprintf("no pattern files matched: %s", strings.Join(e.Args, " "))
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Files holds absolute paths in argument order, duplicates removed.
	Files []string
	// Matcher recognizes in-scope files discovered later.
	Matcher *Matcher
}

// AutoScan reports whether the scope came from scanning the root because no
// arguments were given.
func (r *Resolution) AutoScan() bool {
	return r.Matcher.auto
}

// Resolve computes the initial scope for args relative to root.
//
// Each argument naming an existing file with an accepted extension is taken
// literally. Anything else is a glob, expanded relative to root and filtered
// by extension and ExcludedDirs. With no arguments root is scanned
// recursively. Explicit arguments that match nothing fail with
// *NoMatchingFilesError; an empty auto-scan is returned as an empty Files
// list so the caller can decide after the watcher settles.
func Resolve(root string, args []string) (*Resolution, error) {
	m, err := NewMatcher(root)
	if err != nil {
		return nil, err
	}

	var files []string
	seen := make(map[string]bool)
	add := func(paths ...string) {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
		}
	}

	if len(args) == 0 {
		m.auto = true
		found, err := m.scan(m.root, m.Match)
		if err != nil {
			return nil, err
		}
		add(found...)
		return &Resolution{Files: files, Matcher: m}, nil
	}

	for _, arg := range args {
		if p, ok := m.literalFile(arg); ok {
			m.literals[p] = struct{}{}
			add(p)
			continue
		}

		pattern := normalizePattern(arg)
		m.globs = append(m.globs, pattern)
		found, err := m.expand(pattern)
		if err != nil {
			return nil, err
		}
		add(found...)
	}

	if len(files) == 0 {
		return nil, &NoMatchingFilesError{Args: slices.Clone(args)}
	}
	return &Resolution{Files: files, Matcher: m}, nil
}

// Matcher recognizes in-scope paths and plans directory watches.
type Matcher struct {
	root     string
	auto     bool
	literals map[string]struct{}
	globs    []string
	exclude  *ignore.GitIgnore
}

// NewMatcher returns a matcher rooted at root that accepts nothing until
// literals or globs are registered by Resolve.
func NewMatcher(root string) (*Matcher, error) {
	abs, err := filepath.Abs(fileops.ExpandPath(root))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve scope root: %w", err)
	}
	return &Matcher{
		root:     filepath.Clean(abs),
		literals: make(map[string]struct{}),
		exclude:  ignore.CompileIgnoreLines(ExcludedDirs...),
	}, nil
}

// Root returns the absolute working directory the scope is relative to.
func (m *Matcher) Root() string {
	return m.root
}

// Match reports whether the absolute path p belongs to the scope.
func (m *Matcher) Match(p string) bool {
	p = filepath.Clean(p)
	if _, ok := m.literals[p]; ok {
		return true
	}
	if !HasAcceptedExtension(p) || m.Excluded(p) {
		return false
	}
	if m.auto {
		return fileops.IsWithin(m.root, p)
	}
	for _, g := range m.globs {
		if m.matchGlob(g, p) {
			return true
		}
	}
	return false
}

// Excluded reports whether p lies in one of ExcludedDirs, judged on its path
// relative to the root when p is inside it.
func (m *Matcher) Excluded(p string) bool {
	rel := m.display(p)
	if rel == "." {
		return false
	}
	return m.exclude.MatchesPath(rel)
}

// Display returns p relative to the root when it is inside it, otherwise the
// absolute path, always slash-separated.
func (m *Matcher) Display(p string) string {
	return m.display(p)
}

func (m *Matcher) display(p string) string {
	if rel, err := filepath.Rel(m.root, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(p)
}

// HasAcceptedExtension reports whether p ends in one of Extensions.
func HasAcceptedExtension(p string) bool {
	return slices.Contains(Extensions, filepath.Ext(p))
}

func (m *Matcher) matchGlob(pattern, p string) bool {
	target := filepath.ToSlash(p)
	if !path.IsAbs(pattern) {
		rel, err := filepath.Rel(m.root, p)
		if err != nil {
			return false
		}
		target = filepath.ToSlash(rel)
	}
	ok, err := doublestar.Match(pattern, target)
	return err == nil && ok
}

func (m *Matcher) literalFile(arg string) (string, bool) {
	p := fileops.ExpandPath(arg)
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.root, p)
	}
	p = filepath.Clean(p)

	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() || !HasAcceptedExtension(p) {
		return "", false
	}
	return p, true
}

// expand lists files matching a single glob.
func (m *Matcher) expand(pattern string) ([]string, error) {
	base := m.globBase(pattern)
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return nil, nil
	}
	return m.scan(base, func(p string) bool {
		return HasAcceptedExtension(p) && !m.Excluded(p) && m.matchGlob(pattern, p)
	})
}

// globBase is the absolute directory holding the static prefix of pattern.
func (m *Matcher) globBase(pattern string) string {
	base, _ := doublestar.SplitPattern(pattern)
	if path.IsAbs(base) {
		return filepath.FromSlash(base)
	}
	return filepath.Join(m.root, filepath.FromSlash(base))
}

func (m *Matcher) scan(base string, keep func(string) bool) ([]string, error) {
	files, err := fileops.Scan(base, m.scanOptions(base, keep, false))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", base, err)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.AbsPath)
	}
	return out, nil
}

func (m *Matcher) scanOptions(base string, keep func(string) bool, dirs bool) *fileops.DirectoryScanOptions {
	return &fileops.DirectoryScanOptions{
		SkipUnreadableDirs: true,
		MaxDepth:           maxScanDepth,
		IncludeHidden:      true,
		IncludeDirs:        dirs,
		DirFilter: func(rel string) bool {
			return !m.Excluded(filepath.Join(base, filepath.FromSlash(rel)))
		},
		FileFilter: func(rel string) bool {
			return keep(filepath.Join(base, filepath.FromSlash(rel)))
		},
	}
}

// WatchDirectories lists every directory the watcher must observe: all
// non-excluded directories below the scan or glob bases, plus the parent
// directory of each literal file.
func (m *Matcher) WatchDirectories() ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}

	for _, base := range m.recursiveBases() {
		if info, err := os.Stat(base); err != nil || !info.IsDir() {
			continue
		}
		found, err := fileops.Scan(base, m.scanOptions(base, func(string) bool { return false }, true))
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate directories under %s: %w", base, err)
		}
		for _, d := range found {
			add(d.AbsPath)
		}
	}

	literals := make([]string, 0, len(m.literals))
	for p := range m.literals {
		literals = append(literals, p)
	}
	slices.Sort(literals)
	for _, p := range literals {
		add(filepath.Dir(p))
	}

	return dirs, nil
}

// Descend reports whether a directory created at runtime should be watched.
func (m *Matcher) Descend(dir string) bool {
	if m.Excluded(dir) {
		return false
	}
	for _, base := range m.recursiveBases() {
		if fileops.IsWithin(base, dir) {
			return true
		}
	}
	return false
}

func (m *Matcher) recursiveBases() []string {
	if m.auto {
		return []string{m.root}
	}
	var bases []string
	for _, g := range m.globs {
		b := m.globBase(g)
		if !slices.Contains(bases, b) {
			bases = append(bases, b)
		}
	}
	return bases
}

// normalizePattern converts a command-line glob to doublestar's slash form,
// dropping a leading "./".
func normalizePattern(arg string) string {
	p := filepath.ToSlash(fileops.ExpandPath(arg))
	if filepath.IsAbs(filepath.FromSlash(p)) && !path.IsAbs(p) {
		// Windows volume paths keep their form.
		return p
	}
	return path.Clean(p)
}
