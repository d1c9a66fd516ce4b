package fileops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DirectoryScanOptions configures the behavior of directory scanning operations.
// These options provide fine-grained control over what gets scanned and how.
type DirectoryScanOptions struct {
	// SkipUnreadableDirs determines whether to skip directories that cannot be read
	// or to return an error. Setting to true makes scanning more resilient.
	SkipUnreadableDirs bool

	// MaxDepth limits the maximum recursion depth for directory traversal.
	// The scan root is depth 1.
	MaxDepth int

	// IncludeHidden determines whether to include files and directories that start with '.'
	IncludeHidden bool

	// SkipPatterns contains directory names that should be skipped during scanning.
	// These are exact matches against directory names (not full paths).
	// Ignored when DirFilter is set.
	SkipPatterns []string

	// FileFilter is an optional function that determines whether a file should be included.
	// It receives the slash-separated path relative to the scan root.
	FileFilter func(relPath string) bool

	// DirFilter is an optional function that determines whether a directory should be
	// descended into. It receives the slash-separated path relative to the scan root
	// and takes precedence over SkipPatterns.
	DirFilter func(relPath string) bool

	// IncludeDirs adds every descended directory, including the root as ".", to the results.
	IncludeDirs bool
}

// FileInfo represents information about a discovered file during directory scanning.
type FileInfo struct {
	// Name is the base filename without path components
	Name string

	// Path is the slash-separated path relative to the scan root
	Path string

	// AbsPath is the absolute filesystem path
	AbsPath string

	// IsDir indicates whether this entry represents a directory
	IsDir bool

	// Size is the file size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time
}

// SecureDirectoryScanner provides configurable directory scanning with
// built-in protection against directory traversal and symlink attacks.
//
// The scanner operates within a security boundary defined by an os.Root,
// so symlinks resolving outside the scan root cannot be opened.
type SecureDirectoryScanner struct {
	root     *os.Root
	opts     *DirectoryScanOptions
	results  []FileInfo
	visited  map[string]bool
	scanRoot string
}

// NewDirectoryScanner creates a new secure directory scanner for the given path.
//
// Parameters:
//   - scanPath: The directory path to scan (can be relative or absolute, "~/" is expanded)
//   - opts: Scanning options (if nil, sensible defaults are used)
//
// Returns:
//   - *SecureDirectoryScanner: Configured scanner instance, Close it when done
//   - error: Setup errors including path validation and access issues
func NewDirectoryScanner(scanPath string, opts *DirectoryScanOptions) (*SecureDirectoryScanner, error) {
	if opts == nil {
		opts = getDefaultScanOptions()
	}

	if strings.TrimSpace(scanPath) == "" {
		return nil, fmt.Errorf("scan path cannot be empty")
	}

	absPath, err := filepath.Abs(ExpandPath(scanPath))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve scan path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access scan path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan path is not a directory: %s", absPath)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("cannot create secure scan root: %w", err)
	}

	return &SecureDirectoryScanner{
		root:     root,
		opts:     opts,
		visited:  make(map[string]bool),
		scanRoot: absPath,
	}, nil
}

func getDefaultScanOptions() *DirectoryScanOptions {
	return &DirectoryScanOptions{
		SkipUnreadableDirs: true,
		MaxDepth:           20,
		IncludeHidden:      true,
		SkipPatterns:       DefaultSkipPatterns(),
	}
}

// DefaultSkipPatterns returns the directory names skipped when no DirFilter is given:
// dependency, version-control, and build-output directories.
func DefaultSkipPatterns() []string {
	return []string{"node_modules", ".git", "dist"}
}

// Close releases resources associated with the scanner.
func (s *SecureDirectoryScanner) Close() error {
	if s.root != nil {
		err := s.root.Close()
		s.root = nil
		return err
	}
	return nil
}

// Root returns the absolute path of the scan root.
func (s *SecureDirectoryScanner) Root() string {
	return s.scanRoot
}

// ScanDirectory performs a recursive scan of the configured directory.
// Entries are visited in lexical order within each directory, so results are
// stable between runs over an unchanged tree.
func (s *SecureDirectoryScanner) ScanDirectory() ([]FileInfo, error) {
	if s.root == nil {
		return nil, fmt.Errorf("scanner has been closed")
	}

	s.results = []FileInfo{}
	s.visited = make(map[string]bool)

	if err := s.scanRecursive(".", 1); err != nil {
		return nil, fmt.Errorf("directory scan failed: %w", err)
	}

	return slices.Clone(s.results), nil
}

func (s *SecureDirectoryScanner) scanRecursive(relativePath string, depth int) error {
	if s.opts.MaxDepth > 0 && depth > s.opts.MaxDepth {
		return nil
	}

	absPath := filepath.Join(s.scanRoot, relativePath)
	key := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		key = resolved
	}
	if s.visited[key] {
		return nil
	}
	s.visited[key] = true

	dir, err := s.root.Open(relativePath)
	if err != nil {
		if s.opts.SkipUnreadableDirs {
			return nil
		}
		return fmt.Errorf("failed to open directory %s: %w", relativePath, err)
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		if s.opts.SkipUnreadableDirs {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", relativePath, err)
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })

	if s.opts.IncludeDirs {
		s.results = append(s.results, FileInfo{
			Name:    filepath.Base(absPath),
			Path:    filepath.ToSlash(relativePath),
			AbsPath: absPath,
			IsDir:   true,
		})
	}

	for _, entry := range entries {
		entryPath := filepath.Join(relativePath, entry.Name())

		info, err := s.entryInfo(entry, entryPath)
		if err != nil {
			// Broken links and links escaping the root land here.
			if s.opts.SkipUnreadableDirs {
				continue
			}
			return fmt.Errorf("failed to get file info for %s: %w", entryPath, err)
		}

		if info.IsDir() {
			if s.shouldSkipDirectory(entry.Name(), entryPath) {
				continue
			}
			if err := s.scanRecursive(entryPath, depth+1); err != nil {
				return err
			}
			continue
		}

		if !info.Mode().IsRegular() || !s.shouldIncludeFile(entry.Name(), entryPath) {
			continue
		}
		s.results = append(s.results, FileInfo{
			Name:    entry.Name(),
			Path:    filepath.ToSlash(entryPath),
			AbsPath: filepath.Join(s.scanRoot, entryPath),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return nil
}

// entryInfo stats an entry, following symlinks only through the secure root.
func (s *SecureDirectoryScanner) entryInfo(entry os.DirEntry, entryPath string) (fs.FileInfo, error) {
	if entry.Type()&os.ModeSymlink == 0 {
		return entry.Info()
	}
	fullPath := filepath.Join(s.scanRoot, entryPath)
	if err := ValidateSymlinkSecurity(fullPath, []string{s.scanRoot}); err != nil {
		return nil, err
	}
	return s.root.Stat(entryPath)
}

func (s *SecureDirectoryScanner) shouldSkipDirectory(dirName, relPath string) bool {
	if s.opts.DirFilter != nil {
		return !s.opts.DirFilter(filepath.ToSlash(relPath))
	}

	if !s.opts.IncludeHidden && strings.HasPrefix(dirName, ".") {
		return true
	}

	return slices.Contains(s.opts.SkipPatterns, dirName)
}

func (s *SecureDirectoryScanner) shouldIncludeFile(fileName, relPath string) bool {
	if !s.opts.IncludeHidden && strings.HasPrefix(fileName, ".") {
		return false
	}

	if s.opts.FileFilter != nil {
		return s.opts.FileFilter(filepath.ToSlash(relPath))
	}

	return true
}

// Scan is a convenience function that creates a scanner, performs one scan and
// closes it again.
//
// Usage example:
//
//	files, err := fileops.Scan("/project", &fileops.DirectoryScanOptions{
//	    MaxDepth:   10,
//	    FileFilter: func(rel string) bool { return strings.HasSuffix(rel, ".str") },
//	})
func Scan(scanPath string, opts *DirectoryScanOptions) ([]FileInfo, error) {
	scanner, err := NewDirectoryScanner(scanPath, opts)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	return scanner.ScanDirectory()
}
