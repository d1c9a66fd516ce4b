// Package fileops provides secure directory traversal used to discover pattern
// source files and the directories that must be watched for them.
//
// # Scanning
//
// SecureDirectoryScanner walks a directory tree inside an os.Root boundary, so
// traversal cannot escape the scan root through ".." components. Directories are
// filtered on their path relative to the scan root, which lets callers plug in
// ignore-style matchers instead of bare directory names:
//
//	opts := &fileops.DirectoryScanOptions{
//	    MaxDepth:  20,
//	    DirFilter: func(rel string) bool { return !excluded(rel) },
//	    FileFilter: func(rel string) bool {
//	        return strings.HasSuffix(rel, ".strudel")
//	    },
//	}
//	files, err := fileops.Scan(root, opts)
//
// # Symlinks
//
// Symlinked directories are followed only when they resolve inside the scan
// root (see ValidateSymlinkSecurity). Visited directories are tracked by their
// resolved path to prevent loops.
package fileops
