package scope

// Change is the last filesystem observation recorded for a SourceFile.
type Change int

const (
	ChangeAdded Change = iota + 1
	ChangeModified
)

func (c Change) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "changed"
	default:
		return "unknown"
	}
}

// SourceFile is one pattern file under watch, identified by absolute path.
type SourceFile struct {
	Path      string
	LastEvent Change
	// Order is the zero-based discovery position.
	Order int
}

// Set is the ordered, duplicate-free collection of in-scope files.
// Membership only grows; files removed from disk stay in the set.
// A Set is not safe for concurrent use; it is owned by the dispatch loop.
type Set struct {
	files []*SourceFile
	index map[string]*SourceFile
}

// NewSet creates a set seeded with paths in order, dropping duplicates.
func NewSet(paths ...string) *Set {
	s := &Set{index: make(map[string]*SourceFile)}
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add records path as discovered. It returns false when path was already
// present, in which case discovery order is unchanged.
func (s *Set) Add(path string) bool {
	if f, ok := s.index[path]; ok {
		f.LastEvent = ChangeAdded
		return false
	}
	f := &SourceFile{Path: path, LastEvent: ChangeAdded, Order: len(s.files)}
	s.files = append(s.files, f)
	s.index[path] = f
	return true
}

// Touch records a modification for a member. It reports whether path is a member.
func (s *Set) Touch(path string) bool {
	f, ok := s.index[path]
	if ok {
		f.LastEvent = ChangeModified
	}
	return ok
}

// Contains reports membership.
func (s *Set) Contains(path string) bool {
	_, ok := s.index[path]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.files)
}

// Paths returns member paths in discovery order.
func (s *Set) Paths() []string {
	out := make([]string, len(s.files))
	for i, f := range s.files {
		out[i] = f.Path
	}
	return out
}

// Files returns copies of the members in discovery order.
func (s *Set) Files() []SourceFile {
	out := make([]SourceFile, len(s.files))
	for i, f := range s.files {
		out[i] = *f
	}
	return out
}
