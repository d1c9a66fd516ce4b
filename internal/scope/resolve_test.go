package scope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func rels(m *Matcher, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, m.Display(p))
	}
	return out
}

func projectTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"pattern.strudel":              `sound("bd sd")`,
		"bass.str":                     `note("c2 e2")`,
		"notes.txt":                    "not a pattern",
		"songs/verse.strudel":          `s("hh*4")`,
		"songs/deep/chorus.str":        `s("cp")`,
		"node_modules/pkg/x.strudel":   "excluded",
		".git/hooks/y.strudel":         "excluded",
		"dist/build.str":               "excluded",
		"songs/node_modules/z.strudel": "excluded",
	})
	return root
}

func TestResolve_AutoScan(t *testing.T) {
	root := projectTree(t)

	res, err := Resolve(root, nil)
	require.NoError(t, err)
	assert.True(t, res.AutoScan())
	assert.ElementsMatch(t,
		[]string{"bass.str", "pattern.strudel", "songs/deep/chorus.str", "songs/verse.strudel"},
		rels(res.Matcher, res.Files))
}

func TestResolve_AutoScanEmptyIsNotAnError(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"readme.md": "# hi"})

	res, err := Resolve(root, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Files)
}

func TestResolve_LiteralPaths(t *testing.T) {
	root := projectTree(t)

	res, err := Resolve(root, []string{"songs/verse.strudel", filepath.Join(root, "bass.str")})
	require.NoError(t, err)
	assert.False(t, res.AutoScan())
	assert.Equal(t, []string{"songs/verse.strudel", "bass.str"}, rels(res.Matcher, res.Files))
}

func TestResolve_LiteralInExcludedDirIsKept(t *testing.T) {
	root := projectTree(t)

	res, err := Resolve(root, []string{"dist/build.str"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/build.str"}, rels(res.Matcher, res.Files))
}

func TestResolve_Glob(t *testing.T) {
	root := projectTree(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"top level", []string{"*.strudel"}, []string{"pattern.strudel"}},
		{"leading dot slash", []string{"./*.str"}, []string{"bass.str"}},
		{"recursive", []string{"**/*.str"}, []string{"bass.str", "songs/deep/chorus.str"}},
		{"subdir", []string{"songs/**/*"}, []string{"songs/deep/chorus.str", "songs/verse.strudel"}},
		{"extension filter", []string{"*"}, []string{"bass.str", "pattern.strudel"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(root, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rels(res.Matcher, res.Files))
		})
	}
}

func TestResolve_UnionPreservesArgumentOrder(t *testing.T) {
	root := projectTree(t)

	res, err := Resolve(root, []string{"songs/verse.strudel", "*.strudel", "**/*.strudel", "bass.str"})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"songs/verse.strudel", "pattern.strudel", "bass.str"},
		rels(res.Matcher, res.Files))
}

func TestResolve_NoMatch(t *testing.T) {
	root := projectTree(t)

	_, err := Resolve(root, []string{"*.nomatch"})
	require.Error(t, err)

	var noMatch *NoMatchingFilesError
	require.ErrorAs(t, err, &noMatch)
	assert.Equal(t, []string{"*.nomatch"}, noMatch.Args)
	assert.Contains(t, err.Error(), "*.nomatch")
}

func TestResolve_MissingLiteralIsTreatedAsGlob(t *testing.T) {
	root := projectTree(t)

	_, err := Resolve(root, []string{"missing.strudel"})
	var noMatch *NoMatchingFilesError
	assert.ErrorAs(t, err, &noMatch)
}

func TestMatcher_Match(t *testing.T) {
	root := projectTree(t)
	res, err := Resolve(root, []string{"songs/**/*.strudel", "bass.str"})
	require.NoError(t, err)
	m := res.Matcher

	tests := []struct {
		rel  string
		want bool
	}{
		{"bass.str", true},
		{"songs/new.strudel", true},
		{"songs/a/b/c.strudel", true},
		{"songs/new.str", false},
		{"other.strudel", false},
		{"songs/node_modules/q.strudel", false},
		{"songs/notes.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(filepath.Join(root, filepath.FromSlash(tt.rel))))
		})
	}
}

func TestMatcher_AutoMatch(t *testing.T) {
	root := projectTree(t)
	res, err := Resolve(root, nil)
	require.NoError(t, err)
	m := res.Matcher

	assert.True(t, m.Match(filepath.Join(root, "later.strudel")))
	assert.True(t, m.Match(filepath.Join(root, "a", "b.str")))
	assert.False(t, m.Match(filepath.Join(root, "later.js")))
	assert.False(t, m.Match(filepath.Join(root, "dist", "later.strudel")))
	assert.False(t, m.Match(filepath.Join(filepath.Dir(root), "outside.strudel")))
}

func TestMatcher_Excluded(t *testing.T) {
	m, err := NewMatcher(t.TempDir())
	require.NoError(t, err)

	assert.False(t, m.Excluded(m.Root()))
	assert.True(t, m.Excluded(filepath.Join(m.Root(), "node_modules")))
	assert.True(t, m.Excluded(filepath.Join(m.Root(), "a", ".git", "x.str")))
	assert.True(t, m.Excluded(filepath.Join(m.Root(), "dist", "x.str")))
	assert.False(t, m.Excluded(filepath.Join(m.Root(), "distant", "x.str")))
}

func TestMatcher_WatchDirectories(t *testing.T) {
	root := projectTree(t)

	t.Run("auto scan watches every non-excluded directory", func(t *testing.T) {
		res, err := Resolve(root, nil)
		require.NoError(t, err)

		dirs, err := res.Matcher.WatchDirectories()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{".", "songs", "songs/deep"}, rels(res.Matcher, dirs))
	})

	t.Run("literal watches its parent only", func(t *testing.T) {
		res, err := Resolve(root, []string{"songs/deep/chorus.str"})
		require.NoError(t, err)

		dirs, err := res.Matcher.WatchDirectories()
		require.NoError(t, err)
		assert.Equal(t, []string{"songs/deep"}, rels(res.Matcher, dirs))
		assert.False(t, res.Matcher.Descend(filepath.Join(root, "songs", "new")))
	})

	t.Run("glob watches below its base", func(t *testing.T) {
		res, err := Resolve(root, []string{"songs/**/*.strudel"})
		require.NoError(t, err)

		dirs, err := res.Matcher.WatchDirectories()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"songs", "songs/deep"}, rels(res.Matcher, dirs))
		assert.True(t, res.Matcher.Descend(filepath.Join(root, "songs", "new")))
		assert.False(t, res.Matcher.Descend(filepath.Join(root, "songs", "node_modules")))
	})
}
