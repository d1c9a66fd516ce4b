package aggregate

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"strudelwatch/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregator(t *testing.T, root string) (*Aggregator, *logging.SyncBuffer) {
	t.Helper()
	logger, buf := logging.NewTestLogger()
	return New(Options{
		Display: func(p string) string {
			rel, err := filepath.Rel(root, p)
			require.NoError(t, err)
			return filepath.ToSlash(rel)
		},
		Logger: logger,
	}), buf
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestAggregate_CanonicalOrder(t *testing.T) {
	dir := t.TempDir()
	b := write(t, dir, "b.strudel", "Y\n")
	a := write(t, dir, "a.str", "X")
	agg, _ := newAggregator(t, dir)

	got := agg.Aggregate([]string{b, a})

	assert.Equal(t, "// file: a.str\nX\n\n// file: b.strudel\nY", got.Text)
	assert.Equal(t, []string{a, b}, got.Files)
	assert.Empty(t, got.Skipped)
}

func TestAggregate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		write(t, dir, "drums.strudel", `s("bd*2, hh*4")`),
		write(t, dir, "bass.str", "note(\"c2 eb2\")\n  .s(\"sawtooth\")\n"),
	}
	agg, _ := newAggregator(t, dir)

	first := agg.Aggregate(paths)
	second := agg.Aggregate(paths)
	assert.Equal(t, first.Text, second.Text)
}

func TestAggregate_PermutationInvariant(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.strudel", "A")
	b := write(t, dir, "b.str", "B")
	c := write(t, dir, "c.strudel", "C")
	agg, _ := newAggregator(t, dir)

	want := agg.Aggregate([]string{a, b, c}).Text
	for _, perm := range [][]string{{a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a}} {
		assert.Equal(t, want, agg.Aggregate(perm).Text)
	}
}

func TestAggregate_ReflectsLatestContent(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.strudel", `note("c3")`)
	b := write(t, dir, "b.strudel", `note("e3")`)
	agg, _ := newAggregator(t, dir)

	agg.Aggregate([]string{a, b})
	write(t, dir, "b.strudel", `note("g3")`)

	got := agg.Aggregate([]string{a, b})
	assert.Contains(t, got.Text, `note("c3")`)
	assert.Contains(t, got.Text, `note("g3")`)
	assert.NotContains(t, got.Text, `note("e3")`)
}

func TestAggregate_SkipsUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	keep := write(t, dir, "keep.strudel", "K")
	gone := write(t, dir, "gone.strudel", "G")
	require.NoError(t, os.Remove(gone))
	agg, buf := newAggregator(t, dir)

	got := agg.Aggregate([]string{keep, gone})

	assert.Equal(t, "// file: keep.strudel\nK", got.Text)
	require.Len(t, got.Skipped, 1)
	assert.Equal(t, gone, got.Skipped[0].Path)
	assert.True(t, errors.Is(got.Skipped[0], fs.ErrNotExist))
	assert.Contains(t, buf.String(), "Skipping unreadable pattern file")
	assert.Contains(t, buf.String(), "gone.strudel")
}

func TestAggregate_DuplicatesAndEmpty(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.str", "A")
	agg, _ := newAggregator(t, dir)

	assert.Equal(t, "// file: a.str\nA", agg.Aggregate([]string{a, a}).Text)
	assert.Equal(t, "", agg.Aggregate(nil).Text)
}

func TestAggregate_CustomReader(t *testing.T) {
	agg := New(Options{
		ReadFile: func(p string) ([]byte, error) { return []byte("from " + p), nil },
	})

	got := agg.Aggregate([]string{"/x/two.str", "/x/one.str"})
	assert.Equal(t, "// file: /x/one.str\nfrom /x/one.str\n\n// file: /x/two.str\nfrom /x/two.str", got.Text)
}
