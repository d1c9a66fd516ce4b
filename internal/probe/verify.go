package probe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultVerifyDelay separates a write from its read-back.
const DefaultVerifyDelay = 300 * time.Millisecond

// DefaultPatterns is the stock read-back corpus. The multi-line entries are
// the ones editor auto-pairing tends to corrupt.
var DefaultPatterns = []string{
	`sound("bd hh")`,
	`sound("bd").fast(2)`,
	`stack(sound("bd"), sound("hh"))`,
	`note("c4 e4 g4").sound("piano")`,
	`sound("bd sd").fast(2).room(0.5).delay(0.25)`,
	`setcpm(90/4)
samples('http://localhost:5555')
sound("bd bd hh bd")`,
	`stack(
  sound("bd bd bd bd"),
  sound("~ sd ~ sd"),
  sound("hh hh hh hh").fast(2)
).room(0.5)`,
	`stack(
  note("c2 c2 g2 f2").sound("sawtooth").lpf(800),
  sound("bd ~ ~ bd ~ bd ~ bd")
)`,
	`setcpm(130/4)
stack(
  s("bd*4").gain(0.9),
  s("~ cp ~ cp").room(0.2),
  s("hh*16").gain(0.4).pan(sine.range(-0.5, 0.5)),
  note("c2 c2 eb2 c2").s("sawtooth").cutoff(800)
).swing(0.05)`,
	`stack(
  note("c4 e4 g4 e4 c4 e4 g4 c5")
    .sound("piano")
    .slow(2)
    .room(0.3),
  sound("bd ~ ~ bd ~ ~ bd ~").gain(0.8)
)`,
}

// Corpus is the YAML layout of a custom pattern file.
type Corpus struct {
	Patterns []string `yaml:"patterns"`
}

// LoadPatterns reads a corpus file.
func LoadPatterns(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern corpus: %w", err)
	}
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse pattern corpus %s: %w", path, err)
	}
	if len(c.Patterns) == 0 {
		return nil, fmt.Errorf("pattern corpus %s has no patterns", path)
	}
	return c.Patterns, nil
}

// Mismatch classifies a failed comparison.
type Mismatch int

const (
	MismatchNone Mismatch = iota
	// MismatchExtra means the read-back has characters appended.
	MismatchExtra
	// MismatchMissing means the read-back is shorter.
	MismatchMissing
	// MismatchDifferent means equal length, different content.
	MismatchDifferent
)

func (m Mismatch) String() string {
	switch m {
	case MismatchNone:
		return "none"
	case MismatchExtra:
		return "extra characters"
	case MismatchMissing:
		return "missing characters"
	case MismatchDifferent:
		return "same length, different content"
	default:
		return "unknown"
	}
}

// Result is the outcome for one pattern.
type Result struct {
	Expected string
	Actual   string
	Passed   bool
	Mismatch Mismatch
	// Delta is the absolute length difference after normalization.
	Delta int
	// Extra holds the characters past the expected length, for MismatchExtra.
	Extra string
}

// Normalize removes all whitespace, so formatting differences do not count.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// Compare checks actual against expected ignoring whitespace.
func Compare(expected, actual string) Result {
	r := Result{Expected: expected, Actual: actual}
	want, got := Normalize(expected), Normalize(actual)

	switch {
	case want == got:
		r.Passed = true
	case len(got) > len(want):
		r.Mismatch = MismatchExtra
		r.Delta = len(got) - len(want)
		r.Extra = got[len(want):]
	case len(got) < len(want):
		r.Mismatch = MismatchMissing
		r.Delta = len(want) - len(got)
	default:
		r.Mismatch = MismatchDifferent
	}
	return r
}

// Summary totals a verify run.
type Summary struct {
	Total  int
	Passed int
	Failed int
}

// Summarize counts results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// Verify initializes the remote, then writes each pattern, waits delay and
// reads it back. A remote failure aborts the run and is returned with the
// results gathered so far.
func Verify(ctx context.Context, s Session, patterns []string, delay time.Duration, onResult func(Result)) ([]Result, error) {
	if err := s.InitializeRemote(ctx); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(patterns))
	for _, p := range patterns {
		if err := s.WritePattern(ctx, p, false); err != nil {
			return results, err
		}
		if err := sleep(ctx, delay); err != nil {
			return results, err
		}
		actual, err := s.ReadBackPattern(ctx)
		if err != nil {
			return results, err
		}
		r := Compare(p, actual)
		results = append(results, r)
		if onResult != nil {
			onResult(r)
		}
	}
	return results, nil
}
