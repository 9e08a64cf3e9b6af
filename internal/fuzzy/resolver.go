// Package fuzzy resolves free-text input against a numbered candidate list.
//
// Resolution tries an exact 1-based index first and falls back to the most
// similar label, using the same ratio as Python's difflib.SequenceMatcher.
package fuzzy

import (
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultCutoff is the minimum similarity a label must reach to be returned.
const DefaultCutoff = 0.4

// Candidate is one entry of a pick list.
type Candidate struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Opts holds configuration options for a Resolver.
type Opts struct {
	Cutoff float64
}

// Option defines a configuration option for a Resolver.
type Option func(*Opts)

// WithCutoff overrides the minimum similarity threshold.
func WithCutoff(cutoff float64) Option {
	return func(o *Opts) {
		o.Cutoff = cutoff
	}
}

// Resolver maps input text to a single candidate. It is stateless and safe for
// concurrent use.
type Resolver struct {
	cutoff float64
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...Option) *Resolver {
	cfg := Opts{Cutoff: DefaultCutoff}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Cutoff < 0 || cfg.Cutoff > 1 {
		cfg.Cutoff = DefaultCutoff
	}
	return &Resolver{cutoff: cfg.Cutoff}
}

var defaultResolver = NewResolver()

// Resolve resolves input with the default cutoff.
func Resolve(input string, candidates []Candidate) (Candidate, bool) {
	return defaultResolver.Resolve(input, candidates)
}

// Resolve returns the candidate selected by input. A purely numeric input
// within range always selects by index, even when a label would match too.
// Otherwise the single best label at or above the cutoff is returned; ties keep
// the earliest candidate.
func (r *Resolver) Resolve(input string, candidates []Candidate) (Candidate, bool) {
	text := strings.TrimSpace(input)
	if text == "" || len(candidates) == 0 {
		return Candidate{}, false
	}

	if isDigits(text) {
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(candidates) {
			return candidates[n-1], true
		}
	}

	needle := Normalize(text)
	best, bestScore := -1, 0.0
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		label := Normalize(c.Label)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		if label == needle {
			return c, true
		}
		score := Similarity(needle, label)
		if score >= r.cutoff && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Candidate{}, false
	}
	return candidates[best], true
}

// Normalize folds case and compatibility forms so that labels typed on
// different keyboards compare equal.
func Normalize(s string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}

// Similarity returns a 0..1 ratio of matching runes between a and b.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return m.Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
