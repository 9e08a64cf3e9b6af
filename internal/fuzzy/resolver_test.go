package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields() []Candidate {
	return []Candidate{
		{ID: "f1", Label: "North"},
		{ID: "f2", Label: "2nd Meadow"},
		{ID: "f3", Label: "South"},
		{ID: "f4", Label: "River Bend"},
		{ID: "f5", Label: "East Hill"},
	}
}

func TestResolve_IndexWinsOverLabel(t *testing.T) {
	c, ok := Resolve("2", fields())
	require.True(t, ok)
	assert.Equal(t, "f2", c.ID)

	// Label starting with the same digit must not shadow index resolution.
	list := []Candidate{{ID: "a", Label: "1st"}, {ID: "b", Label: "2"}, {ID: "c", Label: "3"}}
	c, ok = Resolve("3", list)
	require.True(t, ok)
	assert.Equal(t, "c", c.ID)
}

func TestResolve_IndexBounds(t *testing.T) {
	_, ok := Resolve("0", fields())
	assert.False(t, ok, "index 0 is not a valid 1-based index")

	_, ok = Resolve("42", fields())
	assert.False(t, ok)

	c, ok := Resolve(" 5 ", fields())
	require.True(t, ok)
	assert.Equal(t, "East Hill", c.Label)
}

func TestResolve_Fuzzy(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"north", "f1"},
		{"NORTH", "f1"},
		{"Nort", "f1"},
		{"river", "f4"},
		{"sout", "f3"},
		{"east hil", "f5"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, ok := Resolve(tt.input, fields())
			require.True(t, ok)
			assert.Equal(t, tt.want, c.ID)
		})
	}
}

func TestResolve_RejectsBelowCutoff(t *testing.T) {
	_, ok := Resolve("zzzzzz", fields())
	assert.False(t, ok)
}

func TestResolve_EmptyInput(t *testing.T) {
	_, ok := Resolve("   ", fields())
	assert.False(t, ok)

	_, ok = Resolve("north", nil)
	assert.False(t, ok)
}

func TestResolve_TieKeepsFirst(t *testing.T) {
	list := []Candidate{{ID: "a", Label: "ab"}, {ID: "b", Label: "ac"}}
	c, ok := Resolve("a", list)
	require.True(t, ok)
	assert.Equal(t, "a", c.ID)
}

func TestResolve_Cyrillic(t *testing.T) {
	list := []Candidate{{ID: "1", Label: "Склад"}, {ID: "2", Label: "Поле Северное"}}
	c, ok := Resolve("склад", list)
	require.True(t, ok)
	assert.Equal(t, "1", c.ID)
}

func TestNewResolver_Cutoff(t *testing.T) {
	strict := NewResolver(WithCutoff(0.95))
	_, ok := strict.Resolve("Nort", fields())
	assert.False(t, ok)

	invalid := NewResolver(WithCutoff(3))
	_, ok = invalid.Resolve("Nort", fields())
	assert.True(t, ok, "out-of-range cutoff falls back to the default")
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("abc", "abc"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
	assert.InDelta(t, 0.75, Similarity("abcd", "abce"), 1e-9)
}
