package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticekb/lattice/pkg/types"
)

func TestNormalizeDropsStopWordsAndNonAlpha(t *testing.T) {
	got := Normalize("The Quick Brown Fox jumps over the lazy dog in 2024 at HQ-42")

	// Stop words ("the", "over", "in", "at") and tokens containing
	// digits are gone; everything else is lowercased and stemmed.
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "2024")
	assert.NotContains(t, got, "42")
	assert.Contains(t, got, "quick")
	assert.Contains(t, got, "fox")

	// Single-space joined, no leading/trailing whitespace.
	assert.Equal(t, strings.TrimSpace(got), got)
	assert.NotContains(t, got, "  ")
}

func TestNormalizeStems(t *testing.T) {
	// "running" and "runs" collapse onto the same stem.
	a := Normalize("running")
	b := Normalize("runs")
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestNormalizeEmptyInputs(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("  12345 !!! 6-7 "))
	assert.Equal(t, "", Normalize("the and of"))
}

func TestExtractTextWalksNestedAttributes(t *testing.T) {
	e := &types.Entity{
		ID:   "person_alice",
		Type: "person",
		Attributes: types.Attributes{
			"name":  types.String("Alice Johnson"),
			"age":   types.Number(30), // non-string scalar: skipped
			"valid": types.Bool(true), // skipped
			"tags":  types.StringList("research", "vision"),
			"contact": types.Map(map[string]types.Value{
				"city":  types.String("Berlin"),
				"phone": types.Number(5551234),
			}),
		},
	}

	got := ExtractText(e)
	assert.Contains(t, got, "alic")
	assert.Contains(t, got, "johnson")
	assert.Contains(t, got, "person")
	assert.Contains(t, got, "research")
	assert.Contains(t, got, "berlin")
	assert.NotContains(t, got, "30")
	assert.NotContains(t, got, "true")
}

func TestExtractTextDeterministicOrder(t *testing.T) {
	e := &types.Entity{
		ID:   "x",
		Type: "document",
		Attributes: types.Attributes{
			"zeta":  types.String("omega"),
			"alpha": types.String("first"),
			"mid":   types.String("middle"),
		},
	}

	first := ExtractText(e)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ExtractText(e))
	}
}

func TestExtractTextEmptyEntity(t *testing.T) {
	assert.Equal(t, "", ExtractText(nil))

	// An entity whose text reduces to nothing is valid and contributes
	// an empty document.
	e := &types.Entity{ID: "12345", Type: "", Attributes: types.Attributes{
		"n": types.Number(1),
	}}
	assert.Equal(t, "", ExtractText(e))
}
