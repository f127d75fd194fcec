package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridata/crosscheck-cli/internal/model"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fieldType model.FieldType
		in        string
		want      string
	}{
		{"text trims and collapses", model.TypeText, "  hello   World  ", "hello World"},
		{"text preserves case", model.TypeText, "Acme Corp", "Acme Corp"},
		{"email lowercases", model.TypeEmail, " John.Doe@Example.COM ", "john.doe@example.com"},
		{"phone strips formatting", model.TypePhone, "(555) 123-4567", "5551234567"},
		{"phone keeps leading plus", model.TypePhone, "+1 555 123 4567", "+15551234567"},
		{"currency strips symbols", model.TypeCurrency, "$1,234.50", "1234.50"},
		{"currency euro", model.TypeCurrency, "€ 99,00", "9900"},
		{"number keeps sign", model.TypeNumber, "-42.5", "-42.5"},
		{"number strips trailing dot", model.TypeNumber, "42.", "42"},
		{"date iso passthrough", model.TypeDate, "2025-07-19", "2025-07-19"},
		{"date long form", model.TypeDate, "July 19, 2025", "2025-07-19"},
		{"date short form", model.TypeDate, "Jul 19, 2025", "2025-07-19"},
		{"date us slash", model.TypeDate, "07/19/2025", "2025-07-19"},
		{"date unparseable unchanged", model.TypeDate, "next tuesday", "next tuesday"},
		{"name lowercases and strips accents", model.TypeName, "José García", "jose garcia"},
		{"address folds", model.TypeAddress, "123 Main St,  Springfield", "123 main st, springfield"},
		{"boolean yes", model.TypeBoolean, "Yes", "true"},
		{"boolean zero", model.TypeBoolean, "0", "false"},
		{"boolean unknown lowered", model.TypeBoolean, "Maybe", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.fieldType, tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	t.Run("identical strings", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1.0, Similarity("acme corp", "acme corp"))
	})

	t.Run("reordered words score high via tokens", func(t *testing.T) {
		t.Parallel()
		got := Similarity("john doe", "doe, john")
		assert.GreaterOrEqual(t, got, 0.9)
	})

	t.Run("near miss scores between", func(t *testing.T) {
		t.Parallel()
		got := Similarity("acme corporation", "acme corporatian")
		assert.Greater(t, got, 0.8)
		assert.Less(t, got, 1.0)
	})

	t.Run("disjoint strings score low", func(t *testing.T) {
		t.Parallel()
		assert.Less(t, Similarity("alpha", "zzzzz"), 0.3)
	})

	t.Run("empty vs non-empty", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 0.0, Similarity("", "something"))
	})
}

func TestTokenSimilarity_Punctuation(t *testing.T) {
	t.Parallel()
	got := tokenSimilarity("Acme, Inc.", "acme inc")
	assert.Equal(t, 1.0, got)
}
