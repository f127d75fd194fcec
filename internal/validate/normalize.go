// Package validate compares expected record values against extracted web
// values: type-aware normalization, string similarity, and the four
// decision strategies (exact, fuzzy, semantic, hybrid).
package validate

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/veridata/crosscheck-cli/internal/model"
)

// stripAccents removes combining marks: "Café" -> "Cafe".
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// dateLayouts are tried in order when canonicalizing dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// Normalize prepares a value for comparison according to its field type.
// Free text preserves case; emails fold; currency and numbers lose
// symbols and grouping; dates canonicalize to YYYY-MM-DD.
func Normalize(fieldType model.FieldType, s string) string {
	s = collapseSpace(strings.TrimSpace(s))

	switch fieldType {
	case model.TypeEmail:
		return strings.ToLower(s)
	case model.TypePhone:
		return normalizePhone(s)
	case model.TypeCurrency, model.TypeNumber:
		return normalizeNumeric(s)
	case model.TypeDate:
		return normalizeDate(s)
	case model.TypeName, model.TypeAddress:
		folded, _, err := transform.String(stripAccents, strings.ToLower(s))
		if err != nil {
			return strings.ToLower(s)
		}
		return folded
	case model.TypeBoolean:
		return normalizeBoolean(s)
	default:
		return s
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizePhone keeps digits and a leading plus: "(555) 123-4567" -> "5551234567".
func normalizePhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeNumeric strips currency symbols, grouping separators, and
// whitespace, keeping digits, decimal point, and sign.
func normalizeNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.TrimSuffix(b.String(), ".")
}

// normalizeDate canonicalizes to YYYY-MM-DD, returning the collapsed
// input unchanged when no known layout parses.
func normalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func normalizeBoolean(s string) string {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1", "on":
		return "true"
	case "false", "no", "n", "0", "off":
		return "false"
	default:
		return strings.ToLower(s)
	}
}
