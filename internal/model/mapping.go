package model

import (
	"github.com/rotisserie/eris"
)

// FieldType classifies a field for normalization and comparison.
type FieldType string

// Field types supported by the validator.
const (
	TypeText     FieldType = "text"
	TypeEmail    FieldType = "email"
	TypePhone    FieldType = "phone"
	TypeCurrency FieldType = "currency"
	TypeDate     FieldType = "date"
	TypeName     FieldType = "name"
	TypeAddress  FieldType = "address"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
)

// ParseFieldType validates a field type string from configuration.
func ParseFieldType(s string) (FieldType, error) {
	switch FieldType(s) {
	case TypeText, TypeEmail, TypePhone, TypeCurrency, TypeDate, TypeName, TypeAddress, TypeNumber, TypeBoolean:
		return FieldType(s), nil
	default:
		return "", eris.Errorf("model: unknown field type %q", s)
	}
}

// Strategy selects how expected and extracted values are compared.
type Strategy string

// Validation strategies.
const (
	StrategyExact    Strategy = "exact"
	StrategyFuzzy    Strategy = "fuzzy"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
)

// ParseStrategy validates a strategy string from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyExact, StrategyFuzzy, StrategySemantic, StrategyHybrid:
		return Strategy(s), nil
	default:
		return "", eris.Errorf("model: unknown validation strategy %q", s)
	}
}

// Method names one extraction technique in a field's fallback chain.
type Method string

// Extraction methods.
const (
	MethodDOM Method = "dom"
	MethodOCR Method = "ocr"
)

// ParseMethod validates an extraction method string from configuration.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodDOM, MethodOCR:
		return Method(s), nil
	default:
		return "", eris.Errorf("model: unknown extraction method %q", s)
	}
}

// FieldMapping describes how one source field is extracted from the page and
// compared against the record value.
type FieldMapping struct {
	// Source is the record column holding the expected value.
	Source string `yaml:"source" json:"source"`
	// Selector is the CSS selector locating the value on the page.
	Selector string `yaml:"selector" json:"selector"`
	// Type drives normalization and tolerance comparison.
	Type FieldType `yaml:"type" json:"type"`
	// Required fields turn extraction failure into a row-level condition.
	Required bool `yaml:"required" json:"required"`
	// Strategy selects the comparison mode.
	Strategy Strategy `yaml:"strategy" json:"strategy"`
	// Methods is the ordered extraction fallback chain, e.g. [dom, ocr].
	Methods []Method `yaml:"methods" json:"methods"`

	// MinConfidence stops the fallback chain early once an attempt meets it.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	// FuzzyThreshold is the minimum similarity for a fuzzy match.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	// EscalationFloor bounds the ambiguous band for hybrid escalation:
	// scores in (EscalationFloor, FuzzyThreshold) go to the semantic judge.
	EscalationFloor float64 `yaml:"escalation_floor" json:"escalation_floor"`
	// Tolerance is the absolute difference allowed for number/currency fields,
	// in days for date fields.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`

	// OCRLanguage hints the recognizer, e.g. "eng" or "por".
	OCRLanguage string `yaml:"ocr_language,omitempty" json:"ocr_language,omitempty"`
	// OCRWhitelist restricts recognized characters, e.g. "0123456789.,".
	OCRWhitelist string `yaml:"ocr_whitelist,omitempty" json:"ocr_whitelist,omitempty"`
}

// MappingSet is an indexed collection of field mappings.
type MappingSet struct {
	Mappings []FieldMapping
	bySource map[string]*FieldMapping
	required []*FieldMapping
}

// NewMappingSet creates a MappingSet with indexed lookups.
func NewMappingSet(mappings []FieldMapping) *MappingSet {
	s := &MappingSet{
		Mappings: mappings,
		bySource: make(map[string]*FieldMapping, len(mappings)),
	}
	for i := range s.Mappings {
		m := &s.Mappings[i]
		s.bySource[m.Source] = m
		if m.Required {
			s.required = append(s.required, m)
		}
	}
	return s
}

// BySource returns the mapping for the given source column, or nil.
func (s *MappingSet) BySource(source string) *FieldMapping {
	return s.bySource[source]
}

// Required returns all required field mappings.
func (s *MappingSet) Required() []*FieldMapping {
	return s.required
}
