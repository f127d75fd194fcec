package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/veridata/crosscheck-cli/internal/model"
)

// MappingFile is the on-disk shape of a field mapping definition.
type MappingFile struct {
	// URLTemplate builds each record's page URL, e.g.
	// "https://example.com/companies/{id}". Placeholders name record columns.
	URLTemplate string `yaml:"url_template"`

	Fields []model.FieldMapping `yaml:"fields"`
}

// LoadMappings reads and validates a mapping file.
func LoadMappings(path string) (string, *model.MappingSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, eris.Wrap(err, "config: read mappings")
	}

	var file MappingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return "", nil, eris.Wrap(err, "config: parse mappings")
	}

	if err := ValidateURLTemplate(file.URLTemplate); err != nil {
		return "", nil, err
	}
	if len(file.Fields) == 0 {
		return "", nil, eris.New("config: mappings define no fields")
	}

	seen := make(map[string]bool, len(file.Fields))
	for i := range file.Fields {
		m := &file.Fields[i]
		if err := validateMapping(m, seen); err != nil {
			return "", nil, eris.Wrapf(err, "config: field %d", i)
		}
	}

	return file.URLTemplate, model.NewMappingSet(file.Fields), nil
}

func validateMapping(m *model.FieldMapping, seen map[string]bool) error {
	if m.Source == "" {
		return eris.New("missing source column")
	}
	if seen[m.Source] {
		return eris.Errorf("duplicate source column %q", m.Source)
	}
	seen[m.Source] = true

	if m.Selector == "" {
		return eris.Errorf("field %q has no selector", m.Source)
	}

	// Absent values take defaults; present values must parse.
	if m.Type == "" {
		m.Type = model.TypeText
	} else if _, err := model.ParseFieldType(string(m.Type)); err != nil {
		return err
	}
	if m.Strategy == "" {
		m.Strategy = model.StrategyExact
	} else if _, err := model.ParseStrategy(string(m.Strategy)); err != nil {
		return err
	}
	if len(m.Methods) == 0 {
		m.Methods = []model.Method{model.MethodDOM}
	} else {
		for _, method := range m.Methods {
			if _, err := model.ParseMethod(string(method)); err != nil {
				return err
			}
		}
	}

	for name, v := range map[string]float64{
		"min_confidence":   m.MinConfidence,
		"fuzzy_threshold":  m.FuzzyThreshold,
		"escalation_floor": m.EscalationFloor,
	} {
		if v < 0 || v > 1 {
			return eris.Errorf("field %q: %s %v out of range [0,1]", m.Source, name, v)
		}
	}
	if m.Tolerance < 0 {
		return eris.Errorf("field %q: negative tolerance", m.Source)
	}
	return nil
}

// TemplatePlaceholders returns the column names a validated template
// references, in order of first appearance.
func TemplatePlaceholders(tmpl string) []string {
	var names []string
	seen := map[string]bool{}
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return names
		}
		rest = rest[open+1:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return names
		}
		if name := rest[:end]; name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		rest = rest[end+1:]
	}
}

// ValidateURLTemplate checks placeholder syntax: every { must close before
// the next one opens and name a non-empty column.
func ValidateURLTemplate(tmpl string) error {
	if tmpl == "" {
		return eris.New("config: mappings define no url_template")
	}
	if !strings.HasPrefix(tmpl, "http://") && !strings.HasPrefix(tmpl, "https://") {
		return eris.Errorf("config: url_template %q is not an http(s) URL", tmpl)
	}

	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return eris.Errorf("config: url_template %q has an unmatched '}'", tmpl)
			}
			return nil
		}
		rest = rest[open+1:]
		end := strings.IndexByte(rest, '}')
		nested := strings.IndexByte(rest, '{')
		if end < 0 || (nested >= 0 && nested < end) {
			return eris.Errorf("config: url_template %q has an unterminated placeholder", tmpl)
		}
		if end == 0 {
			return eris.Errorf("config: url_template %q has an empty placeholder", tmpl)
		}
		rest = rest[end+1:]
	}
}
