package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration can support the given mode
// ("run" for batch validation, "serve" for the HTTP API). All problems
// are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "run":
		if c.Browserd.BaseURL == "" {
			problems = append(problems, "browserd.base_url is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Batch.RowConcurrency < 1 || c.Batch.RowConcurrency > 50 {
		problems = append(problems, "batch.row_concurrency must be between 1 and 50")
	}
	if c.Batch.FieldConcurrency < 1 || c.Batch.FieldConcurrency > 20 {
		problems = append(problems, "batch.field_concurrency must be between 1 and 20")
	}

	for name, v := range map[string]float64{
		"validator.fuzzy_threshold":  c.Validator.FuzzyThreshold,
		"validator.escalation_floor": c.Validator.EscalationFloor,
		"validator.min_confidence":   c.Validator.MinConfidence,
	} {
		if v < 0 || v > 1 {
			problems = append(problems, name+" must be between 0 and 1")
		}
	}
	if c.Validator.EscalationFloor > c.Validator.FuzzyThreshold {
		problems = append(problems, "validator.escalation_floor must not exceed validator.fuzzy_threshold")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
