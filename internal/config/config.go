// Package config loads application configuration from file and environment
// and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/veridata/crosscheck-cli/internal/provider"
	"github.com/veridata/crosscheck-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Browserd   BrowserdConfig   `yaml:"browserd" mapstructure:"browserd"`
	OCRD       OCRDConfig       `yaml:"ocrd" mapstructure:"ocrd"`
	Judge      JudgeConfig      `yaml:"judge" mapstructure:"judge"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Validator  ValidatorConfig  `yaml:"validator" mapstructure:"validator"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Evidence   EvidenceConfig   `yaml:"evidence" mapstructure:"evidence"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BrowserdConfig configures the page rendering service.
type BrowserdConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	WaitUntil      string  `yaml:"wait_until" mapstructure:"wait_until"`
	NavTimeoutSecs int     `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	OpensPerSec    float64 `yaml:"opens_per_sec" mapstructure:"opens_per_sec"`
}

// OCRDConfig configures the text recognition service.
type OCRDConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JudgeConfig configures the semantic comparison judge. An empty key
// disables the judge; semantic and hybrid fields then degrade to fuzzy.
type JudgeConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BreakerSettings configure one provider kind's circuit breaker.
type BreakerSettings struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// RetrySettings configure one provider kind's retry loop.
type RetrySettings struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// PolicySettings configure the full fault-isolation policy for one
// provider kind.
type PolicySettings struct {
	Breaker         BreakerSettings `yaml:"breaker" mapstructure:"breaker"`
	Retry           RetrySettings   `yaml:"retry" mapstructure:"retry"`
	CallTimeoutSecs int             `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// ResilienceConfig holds one policy per provider kind.
type ResilienceConfig struct {
	Navigation PolicySettings `yaml:"navigation" mapstructure:"navigation"`
	DOM        PolicySettings `yaml:"dom" mapstructure:"dom"`
	OCR        PolicySettings `yaml:"ocr" mapstructure:"ocr"`
	Semantic   PolicySettings `yaml:"semantic" mapstructure:"semantic"`
}

// BuildPolicies constructs one stateful policy per provider kind.
// Breakers live inside the policies, so the map must be built once and
// shared across the whole process.
func (c ResilienceConfig) BuildPolicies() map[string]*resilience.Policy {
	perKind := map[string]PolicySettings{
		provider.KindNavigation: c.Navigation,
		provider.KindDOM:        c.DOM,
		provider.KindOCR:        c.OCR,
		provider.KindSemantic:   c.Semantic,
	}

	breakerCfgs := make(map[string]resilience.BreakerConfig, len(perKind))
	for kind, s := range perKind {
		breakerCfgs[kind] = resilience.FromBreakerConfig(
			s.Breaker.FailureThreshold, s.Breaker.CooldownSecs)
	}
	breakers := resilience.NewProviderBreakers(resilience.DefaultBreakerConfig(), breakerCfgs)

	policies := make(map[string]*resilience.Policy, len(perKind))
	for kind, s := range perKind {
		retry := resilience.FromRetryConfig(
			s.Retry.MaxAttempts, s.Retry.InitialBackoffMs, s.Retry.MaxBackoffMs,
			s.Retry.Multiplier, s.Retry.JitterFraction)
		retry.OnRetry = resilience.RetryLogger(kind, "call")

		policies[kind] = &resilience.Policy{
			Breaker:     breakers.Get(kind),
			Retry:       retry,
			CallTimeout: time.Duration(s.CallTimeoutSecs) * time.Second,
		}
	}
	return policies
}

// ValidatorConfig holds batch-wide validation defaults. Per-field mapping
// values override these.
type ValidatorConfig struct {
	FuzzyThreshold  float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	EscalationFloor float64 `yaml:"escalation_floor" mapstructure:"escalation_floor"`
	MinConfidence   float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// BatchConfig configures batch orchestration.
type BatchConfig struct {
	RowConcurrency   int  `yaml:"row_concurrency" mapstructure:"row_concurrency"`
	FieldConcurrency int  `yaml:"field_concurrency" mapstructure:"field_concurrency"`
	RowTimeoutSecs   int  `yaml:"row_timeout_secs" mapstructure:"row_timeout_secs"`
	SnapshotPages    bool `yaml:"snapshot_pages" mapstructure:"snapshot_pages"`
}

// EvidenceConfig configures the evidence artifact store.
type EvidenceConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CROSSCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "crosscheck.db")
	v.SetDefault("browserd.base_url", "http://localhost:9222")
	v.SetDefault("browserd.wait_until", "networkidle")
	v.SetDefault("browserd.nav_timeout_secs", 30)
	v.SetDefault("ocrd.base_url", "http://localhost:8501")
	v.SetDefault("judge.model", "claude-haiku-4-5-20251001")
	v.SetDefault("validator.fuzzy_threshold", 0.85)
	v.SetDefault("validator.escalation_floor", 0.60)
	v.SetDefault("validator.min_confidence", 0.70)
	v.SetDefault("batch.row_concurrency", 5)
	v.SetDefault("batch.field_concurrency", 4)
	v.SetDefault("batch.row_timeout_secs", 120)
	v.SetDefault("batch.snapshot_pages", true)
	v.SetDefault("evidence.dir", "evidence")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	for _, kind := range []string{"navigation", "dom", "ocr", "semantic"} {
		v.SetDefault("resilience."+kind+".breaker.failure_threshold", 5)
		v.SetDefault("resilience."+kind+".breaker.cooldown_secs", 30)
		v.SetDefault("resilience."+kind+".retry.max_attempts", 3)
		v.SetDefault("resilience."+kind+".retry.initial_backoff_ms", 500)
		v.SetDefault("resilience."+kind+".retry.max_backoff_ms", 10000)
		v.SetDefault("resilience."+kind+".retry.multiplier", 2.0)
		v.SetDefault("resilience."+kind+".retry.jitter_fraction", 0.2)
	}
	v.SetDefault("resilience.navigation.call_timeout_secs", 45)
	v.SetDefault("resilience.dom.call_timeout_secs", 15)
	v.SetDefault("resilience.ocr.call_timeout_secs", 30)
	v.SetDefault("resilience.semantic.call_timeout_secs", 20)
	v.SetDefault("resilience.semantic.retry.max_attempts", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
