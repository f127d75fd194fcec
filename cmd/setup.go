package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veridata/crosscheck-cli/internal/engine"
	"github.com/veridata/crosscheck-cli/internal/evidence"
	"github.com/veridata/crosscheck-cli/internal/model"
	"github.com/veridata/crosscheck-cli/internal/provider"
	"github.com/veridata/crosscheck-cli/internal/reconcile"
	"github.com/veridata/crosscheck-cli/internal/resilience"
	"github.com/veridata/crosscheck-cli/internal/store"
	"github.com/veridata/crosscheck-cli/internal/validate"
	"github.com/veridata/crosscheck-cli/pkg/browserd"
	"github.com/veridata/crosscheck-cli/pkg/judge"
	"github.com/veridata/crosscheck-cli/pkg/ocrd"
)

// initStore opens the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildEngine wires providers, policies, and the evidence store into a
// validation engine. The policies map carries the breakers, so callers
// that report breaker state must pass the same map they keep. onRow is
// handed to the engine as the per-row completion hook; nil skips it.
func buildEngine(ctx context.Context, urlTemplate string, mappings *model.MappingSet, policies map[string]*resilience.Policy, engCfg engine.Config, onRow func(ctx context.Context, runID string, row model.RowResult)) (*engine.Engine, error) {
	browser := browserd.NewClient(cfg.Browserd.BaseURL)
	ocrClient := ocrd.NewClient(cfg.OCRD.BaseURL)

	if err := preflightProviders(ctx, browser, ocrClient, mappings); err != nil {
		return nil, err
	}

	nav := provider.NewLiveNavigator(browser, cfg.Browserd.OpensPerSec, cfg.Browserd.WaitUntil)
	dom := provider.NewLiveDOMExtractor(browser)
	ocr := provider.NewLiveImageText(ocrClient)

	var judgeClient judge.Client
	if cfg.Judge.Key != "" {
		opts := []judge.Option{judge.WithModel(cfg.Judge.Model)}
		if cfg.Judge.BaseURL != "" {
			opts = append(opts, judge.WithBaseURL(cfg.Judge.BaseURL))
		}
		judgeClient = judge.NewClient(cfg.Judge.Key, opts...)
	}

	extractor := reconcile.NewExtractor(dom, ocr,
		policies[provider.KindDOM], policies[provider.KindOCR],
		cfg.Validator.MinConfidence)

	validator := validate.NewValidator(
		provider.NewLiveSemanticJudge(judgeClient),
		policies[provider.KindSemantic],
		validate.Defaults{
			FuzzyThreshold:  cfg.Validator.FuzzyThreshold,
			EscalationFloor: cfg.Validator.EscalationFloor,
		})

	sink, err := evidence.NewFSStore(cfg.Evidence.Dir)
	if err != nil {
		return nil, eris.Wrap(err, "init evidence store")
	}

	engCfg.URLTemplate = urlTemplate
	return engine.New(engine.Deps{
		Navigator:     nav,
		NavPolicy:     policies[provider.KindNavigation],
		Extractor:     extractor,
		Validator:     validator,
		Sink:          sink,
		Mappings:      mappings,
		OnRowComplete: onRow,
	}, engCfg), nil
}

// preflightProviders pings the rendering service, and the OCR service
// when any mapping falls back to OCR, before a batch ties up pages.
// Language hints are checked against the service's installed packs.
func preflightProviders(ctx context.Context, browser browserd.Client, ocrClient ocrd.Client, mappings *model.MappingSet) error {
	if err := browser.Health(ctx); err != nil {
		return eris.Wrapf(err, "browserd unavailable at %s", cfg.Browserd.BaseURL)
	}

	var langs []string
	ocrNeeded := false
	for _, m := range mappings.Mappings {
		for _, method := range m.Methods {
			if method != model.MethodOCR {
				continue
			}
			if !ocrNeeded {
				ocrNeeded = true
				if err := ocrClient.Health(ctx); err != nil {
					return eris.Wrapf(err, "ocrd unavailable at %s", cfg.OCRD.BaseURL)
				}
				installed, err := ocrClient.Languages(ctx)
				if err != nil {
					return eris.Wrap(err, "ocrd languages")
				}
				langs = installed
			}
			if m.OCRLanguage == "" {
				continue
			}
			found := false
			for _, l := range langs {
				if l == m.OCRLanguage {
					found = true
					break
				}
			}
			if !found {
				return eris.Errorf("mapping %q wants OCR language %q, service has %v", m.Source, m.OCRLanguage, langs)
			}
		}
	}
	return nil
}

// engineConfigFromBatch translates config values into engine knobs.
func engineConfigFromBatch() engine.Config {
	return engine.Config{
		RowConcurrency:   cfg.Batch.RowConcurrency,
		FieldConcurrency: cfg.Batch.FieldConcurrency,
		RowTimeout:       time.Duration(cfg.Batch.RowTimeoutSecs) * time.Second,
		SnapshotPages:    cfg.Batch.SnapshotPages,
	}
}
