package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridata/crosscheck-cli/internal/config"
	"github.com/veridata/crosscheck-cli/internal/engine"
	"github.com/veridata/crosscheck-cli/internal/model"
	"github.com/veridata/crosscheck-cli/internal/source"
	"github.com/veridata/crosscheck-cli/internal/store"
)

var (
	runInput       string
	runMappings    string
	runSheet       string
	runLimit       int
	runConcurrency int
	runOutput      string
	runNoStore     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Validate a batch of records against their live pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		urlTemplate, mappings, err := config.LoadMappings(runMappings)
		if err != nil {
			return err
		}

		header, records, err := source.Load(runInput, source.Options{
			SheetName: runSheet,
			Limit:     runLimit,
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.Errorf("no records in %s", runInput)
		}

		zap.L().Info("records loaded",
			zap.String("input", runInput),
			zap.Int("records", len(records)),
			zap.Strings("columns", header),
		)

		// Catch template typos before any page loads.
		if err := checkColumns(urlTemplate, mappings, header); err != nil {
			return err
		}

		engCfg := engineConfigFromBatch()
		if runConcurrency > 0 {
			engCfg.RowConcurrency = runConcurrency
		}

		var st store.Store
		if !runNoStore {
			s, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			st = s
		}

		// Persist rows as they finish so an interrupted run keeps its
		// completed rows. Failures never affect the in-memory result.
		var onRow func(ctx context.Context, runID string, row model.RowResult)
		if st != nil {
			onRow = func(rowCtx context.Context, runID string, row model.RowResult) {
				saveCtx, cancel := context.WithTimeout(context.WithoutCancel(rowCtx), 10*time.Second)
				defer cancel()
				if err := st.SaveRow(saveCtx, runID, row); err != nil {
					zap.L().Warn("save row failed", zap.Int("row", row.Index), zap.Error(err))
				}
			}
		}

		policies := cfg.Resilience.BuildPolicies()
		eng, err := buildEngine(ctx, urlTemplate, mappings, policies, engCfg, onRow)
		if err != nil {
			return err
		}

		runID := engine.NewRunID()
		if st != nil {
			seed := &model.ValidationRun{
				ID:        runID,
				Status:    model.RunRunning,
				StartedAt: time.Now(),
			}
			if err := st.CreateRun(ctx, seed); err != nil {
				return eris.Wrap(err, "create run")
			}
		}

		run := eng.RunBatch(ctx, runID, records)

		if st != nil {
			// Persistence failures should not discard the in-memory result.
			// A detached context lets a cancelled run still record its final
			// status and counts.
			finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := st.CompleteRun(finCtx, run); err != nil {
				zap.L().Warn("complete run failed", zap.String("run_id", runID), zap.Error(err))
			}
		}

		out := os.Stdout
		if runOutput != "" {
			f, err := os.Create(runOutput)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// checkColumns verifies that the URL template's placeholders and every
// mapped source field name a column present in the input header.
func checkColumns(urlTemplate string, mappings *model.MappingSet, header []string) error {
	columns := make(map[string]bool, len(header))
	for _, c := range header {
		columns[c] = true
	}
	for _, name := range config.TemplatePlaceholders(urlTemplate) {
		if !columns[name] {
			return eris.Errorf("url template references column %q not present in input", name)
		}
	}
	for _, m := range mappings.Mappings {
		if !columns[m.Source] {
			return eris.Errorf("mapping source %q not present in input", m.Source)
		}
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "records file, .csv or .xlsx (required)")
	runCmd.Flags().StringVar(&runMappings, "mappings", "", "field mappings YAML file (required)")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "validate at most N records")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "rows in flight (default from config)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "write the run JSON to a file instead of stdout")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "skip run persistence")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("mappings")
	rootCmd.AddCommand(runCmd)
}
