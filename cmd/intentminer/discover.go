package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"intentminer/internal/cluster"
	"intentminer/internal/embedding"
	"intentminer/internal/guardrail"
	"intentminer/internal/ingest"
	"intentminer/internal/pipeline"
	"intentminer/internal/propose"
	"intentminer/internal/store"
)

var (
	outputDir string
	sortBy    string
	workers   int
)

// discoverCmd runs one discovery pass over an input file
var discoverCmd = &cobra.Command{
	Use:   "discover [input.json]",
	Short: "Discover candidate intents from a chat log file",
	Long: `Runs the full discovery pipeline over a JSON file of chat messages:
embed, cluster with automatic group-count selection, name each viable group
through the reasoning model, validate and gate the results.

Artifacts (cluster_raw.json, intent_suggestions.json) land in the output
directory; accepted suggestions and the audit trail are persisted to the
local store when enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for artifacts (default from config)")
	discoverCmd.Flags().StringVar(&sortBy, "sort", "", "Suggestion ordering: confidence or group (default from config)")
	discoverCmd.Flags().IntVar(&workers, "workers", 0, "Reasoning worker pool size (default from config)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return discoverOnce(ctx, args[0])
}

// discoverOnce executes one full run against the input file.
func discoverOnce(ctx context.Context, inputPath string) error {
	messages, err := ingest.LoadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}
	logger.Info("Loaded messages", zap.String("input", inputPath), zap.Int("count", len(messages)))

	runner, err := buildRunner()
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, messages)
	if err != nil {
		return fmt.Errorf("discovery run failed: %w", err)
	}

	dir := resolveOutputDir()
	if err := pipeline.WriteReport(dir, report); err != nil {
		return err
	}

	if cfg.Store.Enabled {
		st, err := store.New(cfg.Store.DatabasePath)
		if err != nil {
			logger.Warn("Suggestion store unavailable", zap.Error(err))
		} else {
			defer st.Close()
			if err := st.SaveRun(report); err != nil {
				logger.Warn("Failed to persist run", zap.Error(err))
			}
		}
	}

	printSummary(report, dir)
	return nil
}

// buildRunner assembles the pipeline from configuration.
func buildRunner() (*pipeline.Runner, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}

	completer, err := propose.NewGeminiCompleter(propose.GeminiConfig{
		APIKey:      cfg.Reasoning.APIKey,
		Model:       cfg.Reasoning.Model,
		Temperature: cfg.Reasoning.Temperature,
		Timeout:     cfg.ReasoningTimeout(),
		CallPause:   cfg.ReasoningCallPause(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning client: %w", err)
	}

	opts := pipeline.Options{
		Workers:    cfg.Pipeline.Workers,
		RunTimeout: cfg.RunTimeout(),
		SortBy:     cfg.Pipeline.SortBy,
		OutputDir:  resolveOutputDir(),
		Guardrail: guardrail.Config{
			MinClusterSize:   cfg.Guardrail.MinClusterSize,
			MinConfidence:    cfg.Guardrail.MinConfidence,
			PrimaryLevelSize: cfg.Guardrail.PrimaryLevelSize,
		},
	}
	if workers > 0 {
		opts.Workers = workers
	}
	if sortBy != "" {
		opts.SortBy = sortBy
	}

	return pipeline.NewRunner(
		embedding.NewSpace(engine),
		cluster.NewSelector(cfg.Cluster.KMin, cfg.Cluster.KMax),
		propose.NewProposer(completer, cfg.Cluster.SampleCap),
		opts,
	), nil
}

func resolveOutputDir() string {
	if outputDir != "" {
		return outputDir
	}
	return cfg.Pipeline.OutputDir
}

func printSummary(report *pipeline.Report, dir string) {
	fmt.Printf("Run %s finished in %v\n", report.RunID, report.Duration.Round(time.Millisecond))
	if report.Degenerate {
		fmt.Println("  clustering: degenerate single-group fallback (low confidence)")
	} else {
		fmt.Printf("  clustering: k=%d silhouette=%.4f\n", report.K, report.Silhouette)
	}
	if report.Partial {
		fmt.Println("  WARNING: run hit the timeout; results are partial")
	}
	fmt.Printf("  groups: %d candidates, %d proposed, %d accepted, %d rejected, %d errored\n",
		report.Summary.Candidates, report.Summary.Proposed,
		report.Summary.Accepted, report.Summary.Rejected, report.Summary.Errored)

	for _, s := range report.Suggestions {
		flag := ""
		if s.AmbiguousOverlap {
			flag = " [ambiguous_overlap]"
		}
		fmt.Printf("  %-30s %s conf=%.2f size=%d%s\n", s.Slug, s.Level, s.Confidence, s.GroupSize, flag)
	}
	fmt.Printf("Artifacts written to %s\n", dir)
}
