package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"intentminer/internal/store"
)

var statusRuns int

// statusCmd shows stored run history and the latest suggestions
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent discovery runs and the latest suggestions",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Number of recent runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if !cfg.Store.Enabled {
		fmt.Println("Suggestion store is disabled (store.enabled: false)")
		return nil
	}

	st, err := store.New(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(statusRuns)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet. Run 'intentminer discover' first.")
		return nil
	}

	fmt.Printf("Recent runs (%d):\n", len(runs))
	for _, r := range runs {
		marker := ""
		if r.Partial {
			marker = " partial"
		}
		if r.Degenerate {
			marker += " degenerate"
		}
		fmt.Printf("  %s  %s  k=%d accepted=%d/%d%s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.RunID, r.K,
			r.Summary.Accepted, r.Summary.Candidates, marker)
	}

	latest := runs[0]
	sugs, err := st.Suggestions(latest.RunID)
	if err != nil {
		return err
	}

	fmt.Printf("\nLatest suggestions (run %s):\n", latest.RunID)
	if len(sugs) == 0 {
		fmt.Println("  none accepted")
		return nil
	}
	for _, s := range sugs {
		flag := ""
		if s.AmbiguousOverlap {
			flag = " [ambiguous_overlap]"
		}
		fmt.Printf("  %-30s %s conf=%.2f size=%d%s\n", s.Slug, s.Level, s.Confidence, s.GroupSize, flag)
		if s.Description != "" {
			fmt.Printf("      %s\n", s.Description)
		}
	}
	return nil
}
