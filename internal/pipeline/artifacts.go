package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"intentminer/internal/cluster"
	"intentminer/internal/logging"
)

const (
	clusterDumpFile = "cluster_raw.json"
	suggestionsFile = "intent_suggestions.json"
)

// clusterDump is the raw evidence record for one group, written before any
// reasoning so a failed run still leaves the clustering behind.
type clusterDump struct {
	ClusterID int      `json:"cluster_id"`
	Size      int      `json:"size"`
	Messages  []string `json:"messages"`
}

// WriteClusterDump writes the raw partition evidence to dir.
func WriteClusterDump(dir string, groups []cluster.Group, texts []string) error {
	dumps := make([]clusterDump, 0, len(groups))
	for _, g := range groups {
		msgs := make([]string, 0, g.Size())
		for _, idx := range g.Members {
			if idx >= 0 && idx < len(texts) {
				msgs = append(msgs, texts[idx])
			}
		}
		dumps = append(dumps, clusterDump{ClusterID: g.ID, Size: g.Size(), Messages: msgs})
	}
	return writeJSON(dir, clusterDumpFile, dumps)
}

// WriteReport writes the run report, suggestions included, to dir.
func WriteReport(dir string, report *Report) error {
	return writeJSON(dir, suggestionsFile, report)
}

func writeJSON(dir, name string, v interface{}) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	logging.Pipeline("wrote %s (%d bytes)", path, len(data))
	return nil
}
