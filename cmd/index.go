package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the embedding HNSW index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the persisted HNSW index from PostgreSQL",
	Long: `Discard the HNSW index stored at HNSW_INDEX_PATH and build a new one from
the embeddings in PostgreSQL. Run this while the server is stopped; a running
server rebuilds through POST /api/v1/index/rebuild instead.`,
	RunE: runIndexRebuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)

	indexRebuildCmd.Flags().Bool("json", false, "Output as JSON")
}

// IndexRebuildOutput represents the result of an index rebuild.
type IndexRebuildOutput struct {
	Success        bool   `json:"success"`
	EmbeddingCount int    `json:"embedding_count"`
	Path           string `json:"path"`
	DurationMs     int64  `json:"duration_ms"`
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	indexPath := cfg.Database.HNSWIndexPath
	if indexPath == "" {
		return errors.New("HNSW_INDEX_PATH environment variable is required")
	}

	store, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Without the old files EnableHNSW builds from the table and saves.
	for _, p := range []string{indexPath, indexPath + ".meta"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing stale index %s: %w", p, err)
		}
	}

	if err := store.EnableHNSW(ctx, indexPath); err != nil {
		return fmt.Errorf("failed to rebuild HNSW index: %w", err)
	}

	out := IndexRebuildOutput{
		Success:        true,
		EmbeddingCount: store.HNSWCount(),
		Path:           indexPath,
		DurationMs:     time.Since(startTime).Milliseconds(),
	}
	if jsonOutput {
		return outputJSON(out)
	}
	fmt.Printf("HNSW index rebuilt with %d embeddings in %s (saved to %s)\n",
		out.EmbeddingCount, formatDuration(time.Since(startTime)), out.Path)
	return nil
}
