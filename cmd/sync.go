package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the PostgreSQL store into the local bbolt file",
	Long: `Copy persons, photo records, embeddings, groups and memberships from
PostgreSQL (DATABASE_URL) into the local bbolt database (LOCAL_DB_PATH), so the
service can run offline with STORAGE_BACKEND=bolt.

Modes:
  replace  clear the local database first (default)
  merge    keep local data, add what is missing; existing names are kept

Examples:
  facepace sync
  facepace sync --mode merge --json`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String("mode", string(database.SyncReplace), "Sync mode: replace or merge")
	syncCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// SyncOutput represents the result of a sync run.
type SyncOutput struct {
	Success       bool   `json:"success"`
	Mode          string `json:"mode"`
	Persons       int    `json:"persons"`
	Embeddings    int    `json:"embeddings"`
	Skipped       int    `json:"skipped"`
	Groups        int    `json:"groups"`
	DurationMs    int64  `json:"duration_ms"`
	DurationHuman string `json:"duration_human,omitempty"`
}

func runSync(cmd *cobra.Command, args []string) error {
	mode, err := database.ParseSyncMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	src, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := openBolt(cfg)
	if err != nil {
		return err
	}
	defer dst.Close()

	total, err := src.CountEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("failed to count source embeddings: %w", err)
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Syncing %d embeddings (%s mode)\n\n", total, mode)
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Syncing"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("embeddings"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	result, err := database.Sync(ctx, src, dst, mode, func() {
		if bar != nil {
			bar.Add(1)
		}
	})
	if bar != nil {
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	duration := time.Since(startTime)
	out := SyncOutput{
		Success:       true,
		Mode:          string(mode),
		Persons:       result.Persons,
		Embeddings:    result.Embeddings,
		Skipped:       result.Skipped,
		Groups:        result.Groups,
		DurationMs:    duration.Milliseconds(),
		DurationHuman: formatDuration(duration),
	}

	if jsonOutput {
		out.DurationHuman = ""
		return outputJSON(out)
	}

	fmt.Println("\nSync complete!")
	fmt.Printf("  Persons:    %d\n", out.Persons)
	fmt.Printf("  Embeddings: %d\n", out.Embeddings)
	if out.Skipped > 0 {
		fmt.Printf("  Skipped:    %d (already present)\n", out.Skipped)
	}
	fmt.Printf("  Groups:     %d\n", out.Groups)
	fmt.Printf("  Duration:   %s\n", out.DurationHuman)
	return nil
}
