package cmd

import (
	"context"
	"fmt"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/photos"
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all persons, embeddings, groups and stored photos",
	Long: `Delete every person, embedding, group and membership from the configured
store and remove the stored person photos. This cannot be undone.

Examples:
  facepace clear
  facepace clear --yes`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	skipConfirm := mustGetBool(cmd, "yes")

	ctx := context.Background()
	cfg := config.Load()

	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	persons, err := store.ListPersons(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}

	fmt.Printf("Store: %s\n", cfg.Storage.Backend)
	fmt.Printf("  Persons:    %d\n", stats.Persons)
	fmt.Printf("  Embeddings: %d\n", stats.Embeddings)
	fmt.Printf("  Groups:     %d\n", stats.Groups)

	if stats.Persons == 0 && stats.Groups == 0 {
		fmt.Println("\nNothing to clear.")
		return nil
	}

	if !skipConfirm && !confirmAction("\nDelete everything? This cannot be undone. [y/N]: ") {
		fmt.Println("Aborted.")
		return nil
	}

	if err := store.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	saveHNSWIndex(store)

	photoStore := photos.NewStore(cfg.Photos.Dir, cfg.Photos.MaxImageSize)
	var photoErrors int
	for _, p := range persons {
		if res := photoStore.RemoveAll(p.ID); !res.OK() {
			fmt.Printf("Warning: %s\n", res)
			photoErrors++
		}
	}

	fmt.Printf("\nCleared %d persons, %d embeddings and %d groups\n", stats.Persons, stats.Embeddings, stats.Groups)
	if photoErrors > 0 {
		fmt.Printf("Photo directories left behind: %d\n", photoErrors)
	}
	return nil
}
