package cmd

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store counts and embeddings per person",
	Long: `Show how many persons, embeddings and groups are stored, and how many
embeddings each person has. People with a single embedding are the usual
cause of weak matches.

Examples:
  facepace stats
  facepace stats --json`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

// PersonStats is one row of the per-person table.
type PersonStats struct {
	PersonID   string `json:"person_id"`
	PersonName string `json:"person_name"`
	Embeddings int    `json:"embeddings"`
	Photos     int    `json:"photos"`
}

// StatsOutput is the result of the stats command.
type StatsOutput struct {
	Backend    string        `json:"backend"`
	Persons    int           `json:"persons"`
	Embeddings int           `json:"embeddings"`
	Groups     int           `json:"groups"`
	People     []PersonStats `json:"people"`
}

func runStats(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()

	store, err := openStore(ctx, cfg, false)
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

	out := StatsOutput{
		Backend:    cfg.Storage.Backend,
		Persons:    stats.Persons,
		Embeddings: stats.Embeddings,
		Groups:     stats.Groups,
		People:     make([]PersonStats, 0, len(persons)),
	}
	for _, p := range persons {
		out.People = append(out.People, PersonStats{
			PersonID:   p.ID,
			PersonName: p.Name,
			Embeddings: stats.PerPerson[p.ID],
			Photos:     len(p.Photos),
		})
	}
	slices.SortStableFunc(out.People, func(a, b PersonStats) int {
		return cmp.Compare(b.Embeddings, a.Embeddings)
	})

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("\nBackend:    %s\n", out.Backend)
	fmt.Printf("Persons:    %d\n", out.Persons)
	fmt.Printf("Embeddings: %d\n", out.Embeddings)
	fmt.Printf("Groups:     %d\n", out.Groups)
	if len(out.People) == 0 {
		return nil
	}

	fmt.Printf("\n%-24s %-30s %10s %7s\n", "PERSON ID", "NAME", "EMBEDDINGS", "PHOTOS")
	for _, p := range out.People {
		fmt.Printf("%-24s %-30s %10d %7d\n", p.PersonID, p.PersonName, p.Embeddings, p.Photos)
	}
	return nil
}
