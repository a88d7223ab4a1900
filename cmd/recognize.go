package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"github.com/omri0111-web/facepace-public/internal/imageio"
	"github.com/omri0111-web/facepace-public/internal/recognition"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize enrolled people in an image",
	Long: `Detect every face in an image and match it against enrolled embeddings.

Candidates can be narrowed to a group or to explicit person ids; --ids wins
over --group.

Examples:
  facepace recognize class.jpg
  facepace recognize class.jpg --group trip-2024
  facepace recognize class.jpg --ids alice,bob --threshold 0.5 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("group", "", "Only match members of this group")
	recognizeCmd.Flags().StringSlice("ids", nil, "Only match these person ids")
	recognizeCmd.Flags().Float64("threshold", 0, "Minimum cosine similarity (default FACE_SIM_THRESHOLD)")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

// RecognizedFaceOutput is one matched face.
type RecognizedFaceOutput struct {
	PersonID   string        `json:"person_id"`
	PersonName string        `json:"person_name"`
	Confidence float64       `json:"confidence"`
	Margin     float64       `json:"margin"`
	Box        facematch.Box `json:"box"`
}

// RecognizeOutput is the result of the recognize command.
type RecognizeOutput struct {
	Faces     []RecognizedFaceOutput `json:"faces"`
	Detected  int                    `json:"detected"`
	Processed int                    `json:"processed"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	groupID := mustGetString(cmd, "group")
	ids := mustGetStringSlice(cmd, "ids")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	if cmd.Flags().Changed("threshold") {
		cfg.Matching.Threshold = mustGetFloat64(cmd, "threshold")
	}

	img, err := imageio.LoadFile(args[0])
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	handle, err := initExtractor(ctx, cfg)
	if err != nil {
		return err
	}

	groups := recognition.NewGroupCache(store, cfg.Matching.GroupCacheTTL)
	matcher := recognition.NewMatcher(handle, store, groups, cfg.Matching.Threshold, cfg.Matching.TimeBudget)

	outcome, err := matcher.Recognize(ctx, img, recognition.Candidates{PersonIDs: ids, GroupID: groupID})
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}

	names := lookupNames(ctx, store)
	out := RecognizeOutput{
		Faces:     make([]RecognizedFaceOutput, 0, len(outcome.Matches)),
		Detected:  outcome.Faces,
		Processed: outcome.Processed,
	}
	for _, m := range outcome.Matches {
		name := names[m.PersonID]
		if name == "" {
			name = m.PersonID
		}
		out.Faces = append(out.Faces, RecognizedFaceOutput{
			PersonID:   m.PersonID,
			PersonName: name,
			Confidence: m.Confidence,
			Margin:     m.Margin,
			Box:        m.Box,
		})
	}

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("\nDetected %d faces, matched %d (threshold %.2f)\n", out.Detected, len(out.Faces), matcher.Threshold())
	if outcome.Truncated() {
		color.Yellow("Time budget reached after %d of %d faces", outcome.Processed, outcome.Faces)
	}
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	for _, f := range out.Faces {
		fmt.Printf("  %s (%s)  confidence %.3f  margin %.3f  at (%.0f, %.0f) %.0fx%.0f\n",
			green(f.PersonName), f.PersonID, f.Confidence, f.Margin,
			f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height)
	}
	return nil
}

// lookupNames maps person ids to names. A failed lookup yields an empty map.
func lookupNames(ctx context.Context, store database.PersonReader) map[string]string {
	persons, err := store.ListPersons(ctx)
	if err != nil {
		fmt.Printf("Warning: failed to load person names: %v\n", err)
		return map[string]string{}
	}
	names := make(map[string]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.Name
	}
	return names
}
