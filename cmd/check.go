package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"github.com/omri0111-web/facepace-public/internal/imageio"
	"github.com/omri0111-web/facepace-public/internal/quality"
	"github.com/omri0111-web/facepace-public/internal/recognition"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <image>",
	Short: "Show face quality diagnostics for an image",
	Long: `Detect faces and run the enrollment quality gate on each of them without
storing anything. The largest face is the one enrollment would use.

Examples:
  facepace check alice.jpg
  facepace check alice.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Bool("json", false, "Output as JSON")
}

// FaceCheck is the quality report for one detected face.
type FaceCheck struct {
	Box        facematch.Box      `json:"box"`
	DetScore   float64            `json:"det_score"`
	Selected   bool               `json:"selected"`
	Assessment quality.Assessment `json:"assessment"`
	Rating     quality.Rating     `json:"rating"`
}

// CheckOutput is the result of the check command.
type CheckOutput struct {
	File  string      `json:"file"`
	Faces []FaceCheck `json:"faces"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()

	img, err := imageio.LoadFile(args[0])
	if err != nil {
		return err
	}

	handle, err := initExtractor(ctx, cfg)
	if err != nil {
		return err
	}

	faces, err := handle.DetectAndEmbed(ctx, img)
	if err != nil {
		return fmt.Errorf("face detection failed: %w", err)
	}

	selected := recognition.LargestFace(faces)
	out := CheckOutput{File: args[0], Faces: make([]FaceCheck, 0, len(faces))}
	for i, f := range faces {
		out.Faces = append(out.Faces, FaceCheck{
			Box:        facematch.ToBox(f.BBox),
			DetScore:   f.DetScore,
			Selected:   i == selected,
			Assessment: quality.Assess(img, f.BBox, f.Landmarks, cfg.Quality),
			Rating:     quality.Rate(f.BBox, img.Bounds(), f.Landmarks),
		})
	}

	if jsonOutput {
		return outputJSON(out)
	}

	if len(out.Faces) == 0 {
		color.Red("No face detected in %s", args[0])
		return nil
	}

	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Printf("\n%s: %d face(s)\n", args[0], len(out.Faces))
	for i, f := range out.Faces {
		status := pass("PASS")
		if !f.Assessment.Passed {
			status = fail("FAIL")
		}
		marker := ""
		if f.Selected {
			marker = dim(" (used for enrollment)")
		}
		m := f.Assessment.Metrics
		fmt.Printf("\nFace %d %s%s\n", i+1, status, marker)
		fmt.Printf("  Box:        (%.0f, %.0f) %.0fx%.0f  score %.2f\n", f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height, f.DetScore)
		fmt.Printf("  Width:      %.1f px (min %.0f)\n", m.FaceWidth, cfg.Quality.MinFaceWidth)
		fmt.Printf("  Sharpness:  %.1f (min %.0f)\n", m.Sharpness, cfg.Quality.MinSharpness)
		fmt.Printf("  Brightness: %.1f (%.0f-%.0f)\n", m.Brightness, cfg.Quality.MinBrightness, cfg.Quality.MaxBrightness)
		fmt.Printf("  Contrast:   %.1f (min %.0f)\n", m.Contrast, cfg.Quality.MinContrast)
		if m.Roll != nil {
			fmt.Printf("  Roll:       %.1f° (max %.0f)\n", *m.Roll, cfg.Quality.MaxRoll)
		} else {
			fmt.Printf("  Roll:       %s\n", dim("n/a"))
		}
		if len(f.Assessment.Reasons) > 0 {
			fmt.Printf("  Reasons:    %s\n", fail(strings.Join(f.Assessment.Reasons, ", ")))
		}
		fmt.Printf("  Rating:     %d/100 %s - %s\n", f.Rating.Score, f.Rating.Level, f.Rating.Message)
	}
	return nil
}
