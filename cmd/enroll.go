package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/fingerprint"
	"github.com/omri0111-web/facepace-public/internal/imageio"
	"github.com/omri0111-web/facepace-public/internal/photos"
	"github.com/omri0111-web/facepace-public/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image-or-directory>",
	Short: "Enroll face photos from disk",
	Long: `Enroll one image or a directory of images.

With --person-id every image is enrolled for that person. Without it, a
directory is expected to hold one sub-directory per person, named by the
person id:

  people/
    alice/1.jpg
    alice/2.jpg
    bob/front.png

Each image goes through the same quality gate as POST /api/v1/enroll.
Near-identical images of one person (resized or re-encoded copies) are skipped
so they don't use up the per-person embedding cap.

Examples:
  # Single photo
  facepace enroll alice.jpg --person-id alice --name "Alice Smith"

  # One directory per person, JSON summary
  facepace enroll ./people --json`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("person-id", "", "Person id for every image (default: sub-directory name)")
	enrollCmd.Flags().String("name", "", "Person name for a new person (default: person id)")
	enrollCmd.Flags().String("pattern", constants.DefaultEnrollPattern, "Glob selecting images inside a directory")
	enrollCmd.Flags().Int("concurrency", constants.BulkEnrollWorkers, "Number of parallel image loaders")
	enrollCmd.Flags().Bool("save-photos", true, "Store accepted images as person photos")
	enrollCmd.Flags().Bool("allow-duplicates", false, "Enroll near-identical images of the same person")
	enrollCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// enrollJob is one image to enroll.
type enrollJob struct {
	Path       string
	PersonID   string
	PersonName string
}

// EnrollRejection describes an image that was not stored.
type EnrollRejection struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// EnrollBatchResult summarizes an enroll run.
type EnrollBatchResult struct {
	Success       bool              `json:"success"`
	Files         int               `json:"files"`
	Enrolled      int               `json:"enrolled"`
	Rejected      []EnrollRejection `json:"rejected"`
	Errors        int               `json:"errors"`
	Failed        []EnrollRejection `json:"failed,omitempty"`
	DurationMs    int64             `json:"duration_ms"`
	DurationHuman string            `json:"duration_human,omitempty"`
}

// collectEnrollJobs expands root into jobs. A file becomes a single job.
func collectEnrollJobs(root, personID, personName, pattern string) ([]enrollJob, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	if !info.IsDir() {
		if personID == "" {
			return nil, errors.New("--person-id is required when enrolling a single image")
		}
		return []enrollJob{{Path: root, PersonID: personID, PersonName: personName}}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)

	jobs := make([]enrollJob, 0, len(matches))
	for _, rel := range matches {
		job := enrollJob{Path: filepath.Join(root, filepath.FromSlash(rel)), PersonID: personID, PersonName: personName}
		if personID == "" {
			dir, _, found := strings.Cut(rel, "/")
			if !found {
				// Loose files at the top level have no person to belong to.
				continue
			}
			job.PersonID = dir
			job.PersonName = dir
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// rejectionReason maps expected enrollment failures to a short reason.
// Other errors return "" and count as errors.
func rejectionReason(err error) string {
	var qerr *recognition.QualityError
	switch {
	case errors.As(err, &qerr):
		return qerr.Error()
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return "no face detected"
	case errors.Is(err, recognition.ErrEmbeddingLimit):
		return "maximum embeddings per person reached"
	case errors.Is(err, recognition.ErrInvalidEmbedding):
		return "invalid face embedding"
	case errors.Is(err, imageio.ErrInvalidImage):
		return "invalid image"
	case errors.Is(err, fingerprint.ErrDuplicate):
		return err.Error()
	default:
		return ""
	}
}

// enrollFile loads, enrolls and optionally stores one image. A nil dedup
// disables duplicate detection. The image's hash only counts against later
// copies once its embedding is stored.
func enrollFile(ctx context.Context, enroller *recognition.Enroller, store database.PersonWriter, photoStore *photos.Store, dedup *fingerprint.Dedup, job enrollJob) error {
	img, err := imageio.LoadFile(job.Path)
	if err != nil {
		return err
	}
	var claim *fingerprint.Claim
	if dedup != nil {
		if claim, err = dedup.Claim(ctx, job.PersonID, job.Path, fingerprint.Compute(img)); err != nil {
			return err
		}
	}
	if _, err := enroller.Enroll(ctx, img, job.PersonID, job.PersonName); err != nil {
		claim.Release()
		return err
	}
	claim.Commit()
	if photoStore == nil {
		return nil
	}
	filename, err := photoStore.Save(job.PersonID, img)
	if err != nil {
		return fmt.Errorf("saving photo: %w", err)
	}
	if err := store.AddPhoto(ctx, job.PersonID, filename); err != nil {
		return fmt.Errorf("recording photo: %w", err)
	}
	return nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	personID := strings.TrimSpace(mustGetString(cmd, "person-id"))
	personName := strings.TrimSpace(mustGetString(cmd, "name"))
	pattern := mustGetString(cmd, "pattern")
	concurrency := max(mustGetInt(cmd, "concurrency"), 1)
	savePhotos := mustGetBool(cmd, "save-photos")
	allowDuplicates := mustGetBool(cmd, "allow-duplicates")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	jobs, err := collectEnrollJobs(args[0], personID, personName, pattern)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		if jsonOutput {
			return outputJSON(EnrollBatchResult{Success: true, Rejected: []EnrollRejection{}})
		}
		fmt.Println("No images found.")
		return nil
	}

	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()
	defer saveHNSWIndex(store)

	handle, err := initExtractor(ctx, cfg)
	if err != nil {
		return err
	}
	enroller := recognition.NewEnroller(handle, store, cfg.Quality, cfg.Matching.MaxEmbeddingsPerPerson)

	var photoStore *photos.Store
	if savePhotos {
		photoStore = photos.NewStore(cfg.Photos.Dir, cfg.Photos.MaxImageSize)
	}

	var dedup *fingerprint.Dedup
	if !allowDuplicates {
		dedup = fingerprint.NewDedup(constants.DuplicateHashDistance)
	}

	if !jsonOutput {
		fmt.Printf("Found %d images to enroll\n\n", len(jobs))
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	var enrolled int64
	var errorCount int64
	var mu sync.Mutex
	rejected := []EnrollRejection{}
	var failed []EnrollRejection
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		go func(job enrollJob) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			err := enrollFile(ctx, enroller, store, photoStore, dedup, job)
			switch reason := rejectionReason(err); {
			case err == nil:
				atomic.AddInt64(&enrolled, 1)
			case reason != "":
				mu.Lock()
				rejected = append(rejected, EnrollRejection{File: job.Path, Reason: reason})
				mu.Unlock()
			default:
				atomic.AddInt64(&errorCount, 1)
				mu.Lock()
				failed = append(failed, EnrollRejection{File: job.Path, Reason: err.Error()})
				mu.Unlock()
			}

			if bar != nil {
				bar.Add(1)
			}
		}(job)
	}

	wg.Wait()

	if bar != nil {
		fmt.Println()
	}

	byFile := func(list []EnrollRejection) {
		sort.Slice(list, func(i, j int) bool { return list[i].File < list[j].File })
	}
	byFile(rejected)
	byFile(failed)

	duration := time.Since(startTime)
	result := EnrollBatchResult{
		Success:       errorCount == 0,
		Files:         len(jobs),
		Enrolled:      int(enrolled),
		Rejected:      rejected,
		Errors:        int(errorCount),
		Failed:        failed,
		DurationMs:    duration.Milliseconds(),
		DurationHuman: formatDuration(duration),
	}

	if jsonOutput {
		result.DurationHuman = ""
		return outputJSON(result)
	}

	fmt.Println("\nEnrollment complete!")
	fmt.Printf("  Images:   %d\n", result.Files)
	fmt.Printf("  Enrolled: %d\n", result.Enrolled)
	if len(result.Rejected) > 0 {
		fmt.Printf("  Rejected: %d\n", len(result.Rejected))
		for _, r := range result.Rejected {
			fmt.Printf("    %s: %s\n", r.File, r.Reason)
		}
	}
	if result.Errors > 0 {
		fmt.Printf("  Errors:   %d\n", result.Errors)
		for _, f := range result.Failed {
			fmt.Printf("    %s: %s\n", f.File, f.Reason)
		}
	}
	fmt.Printf("  Duration: %s\n", result.DurationHuman)

	return nil
}
