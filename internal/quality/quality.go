// Package quality scores whether a detected face is usable as an enrollment sample.
package quality

import (
	"image"
	"math"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// Failure and advisory reasons.
const (
	ReasonTooSmall     = "face too small"
	ReasonTooBlurry    = "too blurry"
	ReasonLighting     = "lighting issue"
	ReasonLowContrast  = "low contrast"
	ReasonTiltedAdvice = "turn head straighter"
)

// Metrics are the measurements taken from one face crop.
type Metrics struct {
	FaceWidth  float64  `json:"face_width"`
	Sharpness  float64  `json:"sharpness"`
	Brightness float64  `json:"brightness"`
	Contrast   float64  `json:"contrast"`
	Roll       *float64 `json:"roll,omitempty"` // degrees, nil when eye landmarks can't define it
}

// Assessment is the outcome of the gate for one face.
type Assessment struct {
	Metrics Metrics  `json:"metrics"`
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons"`
}

// Measure computes metrics for the face at bbox ([x1, y1, x2, y2]).
// The crop is clamped to the image; a crop with no area falls back to the whole image.
func Measure(img image.Image, bbox [4]float64, landmarks []facematch.Point) Metrics {
	region := facematch.ClampRect(bbox, img.Bounds())
	if region.Empty() {
		region = img.Bounds()
	}

	plane := luminance(img, region)
	brightness, contrast := meanStd(plane)

	return Metrics{
		FaceWidth:  bbox[2] - bbox[0],
		Sharpness:  laplacianVariance(plane),
		Brightness: brightness,
		Contrast:   contrast,
		Roll:       Roll(landmarks),
	}
}

// Roll returns the absolute in-plane head rotation in degrees from the first
// two landmarks (left and right eye). Nil when fewer than two landmarks are
// given or the eyes share an x coordinate.
func Roll(landmarks []facematch.Point) *float64 {
	if len(landmarks) < 2 {
		return nil
	}
	dx := landmarks[1].X - landmarks[0].X
	dy := landmarks[1].Y - landmarks[0].Y
	if dx == 0 {
		return nil
	}
	deg := math.Abs(math.Atan2(dy, dx)) * 180 / math.Pi
	return &deg
}

// Evaluate applies the thresholds to already computed metrics.
// Roll over the limit is reported but never fails the face.
func Evaluate(m Metrics, th config.QualityConfig) (bool, []string) {
	passed := true
	reasons := []string{}

	if m.FaceWidth < th.MinFaceWidth {
		passed = false
		reasons = append(reasons, ReasonTooSmall)
	}
	if m.Sharpness < th.MinSharpness {
		passed = false
		reasons = append(reasons, ReasonTooBlurry)
	}
	if m.Brightness < th.MinBrightness || m.Brightness > th.MaxBrightness {
		passed = false
		reasons = append(reasons, ReasonLighting)
	}
	if m.Contrast < th.MinContrast {
		passed = false
		reasons = append(reasons, ReasonLowContrast)
	}
	if m.Roll != nil && *m.Roll > th.MaxRoll {
		reasons = append(reasons, ReasonTiltedAdvice)
	}

	return passed, reasons
}

// Assess measures and evaluates one face.
func Assess(img image.Image, bbox [4]float64, landmarks []facematch.Point, th config.QualityConfig) Assessment {
	m := Measure(img, bbox, landmarks)
	passed, reasons := Evaluate(m, th)
	return Assessment{Metrics: m, Passed: passed, Reasons: reasons}
}
