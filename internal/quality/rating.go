package quality

import (
	"image"
	"math"

	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// Rating levels.
const (
	LevelExcellent = "excellent"
	LevelGood      = "good"
	LevelPoor      = "poor"
)

// Rating is a coarse 0-100 photo score shown to people picking an enrollment photo.
// It is advisory only; the gate in Evaluate decides what gets stored.
type Rating struct {
	Score          int     `json:"score"`
	Level          string  `json:"quality"`
	Message        string  `json:"message"`
	FaceRatio      float64 `json:"face_ratio"`
	SizeScore      float64 `json:"size_score"`
	AngleScore     float64 `json:"angle_score"`
	Recommendation string  `json:"recommendation"`
}

// Rate scores a face by how much of the frame it fills and how level the eyes are.
func Rate(bbox [4]float64, bounds image.Rectangle, landmarks []facematch.Point) Rating {
	var ratio float64
	if imgArea := float64(bounds.Dx() * bounds.Dy()); imgArea > 0 {
		ratio = facematch.BBoxArea(bbox) / imgArea
	}
	// Full marks once the face covers 5% of the image.
	sizeScore := math.Min(1, ratio*20)

	angleScore := 1.0
	if len(landmarks) >= 2 {
		dx := landmarks[1].X - landmarks[0].X
		dy := landmarks[1].Y - landmarks[0].Y
		if math.Hypot(dx, dy) > 0 {
			angle := math.Abs(math.Atan2(dy, dx))
			angleScore = math.Max(0, 1-angle/(math.Pi/4))
		}
	}

	score := int((sizeScore*0.4 + angleScore*0.3 + 0.3) * 100)

	r := Rating{
		Score:      score,
		FaceRatio:  ratio,
		SizeScore:  sizeScore,
		AngleScore: angleScore,
	}
	switch {
	case score >= 70:
		r.Level = LevelExcellent
		r.Message = "Excellent - Face clearly visible"
	case score >= 40:
		r.Level = LevelGood
		r.Message = "Good - Face detected, sufficient quality"
	default:
		r.Level = LevelPoor
		r.Message = "Poor - Face too small, blurry, or poorly lit"
	}
	if score < 60 {
		r.Recommendation = "Upload additional photos from different angles"
	} else {
		r.Recommendation = "Photo quality is good"
	}
	return r
}

// NoFaceRating is returned when the detector finds nothing.
func NoFaceRating() Rating {
	return Rating{
		Score:          0,
		Level:          LevelPoor,
		Message:        "No face detected - Please upload a clearer photo",
		Recommendation: "Upload a photo with a clear, well-lit face",
	}
}
