package recognition

import (
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// LargestFace returns the index of the face with the largest box, -1 for none.
// Equal areas keep the extractor's order.
func LargestFace(faces []extractor.Face) int {
	boxes := make([][4]float64, len(faces))
	for i, f := range faces {
		boxes[i] = f.BBox
	}
	return facematch.LargestFace(boxes)
}
