package facematch

import "image"

// Box is an axis-aligned box in pixel space as x, y, width, height.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BBoxArea returns the area of a [x1, y1, x2, y2] box. Inverted boxes have zero area.
func BBoxArea(bbox [4]float64) float64 {
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// ToBox converts corner coordinates [x1, y1, x2, y2] to x, y, width, height.
func ToBox(bbox [4]float64) Box {
	return Box{
		X:      bbox[0],
		Y:      bbox[1],
		Width:  bbox[2] - bbox[0],
		Height: bbox[3] - bbox[1],
	}
}

// LargestFace returns the index of the box with the largest area.
// Ties keep the first occurrence. Returns -1 for an empty slice.
func LargestFace(bboxes [][4]float64) int {
	best := -1
	bestArea := -1.0
	for i, b := range bboxes {
		if a := BBoxArea(b); a > bestArea {
			best = i
			bestArea = a
		}
	}
	return best
}

// ClampRect converts a float box to an integer rectangle clipped to bounds.
// The result may be empty when the box lies outside the image.
func ClampRect(bbox [4]float64, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3]))
	return r.Intersect(bounds)
}

// Point is a facial landmark in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
