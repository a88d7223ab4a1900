package recognition

import (
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/extractor"
)

// checkerboard returns a size x size image alternating luminance 80 and 180 per
// pixel: mean 130, standard deviation 50 and a very high Laplacian variance.
func checkerboard(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			v := uint8(80)
			if (x+y)%2 == 1 {
				v = 180
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func uniform(size int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// permissive accepts any crop.
var permissive = config.QualityConfig{MaxBrightness: 255, MaxRoll: 10}

func face(bbox [4]float64, emb ...float32) extractor.Face {
	return extractor.Face{BBox: bbox, Embedding: emb}
}

// rotated returns a 2-d unit vector at angle radians from the x axis, padded to dim.
func rotated(angle float64, dim int) []float32 {
	v := make([]float32, dim)
	v[0] = float32(math.Cos(angle))
	v[1] = float32(math.Sin(angle))
	return v
}

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func defaultQuality() config.QualityConfig {
	return config.DefaultQuality()
}
