package quality

import (
	"image"
	"image/color"
	"math"
)

// Luma weights for 8-bit RGB (ITU-R BT.601).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// lumaPlane is a row-major grayscale copy of an image region.
type lumaPlane struct {
	w, h int
	pix  []float64
}

func (p *lumaPlane) at(x, y int) float64 {
	return p.pix[y*p.w+x]
}

// luminance converts r to a luma plane over non-premultiplied channels. Alpha is ignored.
func luminance(img image.Image, r image.Rectangle) *lumaPlane {
	p := &lumaPlane{w: r.Dx(), h: r.Dy(), pix: make([]float64, r.Dx()*r.Dy())}
	i := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			p.pix[i] = lumaR*float64(c.R) + lumaG*float64(c.G) + lumaB*float64(c.B)
			i++
		}
	}
	return p
}

// reflect101 maps an out-of-range index back into [0, n) mirroring around
// the edge pixel without repeating it (dcb|abcd|cba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

// laplacianVariance returns the population variance of the 4-neighbour Laplacian.
func laplacianVariance(p *lumaPlane) float64 {
	n := p.w * p.h
	if n == 0 {
		return 0
	}
	var sum, sumSq float64
	for y := range p.h {
		for x := range p.w {
			l := p.at(reflect101(x-1, p.w), y) +
				p.at(reflect101(x+1, p.w), y) +
				p.at(x, reflect101(y-1, p.h)) +
				p.at(x, reflect101(y+1, p.h)) -
				4*p.at(x, y)
			sum += l
			sumSq += l * l
		}
	}
	mean := sum / float64(n)
	return max(sumSq/float64(n)-mean*mean, 0)
}

// meanStd returns the mean and population standard deviation of the plane.
func meanStd(p *lumaPlane) (float64, float64) {
	if len(p.pix) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range p.pix {
		sum += v
	}
	mean := sum / float64(len(p.pix))
	var ss float64
	for _, v := range p.pix {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(p.pix)))
}
