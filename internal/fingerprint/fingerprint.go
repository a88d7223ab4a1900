// Package fingerprint computes perceptual hashes used to spot near-duplicate
// face photos before they are enrolled.
package fingerprint

import (
	"fmt"
	"image"
	"math"
	"math/bits"
	"slices"
	"sync"

	"golang.org/x/image/draw"
)

const (
	dctSize   = 32
	lowFreq   = 8
	dHashCols = 9
	dHashRows = 8
)

// Hash holds a 64-bit DCT hash and a 64-bit gradient hash of one image.
type Hash struct {
	PHash uint64
	DHash uint64
}

// String returns both hashes as hex, pHash first.
func (h Hash) String() string {
	return fmt.Sprintf("%016x:%016x", h.PHash, h.DHash)
}

// Distance is the larger of the two Hamming distances.
func (h Hash) Distance(o Hash) int {
	return max(HammingDistance(h.PHash, o.PHash), HammingDistance(h.DHash, o.DHash))
}

// NearDuplicate reports whether both hashes are within threshold bits.
func (h Hash) NearDuplicate(o Hash, threshold int) bool {
	return h.Distance(o) <= threshold
}

// HammingDistance counts differing bits.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Compute hashes img. Any image size works; color is reduced to BT.601 luma.
func Compute(img image.Image) Hash {
	return Hash{
		PHash: pHash(img),
		DHash: dHash(img),
	}
}

// grayscale scales img to w x h and returns row-major luma values.
func grayscale(img image.Image, w, h int) []float64 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([]float64, w*h)
	for y := range h {
		for x := range w {
			i := dst.PixOffset(x, y)
			p := dst.Pix[i : i+3 : i+3]
			out[y*w+x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
	}
	return out
}

// pHash keeps the sign of the low-frequency DCT block against its median.
// The DC term is skipped, so bit 0 is always zero.
func pHash(img image.Image) uint64 {
	gray := grayscale(img, dctSize, dctSize)
	coeffs := dct2(gray, dctSize)

	block := make([]float64, 0, lowFreq*lowFreq-1)
	for v := range lowFreq {
		for u := range lowFreq {
			if u == 0 && v == 0 {
				continue
			}
			block = append(block, coeffs[v*dctSize+u])
		}
	}
	median := median(block)

	var hash uint64
	for i, c := range block {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// dHash sets a bit where a pixel is brighter than its right neighbour.
func dHash(img image.Image) uint64 {
	gray := grayscale(img, dHashCols, dHashRows)

	var hash uint64
	bit := 63
	for y := range dHashRows {
		row := gray[y*dHashCols : (y+1)*dHashCols]
		for x := range dHashCols - 1 {
			if row[x] > row[x+1] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

var cosTables sync.Map // int -> []float64

// cosTable returns cos(pi*k*(2i+1)/2n) indexed [k*n+i].
func cosTable(n int) []float64 {
	if t, ok := cosTables.Load(n); ok {
		return t.([]float64)
	}
	t := make([]float64, n*n)
	for k := range n {
		for i := range n {
			t[k*n+i] = math.Cos(math.Pi * float64(k) * float64(2*i+1) / float64(2*n))
		}
	}
	cosTables.Store(n, t)
	return t
}

// dct2 is an unnormalized separable 2-D DCT-II over an n x n row-major block.
func dct2(in []float64, n int) []float64 {
	cos := cosTable(n)
	tmp := make([]float64, n*n)
	for y := range n {
		row := in[y*n : (y+1)*n]
		for k := range n {
			var sum float64
			for x, v := range row {
				sum += v * cos[k*n+x]
			}
			tmp[y*n+k] = sum
		}
	}

	out := make([]float64, n*n)
	for x := range n {
		for k := range n {
			var sum float64
			for y := range n {
				sum += tmp[y*n+x] * cos[k*n+y]
			}
			out[k*n+x] = sum
		}
	}
	return out
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
