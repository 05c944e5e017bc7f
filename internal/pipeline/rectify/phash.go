package rectify

import (
	"math"

	"github.com/sheetcap/sheetcap/internal/capture"
)

// phashSize is the square grid the image is downsampled to before the DCT.
const phashSize = 32

// phashBits is the side length of the low-frequency DCT block retained to
// build the 64-bit hash.
const phashBits = 8

// PerceptualHash computes a 64-bit perceptual hash of img: downsample to a
// phashSize x phashSize grayscale grid, run a 2D DCT, keep the top-left
// phashBits x phashBits low-frequency coefficients (excluding the DC term),
// and set each hash bit according to whether the coefficient exceeds the
// median of that block.
func PerceptualHash(img capture.RGBImage) uint64 {
	gray := downsampleGray(img, phashSize, phashSize)
	dct := dct2D(gray, phashSize)

	coeffs := make([]float64, 0, phashBits*phashBits-1)
	for y := 0; y < phashBits; y++ {
		for x := 0; x < phashBits; x++ {
			if x == 0 && y == 0 {
				continue // skip DC term
			}
			coeffs = append(coeffs, dct[y*phashSize+x])
		}
	}

	median := medianOf(coeffs)

	var hash uint64
	bit := 0
	for y := 0; y < phashBits; y++ {
		for x := 0; x < phashBits; x++ {
			if x == 0 && y == 0 {
				continue
			}
			if dct[y*phashSize+x] > median {
				hash |= 1 << uint(bit)
			}
			bit++
		}
	}
	return hash
}

// HammingDistance returns the number of differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	x := a ^ b
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}

func downsampleGray(img capture.RGBImage, w, h int) []float64 {
	out := make([]float64, w*h)
	sx := float64(img.Width) / float64(w)
	sy := float64(img.Height) / float64(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			srcX := int(float64(x) * sx)
			srcY := int(float64(y) * sy)
			if srcX >= img.Width {
				srcX = img.Width - 1
			}
			if srcY >= img.Height {
				srcY = img.Height - 1
			}
			i := (srcY*img.Width + srcX) * 3
			out[y*w+x] = float64(luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))
		}
	}
	return out
}

// dct2D runs a naive separable 2D DCT-II over an nxn grid. n is small
// (phashSize=32) so the O(n^3) cost per axis is negligible.
func dct2D(grid []float64, n int) []float64 {
	tmp := make([]float64, n*n)
	out := make([]float64, n*n)

	for y := 0; y < n; y++ {
		row := grid[y*n : y*n+n]
		for u := 0; u < n; u++ {
			tmp[y*n+u] = dct1D(row, u, n)
		}
	}

	col := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = tmp[y*n+x]
		}
		for v := 0; v < n; v++ {
			out[v*n+x] = dct1D(col, v, n)
		}
	}
	return out
}

func dct1D(values []float64, k, n int) float64 {
	sum := 0.0
	for i, v := range values {
		sum += v * math.Cos(math.Pi/float64(n)*(float64(i)+0.5)*float64(k))
	}
	alpha := math.Sqrt(2.0 / float64(n))
	if k == 0 {
		alpha = math.Sqrt(1.0 / float64(n))
	}
	return alpha * sum
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	// insertion sort: coeffs slice is small (63 elements)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
