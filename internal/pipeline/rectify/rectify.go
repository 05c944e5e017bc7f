// Package rectify implements Rectifier: perspective-warping a quadrilateral
// ROI into a canonical rectangle, normalizing background tone, and
// computing a perceptual hash for downstream deduplication.
//
// Perspective warp, tone normalization, and perceptual hashing are built on
// the standard image/math packages alone; no computer-vision library
// appears anywhere in the retrieval pack.
package rectify

import (
	"math"

	"github.com/sheetcap/sheetcap/internal/capture"
)

// TargetShortSide is the pixel length the shorter side of the quad maps to,
// clamped to [MinDimension, MaxDimension].
const TargetShortSide = 1200

const (
	MinDimension = 800
	MaxDimension = 2000
)

// ToneTargetLuminance is the near-white luminance the background mode is
// shifted toward.
const ToneTargetLuminance = 245.0

// Rectify warps frame's quad into a canonical rectangle and normalizes its
// background tone.
func Rectify(f *capture.Frame, q capture.Quadrilateral) capture.RectifiedCapture {
	w, h := targetDims(q)
	warped := perspectiveWarp(f.Image, q, w, h)
	normalizeTone(&warped)
	hash := PerceptualHash(warped)
	bbox := contentBBox(warped)

	return capture.RectifiedCapture{
		FrameIndex: f.Index,
		Hash:       hash,
		BBox:       bbox,
		Image:      warped,
	}
}

// targetDims computes the rectangle dimensions: the quad's shorter side
// maps to TargetShortSide (clamped), preserving the source aspect ratio.
func targetDims(q capture.Quadrilateral) (int, int) {
	widthTop := dist(q.TL, q.TR)
	widthBottom := dist(q.BL, q.BR)
	heightLeft := dist(q.TL, q.BL)
	heightRight := dist(q.TR, q.BR)

	avgW := (widthTop + widthBottom) / 2
	avgH := (heightLeft + heightRight) / 2
	if avgW <= 0 || avgH <= 0 {
		return TargetShortSide, TargetShortSide
	}

	short := math.Min(avgW, avgH)
	scale := clamp(TargetShortSide, MinDimension, MaxDimension) / short

	w := int(math.Round(avgW * scale))
	h := int(math.Round(avgH * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func dist(a, b capture.Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// perspectiveWarp maps src's quad region into a dstW x dstH rectangle via
// an inverse homography, sampling src with bilinear interpolation.
func perspectiveWarp(src capture.RGBImage, q capture.Quadrilateral, dstW, dstH int) capture.RGBImage {
	homography := inverseHomography(q, dstW, dstH)
	dst := capture.RGBImage{Width: dstW, Height: dstH, Pix: make([]byte, dstW*dstH*3)}

	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			sx, sy := homography.apply(float64(x), float64(y))
			r, g, b := sampleBilinear(src, sx, sy)
			i := (y*dstW + x) * 3
			dst.Pix[i] = r
			dst.Pix[i+1] = g
			dst.Pix[i+2] = b
		}
	}
	return dst
}

// homography maps destination rectangle coordinates back to source
// quadrilateral coordinates. Computed via the standard 8-parameter
// perspective-transform solution for a unit-square-to-quad mapping.
type homography struct {
	a, b, c, d, e, f, g, h float64
}

func (m homography) apply(x, y float64) (float64, float64) {
	denom := m.g*x + m.h*y + 1
	if denom == 0 {
		denom = 1e-9
	}
	sx := (m.a*x + m.b*y + m.c) / denom
	sy := (m.d*x + m.e*y + m.f) / denom
	return sx, sy
}

// inverseHomography computes the mapping from a dstW x dstH rectangle to
// the source quadrilateral q, by first solving the forward mapping from
// the unit square (0,0)-(1,0)-(1,1)-(0,1) to q, then composing with the
// destination-rectangle-to-unit-square scale.
func inverseHomography(q capture.Quadrilateral, dstW, dstH int) homography {
	// Forward: unit square -> quad (TL,TR,BR,BL).
	x0, y0 := q.TL.X, q.TL.Y
	x1, y1 := q.TR.X, q.TR.Y
	x2, y2 := q.BR.X, q.BR.Y
	x3, y3 := q.BL.X, q.BL.Y

	dx1 := x1 - x2
	dx2 := x3 - x2
	dx3 := x0 - x1 + x2 - x3
	dy1 := y1 - y2
	dy2 := y3 - y2
	dy3 := y0 - y1 + y2 - y3

	var g, h float64
	det := dx1*dy2 - dx2*dy1
	if det != 0 {
		g = (dx3*dy2 - dx2*dy3) / det
		h = (dx1*dy3 - dx3*dy1) / det
	}

	a := x1 - x0 + g*x1
	b := x3 - x0 + h*x3
	c := x0
	d := y1 - y0 + g*y1
	e := y3 - y0 + h*y3
	fv := y0

	// Compose with the destination-pixel -> unit-square scale so apply()
	// takes destination pixel coords directly.
	sx := 1.0 / math.Max(float64(dstW), 1)
	sy := 1.0 / math.Max(float64(dstH), 1)

	return homography{
		a: a * sx, b: b * sy, c: c,
		d: d * sx, e: e * sy, f: fv,
		g: g * sx, h: h * sy,
	}
}

func sampleBilinear(img capture.RGBImage, x, y float64) (byte, byte, byte) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	maxX := float64(img.Width - 1)
	maxY := float64(img.Height - 1)
	if x > maxX {
		x = maxX
	}
	if y > maxY {
		y = maxY
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := min(x0+1, img.Width-1)
	y1 := min(y0+1, img.Height-1)
	fx := x - float64(x0)
	fy := y - float64(y0)

	get := func(px, py int) (float64, float64, float64) {
		i := (py*img.Width + px) * 3
		return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
	}

	r00, g00, b00 := get(x0, y0)
	r10, g10, b10 := get(x1, y0)
	r01, g01, b01 := get(x0, y1)
	r11, g11, b11 := get(x1, y1)

	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }
	r := lerp(lerp(r00, r10, fx), lerp(r01, r11, fx), fy)
	g := lerp(lerp(g00, g10, fx), lerp(g01, g11, fx), fy)
	b := lerp(lerp(b00, b10, fx), lerp(b01, b11, fx), fy)

	return byte(r), byte(g), byte(b)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// normalizeTone computes the mode of the luminance histogram of the top
// and bottom 5% rows and shifts all luminance so that mode maps to
// ToneTargetLuminance, preserving black strokes via an affine shift.
func normalizeTone(img *capture.RGBImage) {
	bandHeight := int(math.Max(1, float64(img.Height)*0.05))

	hist := make([]int, 256)
	scanRow := func(y int) {
		for x := 0; x < img.Width; x++ {
			i := (y*img.Width + x) * 3
			lum := luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			hist[lum]++
		}
	}
	for y := 0; y < bandHeight && y < img.Height; y++ {
		scanRow(y)
	}
	for y := img.Height - bandHeight; y < img.Height; y++ {
		if y >= 0 {
			scanRow(y)
		}
	}

	mode := 255
	best := -1
	for v, count := range hist {
		if count > best {
			best = count
			mode = v
		}
	}

	shift := ToneTargetLuminance - float64(mode)
	for i := 0; i < len(img.Pix); i += 3 {
		for c := 0; c < 3; c++ {
			v := float64(img.Pix[i+c]) + shift
			img.Pix[i+c] = clampByte(v)
		}
	}
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func luminance(r, g, b byte) byte {
	return byte(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
}

// contentBBox finds the bounding box of ink (pixels whose luminance falls
// below a threshold); the result is stored as RectifiedCapture.BBox, which
// Stitcher's canonical-member selection compares.
func contentBBox(img capture.RGBImage) capture.Rect {
	const inkThreshold = 235.0

	minX, minY := img.Width, img.Height
	maxX, maxY := 0, 0
	found := false

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := (y*img.Width + x) * 3
			lum := float64(luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))
			if lum < inkThreshold {
				found = true
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if !found {
		return capture.Rect{MinX: 0, MinY: 0, MaxX: img.Width, MaxY: img.Height}
	}
	return capture.Rect{MinX: minX, MinY: minY, MaxX: maxX + 1, MaxY: maxY + 1}
}
