package capture

import "math"

// MinROIAreaFraction is the minimum fraction of the source frame area a
// quadrilateral must cover; below this it is rejected as "too small".
const MinROIAreaFraction = 0.01

// BottomBarAspectThreshold is the quad-aspect-ratio at or above which a
// caller should infer layout_hint = bottom_bar instead of full_scroll.
const BottomBarAspectThreshold = 2.25

// Validate checks a quad against a source frame of size (w, h): every point
// must lie inside [0,w]x[0,h] and the quad's area must be at least
// MinROIAreaFraction of the frame area.
func (q Quadrilateral) Validate(w, h int) error {
	for _, p := range q.Points() {
		if p.X < 0 || p.X > float64(w) || p.Y < 0 || p.Y > float64(h) {
			return ErrROITooSmall
		}
	}
	frameArea := float64(w * h)
	if frameArea <= 0 || q.Area()/frameArea < MinROIAreaFraction {
		return ErrROITooSmall
	}
	return nil
}

// Points returns the four corners in TL, TR, BR, BL order.
func (q Quadrilateral) Points() [4]Point {
	return [4]Point{q.TL, q.TR, q.BR, q.BL}
}

// Area computes the quad's area via the shoelace formula.
func (q Quadrilateral) Area() float64 {
	pts := q.Points()
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

// AspectRatio returns the quad's width/height using average opposite-side
// lengths, used to infer a default layout hint.
func (q Quadrilateral) AspectRatio() float64 {
	widthTop := dist(q.TL, q.TR)
	widthBottom := dist(q.BL, q.BR)
	heightLeft := dist(q.TL, q.BL)
	heightRight := dist(q.TR, q.BR)

	avgWidth := (widthTop + widthBottom) / 2
	avgHeight := (heightLeft + heightRight) / 2
	if avgHeight == 0 {
		return 0
	}
	return avgWidth / avgHeight
}

// InferLayoutHint derives the default layout hint from the quad's aspect
// ratio when the caller hasn't explicitly chosen page_turn.
func (q Quadrilateral) InferLayoutHint() LayoutHint {
	if q.AspectRatio() >= BottomBarAspectThreshold {
		return LayoutBottomBar
	}
	return LayoutFullScroll
}

func dist(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Translate returns a copy of q shifted by (dx, dy).
func (q Quadrilateral) Translate(dx, dy float64) Quadrilateral {
	shift := func(p Point) Point { return Point{X: p.X + dx, Y: p.Y + dy} }
	return Quadrilateral{
		TL: shift(q.TL),
		TR: shift(q.TR),
		BR: shift(q.BR),
		BL: shift(q.BL),
	}
}

// BoundingRect returns the smallest axis-aligned rect containing q, clamped
// to [0,w]x[0,h].
func (q Quadrilateral) BoundingRect(w, h int) Rect {
	pts := q.Points()
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	r := Rect{
		MinX: int(math.Max(0, math.Floor(minX))),
		MinY: int(math.Max(0, math.Floor(minY))),
		MaxX: int(math.Min(float64(w), math.Ceil(maxX))),
		MaxY: int(math.Min(float64(h), math.Ceil(maxY))),
	}
	return r
}

// FullFrameQuad returns the quad covering the entire (w, h) frame, used by
// the crop_capture "full-image quad leaves the file byte-identical"
// idempotence property.
func FullFrameQuad(w, h int) Quadrilateral {
	fw, fh := float64(w), float64(h)
	return Quadrilateral{
		TL: Point{X: 0, Y: 0},
		TR: Point{X: fw, Y: 0},
		BR: Point{X: fw, Y: fh},
		BL: Point{X: 0, Y: fh},
	}
}
