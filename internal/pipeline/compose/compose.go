// Package compose implements PageComposer: trimming content, balancing
// margins, splitting over-tall strips into A4-proportioned pages, and
// exporting PNG/JPG/PDF.
package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/pdf"
)

// MarginFraction is the fraction of the trimmed content's dimensions added
// back as a balanced margin.
const MarginFraction = 0.04

// A4Ratio is height/width for an A4-proportioned page.
const A4Ratio = 1.4142 // sqrt(2)

// MaxHeightRatio is the multiple of A4Ratio*width beyond which a page is
// split vertically at low-ink rows.
const MaxHeightRatio = 3.0

// InkThreshold is the luminance below which a pixel counts as ink for
// trimming/splitting decisions.
const InkThreshold = 235.0

// Composer trims, splits, and exports page candidates.
type Composer struct {
	outputDir string
}

// New creates a Composer writing into outputDir.
func New(outputDir string) *Composer {
	return &Composer{outputDir: outputDir}
}

// Compose runs the full §4.7 algorithm over candidates and writes the
// chosen formats, returning the ordered output image paths (not including
// sheet_complete.png or the PDF, which the caller adds to the manifest
// separately via SheetCompletePath/PDF).
func (c *Composer) Compose(candidates []capture.PageCandidate, formats []string, scrollMode bool) (images []string, pdfPath string, sheetCompletePath string, err error) {
	if err := os.MkdirAll(c.outputDir, 0755); err != nil {
		return nil, "", "", fmt.Errorf("create pages dir: %w", err)
	}

	var finalPages []capture.RGBImage
	for _, cand := range candidates {
		trimmed := trimToContent(cand.Image)
		margined := addMargin(trimmed, MarginFraction)

		if isOverTall(margined) {
			finalPages = append(finalPages, splitOverTall(margined)...)
		} else {
			finalPages = append(finalPages, margined)
		}
	}

	wantPNG, wantJPG, wantPDF := false, false, false
	for _, f := range formats {
		switch f {
		case "png":
			wantPNG = true
		case "jpg", "jpeg":
			wantJPG = true
		case "pdf":
			wantPDF = true
		}
	}

	pdfWriter := pdf.NewWriter()

	for i, page := range finalPages {
		name := fmt.Sprintf("page_%03d", i+1)
		img := toImage(page)

		if wantPNG || (!wantPNG && !wantJPG) {
			path := filepath.Join(c.outputDir, name+".png")
			if err := writePNG(path, img); err != nil {
				return nil, "", "", capture.NewStageError(capture.CodeExportFailed, err)
			}
			images = append(images, path)
		}
		if wantJPG {
			path := filepath.Join(c.outputDir, name+".jpg")
			if err := writeJPG(path, img); err != nil {
				return nil, "", "", capture.NewStageError(capture.CodeExportFailed, err)
			}
			if !wantPNG {
				images = append(images, path)
			}
		}
		if wantPDF {
			pdfWriter.AddPage(pdf.Page{Image: img, RGB: page.Pix, Width: page.Width, Height: page.Height})
		}
	}

	if wantPDF && len(finalPages) > 0 {
		data, err := pdfWriter.Bytes()
		if err != nil {
			return nil, "", "", capture.NewStageError(capture.CodeExportFailed, err)
		}
		pdfPath = filepath.Join(filepath.Dir(c.outputDir), "pages.pdf")
		if err := os.WriteFile(pdfPath, data, 0644); err != nil {
			return nil, "", "", capture.NewStageError(capture.CodeExportFailed, err)
		}
	}

	if scrollMode && len(finalPages) >= 2 {
		sheetCompletePath = filepath.Join(filepath.Dir(c.outputDir), "sheet_complete.png")
		concat := concatVertical(finalPages)
		if err := writePNG(sheetCompletePath, toImage(concat)); err != nil {
			return nil, "", "", capture.NewStageError(capture.CodeExportFailed, err)
		}
	}

	return images, pdfPath, sheetCompletePath, nil
}

func trimToContent(img capture.RGBImage) capture.RGBImage {
	minX, minY := img.Width, img.Height
	maxX, maxY := 0, 0
	found := false

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := (y*img.Width + x) * 3
			lum := 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
			if lum < InkThreshold {
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
		return img
	}
	return crop(img, minX, minY, maxX+1, maxY+1)
}

func crop(img capture.RGBImage, x0, y0, x1, y1 int) capture.RGBImage {
	w, h := x1-x0, y1-y0
	out := capture.RGBImage{Width: w, Height: h, Pix: make([]byte, w*h*3)}
	for y := 0; y < h; y++ {
		srcI := ((y+y0)*img.Width + x0) * 3
		dstI := y * w * 3
		copy(out.Pix[dstI:dstI+w*3], img.Pix[srcI:srcI+w*3])
	}
	return out
}

func addMargin(img capture.RGBImage, fraction float64) capture.RGBImage {
	marginX := int(float64(img.Width) * fraction)
	marginY := int(float64(img.Height) * fraction)
	newW := img.Width + 2*marginX
	newH := img.Height + 2*marginY

	out := capture.RGBImage{Width: newW, Height: newH, Pix: make([]byte, newW*newH*3)}
	for i := range out.Pix {
		out.Pix[i] = 255
	}
	for y := 0; y < img.Height; y++ {
		srcI := y * img.Width * 3
		dstI := ((y+marginY)*newW + marginX) * 3
		copy(out.Pix[dstI:dstI+img.Width*3], img.Pix[srcI:srcI+img.Width*3])
	}
	return out
}

func isOverTall(img capture.RGBImage) bool {
	return float64(img.Height) > MaxHeightRatio*A4Ratio*float64(img.Width)
}

// splitOverTall splits img vertically at low-ink rows into
// A4-proportioned pages, preserving reading order.
func splitOverTall(img capture.RGBImage) []capture.RGBImage {
	pageHeight := int(A4Ratio * float64(img.Width))
	if pageHeight < 1 {
		pageHeight = img.Height
	}

	var pages []capture.RGBImage
	y := 0
	for y < img.Height {
		end := y + pageHeight
		if end >= img.Height {
			end = img.Height
		} else {
			end = nearestLowInkRow(img, end)
		}
		if end <= y {
			end = y + 1
		}
		pages = append(pages, crop(img, 0, y, img.Width, end))
		y = end
	}
	return pages
}

// nearestLowInkRow searches outward from target for the row with the
// least ink, within a small window, to avoid cutting through content.
func nearestLowInkRow(img capture.RGBImage, target int) int {
	window := img.Height / 20
	if window < 1 {
		window = 1
	}
	best := target
	bestInk := rowInk(img, clampRow(target, img.Height))
	for d := 1; d <= window; d++ {
		for _, cand := range []int{target - d, target + d} {
			if cand <= 0 || cand >= img.Height {
				continue
			}
			ink := rowInk(img, cand)
			if ink < bestInk {
				bestInk = ink
				best = cand
			}
		}
	}
	return best
}

func rowInk(img capture.RGBImage, y int) int {
	y = clampRow(y, img.Height)
	count := 0
	for x := 0; x < img.Width; x++ {
		i := (y*img.Width + x) * 3
		lum := 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
		if lum < InkThreshold {
			count++
		}
	}
	return count
}

func clampRow(y, h int) int {
	if y < 0 {
		return 0
	}
	if y >= h {
		return h - 1
	}
	return y
}

func concatVertical(pages []capture.RGBImage) capture.RGBImage {
	width := 0
	height := 0
	for _, p := range pages {
		if p.Width > width {
			width = p.Width
		}
		height += p.Height
	}
	out := capture.RGBImage{Width: width, Height: height, Pix: make([]byte, width*height*3)}
	for i := range out.Pix {
		out.Pix[i] = 255
	}
	y := 0
	for _, p := range pages {
		for row := 0; row < p.Height; row++ {
			srcI := row * p.Width * 3
			dstI := (y+row)*width*3
			copy(out.Pix[dstI:dstI+p.Width*3], p.Pix[srcI:srcI+p.Width*3])
		}
		y += p.Height
	}
	return out
}

func toImage(img capture.RGBImage) image.Image {
	rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := (y*img.Width + x) * 3
			rgba.Set(x, y, color.RGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: 255})
		}
	}
	return rgba
}

// WritePNG encodes a single page image to path, for callers (the
// orchestrator's review-candidate dump, the editor) that write individual
// captures outside the main Compose pass.
func WritePNG(path string, img capture.RGBImage) error {
	return writePNG(path, toImage(img))
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func writeJPG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 92})
}
