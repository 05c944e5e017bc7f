// Package pdf writes a minimal multi-page PDF that embeds page images
// losslessly as uncompressed RGB, one per A4 page, fit-to-width.
//
// No PDF-authoring library exists anywhere in the retrieval pack (the one
// PDF-adjacent file found, lazypdf, rasterizes PDF via cgo+MuPDF — the
// inverse operation), so this writer is hand-rolled against the PDF 1.4
// object model using the standard library alone.
package pdf

import (
	"bytes"
	"fmt"
	"image"
)

// A4WidthPt and A4HeightPt are the A4 page dimensions in PDF points
// (1/72 inch), matching §4.7's "embed each PNG losslessly at A4 page size,
// fit-to-width" contract.
const (
	A4WidthPt  = 595.28
	A4HeightPt = 841.89
)

// Page is one image to embed as its own PDF page.
type Page struct {
	Image image.Image
	// RGB is the caller-supplied raw 8-bit RGB pixel data (Width*Height*3
	// bytes, row-major) written unfiltered as the page's DeviceRGB image
	// XObject stream; no /Filter is applied.
	RGB    []byte
	Width  int
	Height int
}

// Writer accumulates pages and serializes them into a single PDF document.
type Writer struct {
	pages []Page
}

// NewWriter creates an empty PDF writer.
func NewWriter() *Writer {
	return &Writer{}
}

// AddPage appends a page, fit-to-width at A4 page size.
func (w *Writer) AddPage(p Page) {
	w.pages = append(w.pages, p)
}

// Bytes serializes the accumulated pages into a complete PDF document.
func (w *Writer) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	var offsets []int
	nextObj := 1

	// Object numbering plan: 1 = Catalog, 2 = Pages, then per page:
	// (3 + 3*i) = Page, (4 + 3*i) = XObject image, (5 + 3*i) = Contents stream.
	catalogObj := nextObj
	nextObj++
	pagesObj := nextObj
	nextObj++

	type pageObjs struct {
		pageObj, imageObj, contentObj int
	}
	objs := make([]pageObjs, len(w.pages))
	for i := range w.pages {
		objs[i] = pageObjs{pageObj: nextObj, imageObj: nextObj + 1, contentObj: nextObj + 2}
		nextObj += 3
	}

	recordOffset := func(objNum int) {
		for len(offsets) <= objNum {
			offsets = append(offsets, 0)
		}
		offsets[objNum] = buf.Len()
	}

	recordOffset(catalogObj)
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /Catalog /Pages %d 0 R >>\nendobj\n", catalogObj, pagesObj)

	recordOffset(pagesObj)
	buf.WriteString(fmt.Sprintf("%d 0 obj\n<< /Type /Pages /Kids [", pagesObj))
	for i, o := range objs {
		if i > 0 {
			buf.WriteString(" ")
		}
		fmt.Fprintf(&buf, "%d 0 R", o.pageObj)
	}
	fmt.Fprintf(&buf, "] /Count %d >>\nendobj\n", len(objs))

	for i, p := range w.pages {
		o := objs[i]

		scale := A4WidthPt / float64(p.Width)
		drawW := A4WidthPt
		drawH := float64(p.Height) * scale
		offsetY := (A4HeightPt - drawH) / 2
		if offsetY < 0 {
			offsetY = 0
		}

		recordOffset(o.pageObj)
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %.2f %.2f] "+
			"/Resources << /XObject << /Im%d %d 0 R >> >> /Contents %d 0 R >>\nendobj\n",
			o.pageObj, pagesObj, A4WidthPt, A4HeightPt, i, o.imageObj, o.contentObj)

		recordOffset(o.imageObj)
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XObject /Subtype /Image /Width %d /Height %d "+
			"/ColorSpace /DeviceRGB /BitsPerComponent 8 /Length %d >>\nstream\n",
			o.imageObj, p.Width, p.Height, len(p.RGB))
		buf.Write(p.RGB)
		buf.WriteString("\nendstream\nendobj\n")

		content := fmt.Sprintf("q %.2f 0 0 %.2f 0 %.2f cm /Im%d Do Q", drawW, drawH, offsetY, i)
		recordOffset(o.contentObj)
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n",
			o.contentObj, len(content), content)
	}

	xrefStart := buf.Len()
	totalObjs := nextObj
	fmt.Fprintf(&buf, "xref\n0 %d\n", totalObjs)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < totalObjs; i++ {
		if i < len(offsets) {
			fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
		} else {
			buf.WriteString("0000000000 00000 f \n")
		}
	}

	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF", totalObjs, catalogObj, xrefStart)

	return buf.Bytes(), nil
}
