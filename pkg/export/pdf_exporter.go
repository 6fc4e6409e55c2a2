package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth   = 277.0
	pdfLabelWidth  = 22.0
	pdfHeaderH     = 8.0
	pdfMaxRowH     = 14.0
	pdfUsableH     = 170.0
	pdfMarginLeft  = 10.0
	pdfMarginTop   = 15.0
	pdfTitleHeight = 15.0
)

// PDFExporter renders grids on a landscape A4 page, drawing spanning blocks
// as single tall cells.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with the grid title and table.
func (e *PDFExporter) Render(grid Grid) ([]byte, error) {
	if err := grid.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMarginLeft, pdfMarginTop, pdfMarginLeft)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	top := pdfMarginTop
	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(grid.Title), "", 1, "C", false, 0, "")
		top += pdfTitleHeight
	}

	colW := (pdfPageWidth - pdfLabelWidth) / float64(len(grid.Columns))
	rowH := pdfUsableH / float64(len(grid.Rows))
	if rowH > pdfMaxRowH {
		rowH = pdfMaxRowH
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.SetXY(pdfMarginLeft, top)
	pdf.CellFormat(pdfLabelWidth, pdfHeaderH, "", "1", 0, "C", false, 0, "")
	for _, column := range grid.Columns {
		pdf.CellFormat(colW, pdfHeaderH, column, "1", 0, "C", false, 0, "")
	}

	bodyTop := top + pdfHeaderH
	pdf.SetFont("Arial", "", 9)
	for i, label := range grid.Rows {
		pdf.SetXY(pdfMarginLeft, bodyTop+float64(i)*rowH)
		pdf.CellFormat(pdfLabelWidth, rowH, label, "1", 0, "C", false, 0, "")
		for c := range grid.Columns {
			pdf.Rect(pdfMarginLeft+pdfLabelWidth+float64(c)*colW, bodyTop+float64(i)*rowH, colW, rowH, "D")
		}
	}

	for _, cell := range grid.Cells {
		x := pdfMarginLeft + pdfLabelWidth + float64(cell.Column)*colW
		y := bodyTop + float64(cell.Row)*rowH
		h := float64(cell.Span) * rowH
		fill := false
		if cell.Hue != nil {
			r, g, b := hueRGB(*cell.Hue)
			pdf.SetFillColor(r, g, b)
			fill = true
		}
		pdf.SetXY(x, y)
		pdf.CellFormat(colW, h, cell.Text, "1", 0, "CM", fill, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
