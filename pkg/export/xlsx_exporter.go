package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Timetable"

// XLSXExporter renders grids as a spreadsheet, merging the rows a block spans.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render produces an XLSX workbook for the grid.
func (e *XLSXExporter) Render(grid Grid) ([]byte, error) {
	if err := grid.validate(); err != nil {
		return nil, err
	}
	file := excelize.NewFile()
	defer file.Close()
	if err := file.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for c, column := range grid.Columns {
		if err := setCell(file, c+2, 1, column, header); err != nil {
			return nil, err
		}
	}
	for r, label := range grid.Rows {
		if err := setCell(file, 1, r+2, label, header); err != nil {
			return nil, err
		}
	}

	styles := make(map[int]int)
	for _, cell := range grid.Cells {
		style := 0
		if cell.Hue != nil {
			if style, err = hueStyle(file, styles, *cell.Hue); err != nil {
				return nil, err
			}
		}
		if err := setCell(file, cell.Column+2, cell.Row+2, cell.Text, style); err != nil {
			return nil, err
		}
		if cell.Span > 1 {
			first, _ := excelize.CoordinatesToCellName(cell.Column+2, cell.Row+2)
			last, _ := excelize.CoordinatesToCellName(cell.Column+2, cell.Row+cell.Span+1)
			if err := file.MergeCell(xlsxSheet, first, last); err != nil {
				return nil, fmt.Errorf("merge %s:%s: %w", first, last, err)
			}
		}
	}

	buf := &bytes.Buffer{}
	if err := file.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(file *excelize.File, col, row int, value string, style int) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := file.SetCellValue(xlsxSheet, name, value); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	if style != 0 {
		if err := file.SetCellStyle(xlsxSheet, name, name, style); err != nil {
			return fmt.Errorf("style %s: %w", name, err)
		}
	}
	return nil
}

func hueStyle(file *excelize.File, cache map[int]int, hue int) (int, error) {
	if id, ok := cache[hue]; ok {
		return id, nil
	}
	r, g, b := hueRGB(hue)
	id, err := file.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fmt.Sprintf("%02X%02X%02X", r, g, b)}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return 0, fmt.Errorf("hue style: %w", err)
	}
	cache[hue] = id
	return id, nil
}
