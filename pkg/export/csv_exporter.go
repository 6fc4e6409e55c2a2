package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders grids as CSV with one line per period. A block spanning
// several periods repeats its text on each of them.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the grid.
func (e *CSVExporter) Render(grid Grid) ([]byte, error) {
	if err := grid.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(append([]string{"Period"}, grid.Columns...)); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i, row := range grid.matrix() {
		if err := writer.Write(append([]string{grid.Rows[i]}, row...)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
