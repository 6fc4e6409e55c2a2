package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/export"
)

// ExportFormat names a supported export document type.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

var exportContentTypes = map[ExportFormat]string{
	ExportFormatCSV:  "text/csv",
	ExportFormatPDF:  "application/pdf",
	ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ExportResult is a rendered document ready to be sent to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type gridRenderer interface {
	Render(grid export.Grid) ([]byte, error)
}

// ExportService renders consolidated timetables into downloadable documents.
type ExportService struct {
	views     timetableViewSource
	renderers map[ExportFormat]gridRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// default ones.
func NewExportService(views timetableViewSource, logger *zap.Logger, csv, pdf, xlsx gridRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	return &ExportService{
		views: views,
		renderers: map[ExportFormat]gridRenderer{
			ExportFormatCSV:  csv,
			ExportFormatPDF:  pdf,
			ExportFormatXLSX: xlsx,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Export renders the consolidated grid of a timetable.
func (s *ExportService) Export(ctx context.Context, timetableID string, format ExportFormat) (*ExportResult, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	view, err := s.views.View(ctx, timetableID)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(buildGrid(*view))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Debug("timetable exported", zap.String("timetable_id", timetableID), zap.String("format", string(format)), zap.Int("bytes", len(payload)))
	return &ExportResult{
		Filename:    s.buildFilename(view.Timetable, format),
		ContentType: exportContentTypes[format],
		Payload:     payload,
	}, nil
}

func (s *ExportService) buildFilename(t models.Timetable, format ExportFormat) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("timetable_%s_%s.%s", sanitizeFilename(t.Name), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

// buildGrid lays the blocks of a view out as an export grid. Empty blocks are
// left blank.
func buildGrid(view models.TimetableView) export.Grid {
	grid := export.Grid{
		Title:   view.Timetable.Name,
		Columns: make([]string, len(view.Days)),
		Rows:    make([]string, len(view.PeriodStarts)),
	}
	for i, day := range view.Days {
		grid.Columns[i] = string(day)
	}
	for i, start := range view.PeriodStarts {
		grid.Rows[i] = start.String()
	}

	for col, blocks := range view.Schedules {
		for _, block := range blocks {
			text := blockLabel(block)
			if text == "" {
				continue
			}
			cell := export.Cell{
				Column: col,
				Row:    int(block.StartTime - view.Timetable.StartTime),
				Span:   block.PeriodSpan,
				Text:   text,
			}
			if block.Entry != nil {
				hue := block.Entry.Hue
				cell.Hue = &hue
			}
			grid.Cells = append(grid.Cells, cell)
		}
	}
	return grid
}

func blockLabel(block models.Schedule) string {
	switch c := models.ContentOrEmpty(block.Content).(type) {
	case models.SubjectContent:
		if block.Entry == nil {
			return ""
		}
		label := block.Entry.Subject.Code + " " + block.Entry.Subject.Description
		if block.Entry.Instructor != nil {
			label += " (" + block.Entry.Instructor.Name + ")"
		}
		return label
	case models.BreakContent:
		if c.Description != nil && *c.Description != "" {
			return *c.Description
		}
		return "Break"
	case models.VacantContent:
		return "Vacant"
	default:
		return ""
	}
}
