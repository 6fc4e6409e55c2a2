package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type timetableService interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Timetable, error)
	Create(ctx context.Context, req service.TimetableRequest) (*models.Timetable, error)
	UpdateLayout(ctx context.Context, id string, req service.TimetableRequest) (*models.Timetable, error)
	View(ctx context.Context, id string) (*models.TimetableView, error)
	Watch(ctx context.Context, id string, onErr func(error)) <-chan *models.TimetableView
}

type sessionEditor interface {
	SetContent(ctx context.Context, timetableID string, req service.SetSessionsRequest) error
}

type timetableDeleter interface {
	DeleteTimetable(ctx context.Context, id string) (*models.TimetableDeletion, error)
}

type timetableExporter interface {
	Export(ctx context.Context, timetableID string, format service.ExportFormat) (*service.ExportResult, error)
}

// TimetableHandler serves timetable layouts, their grids and exports.
type TimetableHandler struct {
	timetables timetableService
	sessions   sessionEditor
	mutations  timetableDeleter
	exports    timetableExporter
	logger     *zap.Logger
}

// NewTimetableHandler constructs a timetable handler.
func NewTimetableHandler(timetables timetableService, sessions sessionEditor, mutations timetableDeleter, exports timetableExporter, logger *zap.Logger) *TimetableHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableHandler{timetables: timetables, sessions: sessions, mutations: mutations, exports: exports, logger: logger}
}

// List godoc
// @Summary List timetables
// @Tags Timetables
// @Produce json
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	q := parseListQuery(c)
	filter := models.TimetableFilter{Search: q.Search, Page: q.Page, PageSize: q.PageSize, SortBy: q.SortBy, SortOrder: q.SortOrder}
	items, pagination, err := h.timetables.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	timetable, err := h.timetables.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Create godoc
// @Summary Create timetable
// @Description Creates the layout and fills its grid with empty sessions.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body service.TimetableRequest true "Layout"
// @Success 201 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	var req service.TimetableRequest
	if !bindJSON(c, &req) {
		return
	}
	timetable, err := h.timetables.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, timetable)
}

// Update godoc
// @Summary Change timetable layout
// @Description Cells still inside the new layout keep their content; cells outside it are dropped.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body service.TimetableRequest true "Layout"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id} [put]
func (h *TimetableHandler) Update(c *gin.Context) {
	var req service.TimetableRequest
	if !bindJSON(c, &req) {
		return
	}
	timetable, err := h.timetables.UpdateLayout(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Delete godoc
// @Summary Delete timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope{data=dto.DeletionResponse}
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	packet, err := h.mutations.DeleteTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DeletionResponse{Deleted: packet.Timetable.ID, Undo: dto.EncodeUndo(packet)}, nil)
}

// Schedule godoc
// @Summary Consolidated schedule
// @Description Day labels, period start times and the merged blocks of every day.
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope{data=models.TimetableView}
// @Router /timetables/{id}/schedule [get]
func (h *TimetableHandler) Schedule(c *gin.Context) {
	view, err := h.timetables.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Stream godoc
// @Summary Stream consolidated schedule
// @Description Server-sent events carrying the consolidated schedule, re-sent after every change.
// @Tags Timetables
// @Produce text/event-stream
// @Param id path string true "Timetable ID"
// @Success 200
// @Router /timetables/{id}/stream [get]
func (h *TimetableHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	// Fail fast with a JSON error before committing to an event stream.
	if _, err := h.timetables.Get(ctx, id); err != nil {
		response.Error(c, err)
		return
	}

	views := h.timetables.Watch(ctx, id, func(err error) {
		h.logger.Warn("timetable stream refresh failed", zap.String("timetable_id", id), zap.Error(err))
	})
	response.EventStream(c)
	c.Stream(func(w io.Writer) bool {
		select {
		case view, ok := <-views:
			if !ok {
				return false
			}
			c.SSEvent("schedule", view)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// SetSessions godoc
// @Summary Set session content
// @Description Sets the content of period_span consecutive periods of one day starting at start_time.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body service.SetSessionsRequest true "Span and content"
// @Success 200 {object} response.Envelope{data=models.TimetableView}
// @Router /timetables/{id}/sessions [put]
func (h *TimetableHandler) SetSessions(c *gin.Context) {
	var req service.SetSessionsRequest
	if !bindJSON(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.sessions.SetContent(c.Request.Context(), id, req); err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.timetables.View(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Export godoc
// @Summary Export timetable
// @Tags Timetables
// @Produce application/octet-stream
// @Param id path string true "Timetable ID"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} binary
// @Router /timetables/{id}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))
	result, err := h.exports.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}
