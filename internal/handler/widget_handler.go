package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type widgetService interface {
	Snapshot(ctx context.Context) (*models.WidgetSnapshot, error)
	Select(ctx context.Context, id string) (*models.WidgetSnapshot, error)
}

// WidgetHandler exposes the home-screen widget snapshot.
type WidgetHandler struct {
	service widgetService
}

// NewWidgetHandler constructs a widget handler.
func NewWidgetHandler(svc widgetService) *WidgetHandler {
	return &WidgetHandler{service: svc}
}

// Get godoc
// @Summary Widget snapshot
// @Description Returns the decoded snapshot of the selected timetable, or null when nothing is selected.
// @Tags Widget
// @Produce json
// @Success 200 {object} response.Envelope{data=dto.WidgetSnapshot}
// @Router /widget [get]
func (h *WidgetHandler) Get(c *gin.Context) {
	snapshot, err := h.service.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewWidgetSnapshot(snapshot), nil)
}

// Select godoc
// @Summary Select widget timetable
// @Tags Widget
// @Accept json
// @Produce json
// @Param payload body dto.WidgetSelectRequest true "Timetable to show"
// @Success 200 {object} response.Envelope{data=dto.WidgetSnapshot}
// @Router /widget [put]
func (h *WidgetHandler) Select(c *gin.Context) {
	var req dto.WidgetSelectRequest
	if !bindJSON(c, &req) {
		return
	}
	snapshot, err := h.service.Select(c.Request.Context(), req.TimetableID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewWidgetSnapshot(snapshot), nil)
}
