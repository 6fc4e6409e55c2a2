package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type entryService interface {
	List(ctx context.Context, filter models.CrossRefFilter) ([]models.CrossRefDetail, error)
	Get(ctx context.Context, id string) (*models.CrossRefDetail, error)
	Create(ctx context.Context, req service.CrossRefRequest) (*models.CrossRefDetail, error)
	Update(ctx context.Context, id string, req service.CrossRefRequest) (*models.CrossRefDetail, error)
}

type entryDeleter interface {
	DeleteCrossRef(ctx context.Context, id string) (*models.CrossRefDeletion, error)
}

// EntryHandler exposes schedule entries (subject and instructor pairings).
type EntryHandler struct {
	service   entryService
	mutations entryDeleter
}

// NewEntryHandler constructs an entry handler.
func NewEntryHandler(svc entryService, mutations entryDeleter) *EntryHandler {
	return &EntryHandler{service: svc, mutations: mutations}
}

// List godoc
// @Summary List schedule entries
// @Tags Entries
// @Produce json
// @Param subject_id query string false "Filter by subject"
// @Param instructor_id query string false "Filter by instructor"
// @Success 200 {object} response.Envelope
// @Router /entries [get]
func (h *EntryHandler) List(c *gin.Context) {
	filter := models.CrossRefFilter{SubjectID: c.Query("subject_id"), InstructorID: c.Query("instructor_id")}
	entries, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Get godoc
// @Summary Get schedule entry
// @Tags Entries
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /entries/{id} [get]
func (h *EntryHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Create godoc
// @Summary Create schedule entry
// @Tags Entries
// @Accept json
// @Produce json
// @Param payload body service.CrossRefRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Router /entries [post]
func (h *EntryHandler) Create(c *gin.Context) {
	var req service.CrossRefRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Update godoc
// @Summary Update schedule entry
// @Tags Entries
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.CrossRefRequest true "Entry payload"
// @Success 200 {object} response.Envelope
// @Router /entries/{id} [put]
func (h *EntryHandler) Update(c *gin.Context) {
	var req service.CrossRefRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Delete schedule entry
// @Description Removes the entry and empties every session that used it.
// @Tags Entries
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope{data=dto.DeletionResponse}
// @Router /entries/{id} [delete]
func (h *EntryHandler) Delete(c *gin.Context) {
	packet, err := h.mutations.DeleteCrossRef(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DeletionResponse{Deleted: packet.CrossRef.ID, Undo: dto.EncodeUndo(packet)}, nil)
}
