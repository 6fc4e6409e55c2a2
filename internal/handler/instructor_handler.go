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

type instructorService interface {
	List(ctx context.Context, filter models.InstructorFilter) ([]models.Instructor, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Instructor, error)
	Create(ctx context.Context, req service.InstructorRequest) (*models.Instructor, error)
	Update(ctx context.Context, id string, req service.InstructorRequest) (*models.Instructor, error)
}

type instructorDeleter interface {
	DeleteInstructor(ctx context.Context, id string) (*models.InstructorDeletion, error)
}

// InstructorHandler handles instructor endpoints.
type InstructorHandler struct {
	service   instructorService
	mutations instructorDeleter
}

// NewInstructorHandler constructs an instructor handler.
func NewInstructorHandler(svc instructorService, mutations instructorDeleter) *InstructorHandler {
	return &InstructorHandler{service: svc, mutations: mutations}
}

// List godoc
// @Summary List instructors
// @Tags Instructors
// @Produce json
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /instructors [get]
func (h *InstructorHandler) List(c *gin.Context) {
	q := parseListQuery(c)
	filter := models.InstructorFilter{Search: q.Search, Page: q.Page, PageSize: q.PageSize, SortOrder: q.SortOrder}

	instructors, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instructors, pagination)
}

// Get godoc
// @Summary Get instructor by id
// @Tags Instructors
// @Produce json
// @Param id path string true "Instructor ID"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id} [get]
func (h *InstructorHandler) Get(c *gin.Context) {
	instructor, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instructor, nil)
}

// Create godoc
// @Summary Create instructor
// @Tags Instructors
// @Accept json
// @Produce json
// @Param payload body service.InstructorRequest true "Instructor payload"
// @Success 201 {object} response.Envelope
// @Router /instructors [post]
func (h *InstructorHandler) Create(c *gin.Context) {
	var req service.InstructorRequest
	if !bindJSON(c, &req) {
		return
	}
	instructor, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, instructor)
}

// Update godoc
// @Summary Rename instructor
// @Tags Instructors
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param payload body service.InstructorRequest true "Instructor payload"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id} [put]
func (h *InstructorHandler) Update(c *gin.Context) {
	var req service.InstructorRequest
	if !bindJSON(c, &req) {
		return
	}
	instructor, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instructor, nil)
}

// Delete godoc
// @Summary Delete instructor
// @Description Detaches the instructor from its schedule entries. Fails with 409 when an entry would collide with an existing instructor-less entry of the same subject.
// @Tags Instructors
// @Produce json
// @Param id path string true "Instructor ID"
// @Success 200 {object} response.Envelope{data=dto.DeletionResponse}
// @Router /instructors/{id} [delete]
func (h *InstructorHandler) Delete(c *gin.Context) {
	packet, err := h.mutations.DeleteInstructor(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DeletionResponse{Deleted: packet.Instructor.ID, Undo: dto.EncodeUndo(packet)}, nil)
}
