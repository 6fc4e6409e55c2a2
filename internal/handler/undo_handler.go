package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type undoer interface {
	Undo(ctx context.Context, packet models.UndoPacket) error
}

// UndoHandler applies undo packets returned by deletes.
type UndoHandler struct {
	mutations undoer
}

// NewUndoHandler constructs an undo handler.
func NewUndoHandler(mutations undoer) *UndoHandler {
	return &UndoHandler{mutations: mutations}
}

// Undo godoc
// @Summary Undo a delete
// @Description Restores what a delete removed. A packet can be applied once; replaying it fails with 409.
// @Tags Undo
// @Accept json
// @Produce json
// @Param payload body dto.UndoPacket true "Packet returned by the delete"
// @Success 200 {object} response.Envelope
// @Router /undo [post]
func (h *UndoHandler) Undo(c *gin.Context) {
	var req dto.UndoPacket
	if !bindJSON(c, &req) {
		return
	}
	packet, err := req.Packet()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}
	if err := h.mutations.Undo(c.Request.Context(), packet); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"restored": req.Type}, nil)
}
