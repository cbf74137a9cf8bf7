package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/autosave"
	"github.com/geocoder89/scribe/internal/domain/document"
	"github.com/gin-gonic/gin"
)

type AutosaveCoordinator interface {
	Open(ctx context.Context, ownerID, docID string) (autosave.Status, error)
	Edit(ctx context.Context, ownerID, docID, sessionID string, body json.RawMessage) (autosave.Status, error)
	Status(ctx context.Context, ownerID, docID, sessionID string) (autosave.Status, error)
	Close(ctx context.Context, ownerID, docID, sessionID string) error
}

type AutosaveHandler struct {
	coord AutosaveCoordinator
}

func NewAutosaveHandler(coord AutosaveCoordinator) *AutosaveHandler {
	return &AutosaveHandler{coord: coord}
}

func (h *AutosaveHandler) Open(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	st, err := h.coord.Open(cctx, userID, ctx.Param("id"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, st)
}

// Edit buffers the body. A 202 means buffered; the write follows after the
// quiet window.
func (h *AutosaveHandler) Edit(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	var req document.SaveBodyRequest
	if !BindJSON(ctx, &req) {
		return
	}

	st, err := h.coord.Edit(ctx.Request.Context(), userID, ctx.Param("id"), ctx.Param("sid"), req.Body)
	if err != nil {
		h.respondFlushError(ctx, st, err)
		return
	}

	ctx.JSON(http.StatusAccepted, st)
}

func (h *AutosaveHandler) Status(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	st, err := h.coord.Status(ctx.Request.Context(), userID, ctx.Param("id"), ctx.Param("sid"))
	if err != nil {
		h.respondFlushError(ctx, st, err)
		return
	}

	ctx.JSON(http.StatusOK, st)
}

// Close flushes synchronously so the client learns whether its last edit
// was stored.
func (h *AutosaveHandler) Close(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.coord.Close(cctx, userID, ctx.Param("id"), ctx.Param("sid")); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// respondFlushError reports a pending save failure with the session status
// attached; anything else goes through the usual mapping.
func (h *AutosaveHandler) respondFlushError(ctx *gin.Context, st autosave.Status, err error) {
	if st.SessionID != "" && errors.Is(err, apperr.ErrStorage) {
		RespondError(ctx, http.StatusServiceUnavailable, "save_failed",
			"Changes are buffered but the last save failed; retrying.", st)
		return
	}
	RespondAppError(ctx, err)
}
