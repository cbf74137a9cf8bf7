package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/geocoder89/scribe/internal/domain/document"
	"github.com/gin-gonic/gin"
)

type DocumentService interface {
	Create(ctx context.Context, ownerID string) (document.Document, error)
	Get(ctx context.Context, ownerID, docID string) (document.Document, error)
	Rename(ctx context.Context, ownerID, docID, title string) error
	TouchModified(ctx context.Context, ownerID, docID string) error
	SaveBody(ctx context.Context, ownerID, docID string, body json.RawMessage) error
	Trash(ctx context.Context, ownerID, docID string) error
	Recover(ctx context.Context, ownerID string, docIDs []string) (int, error)
	Purge(ctx context.Context, ownerID string, docIDs []string) (int, error)
	ListTrashed(ctx context.Context, ownerID string) ([]document.Summary, error)
	Search(ctx context.Context, ownerID, query string) ([]document.Summary, error)
}

type DocumentsHandler struct {
	docs DocumentService
}

func NewDocumentsHandler(docs DocumentService) *DocumentsHandler {
	return &DocumentsHandler{docs: docs}
}

// List returns active documents, filtered by title when q is set.
func (h *DocumentsHandler) List(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	items, err := h.docs.Search(cctx, userID, ctx.Query("q"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *DocumentsHandler) ListTrashed(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	items, err := h.docs.ListTrashed(cctx, userID)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *DocumentsHandler) Create(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	d, err := h.docs.Create(cctx, userID)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Header("Location", "/api/private/documents/"+d.DocID)
	ctx.JSON(http.StatusCreated, d)
}

func (h *DocumentsHandler) Get(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	d, err := h.docs.Get(cctx, userID, ctx.Param("id"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	respondDocument(ctx, d)
}

func (h *DocumentsHandler) Rename(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	var req document.RenameRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.docs.Rename(cctx, userID, ctx.Param("id"), req.Title); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// Opened bumps modified_at so recently opened documents sort first.
func (h *DocumentsHandler) Opened(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.docs.TouchModified(cctx, userID, ctx.Param("id")); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *DocumentsHandler) SaveBody(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	var req document.SaveBodyRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.docs.SaveBody(cctx, userID, ctx.Param("id"), req.Body); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *DocumentsHandler) Trash(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.docs.Trash(cctx, userID, ctx.Param("id")); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *DocumentsHandler) Recover(ctx *gin.Context) {
	h.batch(ctx, h.docs.Recover)
}

func (h *DocumentsHandler) Purge(ctx *gin.Context) {
	h.batch(ctx, h.docs.Purge)
}

func (h *DocumentsHandler) batch(ctx *gin.Context, op func(context.Context, string, []string) (int, error)) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	var req document.BatchRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	n, err := op(cctx, userID, req.IDs)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, document.BatchResult{Count: n})
}
