package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/scribe/internal/domain/user"
	"github.com/geocoder89/scribe/internal/domain/verification"
	"github.com/gin-gonic/gin"
)

type AccountService interface {
	Account(ctx context.Context, userID string) (user.Account, error)
	ChangeEmail(ctx context.Context, userID, email string) error
	ChangePassword(ctx context.Context, userID, password string) error
}

type Verifier interface {
	RequestCode(ctx context.Context, userID string) error
	SubmitCode(ctx context.Context, userID, code string) error
}

type AccountHandler struct {
	accounts AccountService
	verifier Verifier
}

func NewAccountHandler(accounts AccountService, verifier Verifier) *AccountHandler {
	return &AccountHandler{accounts: accounts, verifier: verifier}
}

func (h *AccountHandler) Get(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	acct, err := h.accounts.Account(cctx, userID)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, acct)
}

func (h *AccountHandler) ChangeEmail(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	var req user.ChangeEmailRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.accounts.ChangeEmail(cctx, userID, req.Email); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *AccountHandler) ChangePassword(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	var req user.ChangePasswordRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.accounts.ChangePassword(cctx, userID, req.Password); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// RequestVerification answers before the mail goes out.
func (h *AccountHandler) RequestVerification(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.verifier.RequestCode(cctx, userID); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (h *AccountHandler) SubmitVerification(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}

	var req verification.SubmitRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.verifier.SubmitCode(cctx, userID, req.Code); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"verified": true})
}
