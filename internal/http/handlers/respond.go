package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get(middlewares.CtxRequestID)

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

// RespondAppError maps the error taxonomy to a status code. It is the only
// place that does so.
func RespondAppError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		RespondUnAuthorized(ctx, "unauthenticated", "Session is missing or expired.")
	case errors.Is(err, apperr.ErrInvalidCredential):
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
	case errors.Is(err, apperr.ErrNotFoundOrForbidden):
		RespondNotFound(ctx, "Not found.")
	case errors.Is(err, apperr.ErrConflict):
		RespondConflict(ctx, "conflict", "Email is already in use.")
	case errors.Is(err, apperr.ErrInvalidCode):
		RespondError(ctx, http.StatusUnprocessableEntity, "invalid_code", "Verification code is invalid or expired.", nil)
	case errors.Is(err, apperr.ErrValidation):
		RespondBadRequest(ctx, validationReason(err), nil)
	case errors.Is(err, apperr.ErrRateLimited):
		RespondError(ctx, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.", nil)
	case errors.Is(err, apperr.ErrStorage), errors.Is(err, context.DeadlineExceeded):
		slog.Default().ErrorContext(ctx.Request.Context(), "storage failure", "err", err, "request_id", requestIDFrom(ctx))
		RespondError(ctx, http.StatusServiceUnavailable, "storage_unavailable", "Storage is temporarily unavailable.", nil)
	default:
		slog.Default().ErrorContext(ctx.Request.Context(), "unhandled error", "err", err, "request_id", requestIDFrom(ctx))
		RespondInternal(ctx, "Something went wrong.")
	}
}

func validationReason(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, apperr.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(apperr.ErrValidation.Error())+2:]
	}
	return "Invalid request."
}

// ownerID returns the authenticated user or writes a 401.
func ownerID(ctx *gin.Context) (string, bool) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Session is missing or expired.")
		return "", false
	}
	return id, true
}

// requestContext bounds a storage call by the request's own context.
func requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), storageTimeout)
}
