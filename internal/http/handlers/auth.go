package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/scribe/internal/domain/user"
	"github.com/gin-gonic/gin"
)

const storageTimeout = 3 * time.Second

type AccountRegistrar interface {
	Register(ctx context.Context, email, password string) (user.User, string, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

type AuthHandler struct {
	accounts AccountRegistrar
	cookie   CookieConfig
}

func NewAuthHandler(accounts AccountRegistrar, cookie CookieConfig) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	return &AuthHandler{accounts: accounts, cookie: cookie}
}

type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	u, token, err := h.accounts.Register(cctx, req.Email, req.Password)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.setSessionCookie(ctx, token)

	ctx.JSON(http.StatusCreated, gin.H{
		"account": u.Account(),
		"session": h.session(token),
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	token, err := h.accounts.Login(cctx, req.Email, req.Password)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.setSessionCookie(ctx, token)

	ctx.JSON(http.StatusOK, gin.H{
		"session": h.session(token),
	})
}

// Logout clears the cookie. The token itself stays valid until it expires.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	h.clearSessionCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// Session answers whether the caller's session is valid; RequireAuth has
// already done the work.
func (h *AuthHandler) Session(ctx *gin.Context) {
	userID, ok := ownerID(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"authenticated": true, "userId": userID})
}

func (h *AuthHandler) session(token string) sessionResponse {
	return sessionResponse{Token: token, ExpiresIn: int(h.cookie.TTL.Seconds())}
}

func (h *AuthHandler) setSessionCookie(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(
		h.cookie.Name,
		token,
		int(h.cookie.TTL.Seconds()),
		"/",
		"",
		h.cookie.Secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearSessionCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}
