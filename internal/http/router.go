package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/scribe/internal/http/handlers"
	"github.com/geocoder89/scribe/internal/http/middlewares"
	"github.com/geocoder89/scribe/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type AccountsAPI interface {
	handlers.AccountRegistrar
	handlers.AccountService
}

type Limits struct {
	Store            middlewares.LimitStore
	AuthPerMinute    int
	PrivatePerMinute int
	CodesPerMinute   int
}

type Deps struct {
	Log     *slog.Logger
	Env     string
	Prom    *observability.Prom
	Metrics prometheus.Gatherer

	Sessions     middlewares.TokenVerifier
	SessionTTL   time.Duration
	CookieName   string
	Accounts     AccountsAPI
	Verification handlers.Verifier
	Documents    handlers.DocumentService
	Autosave     handlers.AutosaveCoordinator

	Checks       map[string]handlers.Pinger
	Limits       Limits
	CORSOrigins  []string
	MaxBodyBytes int64
}

func NewRouter(d Deps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(observability.ServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.CORSOrigins))

	// ops
	h := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{})))
	}

	limits := d.Limits
	if limits.Store == nil {
		limits.Store = middlewares.NewMemoryStore()
	}
	authLimiter := middlewares.NewRateLimiter(limits.Store, "auth", orDefault(limits.AuthPerMinute, 20), time.Minute)
	privateLimiter := middlewares.NewRateLimiter(limits.Store, "private", orDefault(limits.PrivatePerMinute, 600), time.Minute)
	codeLimiter := middlewares.NewRateLimiter(limits.Store, "codes", orDefault(limits.CodesPerMinute, 3), time.Minute)

	authHandler := handlers.NewAuthHandler(d.Accounts, handlers.CookieConfig{
		Name:   d.CookieName,
		TTL:    d.SessionTTL,
		Secure: d.Env == "prod",
	})
	accountHandler := handlers.NewAccountHandler(d.Accounts, d.Verification)
	docsHandler := handlers.NewDocumentsHandler(d.Documents)
	autosaveHandler := handlers.NewAutosaveHandler(d.Autosave)
	authMW := middlewares.NewAuthMiddleware(d.Sessions, d.CookieName)

	api := r.Group("/api")
	api.Use(middlewares.MaxBodyBytes(orDefault64(d.MaxBodyBytes, 2<<20)))
	api.Use(middlewares.RequireJSON())

	public := api.Group("")
	public.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	public.POST("/register", authHandler.Register)
	public.POST("/login", authHandler.Login)
	api.POST("/logout", authHandler.Logout)

	private := api.Group("/private")
	private.Use(authMW.RequireAuth())
	private.Use(privateLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))

	private.GET("/session", authHandler.Session)

	account := private.Group("/account")
	account.GET("", accountHandler.Get)
	account.PATCH("/email", accountHandler.ChangeEmail)
	account.PATCH("/password", accountHandler.ChangePassword)
	account.POST("/verification", codeLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), accountHandler.RequestVerification)
	account.POST("/verification/submit", accountHandler.SubmitVerification)

	docs := private.Group("/documents")
	docs.GET("", docsHandler.List)
	docs.GET("/trash", docsHandler.ListTrashed)
	docs.POST("", docsHandler.Create)
	docs.POST("/recover", docsHandler.Recover)
	docs.POST("/purge", docsHandler.Purge)
	docs.GET("/:id", docsHandler.Get)
	docs.DELETE("/:id", docsHandler.Trash)
	docs.PATCH("/:id/title", docsHandler.Rename)
	docs.PATCH("/:id/opened", docsHandler.Opened)
	docs.PUT("/:id/body", docsHandler.SaveBody)

	docs.POST("/:id/sessions", autosaveHandler.Open)
	docs.GET("/:id/sessions/:sid", autosaveHandler.Status)
	docs.PATCH("/:id/sessions/:sid", autosaveHandler.Edit)
	docs.DELETE("/:id/sessions/:sid", autosaveHandler.Close)

	return r
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefault64(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}
