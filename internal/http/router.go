// Package httpapi mounts the SetLogs API on a Gin engine: the middleware
// chain, the operational endpoints (/health, /metrics, /swagger) and the
// versioned routes backed by services.Core.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-setlogs-backend/docs"
	"github.com/tbourn/go-setlogs-backend/internal/config"
	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/http/handlers"
	"github.com/tbourn/go-setlogs-backend/internal/http/middleware"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
	"github.com/tbourn/go-setlogs-backend/internal/services"
)

// completedKeyLookup reports whether the ledger already holds a completed
// response for the key. It only informs rate limiting; the ledger decides.
func completedKeyLookup(core *services.Core) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, key string, _ time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, core.DB, userID, key)
		if err != nil || rec == nil {
			return false, nil
		}
		return rec.State == domain.IdemCompleted, nil
	}
}

// RegisterRoutes builds the services over core and mounts everything on r.
//
// Middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: request-scoped logger and scrubbed access lines
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, core *services.Core, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Access log; outcome codes come from handlers.fail
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		completedKeyLookup(core),
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS, then security headers (HSTS only over HTTPS)
	r.Use(corsPolicy(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services <- core (db, ledger, locks, cache, events)
	h := handlers.New(
		services.NewExerciseService(core, cfg.Idempotency.RequireExercises),
		services.NewSessionService(core, cfg.Idempotency.RequireSessions),
		services.NewSetService(core),
		services.NewProgressionService(core),
		services.NewAuditService(core),
	)

	// Reads are compressed; mutation responses go out as stored so replays
	// stay byte-identical.
	gz := gzip.Gzip(gzip.DefaultCompression)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Exercise catalog
		api.POST("/exercises", h.CreateExercise)
		api.GET("/exercises", gz, h.ListExercises)
		api.GET("/exercises/:id", gz, h.GetExercise)
		api.PUT("/exercises/:id", h.UpdateExercise)
		api.GET("/exercises/:id/versions", gz, h.ListExerciseVersions)
		api.GET("/exercise-versions/:versionId", gz, h.GetExerciseVersion)

		// Sessions
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", gz, h.ListSessions)
		api.GET("/sessions/:id", gz, h.GetSession)
		api.PATCH("/sessions/:id", h.UpdateSession)
		api.DELETE("/sessions/:id", h.DeleteSession)

		// Sets
		api.POST("/sessions/:id/sets", h.CreateSet)
		api.GET("/sessions/:id/sets", gz, h.ListSets)
		api.GET("/sets/:id", gz, h.GetSet)
		api.PATCH("/sets/:id", h.UpdateSet)
		api.DELETE("/sets/:id", h.DeleteSet)

		// Read models
		api.GET("/progression/:exerciseId", gz, h.GetProgression)
		api.GET("/audit", gz, h.GetAuditTrail)
	}
}

// corsPolicy allows every origin when the allowlist is empty and otherwise
// echoes allowlisted origins. Access-Control-Allow-Origin is written even
// without preflight so simple GETs from browsers and probes see it.
func corsPolicy(origins []string) []gin.HandlerFunc {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID",
			"If-Match", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag",
			middleware.HeaderIdempotencyReplayed, handlers.HeaderCache},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return []gin.HandlerFunc{func(ctx *gin.Context) {
			ctx.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			ctx.Next()
		}, cors.New(c)}
	}

	c.AllowOrigins = origins
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{func(ctx *gin.Context) {
		if origin := ctx.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := ctx.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		ctx.Next()
	}, cors.New(c)}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
