// Package httpapi wires the HTTP transport (Gin) to the contact service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers and rate limiting, and serves the site
// front-end for everything the API does not claim.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/cis-contact/internal/config"
	"github.com/tbourn/cis-contact/internal/domain"
	_ "github.com/tbourn/cis-contact/internal/http/docs"
	"github.com/tbourn/cis-contact/internal/http/handlers"
	"github.com/tbourn/cis-contact/internal/http/middleware"
	"github.com/tbourn/cis-contact/internal/notify"
	"github.com/tbourn/cis-contact/internal/repo"
	"github.com/tbourn/cis-contact/internal/services"
)

// submissionRepoShim adapts the repository free functions to the
// services.SubmissionRepo interface expected by the ContactService.
type submissionRepoShim struct{}

// CreateSubmission proxies repo.CreateSubmission.
func (submissionRepoShim) CreateSubmission(ctx context.Context, db *gorm.DB, name, email, message string) (*domain.Submission, error) {
	return repo.CreateSubmission(ctx, db, name, email, message)
}

// GetSubmission proxies repo.GetSubmission.
func (submissionRepoShim) GetSubmission(ctx context.Context, db *gorm.DB, id uint) (*domain.Submission, error) {
	return repo.GetSubmission(ctx, db, id)
}

// CountSubmissions proxies repo.CountSubmissions (pagination support).
func (submissionRepoShim) CountSubmissions(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountSubmissions(ctx, db)
}

// ListSubmissionsPage proxies repo.ListSubmissionsPage (pagination support).
func (submissionRepoShim) ListSubmissionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Submission, error) {
	return repo.ListSubmissionsPage(ctx, db, offset, limit)
}

// NewContactService builds the ContactService over db with the repository
// shim and notifier n. Mail.Timeout bounds each notification attempt.
func NewContactService(db *gorm.DB, n notify.Notifier, cfg config.Config) *services.ContactService {
	return services.NewContactService(db, submissionRepoShim{}, n, cfg.Mail.Timeout)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, logs, metrics), compression, CORS and
// security headers, health/metrics/docs endpoints, the contact API under
// cfg.APIBasePath and the static site fallback.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured access logs with PII scrubbing
//  4. ScopedLogger: request logger for handlers and services
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Gzip (not for /metrics, which negotiates its own encoding)
//  8. Metrics
//  9. CORS and Security headers
//
// The rate limiter guards only the contact submission route. Client IPs come
// from X-Forwarded-For only when the peer is in cfg.TrustedProxies; the error
// reports an unparsable proxy entry.
func RegisterRoutes(r *gin.Engine, svc handlers.ContactService, cfg config.Config) error {
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return err
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3-4) Structured logging with redaction, then the per-request logger
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		SkipPaths: []string{"/health", "/metrics"},
	}))
	r.Use(middleware.ScopedLogger())

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit
	r.Use(limitBody(cfg.MaxBodyBytes))

	// 7) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
		CSP:          cfg.Security.CSP,
	}))

	// Fallbacks
	r.NoRoute(staticOrNotFound(cfg.StaticDir))
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
		api.POST("/contact", rl.Handler(), h.SubmitContact)
	}

	// Read-only operator access, absent unless a token is configured.
	if cfg.AdminToken != "" {
		admin := api.Group("/contact/messages", middleware.RequireBearer(cfg.AdminToken), middleware.NoStore())
		admin.GET("", h.ListSubmissions)
		admin.GET("/:id", h.GetSubmission)
	}
	return nil
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to fail with *http.MaxBytesError. A
// non-positive maxBytes disables the cap.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
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

// staticOrNotFound serves existing files under dir for GET and HEAD and
// answers everything else with the JSON 404 envelope. Directories are served
// only through their index.html, so no listing is ever produced.
func staticOrNotFound(dir string) gin.HandlerFunc {
	var (
		root  http.FileSystem
		files http.Handler
	)
	if dir != "" {
		root = http.Dir(dir)
		files = http.FileServer(root)
	}
	return func(c *gin.Context) {
		m := c.Request.Method
		if files != nil && (m == http.MethodGet || m == http.MethodHead) && servable(root, c.Request.URL.Path) {
			files.ServeHTTP(c.Writer, c.Request)
			return
		}
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	}
}

// servable reports whether p names a regular file in root, or a directory
// holding an index.html.
func servable(root http.FileSystem, p string) bool {
	p = path.Clean("/" + p)
	f, err := root.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return false
	}
	if !st.IsDir() {
		return true
	}
	idx, err := root.Open(strings.TrimSuffix(p, "/") + "/index.html")
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
