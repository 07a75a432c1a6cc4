// Package server assembles the gin router and the HTTP server lifecycle.
package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/lanstar128/jjds-auth-service/internal/api"
	"github.com/lanstar128/jjds-auth-service/internal/auth/handler"
	"github.com/lanstar128/jjds-auth-service/internal/policy/engine"
	"github.com/lanstar128/jjds-auth-service/internal/security"
	"github.com/lanstar128/jjds-auth-service/internal/server/middleware"
	"github.com/lanstar128/jjds-auth-service/internal/session/store"
)

// Deps carries everything the router needs. DB and Redis are nil unless the
// corresponding backend is configured; the health endpoint only checks what
// is present.
type Deps struct {
	ServiceName string
	Auth        *handler.AuthHandler
	Tokens      *security.TokenProvider
	Sessions    store.Store
	Policy      engine.Evaluator
	DB          *sql.DB
	Redis       *redis.Client
}

// NewRouter builds the gin engine with tracing, recovery, and all routes.
func NewRouter(d *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(d.ServiceName))
	r.Use(middleware.ClientInfo())

	auth := r.Group("/api/v1/auth")
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", middleware.AuthRequired(d.Tokens, d.Sessions), d.Auth.Logout)

	r.GET("/health", healthHandler(d))
	return r
}

// healthHandler pings the configured backends and the policy engine.
func healthHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		record := func(name string, err error) {
			if err != nil {
				checks[name] = "down"
				healthy = false
				return
			}
			checks[name] = "up"
		}
		if d.DB != nil {
			record("postgres", d.DB.PingContext(ctx))
		}
		if d.Redis != nil {
			record("redis", d.Redis.Ping(ctx).Err())
		}
		if d.Policy != nil {
			record("policy", d.Policy.HealthCheck(ctx))
		}

		if !healthy {
			api.Fail(c, http.StatusServiceUnavailable, api.CodeInternalError, "服务不可用",
				map[string]any{"checks": checks})
			return
		}
		api.OK(c, "ok", map[string]any{"status": "ok", "checks": checks})
	}
}

// Run serves the router on addr until ctx is cancelled, then drains with a
// 10 second grace period.
func Run(ctx context.Context, addr string, r *gin.Engine) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
