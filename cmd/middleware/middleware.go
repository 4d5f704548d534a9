package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
)

const actorKey = "actor"

// LoggingMiddleware writes one line per request to the global zlog logger.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			ev = zlog.Logger.Error()
		case status >= http.StatusBadRequest:
			ev = zlog.Logger.Warn()
		default:
			ev = zlog.Logger.Info()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// Maintenance answers 503 on every route except health and cron while enabled.
func Maintenance(enabled bool) gin.HandlerFunc {
	return func(c *ginext.Context) {
		if !enabled {
			c.Next()
			return
		}
		p := c.Request.URL.Path
		if p == "/health" || strings.HasPrefix(p, "/v1/cron/") {
			c.Next()
			return
		}
		dto.MaintenanceError(c)
	}
}

type ActorConfig struct {
	// UserHeader carries the user id set by the authenticating proxy.
	UserHeader string
	// ProxySecret, when set, must match X-Proxy-Secret.
	ProxySecret string
}

// RequireActor resolves the caller from the trusted upstream header and
// stores a model.Actor on the request. Requests without a known user are
// rejected with 401.
func RequireActor(r repo.Repository, cfg ActorConfig, log *zerolog.Logger) gin.HandlerFunc {
	header := cfg.UserHeader
	if header == "" {
		header = "X-User-ID"
	}
	return func(c *ginext.Context) {
		if cfg.ProxySecret != "" && !equalSecret(c.GetHeader("X-Proxy-Secret"), cfg.ProxySecret) {
			dto.UnauthorizedError(c)
			return
		}
		id := strings.TrimSpace(c.GetHeader(header))
		if id == "" {
			dto.UnauthorizedError(c)
			return
		}
		u, err := r.GetUser(c.Request.Context(), id)
		if err != nil {
			if !errors.Is(err, repo.ErrUserNotFound) {
				log.Error().Err(err).Msg("failed to load actor")
				dto.InternalServerError(c)
				return
			}
			dto.UnauthorizedError(c)
			return
		}
		c.Set(actorKey, model.Actor{UserID: u.ID, Role: u.Role, Status: u.Status})
		c.Next()
	}
}

// ActorFrom returns the actor set by RequireActor, or the zero Actor.
func ActorFrom(c *ginext.Context) model.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}
	}
	a, _ := v.(model.Actor)
	return a
}

// CronSecret checks "Authorization: Bearer <secret>". An empty secret rejects
// every request.
func CronSecret(secret string) gin.HandlerFunc {
	return func(c *ginext.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if secret == "" || !ok || !equalSecret(strings.TrimSpace(got), secret) {
			dto.UnauthorizedError(c)
			return
		}
		c.Next()
	}
}

func equalSecret(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
