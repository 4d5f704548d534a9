package ratelimit

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
)

type KeyFunc func(c *ginext.Context) string

type Options struct {
	Store              *Store
	Stats              StatsStore
	KeyFn              KeyFunc
	TrustXForwardedFor bool
	Log                *zerolog.Logger
}

// ClientKey identifies a client by the first X-Forwarded-For hop when trusted,
// otherwise by the connection's remote host.
func ClientKey(trustXFF bool) KeyFunc {
	return func(c *ginext.Context) string {
		if trustXFF {
			if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}
		host, _, err := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if c.Request.RemoteAddr != "" {
			return c.Request.RemoteAddr
		}
		return "unknown"
	}
}

func Middleware(opts Options) gin.HandlerFunc {
	if opts.KeyFn == nil {
		opts.KeyFn = ClientKey(opts.TrustXForwardedFor)
	}
	return func(c *ginext.Context) {
		key := opts.KeyFn(c)
		ok, retryAfter := opts.Store.Allow(key)

		if opts.Stats != nil {
			ev := StatsEvent{Key: key, Allowed: ok, Method: c.Request.Method, Path: c.FullPath(), At: time.Now()}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := opts.Stats.Record(ctx, ev); err != nil && opts.Log != nil {
					opts.Log.Debug().Err(err).Msg("failed to record rate limit stats")
				}
			}()
		}

		if !ok {
			secs := int(retryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			dto.TooManyRequestsError(c)
			return
		}
		c.Next()
	}
}
