package security

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"event-portal/models"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateWindow = time.Minute

type RateLimiter struct {
	redis  redis.Cmdable
	limit  int64
	logger *zap.Logger
}

func NewRateLimiter(rc redis.Cmdable, perMinute int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{redis: rc, limit: int64(perMinute), logger: logger}
}

// RegistrationRateLimit limits register and payment calls per session, or
// per client IP for anonymous callers.
func (r *RateLimiter) RegistrationRateLimit() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: &redisStore{redis: r.redis, limit: r.limit, window: rateWindow, logger: r.logger, now: time.Now},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			sess := models.SessionFromHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if sess.Authenticated() {
				return "session:" + sess.Subject(), nil
			}
			return "ip:" + c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
			})
		},
	})
}

// AntiBotMiddleware rejects obvious crawler user agents before they reach
// the registration routes.
func (r *RateLimiter) AntiBotMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isSuspiciousUserAgent(c.Request().Header.Get("User-Agent")) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "Access denied",
				})
			}
			return next(c)
		}
	}
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}

// redisStore is a fixed-window counter shared by every portal instance.
// When redis is unreachable requests are let through.
type redisStore struct {
	redis  redis.Cmdable
	limit  int64
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func (s *redisStore) Allow(identifier string) (bool, error) {
	if s.redis == nil {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key := fmt.Sprintf("ratelimit:%s:%d", identifier, s.now().Unix()/int64(s.window.Seconds()))
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.Error(err))
		return true, nil
	}
	if count == 1 {
		s.redis.Expire(ctx, key, s.window)
	}
	return count <= s.limit, nil
}
