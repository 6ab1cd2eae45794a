package server

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/auth"
	"github.com/smallbiznis/creditgate/internal/observability/logger"
	"github.com/smallbiznis/creditgate/internal/ratelimit"
	ratelimitdomain "github.com/smallbiznis/creditgate/internal/ratelimit/domain"
	"go.uber.org/zap"
)

// Quota namespaces. Routes sharing a class still count separately.
const (
	namespacePricingCatalog = "pricing.catalog"
	namespaceWishQuote      = "wishes.quote"
	namespaceWishCreate     = "wishes.create"
	namespaceAuthToken      = "auth.token"
	namespacePremium        = "premium"
	namespaceAdmin          = "admin"
)

// RateLimit counts the request against the class policy in namespace, keyed
// by the verified user or the client address. Denied requests stop here
// with 429.
func (s *Server) RateLimit(class, namespace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(logger.KeyRateLimitClass, class)
		ctx := c.Request.Context()

		res, err := s.limiter.Allow(ctx, class, namespace, s.rateLimitIdentity(c))
		if err != nil {
			var limited *ratelimit.LimitedError
			if errors.As(err, &limited) {
				writeRateLimitHeaders(c, res, s.clock.Now())
				logger.FromContext(ctx).Warn("rate limit exceeded",
					zap.String("class", class),
					zap.String("namespace", namespace),
					zap.Bool("blocked", res.Blocked),
					zap.Time("reset_time", res.ResetTime),
				)
			}
			AbortWithError(c, err)
			return
		}

		writeRateLimitHeaders(c, res, s.clock.Now())
		c.Next()
	}
}

func (s *Server) rateLimitIdentity(c *gin.Context) string {
	var userID string
	if id, err := auth.IdentityFrom(c); err == nil {
		userID = id.UserID
	}
	return ratelimit.ResolveIdentity(userID, c.ClientIP())
}

func writeRateLimitHeaders(c *gin.Context, res ratelimitdomain.Result, now time.Time) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
	c.Header("X-RateLimit-Window", strconv.FormatInt(int64(res.Window/time.Second), 10))

	if wait := res.RetryAfter(now); wait > 0 {
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(wait.Seconds())), 10))
	}
}
