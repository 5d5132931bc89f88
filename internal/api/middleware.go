package api

import (
	"strconv"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/authz"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
)

const (
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerSessionID      = "X-Session-ID"
	headerIdempotencyKey = "Idempotency-Key"

	principalKey = "principal"
)

// principalMiddleware reads the caller asserted by the gateway. Requests
// without a user id are guests.
func principalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerUserID)
		if raw == "" {
			c.Set(principalKey, authz.Guest)
			c.Next()
			return
		}

		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || uid <= 0 {
			respondError(c, apperr.Unauthenticated("invalid %s header", headerUserID))
			return
		}

		role := c.GetHeader(headerUserRole)
		switch role {
		case models.RoleAdmin, models.RoleStoreAdmin, models.RoleCustomer:
		case "":
			role = models.RoleCustomer
		default:
			respondError(c, apperr.Unauthenticated("unknown role %q", role))
			return
		}

		c.Set(principalKey, authz.Principal{UserID: uid, Role: role})
		c.Next()
	}
}

func principal(c *gin.Context) authz.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(authz.Principal); ok {
			return p
		}
	}
	return authz.Guest
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
