package middleware

import (
	"context"
	"strings"

	"algojudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"
)

// TraceContextConfig controls which ids are accepted from the caller.
type TraceContextConfig struct {
	// AllowUserIDHeader copies X-User-Id into the context when an upstream gateway sets it.
	AllowUserIDHeader bool
}

// TraceContextMiddleware ensures trace and request ids are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{AllowUserIDHeader: true})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = propagate(c, ctx, traceIDHeader, string(contextkey.TraceID), contextkey.TraceID, true)
		ctx = propagate(c, ctx, requestIDHeader, string(contextkey.RequestID), contextkey.RequestID, true)
		if cfg.AllowUserIDHeader {
			ctx = propagate(c, ctx, userIDHeader, string(contextkey.UserID), contextkey.UserID, false)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SubmissionContext copies the :id path parameter into the request context for log correlation.
func SubmissionContext(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.Param(param)); id != "" {
			c.Set(string(contextkey.SubmissionID), id)
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.SubmissionID, id))
		}
		c.Next()
	}
}

func propagate(c *gin.Context, ctx context.Context, header, ginKey string, ctxKey interface{}, generate bool) context.Context {
	value := strings.TrimSpace(c.GetHeader(header))
	if value == "" {
		if !generate {
			return ctx
		}
		value = uuid.NewString()
	}
	c.Set(ginKey, value)
	c.Writer.Header().Set(header, value)
	return context.WithValue(ctx, ctxKey, value)
}
