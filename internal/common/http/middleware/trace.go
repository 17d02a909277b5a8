package middleware

import (
	"context"
	"strings"

	"coderush/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
)

// TraceContextConfig controls how trace/request id are extracted and written.
type TraceContextConfig struct {
	// TrustIncomingHeaders reuses ids sent by the caller instead of minting new ones.
	TrustIncomingHeaders bool
}

// TraceContextMiddleware ensures trace/request id are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{TrustIncomingHeaders: true})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := incomingID(c, traceIDHeader, cfg.TrustIncomingHeaders)
		c.Set(traceIDContextKey, traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Writer.Header().Set(traceIDHeader, traceID)

		requestID := incomingID(c, requestIDHeader, cfg.TrustIncomingHeaders)
		c.Set(requestIDContextKey, requestID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func incomingID(c *gin.Context, header string, trust bool) string {
	if trust {
		if id := strings.TrimSpace(c.GetHeader(header)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
