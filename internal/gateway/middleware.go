package gateway

import (
	"time"

	apperrors "cv-screening/internal/common/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestLogger logs one line per request through the structured logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		fields := map[string]interface{}{
			"requestId":  requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"durationMs": time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= 500 {
			s.logger.Error("http", fields)
			return
		}
		s.logger.Debug("http", fields)
	}
}

// requireAuth rejects requests while no operator is logged in.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.session.IsAuthenticated() {
			s.fail(c, "auth.required", apperrors.NewSessionExpiredError(), nil)
			return
		}
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.session.IsAdmin() {
			s.fail(c, "auth.admin", apperrors.NewAccessDeniedError("administrator access required"), nil)
			return
		}
		c.Next()
	}
}
