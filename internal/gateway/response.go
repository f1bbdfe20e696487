package gateway

import (
	"net/http"

	apperrors "cv-screening/internal/common/errors"

	"github.com/gin-gonic/gin"
)

// Envelope wraps every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func message(c *gin.Context, msg string) {
	ok(c, gin.H{"message": msg})
}

// fail normalizes err, logs it once and writes the error envelope. data, when
// non-nil, carries the state the caller should keep rendering.
func (s *Server) fail(c *gin.Context, operation string, err error, data interface{}) {
	status, stdErr := s.errors.Handle(operation, err)
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Data:    data,
		Error: &ErrorInfo{
			Code:      string(stdErr.Code),
			Message:   stdErr.Message,
			Details:   stdErr.Details,
			Retryable: stdErr.Retryable,
		},
	})
}

func (s *Server) badRequest(c *gin.Context, operation, details string) {
	s.fail(c, operation, apperrors.NewInvalidRequestError(details), nil)
}
