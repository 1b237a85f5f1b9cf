package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/mailmirror/internal/auth"
	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"go.uber.org/zap"
)

var errMissingQuery = errors.New("query parameter q is required")

// statusCode maps an error from the mirror to an HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, intsync.ErrNoThreadID),
		errors.Is(err, intsync.ErrUnresolvedThread),
		errors.Is(err, errMissingQuery),
		errors.Is(err, store.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, intsync.ErrNotFound),
		errors.Is(err, provider.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("handle", c.Param("handle")),
			zap.Error(err),
		)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
