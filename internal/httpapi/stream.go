package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"go.uber.org/zap"
)

// stream pushes the thread's message list as server-sent events. Event
// names: connected, update, error, not_found.
func (s *Server) stream(c *gin.Context) {
	handle := c.Param("handle")
	ctx := c.Request.Context()
	streamID := uuid.NewString()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sub, err := s.watcher.Subscribe(ctx, handle)
	if err != nil {
		if errors.Is(err, intsync.ErrNotFound) {
			s.event(c, "not_found", gin.H{"error": "thread not found", "handle": handle})
			return
		}
		s.logger.Warn("stream subscribe failed", zap.String("handle", handle), zap.Error(err))
		s.event(c, "error", gin.H{"error": err.Error()})
		return
	}
	defer sub.Close()

	log := s.logger.With(zap.String("handle", handle), zap.String("stream", streamID))
	log.Debug("stream opened")
	defer log.Debug("stream closed")

	s.event(c, "connected", gin.H{"handle": handle, "stream": streamID})

	keepalive := time.NewTicker(s.opts.Keepalive)
	defer keepalive.Stop()
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return
			}
			if u.Err != nil {
				s.event(c, "error", gin.H{"error": u.Err.Error()})
				return
			}
			s.event(c, "update", gin.H{"messages": s.messageViews(u.Messages)})
		case <-keepalive.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) event(c *gin.Context, name string, data any) {
	c.Status(http.StatusOK)
	c.SSEvent(name, data)
	c.Writer.Flush()
}
