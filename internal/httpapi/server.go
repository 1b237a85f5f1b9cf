// Package httpapi serves the thread mirror over HTTP, including a
// server-sent-events stream of a thread's message list.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/mailmirror/internal/auth"
	"github.com/matheus3301/mailmirror/internal/notify"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"go.uber.org/zap"
)

// Mirror is the engine surface the HTTP API needs.
type Mirror interface {
	Resolve(ctx context.Context, handle string) (string, error)
	Sync(ctx context.Context, handle string) (intsync.Result, error)
	MarkRead(ctx context.Context, handle string) error
	ListThreads(ctx context.Context) ([]intsync.Thread, error)
	CheckUpdates(ctx context.Context) (intsync.Updates, error)
	Erase(ctx context.Context, handle string) (int, error)
	Messages(ctx context.Context, handle string) ([]store.Message, error)
	Search(ctx context.Context, query, handle string, limit int) ([]store.SearchResult, error)
}

// Watcher opens live views of a thread.
type Watcher interface {
	Subscribe(ctx context.Context, handle string) (*notify.Subscription, error)
}

// Authenticator resolves the user behind a request.
type Authenticator interface {
	FromRequest(r *http.Request) (*auth.User, error)
}

// Options configures the HTTP API.
type Options struct {
	// AccountEmail marks messages sent by the mailbox owner.
	AccountEmail string
	// Keepalive is the interval of SSE comment frames. Zero means 25s.
	Keepalive time.Duration
}

// Server is the HTTP front of the daemon.
type Server struct {
	mirror  Mirror
	watcher Watcher
	authn   Authenticator
	opts    Options
	logger  *zap.Logger
	engine  *gin.Engine

	httpServer *http.Server
	listener   net.Listener
}

// New builds the router. A nil authn serves every request unauthenticated.
func New(m Mirror, w Watcher, authn Authenticator, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = 25 * time.Second
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		mirror:  m,
		watcher: w,
		authn:   authn,
		opts:    opts,
		logger:  logger,
		engine:  gin.New(),
	}
	s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := s.engine.Group("/api")
	if s.authn != nil {
		api.Use(s.requireUser())
	}
	api.GET("/threads", s.listThreads)
	api.GET("/threads/check-updates", s.checkUpdates)
	api.POST("/threads/:handle/sync", s.syncThread)
	api.POST("/threads/:handle/poll", s.syncThread)
	api.POST("/threads/:handle/mark-read", s.markRead)
	api.DELETE("/threads/:handle", s.leave)
	api.GET("/threads/:handle/messages", s.messages)
	api.GET("/threads/:handle/stream", s.stream)
	api.GET("/search", s.search)
}

// Listen binds addr. Call Serve afterwards.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	s.logger.Info("http server starting", zap.Stringer("addr", s.listener.Addr()))
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Open
// streams end when their request context is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("http server stopping")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.authn.FromRequest(c.Request)
		if err != nil {
			s.fail(c, err)
			c.Abort()
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

const userKey = "user"
