// Package api is the control surface of a running gridscalp process.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gridscalp/grid"
	"github.com/rustyeddy/gridscalp/logger"
	"github.com/rustyeddy/gridscalp/signal"
)

// Account is one managed account. grid.Engine satisfies it.
type Account interface {
	Account() string
	Snapshot() grid.Snapshot
	CloseAll(ctx context.Context) error
}

// Dispatcher routes signals. signal.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev signal.Event) (signal.Result, error)
}

type Config struct {
	Addr string
	// Token, when set, is required as a bearer token on every route but
	// /healthz and /metrics.
	Token string
	// CloseTimeout bounds a close-all started from the API.
	CloseTimeout time.Duration
}

type Server struct {
	router     *gin.Engine
	cfg        Config
	accounts   map[string]Account
	ids        []string
	dispatcher Dispatcher
	metrics    http.Handler
	httpServer *http.Server
	log        *logrus.Entry

	// background work started by requests
	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds the router. metrics may be nil.
func NewServer(cfg Config, accounts []Account, d Dispatcher, metrics http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:     gin.New(),
		cfg:        cfg,
		accounts:   make(map[string]Account, len(accounts)),
		dispatcher: d,
		metrics:    metrics,
		log:        logger.WithComponent("api"),
	}
	s.bg, s.cancel = context.WithCancel(context.Background())
	for _, a := range accounts {
		s.accounts[a.Account()] = a
		s.ids = append(s.ids, a.Account())
	}
	sort.Strings(s.ids)

	s.router.Use(gin.Recovery(), s.logMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	protected := s.router.Group("/", s.authMiddleware())
	{
		protected.POST("/signals", s.handleSignal)
		protected.GET("/accounts", s.handleAccounts)
		protected.GET("/accounts/:id", s.handleAccount)
		protected.POST("/accounts/:id/close", s.handleClose)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
			"took":   time.Since(start),
		}).Debug("request")
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Token == "" {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "accounts": len(s.ids)})
}

// handleSignal accepts a signal. By default it is dispatched in the
// background and answered with 202; ?wait=true answers with the outcome.
// A client that hangs up does not cancel the dispatch.
func (s *Server) handleSignal(c *gin.Context) {
	var ev signal.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ev.Normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("wait") == "true" {
		res, err := s.dispatcher.Dispatch(context.WithoutCancel(c.Request.Context()), ev)
		switch {
		case errors.Is(err, signal.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"id": ev.ID, "error": err.Error()})
		case errors.Is(err, signal.ErrNoTarget):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"id": ev.ID, "error": err.Error()})
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"id": ev.ID, "error": err.Error()})
		default:
			c.JSON(http.StatusOK, res)
		}
		return
	}

	s.background(func(ctx context.Context) {
		if _, err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			s.log.WithError(err).WithField("id", ev.ID).Warn("signal dispatch")
		}
	})
	c.JSON(http.StatusAccepted, gin.H{"id": ev.ID, "type": ev.Type})
}

func (s *Server) handleAccounts(c *gin.Context) {
	out := make([]grid.Snapshot, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.accounts[id].Snapshot())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAccount(c *gin.Context) {
	a, ok := s.accounts[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}
	c.JSON(http.StatusOK, a.Snapshot())
}

// handleClose unwinds one account, in the background unless ?wait=true.
// Either way the close runs on a context the request cannot cancel.
func (s *Server) handleClose(c *gin.Context) {
	a, ok := s.accounts[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}

	if c.Query("wait") == "true" {
		ctx, cancel := s.closeContext(context.WithoutCancel(c.Request.Context()))
		defer cancel()
		if err := a.CloseAll(ctx); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "state": a.Snapshot()})
			return
		}
		c.JSON(http.StatusOK, a.Snapshot())
		return
	}

	s.background(func(ctx context.Context) {
		ctx, cancel := s.closeContext(ctx)
		defer cancel()
		if err := a.CloseAll(ctx); err != nil {
			s.log.WithError(err).WithField("account", a.Account()).Error("close all")
		}
	})
	c.JSON(http.StatusAccepted, gin.H{"account": a.Account(), "closing": true})
}

func (s *Server) closeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CloseTimeout > 0 {
		return context.WithTimeout(parent, s.cfg.CloseTimeout)
	}
	return context.WithCancel(parent)
}

func (s *Server) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.bg)
	}()
}

// Start listens on cfg.Addr until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.WithField("addr", s.cfg.Addr).Info("control api listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener and waits for background work started by
// requests. When ctx ends first, that work is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()
	return err
}
