// Package server runs a local correcting proxy: article pages are fetched
// from an upstream wiki, corrected and served, and the shared state is
// exposed over a small JSON API and a websocket stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ppiankov/birthplace/internal/pipeline"
	"github.com/ppiankov/birthplace/internal/state"
	"go.uber.org/zap"
)

// PageCorrector fetches and corrects a page
type PageCorrector interface {
	CorrectURL(ctx context.Context, rawURL string) (*pipeline.Result, error)
}

// Options configures a Server
type Options struct {
	Addr     string
	Upstream string
	Logger   *zap.Logger
}

// Server is the correcting proxy
type Server struct {
	addr      string
	upstream  *url.URL
	corrector PageCorrector
	host      *state.Host
	hub       *Hub
	router    *gin.Engine
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	unsub     func()
}

// New builds the router and subscribes the hub to state changes. Call Close
// to release the subscription.
func New(corrector PageCorrector, host *state.Host, opts Options) (*Server, error) {
	upstream, err := url.Parse(strings.TrimRight(opts.Upstream, "/"))
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", opts.Upstream)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		addr:      opts.Addr,
		upstream:  upstream,
		corrector: corrector,
		host:      host,
		hub:       NewHub(logger),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHostOrigin,
		},
	}
	s.unsub = host.Subscribe(func(ev state.Event) { s.hub.BroadcastJSON(ev) })
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})

	r.GET("/health", s.health)
	r.GET("/wiki/*page", s.article)
	r.GET("/ws", s.stream)

	api := r.Group("/api")
	api.GET("/state", s.getState)
	api.POST("/state", s.setState)
	api.POST("/tally/reset", s.resetTally)

	return r
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("proxy listening", zap.String("addr", s.addr), zap.String("upstream", s.upstream.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close detaches from the state host and disconnects clients
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.hub.CloseAll()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"upstream":   s.upstream.String(),
		"ws_clients": s.hub.Count(),
	})
}

func (s *Server) article(c *gin.Context) {
	target := s.upstream.String() + "/wiki" + c.Param("page")
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}

	result, err := s.corrector.CorrectURL(c.Request.Context(), target)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, pipeline.ErrDisallowed) {
			status = http.StatusForbidden
		}
		s.logger.Warn("article failed", zap.String("url", target), zap.Error(err))
		c.String(status, "could not load %s: %v", target, err)
		return
	}

	report := result.Report
	c.Header("X-Birthplace-Status", report.Status)
	c.Header("X-Birthplace-Replacements", strconv.Itoa(report.Replacements))
	if report.FromCache {
		c.Header("X-Birthplace-Cache", "hit")
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(result.HTML))
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.host.Snapshot(c.Request.Context()))
}

type stateRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) setState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `expected {"enabled": true|false}`})
		return
	}

	if err := s.host.SetEnabled(c.Request.Context(), *req.Enabled); err != nil {
		s.logger.Warn("enabled flag not persisted", zap.Error(err))
	}
	c.JSON(http.StatusOK, s.host.Snapshot(c.Request.Context()))
}

func (s *Server) resetTally(c *gin.Context) {
	if err := s.host.ResetTally(c.Request.Context()); err != nil {
		s.logger.Warn("tally reset not persisted", zap.Error(err))
	}
	c.JSON(http.StatusOK, s.host.Snapshot(c.Request.Context()))
}

func (s *Server) stream(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.hub.Add(ws)
	s.logger.Debug("websocket client connected", zap.Int("clients", s.hub.Count()))

	welcome := state.Event{Type: state.EventState, Snapshot: s.host.Snapshot(c.Request.Context())}
	if err := s.hub.Send(ws, welcome); err != nil {
		s.hub.Remove(ws)
		return
	}

	// incoming messages are ignored; reading detects the close
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Remove(ws)
	s.logger.Debug("websocket client disconnected")
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// sameHostOrigin accepts requests without an Origin header and those whose
// origin host matches the request host
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
