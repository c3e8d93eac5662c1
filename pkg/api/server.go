// Package api serves receiver status over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pulsera/pkg/crossing"
	"pulsera/pkg/metrics"
	"pulsera/pkg/protocol"
)

type Server struct {
	router  *gin.Engine
	logger  zerolog.Logger
	started time.Time

	mu          sync.RWMutex
	advice      *crossing.Advice
	adviceAt    time.Time
	orientation *crossing.Orientation
	counts      map[string]uint64
}

func NewServer(logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:  gin.New(),
		logger:  logger,
		started: time.Now(),
		counts:  make(map[string]uint64),
	}
	s.router.Use(gin.Recovery(), RequestLogger(logger))
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	metrics.Register()
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pulserad",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body := gin.H{"packets": s.counts}
	if s.advice != nil {
		body["advice"] = s.advice
		body["advice_at"] = s.adviceAt.UTC().Format(time.RFC3339Nano)
	}
	if s.orientation != nil {
		body["orientation"] = s.orientation
	}
	c.JSON(http.StatusOK, body)
}

// Observe folds one packet into the status snapshot.
func (s *Server) Observe(pkt protocol.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[pkt.Kind.String()]++
	switch v := pkt.Data.(type) {
	case crossing.Advice:
		s.advice = &v
		s.adviceAt = pkt.Timestamp
	case crossing.Orientation:
		s.orientation = &v
	}
}

// Consume feeds packets from a hub subscription into Observe.
func (s *Server) Consume(ctx context.Context, in <-chan protocol.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-in:
			if !ok {
				return
			}
			s.Observe(pkt)
		}
	}
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("status api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
