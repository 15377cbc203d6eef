package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/ark-network/watchtower/internal/core/ports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NetworkServices bundles the per-network dependencies the HTTP surface
// validates against and writes through.
type NetworkServices struct {
	Store           ports.Store
	Verifier        ports.CommitmentVerifier
	DbFolder        string
	WithCommitments bool
}

// Server is a thin validation layer: it never decides chain-visibility
// state itself, only reads/writes the store.
type Server struct {
	engine   *gin.Engine
	listener net.Listener
	srv      *http.Server
}

// New builds the gin engine with one route group per known network plus
// the bare (bitcoin-default) routes, and a liveness probe. Requests for a
// known network that is not enabled get a 400 from the handlers.
func New(networks map[domain.NetworkID]NetworkServices) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger())

	router.GET("/generate_204", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	h := &handlers{networks: networks}

	registerRoutes := func(group gin.IRoutes, networkID domain.NetworkID) {
		group.POST("/watchtower/register", h.register(networkID))
		group.POST("/watchtower/ack", h.ack(networkID))
		group.POST("/watchtower/notifications", h.notifications(networkID))
	}

	registerRoutes(router.Group(""), domain.Bitcoin)
	for _, id := range []domain.NetworkID{domain.Bitcoin, domain.Testnet, domain.Tape, domain.Regtest} {
		registerRoutes(router.Group("/"+string(id)), id)
	}

	return &Server{engine: router}
}

// Listen binds the TCP listener so the caller can learn the actual port
// before Serve blocks (port 0 resolves to a random port).
func (s *Server) Listen(port uint32) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("http: listen: %w", err)
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.engine}
	return nil
}

// Addr returns the bound address. Call only after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Handler exposes the underlying gin engine for tests that want to drive
// requests directly with httptest, without binding a real socket.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Serve() error {
	if err := s.srv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requestID stamps every request with a correlation id, reusing one
// supplied by the caller if present, so logs across a retried call chain
// can be tied together.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestId", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"took":      time.Since(start),
			"requestId": c.GetString("requestId"),
		}).Debug("http request")
	}
}
