// Package http exposes the ledger, recurrence, obligation, aggregation and
// projection services as a JSON API on gin.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Services groups everything the handlers call.
type Services struct {
	Store       storage.Store
	Ledger      *services.LedgerService
	Recurrence  *services.RecurrenceService
	Obligations *services.ObligationService
	Aggregation *services.AggregationService
	Projector   *services.Projector
	// Now pins "today" for date-dependent reads. Defaults to time.Now.
	Now func() time.Time
}

type Options struct {
	AllowedOrigins    []string
	RequestsPerMinute int
}

type Server struct {
	http.Server
	engine      *gin.Engine
	svc         Services
	logger      *log.Logger
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, svc Services, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	if svc.Now == nil {
		svc.Now = time.Now
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(log.Middleware(logger))
	engine.Use(securityHeaders())

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", AccountHeader, log.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine:      engine,
		svc:         svc,
		logger:      logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(opts.RequestsPerMinute),
	}
	engine.Use(s.rateLimit())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/api/v1")

	accounts := v1.Group("", requireAccount())
	accounts.POST("/entries", s.handleCreateEntry)
	accounts.GET("/entries", s.handleListEntries)
	accounts.GET("/entries/:id", s.handleGetEntry)
	accounts.PATCH("/entries/:id", s.handleUpdateEntry)
	accounts.DELETE("/entries/:id", s.handleDeleteEntry)

	accounts.POST("/rules", s.handleCreateRule)
	accounts.GET("/rules", s.handleListRules)
	accounts.GET("/rules/due-soon", s.handleDueSoon)
	accounts.GET("/rules/:id", s.handleGetRule)
	accounts.PATCH("/rules/:id", s.handleUpdateRule)
	accounts.DELETE("/rules/:id", s.handleDeleteRule)

	accounts.GET("/accounts/balance", s.handleAccountBalance)

	v1.POST("/obligations/payments", s.handleRecordPayment)
	v1.POST("/obligations/generate", s.handleGenerateObligations)
	v1.GET("/obligations", s.handleListObligations)
	v1.GET("/obligations/summary", s.handleMonthlySummary)
	v1.GET("/debtors/:id/balance", s.handleDebtorBalance)

	v1.POST("/aggregations", s.handleAggregate)
	v1.GET("/aggregations", s.handleAggregationHistory)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Store.Ping(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Health check failed", log.FieldError, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
