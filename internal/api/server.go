package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bybit-signal-trader/config"
	"bybit-signal-trader/internal/auth"
	"bybit-signal-trader/internal/database"
	"bybit-signal-trader/internal/events"
	"bybit-signal-trader/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ControlStore is the control state surface the handlers need.
// database.Repository implements it.
type ControlStore interface {
	GetControlState(ctx context.Context) (*database.ControlState, error)
	SetEnabled(ctx context.Context, enabled bool) error
	SetPriceCeiling(ctx context.Context, ceiling float64) error
	SetDeployableCapital(ctx context.Context, capital float64) error
	SetMaxOpenLots(ctx context.Context, n int) error
}

// LotStore is the ledger read surface the handlers need
type LotStore interface {
	GetOpenLots(ctx context.Context) ([]*database.Lot, error)
	CountOpenLots(ctx context.Context) (int, error)
	GetHistory(ctx context.Context, limit, offset int) ([]*database.HistoryEntry, error)
	HealthCheck(ctx context.Context) error
}

// Server is the management HTTP API. It owns the control state endpoints the
// trader itself consults, plus operator read endpoints and the event stream.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	controls    ControlStore
	lots        LotStore
	eventBus    *events.EventBus
	authService *auth.Service
	hub         *WSHub
	config      config.ServerConfig
	logger      *logging.Logger
}

// NewServer creates the management API server
func NewServer(
	cfg config.ServerConfig,
	controls ControlStore,
	lots LotStore,
	eventBus *events.EventBus,
	authService *auth.Service,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		controls:    controls,
		lots:        lots,
		eventBus:    eventBus,
		authService: authService,
		hub:         NewWSHub(),
		config:      cfg,
		logger:      logging.WithComponent("api"),
	}

	server.setupRoutes()

	go server.hub.Run()
	eventBus.SubscribeAll(server.hub.BroadcastEvent)

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.POST("/api/auth/login", s.handleLogin)

	// Control state endpoints, guarded by the shared secret or an operator
	// JWT. Path shapes are kept stable for the services that poll them.
	guarded := s.router.Group("/", s.authMiddleware())
	{
		guarded.GET("/get_control_state", s.handleGetControlState)
		guarded.GET("/get_system_status", s.handleGetSystemStatus)
		guarded.GET("/get_price_limit", s.handleGetPriceLimit)
		guarded.GET("/get_fake_balance", s.handleGetFakeBalance)
		guarded.GET("/get_num_available_lots", s.handleGetNumAvailableLots)

		guarded.POST("/set_system_status/:value", s.handleSetSystemStatus)
		guarded.POST("/set_price_limit/:value", s.handleSetPriceLimit)
		guarded.POST("/set_fake_balance/:value", s.handleSetFakeBalance)
		guarded.POST("/set_max_num_lots/:value", s.handleSetMaxNumLots)

		guarded.GET("/api/lots", s.handleGetLots)
		guarded.GET("/api/history", s.handleGetHistory)

		guarded.GET("/ws", s.handleWebSocket)
	}
}

// authMiddleware accepts either the shared secret as the api_key query
// parameter, or an operator JWT as a bearer token.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authService.CheckAPIToken(c.Query("api_key")) {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			if _, err := s.authService.VerifyJWT(token); err == nil {
				c.Next()
				return
			}
		}

		errorResponse(c, http.StatusForbidden, "invalid or missing credentials")
		c.Abort()
	}
}

// Start begins listening. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	s.logger.Info("Management API listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
