package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/dimicheck/public-api/internal/config"
	"github.com/dimicheck/public-api/internal/handler"
	"github.com/dimicheck/public-api/internal/metrics"
	"github.com/dimicheck/public-api/internal/middleware"
	"github.com/dimicheck/public-api/internal/ratelimit"
	"github.com/dimicheck/public-api/internal/repository"
	"github.com/dimicheck/public-api/internal/service"
	"github.com/dimicheck/public-api/internal/storage"
	"github.com/dimicheck/public-api/internal/tier"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cost units charged per public endpoint, in whole request units.
// Fractions are scaled internally so cheap endpoints stay cheap without
// rounding up to a full request.
const (
	costVersion  = 0.1
	costStatus   = 1
	costOverview = 3
	costCalendar = 0.7
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	gate       *ratelimit.Gate
	httpServer *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres, jwtSecret string) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("Unknown timezone %q, falling back to UTC", cfg.Timezone)
		loc = time.UTC
	}

	policy := tier.NewPolicy(cfg.Tiers)

	// Repositories
	apiKeyRepo := repository.NewAPIKeyRepository(postgres)
	authRepo := repository.NewUserRepository(postgres)
	classRepo := repository.NewClassRepository(postgres)
	ledgerStore := repository.NewLedgerStore(postgres)
	requestLogRepo := repository.NewRequestLogRepository(postgres)
	usageStatRepo := repository.NewUsageStatRepository(postgres)

	// Domain services
	evaluator := tier.NewEligibilityEvaluator(usageStatRepo, tier.EligibilityConfig{
		DailyThreshold: cfg.Eligibility.DailyThreshold,
		RequiredDays:   cfg.Eligibility.RequiredDays,
		RequiredTotal:  cfg.Eligibility.RequiredTotal,
		WindowDays:     cfg.Eligibility.WindowDays,
	}, loc, nil)

	engine := ratelimit.NewEngine(ledgerStore, ratelimit.EngineConfig{
		Policy:         policy,
		Location:       loc,
		StreakMinDaily: cfg.Eligibility.StreakMinDaily,
	})

	gate := ratelimit.NewGate(ratelimit.GateConfig{
		Capacity:   cfg.Gate.Capacity,
		QueueDepth: cfg.Gate.QueueDepth,
		Timeout:    time.Duration(cfg.Gate.TimeoutSeconds) * time.Second,
	})

	apiKeyService := service.NewAPIKeyService(apiKeyRepo, redis, policy)
	authService := service.NewAuthService(authRepo, jwtSecret, 24)
	usageService := service.NewUsageService(apiKeyRepo, policy, evaluator, loc, nil)

	// Handlers
	publicHandler := handler.NewPublicHandler(classRepo, cfg.AssetVersion)
	developerHandler := handler.NewDeveloperHandler(apiKeyService, usageService, requestLogRepo, evaluator)
	authHandler := handler.NewAuthHandler(authService)
	systemHandler := handler.NewSystemHandler(gate, requestLogRepo)

	metrics.Register()
	middleware.InitRequestLogger(requestLogRepo, 1000)

	router := gin.New()

	s := &Server{
		router:   router,
		config:   cfg,
		redis:    redis,
		postgres: postgres,
		gate:     gate,
	}

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := router.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// Metered public surface. Admission order is fixed: key validation,
	// then the concurrency gate, then the quota charge. A request turned
	// away by the gate never touches the ledger.
	public := router.Group("/public/api")
	public.Use(middleware.RequestLogger())
	public.Use(middleware.RequireAPIKey(apiKeyService))
	public.Use(middleware.Concurrency(gate))
	{
		public.GET("/version",
			middleware.RateLimit(engine, usageStatRepo, costVersion), publicHandler.Version)
		public.GET("/class/:class/status",
			middleware.RateLimit(engine, usageStatRepo, costStatus), publicHandler.ClassStatus)
		public.GET("/status/overview",
			middleware.RateLimit(engine, usageStatRepo, costOverview), publicHandler.StatusOverview)
		public.GET("/class/:class/calendar/events",
			middleware.RateLimit(engine, usageStatRepo, costCalendar), publicHandler.CalendarEvents)
	}

	// Developer dashboard, JWT-authenticated.
	dev := router.Group("/api/dev")
	dev.Use(middleware.RequireAuth(authService))
	{
		dev.GET("/me", authHandler.Me)
		dev.GET("/api-keys", developerHandler.List)
		dev.POST("/api-keys", developerHandler.Create)
		dev.PATCH("/api-keys/:id", developerHandler.Update)
		dev.DELETE("/api-keys/:id", developerHandler.Delete)
		dev.POST("/api-keys/:id/tier-upgrade", developerHandler.TierUpgrade)
		dev.GET("/api-keys/:id/logs", developerHandler.KeyLogs)
		dev.GET("/usage", developerHandler.Usage)
		dev.GET("/eligibility", developerHandler.Eligibility)
		dev.GET("/system/status", systemHandler.Status)
	}

	return s
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true
	if err := s.redis.Ping(c.Request.Context()); err != nil {
		redisHealthy = false
		log.Printf("Redis health check failed: %v", err)
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		log.Printf("Database health check failed: %v", err)
	}

	status := "healthy"
	statusCode := http.StatusOK

	// Redis only backs the key cache; the board stays up without it.
	if !dbHealthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else if !redisHealthy {
		status = "degraded"
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "dimicheck-public-api",
		"version":   s.config.AssetVersion,
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":    redisHealthy,
			"database": dbHealthy,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting public API on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
