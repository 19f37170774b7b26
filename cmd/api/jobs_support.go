package main

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/yourusername/inference-server/internal/archive"
	"github.com/yourusername/inference-server/internal/config"
	"github.com/yourusername/inference-server/internal/jobs"
	"github.com/yourusername/inference-server/internal/logging"
	"github.com/yourusername/inference-server/internal/metrics"
	"github.com/yourusername/inference-server/internal/process"
	"github.com/yourusername/inference-server/internal/session"
	"github.com/yourusername/inference-server/internal/storage"
	"github.com/yourusername/inference-server/internal/throttle"
)

type app struct {
	router   *gin.Engine
	jobs     *jobs.Manager
	registry *prometheus.Registry
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	var (
		registry *prometheus.Registry
		observer jobs.Observer
	)
	if cfg.MetricsEnabled {
		registry = metrics.NewRegistry()
		observer = metrics.NewCollector(registry)
	}

	manager, err := setupJobs(cfg, logger, observer)
	if err != nil {
		return nil, err
	}

	router, err := newRouter(cfg, logger, manager, registry)
	if err != nil {
		return nil, err
	}
	return &app{router: router, jobs: manager, registry: registry}, nil
}

func setupJobs(cfg *config.Config, logger *zap.Logger, observer jobs.Observer) (*jobs.Manager, error) {
	files, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	runner, err := process.NewRunner(process.Command{
		Path:    cfg.InvokePath,
		Args:    cfg.InvokeArgs,
		Timeout: cfg.ProcessTimeout,
	}, logger.Named("process"))
	if err != nil {
		return nil, fmt.Errorf("invalid invoke path: %w", err)
	}

	return jobs.NewManager(jobs.NewStore(), files, runner, jobs.Options{
		MaxConcurrent: int64(cfg.MaxConcurrentJobs),
		Observer:      observer,
		Logger:        logger.Named("jobs"),
	})
}

func newRouter(cfg *config.Config, logger *zap.Logger, manager *jobs.Manager, registry *prometheus.Registry) (*gin.Engine, error) {
	router := gin.New()
	router.Use(logging.GinLogger(logger.Named("http")), gin.Recovery())

	// X-Forwarded-For は信用しない
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	sessionMiddleware, err := session.Middleware(cfg.SessionSecret, cfg.GinMode == gin.ReleaseMode)
	if err != nil {
		return nil, fmt.Errorf("failed to set up session: %w", err)
	}
	router.Use(sessionMiddleware)

	// CORSミドルウェアの設定（許可オリジンが無ければ無効）
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		corsConfig.ExposeHeaders = []string{"Location", "Retry-After", "Content-Disposition", "X-Job-Id"}
		router.Use(cors.New(corsConfig))
	}

	setupRoutes(router, cfg, logger, manager, registry)
	return router, nil
}

func setupRoutes(router *gin.Engine, cfg *config.Config, logger *zap.Logger, manager *jobs.Manager, registry *prometheus.Registry) {
	router.GET("/health", healthHandler(manager))
	if registry != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	}

	h := archive.NewHandlers(manager, archive.HandlerOptions{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger.Named("archive"),
	})

	var submitGuard []gin.HandlerFunc
	if limiter := throttle.New(cfg.SubmitRatePerMinute); limiter != nil {
		submitGuard = append(submitGuard, limiter.Middleware())
	}
	withGuard := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc(nil), submitGuard...), handler)
	}

	router.GET("/", h.IndexPage)
	router.POST("/", withGuard(h.SubmitPage)...)
	router.POST("/submit", withGuard(h.SubmitPage)...)
	router.GET("/get_job_info", h.StatusPage)
	router.GET("/track_result", h.StatusPage)
	router.GET("/get_result", h.DownloadPage)

	api := router.Group("/api")
	{
		api.POST("/submit", withGuard(h.SubmitAPI)...)
		api.GET("/get_job_info", h.StatusAPI)
		api.GET("/get_result", h.DownloadAPI)
		api.GET("/jobs/:id", h.StatusAPI)
		api.GET("/jobs/:id/download", h.DownloadAPI)
	}
}

// healthHandler はヘルスチェックエンドポイントのハンドラーです。
func healthHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
			"version": buildVersion(),
			"jobs":    manager.Stats(),
		})
	}
}
