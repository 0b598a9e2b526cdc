package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/userhub-io/userhub-api/api/swagger"
	"github.com/userhub-io/userhub-api/internal/handler"
	"github.com/userhub-io/userhub-api/internal/middleware"
	"github.com/userhub-io/userhub-api/internal/repository"
	"github.com/userhub-io/userhub-api/internal/service"
	"github.com/userhub-io/userhub-api/pkg/cache"
	"github.com/userhub-io/userhub-api/pkg/config"
	"github.com/userhub-io/userhub-api/pkg/database"
	"github.com/userhub-io/userhub-api/pkg/jobs"
	"github.com/userhub-io/userhub-api/pkg/logger"
	corsmiddleware "github.com/userhub-io/userhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/userhub-io/userhub-api/pkg/middleware/requestid"
)

// @title UserHub API
// @version 1.0.0
// @description User management API with bearer-credential lifecycle and scope-based authorization
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The dashboard cache is an optimization; run uncached rather than die.
		logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	codec := service.NewTokenCodec(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)

	queue := jobs.NewQueue("auth", jobs.QueueConfig{Workers: 2, Logger: logr})

	authService := service.NewAuthService(userRepo, tokenRepo, codec, queue, metrics, validate, logr, cfg.Auth.BcryptCost)
	authService.RegisterJobs(queue)
	queue.Start(ctx)
	defer queue.Stop()

	userService := service.NewUserService(userRepo, tokenRepo, validate, logr, cfg.Auth.BcryptCost)
	dashboardService := service.NewDashboardService(userRepo, cacheRepo, logr, cfg.Dashboard.CacheTTL)

	cleanup := service.NewTokenCleanupService(tokenRepo, metrics, logr, cfg.Auth.PurgeRetention, cfg.Auth.PurgeInterval)
	cleanup.Start(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, authService, userRepo, logr,
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(userService, dashboardService),
		handler.NewAdminHandler(dashboardService, userService),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
