package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/soto-labs/registro-api/api/swagger"
	"github.com/soto-labs/registro-api/internal/handler"
	"github.com/soto-labs/registro-api/internal/middleware"
	"github.com/soto-labs/registro-api/internal/repository"
	"github.com/soto-labs/registro-api/internal/service"
	"github.com/soto-labs/registro-api/pkg/cache"
	"github.com/soto-labs/registro-api/pkg/config"
	"github.com/soto-labs/registro-api/pkg/database"
	"github.com/soto-labs/registro-api/pkg/logger"
	corsmiddleware "github.com/soto-labs/registro-api/pkg/middleware/cors"
	reqidmiddleware "github.com/soto-labs/registro-api/pkg/middleware/requestid"
	"github.com/soto-labs/registro-api/pkg/storage"
)

// @title Registro API
// @version 1.0.0
// @description Resident and visit registration with per-person photo folders
// @BasePath /api/v1
// @schemes http

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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	} else {
		cacheRepo = repository.NewCacheRepository(nil, logr)
	}
	defer cacheRepo.Close()

	folderStore, err := storage.NewFolderStore(cfg.Storage.PhotoRoot, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init photo storage", "error", err, "root", cfg.Storage.PhotoRoot)
	}

	residentRepo := repository.NewResidentRepository(db)
	visitRepo := repository.NewVisitRepository(db)

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	registrationSvc := service.NewRegistrationService(residentRepo, visitRepo, folderStore, cacheRepo, validate, metricsSvc, logr)
	lifecycleSvc := service.NewLifecycleService(residentRepo, visitRepo, folderStore, cacheRepo, cfg.Listing.CacheTTL, metricsSvc, logr)

	var exportSvc *service.ExportService
	if cfg.Export.Enabled {
		exportSvc = service.NewExportService(lifecycleSvc, nil, nil, logr)
	}

	recordHandler := handler.NewRecordHandler(registrationSvc, lifecycleSvc, exportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(bodyLimit(cfg.Storage.MaxUploadBytes))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/residents", recordHandler.RegisterResident)
		api.POST("/visits", recordHandler.RegisterVisit)
		api.POST("/visits/sweep", recordHandler.Sweep)
		api.GET("/records", recordHandler.List)
		api.DELETE("/records/:kind/:id", recordHandler.Delete)
		api.GET("/records/:kind/:id/photo", recordHandler.PrimaryPhoto)
		if cfg.Export.Enabled {
			api.GET("/records/export", recordHandler.Export)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "photo_root", folderStore.Root())
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// bodyLimit caps request body size so photo batches cannot exhaust memory.
func bodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
