package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/videoweave/api/internal/compose"
	"github.com/videoweave/api/internal/config"
	"github.com/videoweave/api/internal/engine"
	"github.com/videoweave/api/internal/handler"
	"github.com/videoweave/api/internal/media"
	"github.com/videoweave/api/internal/middleware"
	"github.com/videoweave/api/internal/service"
	"github.com/videoweave/api/internal/worker"
	ws "github.com/videoweave/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	redisAvailable := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available, falling back to in-memory job store: %v", err)
		redisAvailable = false
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Media store and resolution
	uploadStore, err := media.NewDiskStore(cfg.Storage.UploadDir)
	if err != nil {
		log.Fatalf("Failed to initialize upload store: %v", err)
	}
	fetcher := media.NewFetcher(uploadStore, cfg.Storage.MaxRemoteSize, cfg.Storage.AllowedDomains, cfg.Storage.FetchTimeout)
	prober := media.NewFFProbe(cfg.Worker.FFprobeBin)
	resolver := media.NewResolver(uploadStore, fetcher, prober)

	// Spec pipeline
	specValidator := compose.NewValidator(cfg.Compose.DefaultSceneDuration)
	compiler := compose.NewCompiler(specValidator)

	// Job persistence
	var jobStore service.JobStore
	if redisAvailable {
		jobStore = service.NewRedisJobStore(redisClient)
	} else {
		jobStore = service.NewMemoryJobStore()
	}

	// API key store
	apiKeys := service.NewAPIKeyStore(redisClient, cfg.Auth.APIKeys)
	if redisAvailable {
		if err := apiKeys.Seed(ctx); err != nil {
			log.Printf("Warning: failed to seed API keys: %v", err)
		}
	}

	// Initialize services
	composeService := service.NewComposeService(specValidator, compiler, resolver, jobStore, service.NewAsynqEnqueuer(asynqClient))
	uploadService := service.NewUploadService(uploadStore, cfg.Storage.MaxFileSize)

	// Initialize handlers
	composeHandler := handler.NewComposeHandler(composeService, validate)
	jobHandler := handler.NewJobHandler(composeService)
	uploadHandler := handler.NewUploadHandler(uploadService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, apiKeys)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Storage.MaxFileSize) + 1024*1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		redisStatus := "ok"
		if err := redisClient.Ping(c.Context()).Err(); err != nil {
			status = "degraded"
			redisStatus = err.Error()
		}
		return c.JSON(fiber.Map{
			"status":    status,
			"redis":     redisStatus,
			"timestamp": time.Now().UTC(),
		})
	})

	// API routes
	api := app.Group("/api/v1", authMiddleware.Authenticate())

	// Composition routes
	api.Post("/compose", rateLimiter.ComposeLimit(cfg.RateLimit.ComposePerHour), composeHandler.Submit)
	api.Get("/compose/queue-status", composeHandler.QueueStatus)

	// Job routes
	statusLimit := rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin)
	api.Get("/jobs", statusLimit, jobHandler.List)
	api.Get("/jobs/:jobId", statusLimit, jobHandler.Status)
	api.Delete("/jobs/:jobId", jobHandler.Cancel)
	api.Get("/download/:jobId", jobHandler.Download)

	// Upload routes
	upload := api.Group("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour))
	upload.Post("/", uploadHandler.Upload)
	upload.Get("/:fileId", uploadHandler.FileInfo)
	upload.Delete("/:fileId", uploadHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobStore, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, jobStore service.JobStore, hub *ws.Hub) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"compose": 10,
			},
		},
	)

	ffmpeg := engine.NewFFmpeg(cfg.Worker.FFmpegBinary)
	composeWorker := worker.NewComposeWorker(jobStore, ffmpeg, hub, cfg.Storage.WorkDir, cfg.Storage.OutputDir, cfg.Worker.StageTimeout)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeCompose, composeWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
