package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
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

	"github.com/totalityengine/api/internal/client"
	"github.com/totalityengine/api/internal/config"
	"github.com/totalityengine/api/internal/handler"
	"github.com/totalityengine/api/internal/middleware"
	"github.com/totalityengine/api/internal/pipeline"
	"github.com/totalityengine/api/internal/service"
	"github.com/totalityengine/api/internal/store"
	"github.com/totalityengine/api/internal/worker"
	ws "github.com/totalityengine/api/internal/websocket"
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

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
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

	// Initialize analysis history store
	history, err := store.OpenHistory(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer history.Close()

	// Initialize graph store (optional - continues if not configured)
	var graphStore *store.GraphStore
	if cfg.Graph.URL != "" {
		graphStore, err = store.NewGraphStore(ctx, cfg.Graph)
		if err != nil {
			log.Printf("Warning: graph store not initialized: %v", err)
			graphStore = nil
		} else {
			defer graphStore.Close(ctx)
		}
	} else {
		log.Println("Info: graph mirror not configured, centrality defaults to 0")
	}

	// Initialize external clients
	audioClient := client.NewAudioClient(&cfg.Audio)
	sentimentClient := client.NewSentimentClient(&cfg.Sentiment)

	// Initialize job registry and pipeline
	jobs := store.NewJobStore()
	var centrality pipeline.CentralitySource
	if graphStore != nil {
		centrality = graphStore
	}
	orchestrator := pipeline.New(audioClient, sentimentClient, centrality)

	// Initialize services
	enqueuer := service.NewAsynqEnqueuer(asynqClient)
	analysisService := service.NewAnalysisService(jobs, history, enqueuer, cfg.Storage.UploadDir)

	// Initialize handlers
	analysisHandler := handler.NewAnalysisHandler(analysisService, validate, cfg.Storage.MaxUploadSize)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Storage.MaxUploadSize),
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"audio":     audioClient.IsConfigured(),
				"sentiment": sentimentClient.IsConfigured(),
				"graph":     graphStore != nil,
				"auth":      cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	analysis := api.Group("/analysis")
	analysis.Post("/analyze", rateLimiter.AnalyzeLimit(cfg.RateLimit.AnalyzePerHour), analysisHandler.Analyze)
	analysis.Get("/jobs/:jobId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), analysisHandler.Status)
	analysis.Get("/history", rateLimiter.HistoryLimit(cfg.RateLimit.HistoryPerMin), analysisHandler.History)

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
	go startWorkerServer(cfg, jobs, orchestrator, history, graphStore, hub)

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

func startWorkerServer(
	cfg *config.Config,
	jobs *store.JobStore,
	orchestrator *pipeline.Orchestrator,
	history *store.HistoryStore,
	graphStore *store.GraphStore,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Pipeline.Workers,
			Queues: map[string]int{
				service.QueueAnalysis: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	analysisWorker := worker.NewAnalysisWorker(jobs, orchestrator, history, graphStore, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAnalysis, analysisWorker.ProcessTask)

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
