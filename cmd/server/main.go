package main

import (
	"context"
	"encoding/json"
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
	"github.com/redis/go-redis/v9"

	"github.com/hguangin/soultalk-tool/internal/client"
	"github.com/hguangin/soultalk-tool/internal/config"
	"github.com/hguangin/soultalk-tool/internal/handler"
	"github.com/hguangin/soultalk-tool/internal/jobs"
	"github.com/hguangin/soultalk-tool/internal/middleware"
	"github.com/hguangin/soultalk-tool/internal/pipeline"
	"github.com/hguangin/soultalk-tool/internal/provider"
	"github.com/hguangin/soultalk-tool/internal/settings"
	"github.com/hguangin/soultalk-tool/internal/store"
	ws "github.com/hguangin/soultalk-tool/internal/websocket"
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

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	ragicClient := client.NewRagicClient(&cfg.Ragic)
	elevenLabsClient := client.NewElevenLabsClient(&cfg.ElevenLabs)
	assemblyAIClient := client.NewAssemblyAIClient(&cfg.AssemblyAI)
	openAIClient := client.NewOpenAIClient(&cfg.OpenAI)
	groqClient := client.NewGroqClient(&cfg.Groq)
	geminiClient := client.NewGeminiClient(&cfg.Gemini)
	webhookClient := client.NewWebhookClient(&cfg.Webhook)

	// Initialize archive client (optional - continues if not configured)
	var archive client.StorageClient
	if cfg.Archive.AccessKeyID != "" && cfg.Archive.SecretAccessKey != "" {
		archiveClient, err := client.NewArchiveClient(&cfg.Archive)
		if err != nil {
			log.Printf("Warning: archive client not initialized: %v", err)
		} else {
			archive = archiveClient
		}
	} else {
		log.Println("Info: archive storage not configured, caption publishing disabled")
	}

	// Provider registry: fallback order comes from settings at call time,
	// unconfigured providers stay registered and are skipped
	registry := &provider.Registry{
		Transcribers: []provider.Entry[provider.Transcriber]{
			{ID: "elevenlabs", Client: elevenLabsClient, Configured: elevenLabsClient.IsConfigured()},
			{ID: "assemblyai", Client: assemblyAIClient, Configured: assemblyAIClient.IsConfigured()},
		},
		Aligners: []provider.Entry[provider.Aligner]{
			{ID: "openai", Client: openAIClient, Configured: openAIClient.IsConfigured()},
			{ID: "gemini", Client: geminiClient, Configured: geminiClient.IsConfigured()},
			{ID: "groq", Client: groqClient, Configured: groqClient.IsConfigured()},
		},
	}

	// Pipeline settings with live reload
	settingsSvc := settings.New()
	settingsSvc.Watch()

	// Job store
	jobStore := store.New(redisClient, 0)

	// Orchestrator with both pipelines
	orchestrator := jobs.NewOrchestrator(jobStore, hub, &webhookNotifier{client: webhookClient}, settingsSvc)
	deps := &pipeline.Deps{
		Records:   ragicClient,
		Providers: registry,
		Settings:  settingsSvc,
		Archive:   archive,
	}
	orchestrator.Register(pipeline.NewVideoPipeline(deps))
	orchestrator.Register(pipeline.NewVoicePipeline(deps))

	// Jobs left running by a previous process cannot be picked back up
	if err := orchestrator.RecoverStale(ctx); err != nil {
		log.Printf("Warning: stale job sweep failed: %v", err)
	}

	// Initialize handlers
	jobHandler := handler.NewJobHandler(orchestrator, validate)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
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
				"ragic":      ragicClient.IsConfigured(),
				"elevenlabs": elevenLabsClient.IsConfigured(),
				"assemblyai": assemblyAIClient.IsConfigured(),
				"openai":     openAIClient.IsConfigured(),
				"gemini":     geminiClient.IsConfigured(),
				"groq":       groqClient.IsConfigured(),
				"archive":    archive != nil,
				"webhook":    webhookClient.IsConfigured(),
			},
		})
	})

	// API routes. Auth is opt-in for this internal tool: without a secret the
	// API is open and the user-keyed rate limiter stays inert.
	api := app.Group("/api")
	if cfg.JWT.Secret != "" {
		api.Use(authMiddleware.Authenticate())
	} else {
		log.Println("Warning: JWT secret not set, API authentication disabled")
	}

	api.Post("/jobs", rateLimiter.CreateLimit(cfg.RateLimit.CreatePerMin), jobHandler.Create)
	api.Get("/jobs", jobHandler.List)
	api.Get("/jobs/:jobId", jobHandler.Get)
	api.Get("/jobs/:jobId/logs", jobHandler.Logs)

	controlLimit := rateLimiter.ControlLimit(cfg.RateLimit.ControlPerMin)
	api.Post("/jobs/:jobId/pause", controlLimit, jobHandler.Pause)
	api.Post("/jobs/:jobId/resume", controlLimit, jobHandler.Resume)
	api.Post("/jobs/:jobId/cancel", controlLimit, jobHandler.Cancel)

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

// webhookNotifier adapts the webhook client to the orchestrator's notifier.
type webhookNotifier struct {
	client *client.WebhookClient
}

func (n *webhookNotifier) Notify(ctx context.Context, note jobs.Notification) error {
	event := &client.WebhookEvent{
		Event:     note.Event,
		JobID:     note.Job.ID,
		Name:      note.Job.Name,
		Kind:      note.Job.Kind,
		Status:    note.Job.Status,
		Timestamp: time.Now(),
	}
	if note.Job.Error != nil {
		event.Error = *note.Job.Error
	}
	if len(note.Job.Output) > 0 {
		var doc struct {
			DocumentURL string `json:"documentUrl"`
		}
		if err := json.Unmarshal(note.Job.Output, &doc); err == nil {
			event.DocumentURL = doc.DocumentURL
		}
	}
	return n.client.Notify(ctx, event)
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
