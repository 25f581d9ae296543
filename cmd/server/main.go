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

	"github.com/promptmotion/api/internal/client"
	"github.com/promptmotion/api/internal/config"
	"github.com/promptmotion/api/internal/handler"
	"github.com/promptmotion/api/internal/middleware"
	"github.com/promptmotion/api/internal/render"
	"github.com/promptmotion/api/internal/service"
	"github.com/promptmotion/api/internal/storage"
	"github.com/promptmotion/api/internal/store"
	"github.com/promptmotion/api/internal/validate"
	ws "github.com/promptmotion/api/internal/websocket"
	"github.com/promptmotion/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Redis is optional. With it jobs flow through the asynq queue and
	// records live in Redis; without it the service degrades to an
	// in-memory store and one goroutine per job.
	var (
		redisClient *redis.Client
		asynqClient *asynq.Client
		jobStore    store.JobStore
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Warning: Redis not available: %v", err)
		}
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		jobStore = store.NewRedisStore(redisClient)
	} else {
		log.Printf("Redis not configured, using in-memory job store and inline workers")
		memStore := store.NewMemoryStore()
		jobStore = memStore
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				if n := memStore.Sweep(); n > 0 {
					log.Printf("Evicted %d expired job records", n)
				}
			}
		}()
	}

	// Upstream clients
	codegenClient := client.NewCodegenClient(&cfg.Codegen)
	geminiClient := client.NewGeminiClient(&cfg.Gemini)

	var r2Client client.StorageClient
	if cfg.R2.AccountID != "" && cfg.R2.AccessKeyID != "" {
		c, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client unavailable: %v", err)
		} else {
			r2Client = c
		}
	}

	// Pipeline components
	pythonValidator := validate.NewPythonValidator(cfg.Render.PythonBin)
	staging := storage.NewStaging(cfg.Render.WorkDir, cfg.Render.PublishDir, cfg.Render.PublishName)

	sceneService := service.NewSceneService(geminiClient)
	sceneService.MaxRetries = cfg.Pipeline.DecomposeRetries

	synthService := service.NewSynthService(codegenClient, pythonValidator)
	synthService.MaxAttempts = cfg.Pipeline.SynthAttempts

	audioService := service.NewAudioService(geminiClient, pythonValidator)
	audioService.MaxAttempts = cfg.Pipeline.AudioAttempts

	renderer := render.NewRenderer(cfg.Render.ManimBin, cfg.Render.Quality, cfg.Pipeline.RenderRetries)

	hub := ws.NewHub()
	go hub.Run()

	videoWorker := worker.NewVideoWorker(
		jobStore, staging, hub,
		geminiClient, codegenClient,
		sceneService, synthService, renderer, audioService,
	)
	videoWorker.Uploader = r2Client
	videoWorker.OverallAttempts = cfg.Pipeline.OverallAttempts
	videoWorker.SceneAttempts = cfg.Pipeline.SceneAttempts
	videoWorker.OverallRetryDelay = cfg.Pipeline.OverallRetryDelay
	videoWorker.SceneRetryDelay = cfg.Pipeline.SceneRetryDelay

	videoService := service.NewVideoService(jobStore, staging, asynqClient, videoWorker)

	requestValidator := validator.New()
	videoHandler := handler.NewVideoHandler(videoService, requestValidator)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":   "Video generation service",
			"timestamp": time.Now().UTC(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		queue := "inline"
		if asynqClient != nil {
			queue = "redis"
		}
		return c.JSON(fiber.Map{
			"status":             "ok",
			"queue":              queue,
			"codegen_configured": codegenClient.IsConfigured(),
			"gemini_configured":  geminiClient.IsConfigured(),
		})
	})

	app.Post("/generate-video", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), videoHandler.Generate)
	app.Get("/job-status/:job_id", videoHandler.Status)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:job_id", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("job_id"))
	}))

	if redisClient != nil {
		go startWorkerServer(cfg, videoWorker)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// startWorkerServer runs the asynq consumer. Renders are heavy subprocess
// work, so concurrency stays low and excess jobs wait in the queue.
func startWorkerServer(cfg *config.Config, videoWorker *worker.VideoWorker) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"video": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeVideo, videoWorker.ProcessTask)

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
		"status":  "error",
		"message": message,
	})
}
