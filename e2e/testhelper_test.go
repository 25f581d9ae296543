package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/promptmotion/api/internal/client"
	"github.com/promptmotion/api/internal/config"
	"github.com/promptmotion/api/internal/handler"
	"github.com/promptmotion/api/internal/middleware"
	"github.com/promptmotion/api/internal/render"
	"github.com/promptmotion/api/internal/service"
	"github.com/promptmotion/api/internal/storage"
	"github.com/promptmotion/api/internal/store"
	"github.com/promptmotion/api/internal/validate"
	"github.com/promptmotion/api/internal/worker"
)

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.MemoryStore
}

// setupApp creates a Fiber app wired like main.go but hermetic: in-memory
// job store, inline job runner instead of the queue, zeroed retry delays
// and unconfigured external clients.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	base := t.TempDir()
	staging := storage.NewStaging(filepath.Join(base, "work"), filepath.Join(base, "public"), "temp.mp4")
	jobStore := store.NewMemoryStore()

	// No API keys, so the worker's setup check fails every attempt.
	codegenClient := client.NewCodegenClient(&config.CodegenConfig{})
	geminiClient := client.NewGeminiClient(&config.GeminiConfig{})
	pythonValidator := validate.NewPythonValidator("python3")

	sceneService := service.NewSceneService(geminiClient)
	sceneService.RetryDelay = 0
	synthService := service.NewSynthService(codegenClient, pythonValidator)
	synthService.AttemptDelay = 0
	synthService.TransportDelay = 0
	audioService := service.NewAudioService(geminiClient, pythonValidator)
	audioService.AttemptDelay = 0
	renderer := render.NewRenderer("manim", "ql", 1)
	renderer.RetryDelay = 0

	videoWorker := worker.NewVideoWorker(
		jobStore, staging, nil,
		geminiClient, codegenClient,
		sceneService, synthService, renderer, audioService,
	)
	videoWorker.OverallAttempts = 2
	videoWorker.SceneAttempts = 1
	videoWorker.OverallRetryDelay = 0
	videoWorker.SceneRetryDelay = 0

	videoService := service.NewVideoService(jobStore, staging, nil, videoWorker)

	requestValidator := validator.New()
	videoHandler := handler.NewVideoHandler(videoService, requestValidator)
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":   "Video generation service",
			"timestamp": time.Now().UTC(),
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":             "ok",
			"queue":              "inline",
			"codegen_configured": codegenClient.IsConfigured(),
			"gemini_configured":  geminiClient.IsConfigured(),
		})
	})
	app.Post("/generate-video", rateLimiter.GenerateLimit(10000), videoHandler.Generate)
	app.Get("/job-status/:job_id", videoHandler.Status)

	return &testApp{app: app, store: jobStore}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// pollUntilTerminal polls the status endpoint until the job leaves
// processing or the deadline expires, returning the last parsed body.
func pollUntilTerminal(t *testing.T, ta *testApp, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last map[string]interface{}
	for time.Now().Before(deadline) {
		resp, err := doRequest(ta.app, http.MethodGet, "/job-status/"+jobID, "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		last = parseJSON(t, resp)
		if last["status"] != "processing" {
			return last
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status, last: %v", jobID, last)
	return nil
}
