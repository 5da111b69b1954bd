package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hguangin/soultalk-tool/internal/auth"
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

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// webhookNotifier mirrors the adapter in cmd/server. The client stays
// unconfigured here so delivery is a no-op.
type webhookNotifier struct {
	client *client.WebhookClient
}

func (n *webhookNotifier) Notify(ctx context.Context, note jobs.Notification) error {
	return n.client.Notify(ctx, &client.WebhookEvent{
		Event:     note.Event,
		JobID:     note.Job.ID,
		Kind:      note.Job.Kind,
		Status:    note.Job.Status,
		Timestamp: time.Now(),
	})
}

// setupApp wires the app the way main.go does, backed by an embedded redis
// and with every external client unconfigured. Jobs run for real and fail at
// the first provider call.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	ragicClient := client.NewRagicClient(&config.RagicConfig{})
	elevenLabsClient := client.NewElevenLabsClient(&config.ElevenLabsConfig{})
	assemblyAIClient := client.NewAssemblyAIClient(&config.AssemblyAIConfig{})
	openAIClient := client.NewOpenAIClient(&config.OpenAIConfig{})
	groqClient := client.NewGroqClient(&config.GroqConfig{})
	geminiClient := client.NewGeminiClient(&config.GeminiConfig{})
	webhookClient := client.NewWebhookClient(&config.WebhookConfig{})

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

	// No settings.yaml in the temp dir, so every value is a default
	settingsSvc := settings.New(t.TempDir())
	jobStore := store.New(redisClient, 0)

	orchestrator := jobs.NewOrchestrator(jobStore, hub, &webhookNotifier{client: webhookClient}, settingsSvc)
	deps := &pipeline.Deps{
		Records:   ragicClient,
		Providers: registry,
		Settings:  settingsSvc,
	}
	orchestrator.Register(pipeline.NewVideoPipeline(deps))
	orchestrator.Register(pipeline.NewVoicePipeline(deps))

	jobHandler := handler.NewJobHandler(orchestrator, validate)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
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
				"archive":    false,
				"webhook":    webhookClient.IsConfigured(),
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	api.Post("/jobs", rateLimiter.CreateLimit(10000), jobHandler.Create)
	api.Get("/jobs", jobHandler.List)
	api.Get("/jobs/:jobId", jobHandler.Get)
	api.Get("/jobs/:jobId/logs", jobHandler.Logs)

	controlLimit := rateLimiter.ControlLimit(10000)
	api.Post("/jobs/:jobId/pause", controlLimit, jobHandler.Pause)
	api.Post("/jobs/:jobId/resume", controlLimit, jobHandler.Resume)
	api.Post("/jobs/:jobId/cancel", controlLimit, jobHandler.Cancel)

	return &testApp{app: app}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateToken("test-user-123", "test@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
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
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
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

// waitForTerminalStatus polls the job endpoint until the job leaves the
// pending/running states.
func waitForTerminalStatus(t *testing.T, ta *testApp, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+jobID, "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		job := parseJSON(t, resp)
		switch job["status"] {
		case "completed", "failed", "cancelled", "paused":
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return nil
}
