package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/totalityengine/api/internal/auth"
	"github.com/totalityengine/api/internal/handler"
	"github.com/totalityengine/api/internal/middleware"
	"github.com/totalityengine/api/internal/service"
	"github.com/totalityengine/api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// recordingEnqueuer satisfies service.TaskEnqueuer without a live queue, so
// submissions register jobs that stay queued for the duration of a test.
type recordingEnqueuer struct {
	jobIDs []string
}

func (e *recordingEnqueuer) EnqueueAnalysis(ctx context.Context, jobID string) error {
	e.jobIDs = append(e.jobIDs, jobID)
	return nil
}

// testApp holds all components needed for testing
type testApp struct {
	app  *fiber.App
	jobs *store.JobStore
}

// setupApp creates a Fiber app identical to main.go but with an in-process
// enqueuer and a throwaway history database, so no external services are
// needed.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost — rate limiting degrades to allow-all when absent)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	validate := validator.New()

	history, err := store.OpenHistory(filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	jobs := store.NewJobStore()
	enqueuer := &recordingEnqueuer{}
	analysisService := service.NewAnalysisService(jobs, history, enqueuer, filepath.Join(t.TempDir(), "uploads"))

	analysisHandler := handler.NewAnalysisHandler(analysisService, validate, 50*1024*1024)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"audio":     false,
				"sentiment": false,
				"graph":     false,
				"auth":      true,
			},
		})
	})

	// API routes (authenticated); very high rate limits so tests never block
	api := app.Group("/api", authMiddleware.Authenticate())
	analysis := api.Group("/analysis")
	analysis.Post("/analyze", rateLimiter.AnalyzeLimit(10000), analysisHandler.Analyze)
	analysis.Get("/jobs/:jobId", rateLimiter.StatusLimit(10000), analysisHandler.Status)
	analysis.Get("/history", rateLimiter.HistoryLimit(10000), analysisHandler.History)

	return &testApp{app: app, jobs: jobs}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.UserClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "totalityengine-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
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
