package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/metrics"
)

const (
	PaddleName = "paddleocr"

	// DefaultPaddleBaseURL is the default address of a local
	// paddlehub serving instance.
	DefaultPaddleBaseURL = "http://localhost:8868"

	paddlePredictPath = "/predict/ocr_system"

	// paddleStatusOK is the serving layer's success code.
	paddleStatusOK = "000"
)

// PaddleConfig holds configuration for the PaddleOCR client.
type PaddleConfig struct {
	BaseURL           string
	Timeout           time.Duration    // per-request HTTP timeout (default: 60s)
	RequestsPerMinute int              // token bucket budget (default: 120)
	MaxRetries        int              // attempts per Recognize call (default: 3)
	RetryDelay        time.Duration    // base backoff delay (default: 500ms)
	Metrics           metrics.Recorder // optional usage recording
	Logger            *slog.Logger
}

// PaddleClient implements Provider against a PaddleOCR serving endpoint.
type PaddleClient struct {
	baseURL    string
	client     *http.Client
	limiter    *RateLimiter
	maxRetries int
	retryDelay time.Duration
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewPaddleClient creates a PaddleOCR client.
func NewPaddleClient(cfg PaddleConfig) *PaddleClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPaddleBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &PaddleClient{
		baseURL:    cfg.BaseURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    NewRateLimiter(cfg.RequestsPerMinute),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With("component", "ocr", "provider", PaddleName),
	}
}

// Name returns the provider identifier.
func (c *PaddleClient) Name() string {
	return PaddleName
}

// LimiterStatus returns the rate limiter snapshot.
func (c *PaddleClient) LimiterStatus() RateLimiterStatus {
	return c.limiter.Status()
}

// Recognize extracts positioned text lines from an encoded image.
func (c *PaddleClient) Recognize(ctx context.Context, image []byte) ([]Line, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	reqBody := paddleRequest{
		Images: []string{base64.StdEncoding.EncodeToString(image)},
	}

	resp, err := c.doRequest(ctx, paddlePredictPath, reqBody)
	if err != nil {
		c.record(ctx, 0, start, err)
		return nil, err
	}
	if resp.Status != paddleStatusOK {
		err := fmt.Errorf("paddleocr status %s: %s", resp.Status, resp.Msg)
		c.record(ctx, 0, start, err)
		return nil, err
	}
	if len(resp.Results) == 0 {
		c.record(ctx, 0, start, nil)
		return nil, nil
	}

	lines := make([]Line, 0, len(resp.Results[0]))
	for _, res := range resp.Results[0] {
		if res.Text == "" {
			continue
		}
		lines = append(lines, Line{
			Text:       res.Text,
			Region:     document.BoundingRegion(res.TextRegion),
			Confidence: res.Confidence,
		})
	}

	// Reading order: top to bottom, then left to right. The serving layer
	// is usually already sorted, but entry indices downstream depend on it.
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Region.Y != lines[j].Region.Y {
			return lines[i].Region.Y < lines[j].Region.Y
		}
		return lines[i].Region.X < lines[j].Region.X
	})

	c.logger.Debug("recognized image",
		"lines", len(lines),
		"bytes", len(image),
		"duration", time.Since(start))

	c.record(ctx, len(lines), start, nil)
	return lines, nil
}

func (c *PaddleClient) record(ctx context.Context, items int, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	metrics.Attributed(ctx, c.metrics).Record(metrics.Metric{
		Operation:       metrics.OpRecognize,
		Provider:        PaddleName,
		Items:           items,
		DurationSeconds: time.Since(start).Seconds(),
		Success:         err == nil,
		ErrorType:       recognizeErrorType(err),
	})
}

func recognizeErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "ocr_error"
	}
}

// doRequest posts the payload with retries on transient failures.
func (c *PaddleClient) doRequest(ctx context.Context, path string, body any) (*paddleResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.Record429()
			lastErr = fmt.Errorf("paddleocr rate limited (status 429)")
			c.sleepWithJitter(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("paddleocr error (status %d): %s", resp.StatusCode, string(respBody))
			c.sleepWithJitter(ctx, attempt)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("paddleocr error (status %d): %s", resp.StatusCode, string(respBody))
		}

		var out paddleResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return &out, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// sleepWithJitter backs off exponentially with -20%/+30% jitter, respecting
// context cancellation.
func (c *PaddleClient) sleepWithJitter(ctx context.Context, attempt int) {
	delay := c.retryDelay * time.Duration(1<<attempt)
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	jittered := time.Duration(float64(delay) * (0.8 + 0.5*float64(time.Now().UnixNano()%1000)/1000))

	select {
	case <-ctx.Done():
	case <-time.After(jittered):
	}
}

// PaddleOCR serving wire types.

type paddleRequest struct {
	Images []string `json:"images"`
}

type paddleResponse struct {
	Msg     string               `json:"msg"`
	Status  string               `json:"status"`
	Results [][]paddleLineResult `json:"results"`
}

type paddleLineResult struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	TextRegion [][2]float64 `json:"text_region"`
}

// Verify interface
var _ Provider = (*PaddleClient)(nil)
