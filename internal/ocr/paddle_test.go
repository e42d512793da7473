package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snapgloss/snapgloss/internal/metrics"
)

func paddleOKResponse(lines []paddleLineResult) paddleResponse {
	return paddleResponse{
		Msg:     "",
		Status:  paddleStatusOK,
		Results: [][]paddleLineResult{lines},
	}
}

func TestPaddleClient_Recognize(t *testing.T) {
	t.Run("successful recognition", func(t *testing.T) {
		imageData := []byte("fake png bytes")

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != paddlePredictPath {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("unexpected content-type: %s", ct)
			}

			var req paddleRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			if len(req.Images) != 1 {
				t.Fatalf("expected 1 image, got %d", len(req.Images))
			}
			decoded, err := base64.StdEncoding.DecodeString(req.Images[0])
			if err != nil {
				t.Errorf("image not valid base64: %v", err)
			}
			if string(decoded) != string(imageData) {
				t.Error("decoded image does not match the submitted bytes")
			}

			resp := paddleOKResponse([]paddleLineResult{
				{
					Text:       "你好世界",
					Confidence: 0.98,
					TextRegion: [][2]float64{{10, 20}, {210, 20}, {210, 60}, {10, 60}},
				},
				{
					Text:       "第二行",
					Confidence: 0.91,
					TextRegion: [][2]float64{{10, 80}, {150, 80}, {150, 120}, {10, 120}},
				},
			})
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := NewPaddleClient(PaddleConfig{BaseURL: server.URL})

		lines, err := client.Recognize(context.Background(), imageData)
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(lines))
		}
		if lines[0].Text != "你好世界" {
			t.Errorf("unexpected first line: %q", lines[0].Text)
		}
		if lines[0].Confidence != 0.98 {
			t.Errorf("unexpected confidence: %f", lines[0].Confidence)
		}

		region := lines[0].Region
		if region.X != 10 || region.Y != 20 || region.Width != 200 || region.Height != 40 {
			t.Errorf("unexpected bounding region: %+v", region)
		}
	})

	t.Run("orders lines top to bottom", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := paddleOKResponse([]paddleLineResult{
				{Text: "bottom", Confidence: 0.9, TextRegion: [][2]float64{{0, 300}, {100, 300}, {100, 340}, {0, 340}}},
				{Text: "top", Confidence: 0.9, TextRegion: [][2]float64{{0, 50}, {100, 50}, {100, 90}, {0, 90}}},
				{Text: "middle", Confidence: 0.9, TextRegion: [][2]float64{{0, 150}, {100, 150}, {100, 190}, {0, 190}}},
			})
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := NewPaddleClient(PaddleConfig{BaseURL: server.URL})

		lines, err := client.Recognize(context.Background(), []byte("img"))
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}

		want := []string{"top", "middle", "bottom"}
		for i, text := range want {
			if lines[i].Text != text {
				t.Errorf("position %d: expected %q, got %q", i, text, lines[i].Text)
			}
		}
	})

	t.Run("serving error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(paddleResponse{Msg: "model not loaded", Status: "101"})
		}))
		defer server.Close()

		client := NewPaddleClient(PaddleConfig{BaseURL: server.URL})

		_, err := client.Recognize(context.Background(), []byte("img"))
		if err == nil {
			t.Fatal("expected error for non-OK serving status")
		}
		if !strings.Contains(err.Error(), "101") {
			t.Errorf("expected status code in error, got: %v", err)
		}
	})

	t.Run("retries on server error", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(paddleOKResponse([]paddleLineResult{
				{Text: "recovered", Confidence: 0.9, TextRegion: [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}},
			}))
		}))
		defer server.Close()

		client := NewPaddleClient(PaddleConfig{
			BaseURL:    server.URL,
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
		})

		lines, err := client.Recognize(context.Background(), []byte("img"))
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if got := attempts.Load(); got != 3 {
			t.Errorf("expected 3 attempts, got %d", got)
		}
		if len(lines) != 1 || lines[0].Text != "recovered" {
			t.Errorf("unexpected lines after retry: %+v", lines)
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "bad payload", http.StatusBadRequest)
		}))
		defer server.Close()

		client := NewPaddleClient(PaddleConfig{
			BaseURL:    server.URL,
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
		})

		_, err := client.Recognize(context.Background(), []byte("img"))
		if err == nil {
			t.Fatal("expected error for 400 response")
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("expected 1 attempt for non-retryable status, got %d", got)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewPaddleClient(PaddleConfig{
			BaseURL:    server.URL,
			MaxRetries: 2,
			RetryDelay: time.Millisecond,
		})

		_, err := client.Recognize(context.Background(), []byte("img"))
		if err == nil {
			t.Fatal("expected error after exhausting retries")
		}
		if !strings.Contains(err.Error(), "max retries") {
			t.Errorf("expected max retries error, got: %v", err)
		}
		if got := attempts.Load(); got != 2 {
			t.Errorf("expected 2 attempts, got %d", got)
		}
		if client.LimiterStatus().Last429.IsZero() {
			t.Error("expected 429 recorded in limiter status")
		}
	})

	t.Run("empty image", func(t *testing.T) {
		client := NewPaddleClient(PaddleConfig{BaseURL: "http://unused.invalid"})

		if _, err := client.Recognize(context.Background(), nil); err == nil {
			t.Error("expected error for empty image")
		}
	})

	t.Run("empty results", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(paddleResponse{Status: paddleStatusOK})
		}))
		defer server.Close()

		client := NewPaddleClient(PaddleConfig{BaseURL: server.URL})

		lines, err := client.Recognize(context.Background(), []byte("img"))
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if len(lines) != 0 {
			t.Errorf("expected no lines, got %d", len(lines))
		}
	})
}

func TestPaddleClient_Name(t *testing.T) {
	client := NewPaddleClient(PaddleConfig{})
	if got := client.Name(); got != PaddleName {
		t.Errorf("expected %q, got %q", PaddleName, got)
	}
}

type recordingSink struct {
	got []metrics.Metric
}

func (r *recordingSink) Record(m metrics.Metric) { r.got = append(r.got, m) }

func TestPaddleClient_RecordsMetrics(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := paddleOKResponse([]paddleLineResult{
				{Text: "你好", Confidence: 0.9, TextRegion: [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}},
			})
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		rec := &recordingSink{}
		client := NewPaddleClient(PaddleConfig{BaseURL: server.URL, Metrics: rec})

		if _, err := client.Recognize(context.Background(), []byte("img")); err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}

		if len(rec.got) != 1 {
			t.Fatalf("expected 1 metric, got %d", len(rec.got))
		}
		m := rec.got[0]
		if m.Operation != metrics.OpRecognize || m.Provider != PaddleName {
			t.Errorf("metric attribution = %q/%q", m.Operation, m.Provider)
		}
		if m.Items != 1 || !m.Success || m.ErrorType != "" {
			t.Errorf("metric = %+v", m)
		}
	})

	t.Run("serving failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(paddleResponse{Msg: "model not loaded", Status: "101"})
		}))
		defer server.Close()

		rec := &recordingSink{}
		client := NewPaddleClient(PaddleConfig{BaseURL: server.URL, Metrics: rec})

		if _, err := client.Recognize(context.Background(), []byte("img")); err == nil {
			t.Fatal("expected error")
		}

		if len(rec.got) != 1 {
			t.Fatalf("expected 1 metric, got %d", len(rec.got))
		}
		m := rec.got[0]
		if m.Success || m.ErrorType != "ocr_error" {
			t.Errorf("metric = %+v", m)
		}
	})
}
