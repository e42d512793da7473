package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/snapgloss/snapgloss/internal/async"
	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/metrics"
)

const (
	// OpenAIName identifies the OpenAI annotator.
	OpenAIName = "openai"

	// DefaultModel balances annotation quality against per-line cost.
	DefaultModel = "gpt-4o-mini"

	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 3
	defaultTemperature = 0.1
)

// OpenAIConfig holds configuration for the OpenAI annotation client.
type OpenAIConfig struct {
	APIKey      string
	Model       string           // "gpt-4o-mini" (default)
	ChunkSize   int              // Lines per batch request
	Concurrency int              // Concurrent batch requests
	MaxRetries  int              // Retry attempts for SDK transport
	Timeout     time.Duration    // HTTP timeout
	BaseURL     string           // Optional (tests)
	HTTPClient  *http.Client     // Optional (tests)
	Metrics     metrics.Recorder // Optional usage recording
	Logger      *slog.Logger
}

// OpenAIClient implements StreamAnnotator and BatchAnnotator using the
// official OpenAI SDK.
type OpenAIClient struct {
	model       string
	chunkSize   int
	concurrency int
	client      openai.Client
	metrics     metrics.Recorder
	logger      *slog.Logger
}

var (
	_ StreamAnnotator = (*OpenAIClient)(nil)
	_ BatchAnnotator  = (*OpenAIClient)(nil)
)

// NewOpenAIClient creates a new OpenAI annotation client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = async.DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = async.DefaultConcurrentLimit
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:       cfg.Model,
		chunkSize:   cfg.ChunkSize,
		concurrency: cfg.Concurrency,
		client:      openai.NewClient(opts...),
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With("component", "annotate", "provider", OpenAIName),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// AnnotateStream requests annotations for all texts in a single streaming
// call. The model emits one JSON object per output line; each completed line
// is decoded and handed to onItem as soon as it arrives. Malformed lines are
// skipped, so the stream survives partial model mistakes; coverage is
// verified once the stream ends.
func (c *OpenAIClient) AnnotateStream(ctx context.Context, texts []string, script document.ScriptVariant, onItem func(index int, ann document.Annotation)) error {
	if len(texts) == 0 {
		return nil
	}
	if onItem == nil {
		return fmt.Errorf("onItem callback is required")
	}

	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(streamSystemPrompt),
			openai.UserMessage(buildUserPrompt(texts, script)),
		},
		Temperature: openai.Float(defaultTemperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		usage     openai.CompletionUsage
		pending   string
		delivered = make([]bool, len(texts))
		count     int
	)

	deliver := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			return
		}
		var item annotationItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			c.logger.Warn("skipping malformed annotation line", "error", err)
			return
		}
		if item.Index < 0 || item.Index >= len(texts) {
			c.logger.Warn("annotation line number out of range", "index", item.Index, "lines", len(texts))
			return
		}
		onItem(item.Index, document.Annotation{Pinyin: item.Pinyin, Translation: item.Translation})
		if !delivered[item.Index] {
			delivered[item.Index] = true
			count++
		}
	}

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		pending += chunk.Choices[0].Delta.Content
		for {
			nl := strings.IndexByte(pending, '\n')
			if nl < 0 {
				break
			}
			deliver(pending[:nl])
			pending = pending[nl+1:]
		}
	}
	if err := stream.Err(); err != nil {
		c.record(ctx, metrics.OpAnnotateStream, len(texts), usage, start, err)
		return fmt.Errorf("annotation stream: %w", mapOpenAIError(err))
	}
	// A final line may arrive without a trailing newline.
	deliver(pending)

	if count < len(texts) {
		err := fmt.Errorf("%w: %d of %d lines delivered", ErrIncompleteStream, count, len(texts))
		c.record(ctx, metrics.OpAnnotateStream, len(texts), usage, start, err)
		return err
	}

	c.logger.Debug("annotation stream complete",
		"lines", len(texts),
		"total_tokens", usage.TotalTokens,
		"duration", time.Since(start))
	c.record(ctx, metrics.OpAnnotateStream, len(texts), usage, start, nil)
	return nil
}

// AnnotateBatch annotates texts in structured-output chunks. Chunks run
// concurrently and results come back in input order; the first failing chunk
// cancels the rest.
func (c *OpenAIClient) AnnotateBatch(ctx context.Context, texts []string, script document.ScriptVariant) ([]document.Annotation, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	opts := async.BatchOptions{Size: c.chunkSize, Concurrency: c.concurrency}
	return async.ProcessBatches(ctx, texts, opts, func(ctx context.Context, chunk []string) ([]document.Annotation, error) {
		return c.annotateChunk(ctx, chunk, script)
	})
}

// annotateChunk issues one structured-output request. Line numbers in the
// request are chunk-local; the caller maps chunk results back to global
// positions.
func (c *OpenAIClient) annotateChunk(ctx context.Context, chunk []string, script document.ScriptVariant) ([]document.Annotation, error) {
	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(batchSystemPrompt),
			openai.UserMessage(buildUserPrompt(chunk, script)),
		},
		Temperature: openai.Float(defaultTemperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   annotationsSchemaName,
					Schema: annotationsSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.record(ctx, metrics.OpAnnotateBatch, len(chunk), openai.CompletionUsage{}, start, err)
		return nil, fmt.Errorf("annotation request: %w", mapOpenAIError(err))
	}
	usage := completion.Usage

	if len(completion.Choices) == 0 {
		err := fmt.Errorf("annotation response has no choices")
		c.record(ctx, metrics.OpAnnotateBatch, len(chunk), usage, start, err)
		return nil, err
	}

	result, err := parseBatchResult(completion.Choices[0].Message.Content)
	if err != nil {
		c.record(ctx, metrics.OpAnnotateBatch, len(chunk), usage, start, err)
		return nil, err
	}

	out := make([]document.Annotation, len(chunk))
	filled := make([]bool, len(chunk))
	for _, item := range result.Items {
		if item.Index < 0 || item.Index >= len(chunk) {
			err := fmt.Errorf("annotation line number %d out of range for %d lines", item.Index, len(chunk))
			c.record(ctx, metrics.OpAnnotateBatch, len(chunk), usage, start, err)
			return nil, err
		}
		out[item.Index] = document.Annotation{Pinyin: item.Pinyin, Translation: item.Translation}
		filled[item.Index] = true
	}
	for i, ok := range filled {
		if !ok {
			err := fmt.Errorf("missing annotation for line %d", i)
			c.record(ctx, metrics.OpAnnotateBatch, len(chunk), usage, start, err)
			return nil, err
		}
	}

	c.logger.Debug("annotation chunk complete",
		"lines", len(chunk),
		"total_tokens", usage.TotalTokens,
		"duration", time.Since(start))
	c.record(ctx, metrics.OpAnnotateBatch, len(chunk), usage, start, nil)
	return out, nil
}

func (c *OpenAIClient) record(ctx context.Context, op string, items int, usage openai.CompletionUsage, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	metrics.Attributed(ctx, c.metrics).Record(metrics.Metric{
		Operation:        op,
		Provider:         OpenAIName,
		Model:            c.model,
		PromptTokens:     int(usage.PromptTokens),
		CompletionTokens: int(usage.CompletionTokens),
		TotalTokens:      int(usage.TotalTokens),
		CostUSD:          estimateCostUSD(c.model, usage.PromptTokens, usage.CompletionTokens),
		Items:            items,
		DurationSeconds:  time.Since(start).Seconds(),
		Success:          err == nil,
		ErrorType:        errorType(err),
	})
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("openai error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("openai error (status %d)", apiErr.StatusCode)
	}
	return err
}

func errorType(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return "rate_limited"
		}
		return "api_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrIncompleteStream):
		return "incomplete_stream"
	}
	return "invalid_output"
}

// estimateCostUSD approximates call cost from token usage. Values are USD per
// 1M tokens; unknown models report zero rather than a guess.
func estimateCostUSD(model string, promptTokens, completionTokens int64) float64 {
	m := strings.ToLower(strings.TrimSpace(model))

	var inPer1M, outPer1M float64
	switch {
	case strings.HasPrefix(m, "gpt-4o-mini"):
		inPer1M, outPer1M = 0.15, 0.60
	case strings.HasPrefix(m, "gpt-4o"):
		inPer1M, outPer1M = 2.50, 10.00
	case strings.HasPrefix(m, "gpt-4.1-mini"):
		inPer1M, outPer1M = 0.40, 1.60
	case strings.HasPrefix(m, "gpt-4.1-nano"):
		inPer1M, outPer1M = 0.10, 0.40
	case strings.HasPrefix(m, "gpt-4.1"):
		inPer1M, outPer1M = 2.00, 8.00
	default:
		return 0
	}

	return float64(promptTokens)*(inPer1M/1_000_000.0) + float64(completionTokens)*(outPer1M/1_000_000.0)
}
