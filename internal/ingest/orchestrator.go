// Package ingest turns captured media into annotated documents. The
// orchestrator runs each document through recognition, dispatch, streaming
// annotation and, when the stream dies, a batch fallback:
//
//	collecting → dispatched → streaming → completed
//	                              ↓
//	                        fallbackBatch → completed | failed
//
// The document is owned by a single goroutine for the whole run; streaming
// results cross into it over a channel, so no locking is needed around the
// entry list.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/snapgloss/snapgloss/internal/annotate"
	"github.com/snapgloss/snapgloss/internal/async"
	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/metrics"
	"github.com/snapgloss/snapgloss/internal/ocr"
	"github.com/snapgloss/snapgloss/internal/store"
)

// Defaults applied when Config leaves the corresponding field zero.
const (
	DefaultRecognizeTimeout = 120 * time.Second
	DefaultAnnotateTimeout  = 300 * time.Second
	DefaultConcurrency      = 4
)

// Config wires the orchestrator's collaborators. Recognizer, Streamer,
// Batcher and Store are required.
type Config struct {
	Recognizer ocr.Provider
	Streamer   annotate.StreamAnnotator
	Batcher    annotate.BatchAnnotator
	Store      store.Store
	Logger     *slog.Logger

	// RecognizeTimeout bounds each per-page recognition call.
	RecognizeTimeout time.Duration

	// AnnotateTimeout bounds the streaming call and the batch fallback,
	// each separately.
	AnnotateTimeout time.Duration

	// Concurrency bounds parallel page recognition.
	Concurrency int
}

// Orchestrator drives documents through the ingest pipeline. It is safe for
// concurrent use; each Run owns its document exclusively.
type Orchestrator struct {
	recognizer ocr.Provider
	streamer   annotate.StreamAnnotator
	batcher    annotate.BatchAnnotator
	store      store.Store
	logger     *slog.Logger

	recognizeTimeout time.Duration
	annotateTimeout  time.Duration
	concurrency      int
}

// NewOrchestrator creates an orchestrator from cfg, filling zero fields with
// defaults.
func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RecognizeTimeout <= 0 {
		cfg.RecognizeTimeout = DefaultRecognizeTimeout
	}
	if cfg.AnnotateTimeout <= 0 {
		cfg.AnnotateTimeout = DefaultAnnotateTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		recognizer:       cfg.Recognizer,
		streamer:         cfg.Streamer,
		batcher:          cfg.Batcher,
		store:            cfg.Store,
		logger:           logger.With("component", "ingest"),
		recognizeTimeout: cfg.RecognizeTimeout,
		annotateTimeout:  cfg.AnnotateTimeout,
		concurrency:      cfg.Concurrency,
	}
}

// Request describes one document to ingest.
type Request struct {
	// DocumentID keys the document. A fresh UUID is assigned when empty.
	DocumentID string

	// Images are the encoded page images in page order. A plain screenshot
	// is a single page.
	Images [][]byte

	Script document.ScriptVariant

	// MediaPath and MediaKind describe the stored source blob and are
	// carried onto the document record unchanged.
	MediaPath string
	MediaKind document.MediaKind

	// OnDispatched, when set, receives a snapshot of the document right
	// after dispatch, before any remote annotation work begins. It is
	// invoked synchronously on the Run goroutine.
	OnDispatched func(*document.Document)
}

// Run ingests one document: recognizes every page, persists and announces
// the initial entry list, then annotates the Chinese lines via the streaming
// collaborator with a batch fallback.
//
// Recognition failures and empty results abort with no document created.
// After dispatch, annotation failures degrade per-entry status instead of
// discarding the document; Run returns an error only when both the stream
// and the fallback fail. Timeouts in any phase surface as async.ErrTimeout.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*document.Document, error) {
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("ingest request has no images")
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.New().String()
	}
	// Metrics recorded by collaborators during this run attribute to the
	// document automatically.
	ctx = metrics.WithDocument(ctx, docID)

	logger := o.logger.With("doc_id", docID)
	logger.Info("starting ingest",
		"pages", len(req.Images),
		"script", req.Script,
		"provider", o.recognizer.Name())

	pages, err := o.recognize(ctx, req.Images)
	if err != nil {
		if errors.Is(err, async.ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
	}

	doc, pending, texts := collect(docID, req, pages)
	if len(doc.Entries) == 0 {
		return nil, ErrNoProcessableContent
	}

	// Dispatch: persist and announce before any remote annotation work so
	// the caller can display the recognized document immediately.
	if err := o.store.Save(ctx, doc); err != nil {
		logger.Error("failed to persist document at dispatch", "error", err)
	}
	if req.OnDispatched != nil {
		req.OnDispatched(doc.Clone())
	}
	logger.Info("document dispatched",
		"entries", len(doc.Entries),
		"pending", len(pending))

	if len(pending) == 0 {
		return doc, nil
	}

	streamErr := o.runStreaming(ctx, doc, pending, texts)
	if streamErr == nil {
		logger.Info("ingest complete", "entries", len(doc.Entries))
		return doc, nil
	}
	logger.Warn("annotation stream failed, falling back to batch", "error", streamErr)

	if err := o.runFallback(ctx, doc, pending, texts); err != nil {
		o.degrade(ctx, doc, pending, err)
		return nil, fmt.Errorf("%w: %w (%w: %w)", ErrFallbackFailed, err, ErrStreamingFailed, streamErr)
	}

	logger.Info("ingest complete after fallback", "entries", len(doc.Entries))
	return doc, nil
}

// recognize extracts text lines from every page, bounded by the configured
// concurrency, each page racing the recognition timeout.
func (o *Orchestrator) recognize(ctx context.Context, images [][]byte) ([][]ocr.Line, error) {
	return async.Map(ctx, images, o.concurrency, func(ctx context.Context, _ int, image []byte) ([]ocr.Line, error) {
		return async.WithTimeout(ctx, o.recognizeTimeout, func(ctx context.Context) ([]ocr.Line, error) {
			return o.recognizer.Recognize(ctx, image)
		})
	})
}

// collect builds the initial entry list from recognized pages. Lines with Han
// text get status recognized and their entry positions recorded in pending;
// everything else is pre-structured and needs no remote processing. Entry IDs
// and regions assigned here survive every later update.
func collect(docID string, req Request, pages [][]ocr.Line) (*document.Document, []int, []string) {
	doc := &document.Document{
		ID:        docID,
		CreatedAt: time.Now().UTC(),
		Script:    req.Script,
		MediaPath: req.MediaPath,
		MediaKind: req.MediaKind,
	}

	var pending []int
	var texts []string
	for pageIdx, lines := range pages {
		for _, line := range lines {
			entry := document.Entry{
				ID:     uuid.New().String(),
				Text:   line.Text,
				Region: line.Region,
				Page:   pageIdx + 1,
				Status: document.StatusAnnotated,
			}
			if entry.NeedsAnnotation() {
				entry.Status = document.StatusRecognized
				pending = append(pending, len(doc.Entries))
				texts = append(texts, entry.Text)
			}
			doc.Entries = append(doc.Entries, entry)
		}
	}
	return doc, pending, texts
}

// streamResult is one annotation crossing from the collaborator's callback
// into the consumer loop. index refers to the submitted texts slice.
type streamResult struct {
	index int
	ann   document.Annotation
}

// runStreaming submits texts as one streaming call and applies results as
// they arrive. The collaborator's callbacks feed a channel; a single consumer
// loop on the Run goroutine owns all document mutation, so out-of-order
// callbacks need no locking. Each applied result is persisted fire-and-forget
// through the write sink.
//
// The channel closes only after the collaborator returns, which is what makes
// the callback sends safe; that is also why the phase manages its own timeout
// instead of using async.WithTimeout, which abandons timed-out work.
func (o *Orchestrator) runStreaming(ctx context.Context, doc *document.Document, pending []int, texts []string) error {
	sctx, cancel := context.WithTimeout(ctx, o.annotateTimeout)
	defer cancel()

	results := make(chan streamResult, len(texts))
	errCh := make(chan error, 1)
	go func() {
		errCh <- o.streamer.AnnotateStream(sctx, texts, doc.Script, func(index int, ann document.Annotation) {
			results <- streamResult{index: index, ann: ann}
		})
		close(results)
	}()

	for item := range results {
		if item.index < 0 || item.index >= len(pending) {
			o.logger.Warn("dropping out-of-range stream result",
				"doc_id", doc.ID,
				"index", item.index,
				"pending", len(pending))
			continue
		}
		pos := pending[item.index]
		doc.Entries[pos] = doc.Entries[pos].WithAnnotation(item.ann)
		o.store.SaveAsync(doc)
	}

	err := <-errCh
	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", o.annotateTimeout, async.ErrTimeout)
	}
	return err
}

// runFallback re-annotates the whole pending set through the batch
// collaborator and overwrites every pending entry, including any the stream
// already filled. Redundant for entries that streamed successfully, but the
// stream gives no reliable account of what it delivered before failing.
func (o *Orchestrator) runFallback(ctx context.Context, doc *document.Document, pending []int, texts []string) error {
	anns, err := async.WithTimeout(ctx, o.annotateTimeout, func(ctx context.Context) ([]document.Annotation, error) {
		return o.batcher.AnnotateBatch(ctx, texts, doc.Script)
	})
	if err != nil {
		return err
	}
	if len(anns) != len(texts) {
		return fmt.Errorf("batch returned %d annotations for %d lines", len(anns), len(texts))
	}

	for i, pos := range pending {
		doc.Entries[pos] = doc.Entries[pos].WithAnnotation(anns[i])
	}
	if err := o.store.Update(ctx, doc); err != nil {
		o.logger.Error("failed to persist document after fallback",
			"doc_id", doc.ID,
			"error", err)
	}
	return nil
}

// degrade marks every pending entry the stream never reached as failed and
// persists the document best-effort. Entries the stream did annotate keep
// their annotations.
func (o *Orchestrator) degrade(ctx context.Context, doc *document.Document, pending []int, cause error) {
	reason := cause.Error()
	for _, pos := range pending {
		if doc.Entries[pos].Status == document.StatusRecognized {
			doc.Entries[pos] = doc.Entries[pos].WithFailure(reason)
		}
	}
	if err := o.store.Update(ctx, doc); err != nil {
		o.logger.Error("failed to persist degraded document",
			"doc_id", doc.ID,
			"error", err)
	}
}

// Reannotate re-runs annotation over a stored document using the batch path.
// Every entry with Han text is re-annotated, whatever its current status;
// entry IDs and regions are preserved. Unlike ingest, the rewritten document
// is the operation's only product, so the final persist failure is surfaced
// as ErrPersistenceFailed instead of logged.
func (o *Orchestrator) Reannotate(ctx context.Context, id string) (*document.Document, error) {
	ctx = metrics.WithDocument(ctx, id)

	doc, err := o.store.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	var pending []int
	var texts []string
	for i := range doc.Entries {
		if doc.Entries[i].NeedsAnnotation() {
			pending = append(pending, i)
			texts = append(texts, doc.Entries[i].Text)
		}
	}
	if len(pending) == 0 {
		return doc, nil
	}

	o.logger.Info("reannotating document",
		"doc_id", id,
		"pending", len(pending),
		"provider", o.batcher.Name())

	anns, err := async.WithTimeout(ctx, o.annotateTimeout, func(ctx context.Context) ([]document.Annotation, error) {
		return o.batcher.AnnotateBatch(ctx, texts, doc.Script)
	})
	if err != nil {
		return nil, fmt.Errorf("reannotate document %s: %w", id, err)
	}
	if len(anns) != len(texts) {
		return nil, fmt.Errorf("reannotate document %s: batch returned %d annotations for %d lines", id, len(anns), len(texts))
	}

	for i, pos := range pending {
		doc.Entries[pos] = doc.Entries[pos].WithAnnotation(anns[i])
	}
	if err := o.store.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return doc, nil
}
