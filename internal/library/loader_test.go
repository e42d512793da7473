package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snapgloss/snapgloss/internal/cache"
	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/home"
	"github.com/snapgloss/snapgloss/internal/media"
	"github.com/snapgloss/snapgloss/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedDocs stores n documents with descending creation times so doc-00
// lists first.
func seedDocs(st *store.MockStore, n int) {
	base := time.Now().UTC()
	for i := 0; i < n; i++ {
		st.Seed(&document.Document{
			ID:        fmt.Sprintf("doc-%02d", i),
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
			Script:    document.ScriptSimplified,
			Entries: []document.Entry{
				{ID: "e0", Text: "你好", Status: document.StatusAnnotated},
			},
		})
	}
}

func newTestLoader(st store.Store, opts ...func(*Config)) *Loader {
	cfg := Config{
		Store:            st,
		Logger:           discardLogger(),
		PageSize:         20,
		PreloadThreshold: 5,
		ThrottleInterval: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewLoader(cfg)
}

func TestLoader_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("initial load of a full page has more", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 25)
		l := newTestLoader(st)
		defer l.Close()

		if got := l.State(); got != StateIdle {
			t.Fatalf("state = %q, want idle", got)
		}
		if err := l.LoadInitial(ctx); err != nil {
			t.Fatalf("LoadInitial: %v", err)
		}
		if got := l.State(); got != StateHasMore {
			t.Errorf("state = %q, want has_more", got)
		}
		items := l.Items()
		if len(items) != 20 {
			t.Fatalf("items = %d, want 20", len(items))
		}
		if items[0].ID != "doc-00" {
			t.Errorf("first item = %q, want doc-00 (newest first)", items[0].ID)
		}
	})

	t.Run("short page completes the window", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 25)
		l := newTestLoader(st)
		defer l.Close()

		if err := l.LoadInitial(ctx); err != nil {
			t.Fatalf("LoadInitial: %v", err)
		}
		if err := l.LoadMore(ctx); err != nil {
			t.Fatalf("LoadMore: %v", err)
		}
		if got := l.State(); got != StateCompleted {
			t.Errorf("state = %q, want completed", got)
		}
		if got := len(l.Items()); got != 25 {
			t.Errorf("items = %d, want 25", got)
		}

		// Completed windows ignore further load requests.
		before := st.PageCalls()
		if err := l.LoadMore(ctx); err != nil {
			t.Fatalf("LoadMore after completion: %v", err)
		}
		if st.PageCalls() != before {
			t.Errorf("page calls = %d, want %d", st.PageCalls(), before)
		}
	})

	t.Run("exact multiple ends on an empty page", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 20)
		l := newTestLoader(st)
		defer l.Close()

		if err := l.LoadInitial(ctx); err != nil {
			t.Fatalf("LoadInitial: %v", err)
		}
		if got := l.State(); got != StateHasMore {
			t.Fatalf("state = %q, want has_more", got)
		}
		if err := l.LoadMore(ctx); err != nil {
			t.Fatalf("LoadMore: %v", err)
		}
		if got := l.State(); got != StateCompleted {
			t.Errorf("state = %q, want completed", got)
		}
		if got := len(l.Items()); got != 20 {
			t.Errorf("items = %d, want 20", got)
		}
	})

	t.Run("failure enters error and retry recovers", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 5)
		st.PageErr = errors.New("defradb down")
		l := newTestLoader(st)
		defer l.Close()

		if err := l.LoadInitial(ctx); err == nil {
			t.Fatal("expected load failure")
		}
		if got := l.State(); got != StateError {
			t.Fatalf("state = %q, want error", got)
		}
		if l.Err() == nil {
			t.Fatal("Err() = nil after failure")
		}

		st.PageErr = nil
		if err := l.Retry(ctx); err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if got := l.State(); got != StateCompleted {
			t.Errorf("state = %q, want completed", got)
		}
		if got := len(l.Items()); got != 5 {
			t.Errorf("items = %d, want 5", got)
		}
		if l.Err() != nil {
			t.Errorf("Err() = %v after recovery, want nil", l.Err())
		}
	})

	t.Run("retry outside the error state is a no-op", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 5)
		l := newTestLoader(st)
		defer l.Close()

		if err := l.LoadInitial(ctx); err != nil {
			t.Fatalf("LoadInitial: %v", err)
		}
		before := st.PageCalls()
		if err := l.Retry(ctx); err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if st.PageCalls() != before {
			t.Errorf("page calls = %d, want %d", st.PageCalls(), before)
		}
	})

	t.Run("load initial resets a completed window", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 5)
		l := newTestLoader(st)
		defer l.Close()

		if err := l.LoadInitial(ctx); err != nil {
			t.Fatalf("LoadInitial: %v", err)
		}
		if err := l.LoadInitial(ctx); err != nil {
			t.Fatalf("second LoadInitial: %v", err)
		}
		if got := len(l.Items()); got != 5 {
			t.Errorf("items = %d, want 5 (window reset, not doubled)", got)
		}
	})
}

// gateStore blocks FetchPage until the gate opens, exposing the in-flight
// window for concurrency assertions.
type gateStore struct {
	*store.MockStore
	gate  chan struct{}
	calls atomic.Int64
}

func (g *gateStore) FetchPage(ctx context.Context, offset, limit int) ([]document.Metadata, error) {
	g.calls.Add(1)
	<-g.gate
	return g.MockStore.FetchPage(ctx, offset, limit)
}

func TestLoader_LoadingGuard(t *testing.T) {
	inner := store.NewMockStore()
	seedDocs(inner, 40)
	gs := &gateStore{MockStore: inner, gate: make(chan struct{})}
	l := newTestLoader(gs)
	defer l.Close()

	done := make(chan error, 1)
	go func() {
		done <- l.LoadInitial(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for l.State() != StateLoading {
		if time.Now().After(deadline) {
			t.Fatal("loader never entered loading")
		}
		time.Sleep(time.Millisecond)
	}

	// Requests during an in-flight load are dropped, not queued.
	if err := l.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore during load: %v", err)
	}
	if err := l.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial during load: %v", err)
	}
	if got := gs.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}

	close(gs.gate)
	if err := <-done; err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	if got := len(l.Items()); got != 20 {
		t.Errorf("items = %d, want 20", got)
	}
}

func TestLoader_NoteDisplayed(t *testing.T) {
	t.Run("near the tail prefetches the next page", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 40)
		l := newTestLoader(st)
		defer l.Close()

		if err := l.LoadInitial(context.Background()); err != nil {
			t.Fatalf("LoadInitial: %v", err)
		}

		l.NoteDisplayed(15) // 20 items, threshold 5: index 15 is the trigger point

		deadline := time.Now().Add(2 * time.Second)
		for len(l.Items()) != 40 {
			if time.Now().After(deadline) {
				t.Fatalf("prefetch never extended the window: %d items", len(l.Items()))
			}
			time.Sleep(5 * time.Millisecond)
		}
		if got := l.State(); got != StateHasMore {
			t.Errorf("state = %q, want has_more (second page was full)", got)
		}
	})

	t.Run("inside the window does not prefetch", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 40)
		l := newTestLoader(st)
		defer l.Close()

		if err := l.LoadInitial(context.Background()); err != nil {
			t.Fatalf("LoadInitial: %v", err)
		}

		l.NoteDisplayed(14)
		time.Sleep(50 * time.Millisecond)

		if got := st.PageCalls(); got != 1 {
			t.Errorf("page calls = %d, want 1 (no prefetch)", got)
		}
		if got := len(l.Items()); got != 20 {
			t.Errorf("items = %d, want 20", got)
		}
	})

	t.Run("completed windows never prefetch", func(t *testing.T) {
		st := store.NewMockStore()
		seedDocs(st, 5)
		l := newTestLoader(st)
		defer l.Close()

		if err := l.LoadInitial(context.Background()); err != nil {
			t.Fatalf("LoadInitial: %v", err)
		}
		l.NoteDisplayed(4)
		time.Sleep(50 * time.Millisecond)

		if got := st.PageCalls(); got != 1 {
			t.Errorf("page calls = %d, want 1", got)
		}
	})
}

func TestLoader_Document(t *testing.T) {
	caches := cache.NewManager(cache.ManagerConfig{Logger: discardLogger()})
	st := store.NewMockStore()
	seedDocs(st, 1)
	l := newTestLoader(st, func(cfg *Config) { cfg.Caches = caches })
	defer l.Close()

	ctx := context.Background()

	doc, err := l.Document(ctx, "doc-00")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.ID != "doc-00" {
		t.Fatalf("doc id = %q", doc.ID)
	}
	if got := st.FetchCalls(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}

	// Second read comes from the cache.
	again, err := l.Document(ctx, "doc-00")
	if err != nil {
		t.Fatalf("Document (cached): %v", err)
	}
	if got := st.FetchCalls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (cache hit)", got)
	}

	// Callers get independent copies.
	again.Entries[0].Text = "mutated"
	third, err := l.Document(ctx, "doc-00")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if third.Entries[0].Text != "你好" {
		t.Errorf("cached document was mutated through a caller copy: %q", third.Entries[0].Text)
	}

	if _, err := l.Document(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want store.ErrNotFound", err)
	}
}

func TestLoader_ThumbnailPrefetch(t *testing.T) {
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}

	const docID = "doc-00"
	if err := h.EnsureMediaDir(docID); err != nil {
		t.Fatalf("EnsureMediaDir: %v", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 64))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	if err := os.WriteFile(h.OriginalPath(docID, ".png"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	caches := cache.NewManager(cache.ManagerConfig{Logger: discardLogger()})
	st := store.NewMockStore()
	st.Seed(&document.Document{
		ID:        docID,
		CreatedAt: time.Now().UTC(),
		MediaKind: document.MediaImage,
		MediaPath: filepath.Join(home.MediaDirName, docID, "original.png"),
	})

	l := newTestLoader(st, func(cfg *Config) {
		cfg.Caches = caches
		cfg.Images = media.NewImages(h, caches, discardLogger())
	})
	defer l.Close()

	if err := l.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := caches.Thumbnail(docID); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("thumbnail never prefetched")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
