package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/snapgloss/snapgloss/internal/defra"
	"github.com/snapgloss/snapgloss/internal/document"
)

func testDocument() *document.Document {
	return &document.Document{
		ID:        "doc-1",
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC),
		Script:    document.ScriptSimplified,
		MediaKind: document.MediaImage,
		MediaPath: "media/doc-1.png",
		Saved:     true,
		Entries: []document.Entry{
			{
				ID:     "e-1",
				Text:   "你好世界",
				Region: document.Region{X: 10, Y: 20, Width: 200, Height: 40},
				Status: document.StatusAnnotated,
				Annotation: &document.Annotation{
					Pinyin:      "nǐ hǎo shì jiè",
					Translation: "hello world",
				},
			},
			{
				ID:         "e-2",
				Text:       "再见",
				Region:     document.Region{X: 10, Y: 70, Width: 80, Height: 40},
				Status:     document.StatusFailed,
				FailReason: "annotation timed out",
			},
			{
				ID:     "e-3",
				Text:   "Chapter 1",
				Region: document.Region{X: 10, Y: 120, Width: 120, Height: 40},
				Status: document.StatusRecognized,
			},
		},
	}
}

func TestStore_Save(t *testing.T) {
	var receivedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req defra.GQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		receivedQuery = req.Query

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"upsert_Document": [{"_docID": "bae-abc"}]}}`))
	}))
	defer server.Close()

	s := NewStore(defra.NewClient(server.URL), nil, nil)
	if err := s.Save(context.Background(), testDocument()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, want := range []string{
		"upsert_Document",
		`filter: {doc_id: {_eq: "doc-1"}}`,
		`doc_id: "doc-1"`,
		"entry_count: 3",
		"saved: true",
		`entries: "[`,
	} {
		if !strings.Contains(receivedQuery, want) {
			t.Errorf("mutation missing %q: %s", want, receivedQuery)
		}
	}
}

func TestStore_Save_InvalidID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for an invalid id")
	}))
	defer server.Close()

	s := NewStore(defra.NewClient(server.URL), nil, nil)
	doc := testDocument()
	doc.ID = `x"}) { _docID } }`

	if err := s.Save(context.Background(), doc); err == nil {
		t.Fatal("Save() with injection id should fail")
	}
}

// TestStore_RoundTrip drives a document through the wire encoding both ways:
// the stub answers the fetch query with exactly the fields a Save would have
// written, and the decoded document must match the original.
func TestStore_RoundTrip(t *testing.T) {
	orig := testDocument()

	input, err := toInput(orig)
	if err != nil {
		t.Fatalf("toInput() error = %v", err)
	}

	respBody, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"Document": []any{input},
		},
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(respBody)
	}))
	defer server.Close()

	s := NewStore(defra.NewClient(server.URL), nil, nil)
	got, err := s.Fetch(context.Background(), orig.ID)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if got.ID != orig.ID {
		t.Errorf("ID = %q, want %q", got.ID, orig.ID)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, orig.CreatedAt)
	}
	if got.Script != orig.Script {
		t.Errorf("Script = %q, want %q", got.Script, orig.Script)
	}
	if got.MediaKind != orig.MediaKind || got.MediaPath != orig.MediaPath {
		t.Errorf("media = %q %q, want %q %q", got.MediaKind, got.MediaPath, orig.MediaKind, orig.MediaPath)
	}
	if got.Saved != orig.Saved || got.Pinned != orig.Pinned {
		t.Errorf("flags = %v %v, want %v %v", got.Saved, got.Pinned, orig.Saved, orig.Pinned)
	}
	if len(got.Entries) != len(orig.Entries) {
		t.Fatalf("len(Entries) = %d, want %d", len(got.Entries), len(orig.Entries))
	}
	for i, want := range orig.Entries {
		e := got.Entries[i]
		if e.ID != want.ID || e.Text != want.Text || e.Region != want.Region {
			t.Errorf("entry %d = %+v, want %+v", i, e, want)
		}
		if e.Status != want.Status || e.FailReason != want.FailReason {
			t.Errorf("entry %d status = %q/%q, want %q/%q", i, e.Status, e.FailReason, want.Status, want.FailReason)
		}
		if (e.Annotation == nil) != (want.Annotation == nil) {
			t.Errorf("entry %d annotation presence mismatch", i)
		} else if e.Annotation != nil && *e.Annotation != *want.Annotation {
			t.Errorf("entry %d annotation = %+v, want %+v", i, *e.Annotation, *want.Annotation)
		}
	}
}

func TestStore_Fetch_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Document": []}}`))
	}))
	defer server.Close()

	s := NewStore(defra.NewClient(server.URL), nil, nil)
	_, err := s.Fetch(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Fetch_CorruptEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Document": [{"doc_id": "doc-1", "entries": "not json"}]}}`))
	}))
	defer server.Close()

	s := NewStore(defra.NewClient(server.URL), nil, nil)
	_, err := s.Fetch(context.Background(), "doc-1")
	if err == nil || !strings.Contains(err.Error(), "decode entries") {
		t.Fatalf("Fetch() error = %v, want entries decode failure", err)
	}
}

func TestStore_FetchPage(t *testing.T) {
	var receivedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req defra.GQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		receivedQuery = req.Query

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Document": [
			{"doc_id": "doc-2", "created_at": "2026-03-15T08:00:00Z", "script": "traditional", "entry_count": 5, "saved": true, "pinned": false},
			{"doc_id": "doc-1", "created_at": "2026-03-14T09:30:00Z", "script": "simplified", "entry_count": 3, "saved": false, "pinned": true}
		]}}`))
	}))
	defer server.Close()

	s := NewStore(defra.NewClient(server.URL), nil, nil)
	metas, err := s.FetchPage(context.Background(), 40, 20)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	for _, want := range []string{"order: {created_at: DESC}", "limit: 20", "offset: 40"} {
		if !strings.Contains(receivedQuery, want) {
			t.Errorf("query missing %q: %s", want, receivedQuery)
		}
	}

	if len(metas) != 2 {
		t.Fatalf("len(metas) = %d, want 2", len(metas))
	}
	first := metas[0]
	if first.ID != "doc-2" || first.Script != document.ScriptTraditional || first.EntryCount != 5 || !first.Saved {
		t.Errorf("metas[0] = %+v", first)
	}
	if !first.CreatedAt.Equal(time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("metas[0].CreatedAt = %v", first.CreatedAt)
	}
	if second := metas[1]; second.ID != "doc-1" || !second.Pinned {
		t.Errorf("metas[1] = %+v", second)
	}
}

func TestStore_FetchPage_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Document": []}}`))
	}))
	defer server.Close()

	s := NewStore(defra.NewClient(server.URL), nil, nil)
	metas, err := s.FetchPage(context.Background(), 0, 20)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("len(metas) = %d, want 0", len(metas))
	}
}

func TestStore_Update(t *testing.T) {
	t.Run("existing document", func(t *testing.T) {
		var receivedQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req defra.GQLRequest
			json.NewDecoder(r.Body).Decode(&req)
			receivedQuery = req.Query

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": {"update_Document": [{"_docID": "bae-abc"}]}}`))
		}))
		defer server.Close()

		s := NewStore(defra.NewClient(server.URL), nil, nil)
		if err := s.Update(context.Background(), testDocument()); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		for _, want := range []string{"update_Document", `filter: {doc_id: {_eq: "doc-1"}}`} {
			if !strings.Contains(receivedQuery, want) {
				t.Errorf("mutation missing %q: %s", want, receivedQuery)
			}
		}
	})

	t.Run("missing document", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": {"update_Document": []}}`))
		}))
		defer server.Close()

		s := NewStore(defra.NewClient(server.URL), nil, nil)
		err := s.Update(context.Background(), testDocument())
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Update() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_SetFlags(t *testing.T) {
	t.Run("saved only", func(t *testing.T) {
		var receivedQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req defra.GQLRequest
			json.NewDecoder(r.Body).Decode(&req)
			receivedQuery = req.Query

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": {"update_Document": [{"_docID": "bae-abc"}]}}`))
		}))
		defer server.Close()

		s := NewStore(defra.NewClient(server.URL), nil, nil)
		saved := true
		if err := s.SetFlags(context.Background(), "doc-1", &saved, nil); err != nil {
			t.Fatalf("SetFlags() error = %v", err)
		}
		if !strings.Contains(receivedQuery, "saved: true") {
			t.Errorf("mutation missing saved flag: %s", receivedQuery)
		}
		if strings.Contains(receivedQuery, "pinned") {
			t.Errorf("mutation should not touch pinned: %s", receivedQuery)
		}
	})

	t.Run("no flags is a no-op", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("server should not be called when both flags are nil")
		}))
		defer server.Close()

		s := NewStore(defra.NewClient(server.URL), nil, nil)
		if err := s.SetFlags(context.Background(), "doc-1", nil, nil); err != nil {
			t.Fatalf("SetFlags() error = %v", err)
		}
	})

	t.Run("missing document", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": {"update_Document": []}}`))
		}))
		defer server.Close()

		s := NewStore(defra.NewClient(server.URL), nil, nil)
		pinned := true
		err := s.SetFlags(context.Background(), "missing", nil, &pinned)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("SetFlags() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	t.Run("existing document", func(t *testing.T) {
		var receivedQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req defra.GQLRequest
			json.NewDecoder(r.Body).Decode(&req)
			receivedQuery = req.Query

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": {"delete_Document": [{"_docID": "bae-abc"}]}}`))
		}))
		defer server.Close()

		s := NewStore(defra.NewClient(server.URL), nil, nil)
		if err := s.Delete(context.Background(), "doc-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if !strings.Contains(receivedQuery, `delete_Document(filter: {doc_id: {_eq: "doc-1"}})`) {
			t.Errorf("unexpected mutation: %s", receivedQuery)
		}
	})

	t.Run("missing document", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": {"delete_Document": []}}`))
		}))
		defer server.Close()

		s := NewStore(defra.NewClient(server.URL), nil, nil)
		err := s.Delete(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Delete() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_Count(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Document": [
			{"_docID": "bae-1"}, {"_docID": "bae-2"}, {"_docID": "bae-3"}
		]}}`))
	}))
	defer server.Close()

	s := NewStore(defra.NewClient(server.URL), nil, nil)
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestStore_SaveAsync(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req defra.GQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		select {
		case received <- req.Query:
		default:
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"upsert_Document": [{"_docID": "bae-abc"}]}}`))
	}))
	defer server.Close()

	client := defra.NewClient(server.URL)
	sink := defra.NewSink(defra.SinkConfig{
		Client:        client,
		BatchSize:     1,
		FlushInterval: 50 * time.Millisecond,
	})
	sink.Start(context.Background())
	defer sink.Stop()

	s := NewStore(client, sink, nil)
	s.SaveAsync(testDocument())

	select {
	case query := <-received:
		for _, want := range []string{"upsert_Document", `doc_id: {_eq: "doc-1"}`} {
			if !strings.Contains(query, want) {
				t.Errorf("mutation missing %q: %s", want, query)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async save")
	}
}
