package config

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/snapgloss/snapgloss/internal/defra"
)

// mockDefraServer creates a test server that simulates DefraDB responses.
func mockDefraServer(t *testing.T, handler func(query string) map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health-check" {
			w.WriteHeader(http.StatusOK)
			return
		}

		var req defra.GQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		data := handler(req.Query)
		resp := defra.GQLResponse{Data: data}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestDefraStore_Get(t *testing.T) {
	server := mockDefraServer(t, func(query string) map[string]any {
		if strings.Contains(query, `name: {_eq: "pipeline.concurrency"}`) {
			return map[string]any{
				"Config": []any{
					map[string]any{
						"_docID":      "doc123",
						"name":        "pipeline.concurrency",
						"value":       `4`,
						"description": "Maximum concurrent annotation requests per document",
					},
				},
			}
		}
		return map[string]any{"Config": []any{}}
	})
	defer server.Close()

	client := defra.NewClient(server.URL)
	store := NewStore(client)

	t.Run("existing_key", func(t *testing.T) {
		entry, err := store.Get(t.Context(), "pipeline.concurrency")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if entry == nil {
			t.Fatal("Get() returned nil for existing key")
		}
		if entry.Key != "pipeline.concurrency" {
			t.Errorf("Key = %q, want %q", entry.Key, "pipeline.concurrency")
		}
		// Value is stored as JSON, so it decodes to float64
		if entry.Value != float64(4) {
			t.Errorf("Value = %v, want 4", entry.Value)
		}
	})

	t.Run("non_existent_key", func(t *testing.T) {
		entry, err := store.Get(t.Context(), "does.not.exist")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if entry != nil {
			t.Errorf("Get() = %v, want nil for non-existent key", entry)
		}
	})
}

func TestDefraStore_Set(t *testing.T) {
	t.Run("creates_new_entry", func(t *testing.T) {
		var sawCreate bool
		server := mockDefraServer(t, func(query string) map[string]any {
			if strings.Contains(query, "create_Config") {
				sawCreate = true
				if !strings.Contains(query, `name: "library.page_size"`) {
					t.Errorf("create mutation missing name, got: %s", query)
				}
				return map[string]any{"create_Config": []any{map[string]any{"_docID": "doc1"}}}
			}
			// The existence check finds nothing.
			return map[string]any{"Config": []any{}}
		})
		defer server.Close()

		store := NewStore(defra.NewClient(server.URL))
		if err := store.Set(t.Context(), "library.page_size", 50, "Documents fetched per library page"); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if !sawCreate {
			t.Error("Set() did not issue a create mutation")
		}
	})

	t.Run("updates_existing_entry", func(t *testing.T) {
		var sawUpdate bool
		server := mockDefraServer(t, func(query string) map[string]any {
			if strings.Contains(query, "update_Config") {
				sawUpdate = true
				if !strings.Contains(query, `docID: "doc42"`) {
					t.Errorf("update mutation missing docID, got: %s", query)
				}
				return map[string]any{"update_Config": []any{map[string]any{"_docID": "doc42"}}}
			}
			return map[string]any{
				"Config": []any{
					map[string]any{"_docID": "doc42", "name": "library.page_size", "value": `20`},
				},
			}
		})
		defer server.Close()

		store := NewStore(defra.NewClient(server.URL))
		if err := store.Set(t.Context(), "library.page_size", 50, ""); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if !sawUpdate {
			t.Error("Set() did not issue an update mutation")
		}
	})
}

func TestDefraStore_GetAll(t *testing.T) {
	server := mockDefraServer(t, func(query string) map[string]any {
		return map[string]any{
			"Config": []any{
				map[string]any{
					"_docID":      "doc1",
					"name":        "pipeline.concurrency",
					"value":       `4`,
					"description": "Maximum concurrent annotation requests per document",
				},
				map[string]any{
					"_docID":      "doc2",
					"name":        "library.page_size",
					"value":       `20`,
					"description": "Documents fetched per library page",
				},
			},
		}
	})
	defer server.Close()

	client := defra.NewClient(server.URL)
	store := NewStore(client)

	entries, err := store.GetAll(t.Context())
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("GetAll() returned %d entries, want 2", len(entries))
	}

	if _, ok := entries["pipeline.concurrency"]; !ok {
		t.Error("GetAll() missing key 'pipeline.concurrency'")
	}
	if _, ok := entries["library.page_size"]; !ok {
		t.Error("GetAll() missing key 'library.page_size'")
	}
}

func TestDefraStore_GetByPrefix(t *testing.T) {
	server := mockDefraServer(t, func(query string) map[string]any {
		return map[string]any{
			"Config": []any{
				map[string]any{
					"_docID": "doc1",
					"name":   "cache.image_bytes",
					"value":  `67108864`,
				},
				map[string]any{
					"_docID": "doc2",
					"name":   "cache.image_entries",
					"value":  `64`,
				},
				map[string]any{
					"_docID": "doc3",
					"name":   "library.page_size",
					"value":  `20`,
				},
			},
		}
	})
	defer server.Close()

	client := defra.NewClient(server.URL)
	store := NewStore(client)

	entries, err := store.GetByPrefix(t.Context(), "cache.")
	if err != nil {
		t.Fatalf("GetByPrefix() error = %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("GetByPrefix('cache.') returned %d entries, want 2", len(entries))
	}

	// Should not include library settings
	if _, ok := entries["library.page_size"]; ok {
		t.Error("GetByPrefix() should not include non-matching prefix")
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid simple key", "foo", false},
		{"valid dotted key", "pipeline.concurrency", false},
		{"valid with underscore", "library.page_size", false},
		{"valid with hyphen", "my-setting", false},
		{"valid with numbers", "cache1.budget2", false},
		{"empty key", "", true},
		{"starts with dot", ".foo", true},
		{"ends with dot", "foo.", true},
		{"contains space", "foo bar", true},
		{"contains special char", "foo@bar", true},
		{"contains slash", "foo/bar", true},
		{"contains colon", "foo:bar", true},
		{"contains quote", "foo\"bar", true},
		{"contains curly brace", "foo{bar}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("ValidateKey(%q) error should wrap ErrInvalidKey, got %v", tt.key, err)
			}
		})
	}
}
