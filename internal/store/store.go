// Package store persists documents in DefraDB. Records are keyed on the
// document's own id (the doc_id field), so callers never track DefraDB's
// internal docIDs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snapgloss/snapgloss/internal/defra"
	"github.com/snapgloss/snapgloss/internal/document"
)

// Collection is the DefraDB collection documents live in.
const Collection = "Document"

// ErrNotFound is returned when no document matches the requested id.
var ErrNotFound = errors.New("document not found")

// Store is the persistence boundary for documents.
type Store interface {
	// Save creates the document, or replaces an existing record with the
	// same id.
	Save(ctx context.Context, doc *document.Document) error

	// SaveAsync queues the document through the write sink and returns
	// immediately. Failures are logged, never raised.
	SaveAsync(doc *document.Document)

	// Update rewrites an existing document record.
	Update(ctx context.Context, doc *document.Document) error

	// Fetch returns the document with the given id.
	Fetch(ctx context.Context, id string) (*document.Document, error)

	// FetchPage returns a page of document metadata, newest first.
	FetchPage(ctx context.Context, offset, limit int) ([]document.Metadata, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// SetFlags updates the saved/pinned flags without rewriting entries.
	// A nil pointer leaves the corresponding flag untouched.
	SetFlags(ctx context.Context, id string, saved, pinned *bool) error

	// Delete removes the document with the given id.
	Delete(ctx context.Context, id string) error
}

// DefraStore implements Store over a DefraDB client. Synchronous writes go
// straight to the client; SaveAsync rides the shared write sink.
type DefraStore struct {
	client *defra.Client
	sink   *defra.Sink
	logger *slog.Logger
}

// NewStore creates a DefraDB-backed document store. The sink may be nil if
// SaveAsync is never used.
func NewStore(client *defra.Client, sink *defra.Sink, logger *slog.Logger) *DefraStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefraStore{
		client: client,
		sink:   sink,
		logger: logger.With("component", "store"),
	}
}

func idFilter(id string) map[string]any {
	return map[string]any{"doc_id": map[string]any{"_eq": id}}
}

// Save creates or replaces the record for doc.ID.
func (s *DefraStore) Save(ctx context.Context, doc *document.Document) error {
	if err := defra.ValidateID(doc.ID); err != nil {
		return err
	}
	input, err := toInput(doc)
	if err != nil {
		return err
	}
	if _, err := s.client.Upsert(ctx, Collection, idFilter(doc.ID), input, input); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// SaveAsync queues an upsert for doc through the sink. Encoding errors and a
// stopped sink drop the op with a log line; persistence during streaming is
// non-fatal.
func (s *DefraStore) SaveAsync(doc *document.Document) {
	input, err := toInput(doc)
	if err != nil {
		s.logger.Error("failed to encode document for async save",
			"doc_id", doc.ID,
			"error", err)
		return
	}
	s.sink.Send(defra.WriteOp{
		Collection: Collection,
		Op:         defra.OpUpsert,
		Filter:     idFilter(doc.ID),
		Document:   input,
	})
}

// Update rewrites the record for doc.ID. Returns ErrNotFound if no record
// matches.
func (s *DefraStore) Update(ctx context.Context, doc *document.Document) error {
	if err := defra.ValidateID(doc.ID); err != nil {
		return err
	}
	input, err := toInput(doc)
	if err != nil {
		return err
	}
	n, err := s.client.UpdateWhere(ctx, Collection, idFilter(doc.ID), input)
	if err != nil {
		return fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, doc.ID)
	}
	return nil
}

// Fetch returns the document with the given id, or ErrNotFound.
func (s *DefraStore) Fetch(ctx context.Context, id string) (*document.Document, error) {
	if err := defra.ValidateID(id); err != nil {
		return nil, err
	}

	resp, err := defra.NewQuery(Collection).
		Filter("doc_id", id).
		Fields("doc_id", "created_at", "script", "media_kind", "media_path",
			"saved", "pinned", "entries").
		Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", id, err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("fetch document %s: graphql error: %s", id, errMsg)
	}

	records, err := collectionRecords(resp.Data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fromRecord(records[0])
}

// FetchPage returns up to limit metadata entries starting at offset, ordered
// newest first.
func (s *DefraStore) FetchPage(ctx context.Context, offset, limit int) ([]document.Metadata, error) {
	resp, err := defra.NewQuery(Collection).
		Fields("doc_id", "created_at", "script", "entry_count", "saved", "pinned").
		OrderBy("created_at", "DESC").
		Offset(offset).
		Limit(limit).
		Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("fetch page: graphql error: %s", errMsg)
	}

	records, err := collectionRecords(resp.Data)
	if err != nil {
		return nil, err
	}

	metas := make([]document.Metadata, 0, len(records))
	for _, m := range records {
		metas = append(metas, metaFromRecord(m))
	}
	return metas, nil
}

// Count returns the number of stored documents. DefraDB has no aggregate
// endpoint we use, so this lists ids and counts them.
func (s *DefraStore) Count(ctx context.Context) (int, error) {
	resp, err := defra.NewQuery(Collection).Execute(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return 0, fmt.Errorf("count documents: graphql error: %s", errMsg)
	}

	records, err := collectionRecords(resp.Data)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// SetFlags updates saved and/or pinned for the document with the given id.
// Nil pointers leave flags untouched. Returns ErrNotFound if no record
// matches.
func (s *DefraStore) SetFlags(ctx context.Context, id string, saved, pinned *bool) error {
	if err := defra.ValidateID(id); err != nil {
		return err
	}
	input := map[string]any{}
	if saved != nil {
		input["saved"] = *saved
	}
	if pinned != nil {
		input["pinned"] = *pinned
	}
	if len(input) == 0 {
		return nil
	}

	n, err := s.client.UpdateWhere(ctx, Collection, idFilter(id), input)
	if err != nil {
		return fmt.Errorf("set flags on document %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes the record for id. Returns ErrNotFound if nothing matched.
func (s *DefraStore) Delete(ctx context.Context, id string) error {
	if err := defra.ValidateID(id); err != nil {
		return err
	}
	n, err := s.client.DeleteWhere(ctx, Collection, idFilter(id))
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// toInput flattens a document into DefraDB fields. Entries travel as a JSON
// array in a String field; nothing queries inside them.
func toInput(doc *document.Document) (map[string]any, error) {
	entries, err := json.Marshal(doc.Entries)
	if err != nil {
		return nil, fmt.Errorf("marshal entries: %w", err)
	}
	return map[string]any{
		"doc_id":      doc.ID,
		"created_at":  doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		"script":      string(doc.Script),
		"media_kind":  string(doc.MediaKind),
		"media_path":  doc.MediaPath,
		"saved":       doc.Saved,
		"pinned":      doc.Pinned,
		"entry_count": len(doc.Entries),
		"entries":     string(entries),
	}, nil
}

// fromRecord rebuilds a document from a GraphQL record.
func fromRecord(m map[string]any) (*document.Document, error) {
	doc := &document.Document{
		ID:        getString(m, "doc_id"),
		Script:    document.ParseScriptVariant(getString(m, "script")),
		MediaKind: document.MediaKind(getString(m, "media_kind")),
		MediaPath: getString(m, "media_path"),
		Saved:     getBool(m, "saved"),
		Pinned:    getBool(m, "pinned"),
	}
	if ca := getString(m, "created_at"); ca != "" {
		t, err := time.Parse(time.RFC3339Nano, ca)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", doc.ID, err)
		}
		doc.CreatedAt = t
	}
	if raw := getString(m, "entries"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc.Entries); err != nil {
			return nil, fmt.Errorf("decode entries for %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func metaFromRecord(m map[string]any) document.Metadata {
	meta := document.Metadata{
		ID:         getString(m, "doc_id"),
		Script:     document.ParseScriptVariant(getString(m, "script")),
		EntryCount: getInt(m, "entry_count"),
		Saved:      getBool(m, "saved"),
		Pinned:     getBool(m, "pinned"),
	}
	if ca := getString(m, "created_at"); ca != "" {
		if t, err := time.Parse(time.RFC3339Nano, ca); err == nil {
			meta.CreatedAt = t
		}
	}
	return meta
}

// collectionRecords pulls the Document list out of query response data.
// Malformed items are skipped with a warning rather than failing the page.
func collectionRecords(data map[string]any) ([]map[string]any, error) {
	raw, ok := data[Collection]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected %s type: %T", Collection, raw)
	}

	records := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			slog.Warn("skipping malformed document record",
				"index", i,
				"type", fmt.Sprintf("%T", item))
			continue
		}
		records = append(records, m)
	}
	return records, nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// getInt reads a numeric field. GraphQL numbers decode as float64.
func getInt(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}
