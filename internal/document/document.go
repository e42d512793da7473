// Package document defines the core domain model: a Document is an ordered
// collection of recognized text lines (Entries), each optionally carrying a
// derived Annotation (pinyin + translation).
// This package has no dependencies on other snapgloss packages to avoid import cycles.
package document

import (
	"time"
	"unicode"
)

// ScriptVariant identifies the Chinese script a document was captured in.
type ScriptVariant string

const (
	ScriptSimplified  ScriptVariant = "simplified"
	ScriptTraditional ScriptVariant = "traditional"
)

// ParseScriptVariant converts a string to a ScriptVariant.
// Returns ScriptSimplified if the string is not recognized.
func ParseScriptVariant(s string) ScriptVariant {
	if s == string(ScriptTraditional) {
		return ScriptTraditional
	}
	return ScriptSimplified
}

// EntryStatus tracks how far an entry has progressed through processing.
type EntryStatus string

const (
	// StatusPending is the zero state before recognition assigns text.
	StatusPending EntryStatus = "pending"
	// StatusRecognized means the line has text and a region but no annotation yet.
	StatusRecognized EntryStatus = "recognized"
	// StatusAnnotated means pinyin and translation have been attached.
	StatusAnnotated EntryStatus = "annotated"
	// StatusFailed means annotation failed; FailReason carries the cause.
	StatusFailed EntryStatus = "failed"
)

// Annotation is the derived data attached to an entry.
type Annotation struct {
	Pinyin      string `json:"pinyin"`
	Translation string `json:"translation"`
}

// Entry is one recognized line of a document.
//
// ID and Region are assigned once at recognition time and must survive every
// later in-place update, including annotations arriving out of order.
type Entry struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Region Region `json:"region"`

	// Page is the 1-indexed source page the region refers to. Single-image
	// documents have every entry on page 1.
	Page int `json:"page,omitempty"`

	Annotation *Annotation `json:"annotation,omitempty"`
	Status     EntryStatus `json:"status"`
	FailReason string      `json:"fail_reason,omitempty"`
}

// NeedsAnnotation reports whether the entry's text contains Han characters
// and therefore needs remote pinyin/translation processing.
func (e *Entry) NeedsAnnotation() bool {
	return ContainsHan(e.Text)
}

// WithAnnotation returns a copy of the entry carrying the given annotation,
// preserving ID, text and region.
func (e Entry) WithAnnotation(ann Annotation) Entry {
	e.Annotation = &ann
	e.Status = StatusAnnotated
	e.FailReason = ""
	return e
}

// WithFailure returns a copy of the entry marked failed, preserving ID, text
// and region. Any previously attached annotation is kept so a partially
// annotated document does not lose data on a later failure.
func (e Entry) WithFailure(reason string) Entry {
	e.Status = StatusFailed
	e.FailReason = reason
	return e
}

// ContainsHan reports whether s contains at least one Han rune.
func ContainsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// MediaKind identifies what kind of media a document was captured from.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaPDF   MediaKind = "pdf"
)

// Document is an ordered collection of entries plus capture metadata.
// During ingest it is owned exclusively by the orchestrator; afterwards the
// store and caches hold immutable snapshots.
type Document struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Script    ScriptVariant `json:"script"`
	Entries   []Entry       `json:"entries"`

	// MediaPath points at the stored source blob under the home directory.
	MediaPath string    `json:"media_path,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`

	Saved  bool `json:"saved"`
	Pinned bool `json:"pinned"`
}

// Metadata is the projection of a document used by paginated listings.
type Metadata struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	Script     ScriptVariant `json:"script"`
	EntryCount int           `json:"entry_count"`
	Saved      bool          `json:"saved"`
	Pinned     bool          `json:"pinned"`
}

// Meta returns the listing projection of the document.
func (d *Document) Meta() Metadata {
	return Metadata{
		ID:         d.ID,
		CreatedAt:  d.CreatedAt,
		Script:     d.Script,
		EntryCount: len(d.Entries),
		Saved:      d.Saved,
		Pinned:     d.Pinned,
	}
}

// Clone returns a deep copy of the document. Caches hand out clones so
// callers can never mutate a cached value in place.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Entries = make([]Entry, len(d.Entries))
	copy(cp.Entries, d.Entries)
	for i, e := range d.Entries {
		if e.Annotation != nil {
			ann := *e.Annotation
			cp.Entries[i].Annotation = &ann
		}
	}
	return &cp
}

// entryOverhead approximates the fixed per-entry struct footprint for cache
// accounting, on top of the string payloads counted exactly.
const entryOverhead = 96

// ByteCost returns the approximate cost of holding the document in memory.
func (d *Document) ByteCost() int64 {
	cost := int64(len(d.ID) + len(d.MediaPath) + 128)
	for i := range d.Entries {
		e := &d.Entries[i]
		cost += int64(len(e.ID)+len(e.Text)+len(e.FailReason)) + entryOverhead
		if e.Annotation != nil {
			cost += int64(len(e.Annotation.Pinyin) + len(e.Annotation.Translation))
		}
	}
	return cost
}

// AnnotatedCount returns how many entries carry an annotation.
func (d *Document) AnnotatedCount() int {
	n := 0
	for i := range d.Entries {
		if d.Entries[i].Status == StatusAnnotated && d.Entries[i].Annotation != nil {
			n++
		}
	}
	return n
}

// FailedCount returns how many entries are in the failed state.
func (d *Document) FailedCount() int {
	n := 0
	for i := range d.Entries {
		if d.Entries[i].Status == StatusFailed {
			n++
		}
	}
	return n
}
