package metrics

import "context"

type documentKey struct{}

// WithDocument tags ctx so metrics recorded downstream are attributed to the
// document. Collaborator clients are shared across documents, so attribution
// travels with the request rather than living inside the clients.
func WithDocument(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, documentKey{}, documentID)
}

// DocumentFrom returns the document id carried by ctx, if any.
func DocumentFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(documentKey{}).(string)
	return id, ok && id != ""
}

// Attributed returns r wrapped to stamp the document id carried by ctx.
// Returns r unchanged when ctx carries no document.
func Attributed(ctx context.Context, r Recorder) Recorder {
	if id, ok := DocumentFrom(ctx); ok {
		return DocumentRecorder{DocumentID: id, Next: r}
	}
	return r
}
