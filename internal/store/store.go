package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Errors
var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document version conflict")
)

// Unsubscribe stops delivery for a live subscription. Safe to call more
// than once.
type Unsubscribe func()

// Update is a single partial-overwrite element of a BatchUpdate.
type Update struct {
	Path   string
	Fields map[string]interface{}
}

// Store is the shared mutable document store every participant coordinates
// through. Documents are JSON objects addressed by slash-separated paths.
// Writes are full-document or full-field overwrites; there are no
// transactions across documents. Each document delivers its own mutations
// to subscribers in write order, but nothing orders writes across documents
// or across clients.
type Store interface {
	// GetDocument reads the document at path into out. It reports false
	// with a nil error when the document does not exist.
	GetDocument(ctx context.Context, path string, out interface{}) (bool, error)

	// SetDocument overwrites the document at path. With merge set, fields
	// of value are overlaid onto the existing document instead of replacing
	// it wholesale; the read-merge-write is not atomic against concurrent
	// writers.
	SetDocument(ctx context.Context, path string, value interface{}, merge bool) error

	// UpdateDocument overlays fields onto an existing document. Returns
	// ErrNotFound when the document is absent.
	UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error

	// CreateDocument writes value only if no document exists at path yet.
	// It reports whether this call created the document. First writer wins.
	CreateDocument(ctx context.Context, path string, value interface{}) (bool, error)

	// CompareAndSetDocument overwrites the document at path only when its
	// current "version" field equals expect. Returns ErrConflict on a stale
	// expectation and ErrNotFound when the document is absent. The caller
	// is responsible for bumping the version field inside value.
	CompareAndSetDocument(ctx context.Context, path string, value interface{}, expect int64) error

	// SubscribeDocument delivers the current document immediately, then
	// every remote mutation as it lands. A nil raw with exists=false means
	// the document is (still) absent.
	SubscribeDocument(ctx context.Context, path string, onChange func(raw json.RawMessage, exists bool), onError func(error)) (Unsubscribe, error)

	// SubscribeCollection delivers the full id->document mapping under path
	// immediately and again after every mutation of any member.
	SubscribeCollection(ctx context.Context, path string, onChange func(docs map[string]json.RawMessage), onError func(error)) (Unsubscribe, error)

	// ListCollection is a point read of the full id->document mapping.
	ListCollection(ctx context.Context, path string) (map[string]json.RawMessage, error)

	// BatchUpdate applies each update best-effort and reports the paths
	// that were applied. It is not atomic across documents: a returned
	// error still comes with the list of paths that did succeed.
	BatchUpdate(ctx context.Context, updates []Update) ([]string, error)
}
