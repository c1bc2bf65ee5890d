package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store with synchronous change delivery.
// It backs tests and single-process local play; semantics mirror RedisStore
// (merge writes are last-writer-wins, no cross-document atomicity).
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string]json.RawMessage
	nextSub int
	docSubs map[string]map[int]func(json.RawMessage, bool)
	colSubs map[string]map[int]func(map[string]json.RawMessage)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]json.RawMessage),
		docSubs: make(map[string]map[int]func(json.RawMessage, bool)),
		colSubs: make(map[string]map[int]func(map[string]json.RawMessage)),
	}
}

func (s *MemoryStore) GetDocument(_ context.Context, path string, out interface{}) (bool, error) {
	s.mu.Lock()
	raw, ok := s.docs[path]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return true, nil
}

func (s *MemoryStore) SetDocument(_ context.Context, path string, value interface{}, merge bool) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	s.mu.Lock()
	if existing, ok := s.docs[path]; ok && merge {
		merged, merr := mergeJSON(existing, body)
		if merr != nil {
			s.mu.Unlock()
			return fmt.Errorf("merge %s: %w", path, merr)
		}
		body = merged
	}
	s.docs[path] = body
	notify := s.pendingNotifications(path, body)
	s.mu.Unlock()

	notify()
	return nil
}

func (s *MemoryStore) UpdateDocument(_ context.Context, path string, fields map[string]interface{}) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields for %s: %w", path, err)
	}

	s.mu.Lock()
	existing, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	merged, err := mergeJSON(existing, patch)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("merge %s: %w", path, err)
	}
	s.docs[path] = merged
	notify := s.pendingNotifications(path, merged)
	s.mu.Unlock()

	notify()
	return nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, path string, value interface{}) (bool, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", path, err)
	}

	s.mu.Lock()
	if _, exists := s.docs[path]; exists {
		s.mu.Unlock()
		return false, nil
	}
	s.docs[path] = body
	notify := s.pendingNotifications(path, body)
	s.mu.Unlock()

	notify()
	return true, nil
}

func (s *MemoryStore) CompareAndSetDocument(_ context.Context, path string, value interface{}, expect int64) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	s.mu.Lock()
	existing, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	var versioned struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(existing, &versioned); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if versioned.Version != expect {
		s.mu.Unlock()
		return ErrConflict
	}
	s.docs[path] = body
	notify := s.pendingNotifications(path, body)
	s.mu.Unlock()

	notify()
	return nil
}

func (s *MemoryStore) SubscribeDocument(_ context.Context, path string, onChange func(raw json.RawMessage, exists bool), onError func(error)) (Unsubscribe, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.docSubs[path] == nil {
		s.docSubs[path] = make(map[int]func(json.RawMessage, bool))
	}
	s.docSubs[path][id] = onChange
	raw, exists := s.docs[path]
	s.mu.Unlock()

	onChange(raw, exists)

	return func() {
		s.mu.Lock()
		delete(s.docSubs[path], id)
		s.mu.Unlock()
	}, nil
}

func (s *MemoryStore) SubscribeCollection(_ context.Context, path string, onChange func(docs map[string]json.RawMessage), onError func(error)) (Unsubscribe, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.colSubs[path] == nil {
		s.colSubs[path] = make(map[int]func(map[string]json.RawMessage))
	}
	s.colSubs[path][id] = onChange
	snapshot := s.collectionLocked(path)
	s.mu.Unlock()

	onChange(snapshot)

	return func() {
		s.mu.Lock()
		delete(s.colSubs[path], id)
		s.mu.Unlock()
	}, nil
}

func (s *MemoryStore) ListCollection(_ context.Context, path string) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectionLocked(path), nil
}

func (s *MemoryStore) BatchUpdate(ctx context.Context, updates []Update) ([]string, error) {
	var succeeded []string
	var errs []error
	for _, u := range updates {
		if err := s.UpdateDocument(ctx, u.Path, u.Fields); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Path, err))
			continue
		}
		succeeded = append(succeeded, u.Path)
	}
	return succeeded, errors.Join(errs...)
}

func (s *MemoryStore) collectionLocked(path string) map[string]json.RawMessage {
	docs := make(map[string]json.RawMessage)
	prefix := path + "/"
	for p, raw := range s.docs {
		if strings.HasPrefix(p, prefix) && !strings.Contains(strings.TrimPrefix(p, prefix), "/") {
			docs[MemberID(path, p)] = raw
		}
	}
	return docs
}

// pendingNotifications snapshots the callbacks affected by a write to path.
// The returned closure must run after the store lock is released so that
// callbacks may re-enter the store.
func (s *MemoryStore) pendingNotifications(path string, body json.RawMessage) func() {
	var docFns []func(json.RawMessage, bool)
	for _, fn := range s.docSubs[path] {
		docFns = append(docFns, fn)
	}

	type colNotify struct {
		fns  []func(map[string]json.RawMessage)
		docs map[string]json.RawMessage
	}
	var cols []colNotify
	for colPath, subs := range s.colSubs {
		if !strings.HasPrefix(path, colPath+"/") || len(subs) == 0 {
			continue
		}
		cn := colNotify{docs: s.collectionLocked(colPath)}
		for _, fn := range subs {
			cn.fns = append(cn.fns, fn)
		}
		cols = append(cols, cn)
	}

	return func() {
		for _, fn := range docFns {
			fn(body, true)
		}
		for _, cn := range cols {
			for _, fn := range cn.fns {
				fn(cn.docs)
			}
		}
	}
}
