package core

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const pathSep = "/"

var (
	errEmptyPath       = errors.New("path is empty")
	errInvalidSegment  = errors.New("path segment must not be empty or contain any of '/', '.', '#', '$', '[', ']'")
	forbiddenPathChars = "/.#$[]"
)

type (
	// Node is a document read from the DataStore.
	// Key is relative to the path it was listed from.
	Node struct {
		Key   string
		Value json.RawMessage
	}

	// Event is published after a committed write. Value is nil when the path was removed.
	Event struct {
		Path  string
		Value json.RawMessage
	}

	// DataStore is a hierarchical key-value namespace of JSON documents.
	//
	// A document lives at a full path and may have documents below it.
	// Set replaces the document at a path, Remove deletes a path and everything below it.
	// Update applies all of its writes atomically (a nil value removes the path).
	DataStore interface {
		// Get decodes the document at path into dst. Returns ErrNotFound if absent.
		Get(ctx context.Context, path string, dst interface{}) error
		// List returns the documents directly below path, sorted by key.
		List(ctx context.Context, path string) ([]Node, error)
		// Tree returns every document below path, keyed by their path relative to it, sorted by key.
		Tree(ctx context.Context, path string) ([]Node, error)
		Set(ctx context.Context, path string, value interface{}) error
		Update(ctx context.Context, values map[string]interface{}) error
		Remove(ctx context.Context, path string) error
		// Subscribe calls fn for every committed write touching prefix.
		Subscribe(prefix string, fn func(Event)) (unsubscribe func())
		Close() error
	}
)

// Decode unmarshals the node value into dst, reporting malformed records as validation errors.
func (n Node) Decode(dst interface{}) error {
	return DecodeValue(n.Key, n.Value, dst)
}

// DecodeValue unmarshals a stored document, reporting malformed records as validation errors.
func DecodeValue(path string, data []byte, dst interface{}) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return NewValidationError(errors.Wrapf(err, "malformed record at %q", path))
	}
	return nil
}

// EncodeValue marshals a value for storage.
func EncodeValue(value interface{}) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "encoding value")
	}
	return data, nil
}

// Path helpers

// JoinPath joins path segments with the path separator.
func JoinPath(segments ...string) string {
	return strings.Join(segments, pathSep)
}

// SplitPath returns the segments of a cleaned path.
func SplitPath(path string) []string {
	path = strings.Trim(path, pathSep)
	if path == "" {
		return nil
	}
	return strings.Split(path, pathSep)
}

// ValidateSegment checks that s can be used as a single path segment.
func ValidateSegment(s string) error {
	if s == "" || strings.ContainsAny(s, forbiddenPathChars) {
		return errInvalidSegment
	}
	return nil
}

// CleanPath validates every segment of path and returns it without leading or trailing separators.
func CleanPath(path string) (string, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return "", NewValidationError(errEmptyPath)
	}
	for _, seg := range segments {
		if err := ValidateSegment(seg); err != nil {
			return "", NewValidationError(errors.Wrapf(err, "invalid path %q", path))
		}
	}
	return strings.Join(segments, pathSep), nil
}

// IsWithin reports whether path equals prefix or lies below it.
func IsWithin(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+pathSep)
}

// RelativeKey returns path relative to prefix, and false if path is not below prefix.
func RelativeKey(path, prefix string) (string, bool) {
	if prefix == "" {
		return path, path != ""
	}
	if !strings.HasPrefix(path, prefix+pathSep) {
		return "", false
	}
	return path[len(prefix)+1:], true
}

// IsDirectChild reports whether a relative key has a single segment.
func IsDirectChild(relKey string) bool {
	return relKey != "" && !strings.Contains(relKey, pathSep)
}

// SortNodes sorts nodes by key.
func SortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
}

// Hub fans committed writes out to DataStore subscribers.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscription
}

type subscription struct {
	prefix string
	fn     func(Event)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscription)}
}

func (h *Hub) Subscribe(prefix string, fn func(Event)) func() {
	prefix = strings.Trim(prefix, pathSep)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscription{prefix: prefix, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish calls every subscriber whose prefix contains the event path, or lies below a removed path.
func (h *Hub) Publish(events ...Event) {
	h.mu.RLock()
	subs := make([]subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, evt := range events {
		for _, sub := range subs {
			if IsWithin(evt.Path, sub.prefix) || (evt.Value == nil && IsWithin(sub.prefix, evt.Path)) {
				sub.fn(evt)
			}
		}
	}
}

// EventsFor builds the events of an Update, in path order.
func EventsFor(values map[string]json.RawMessage) []Event {
	events := make([]Event, 0, len(values))
	for path, value := range values {
		events = append(events, Event{Path: path, Value: value})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

// PrepareUpdate validates and encodes the writes of an Update. A nil value (or nil json.RawMessage) means removal.
func PrepareUpdate(values map[string]interface{}) (map[string]json.RawMessage, error) {
	prepared := make(map[string]json.RawMessage, len(values))
	for path, value := range values {
		cleaned, err := CleanPath(path)
		if err != nil {
			return nil, err
		}
		if value == nil {
			prepared[cleaned] = nil
			continue
		}
		if raw, ok := value.(json.RawMessage); ok && raw == nil {
			prepared[cleaned] = nil
			continue
		}
		data, err := EncodeValue(value)
		if err != nil {
			return nil, err
		}
		prepared[cleaned] = data
	}
	// a removal and a write below it in the same update would depend on application order
	for path, value := range prepared {
		if value != nil {
			continue
		}
		for other, otherVal := range prepared {
			if other != path && otherVal != nil && IsWithin(other, path) {
				return nil, NewValidationError(errors.Errorf("update removes %q and writes %q below it", path, other))
			}
		}
	}
	return prepared, nil
}
