// Package docstore is the shared document store the session and list layers
// synchronize through: named JSON documents with get/set/update/delete and a
// watch primitive that pushes a snapshot after every change.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	svcErr "github.com/oggyb/tindecisos/internal/errors"
)

// ErrNotFound is returned by Update on an absent document.
var ErrNotFound = svcErr.ErrNotFound

// Snapshot is the state of one document at one point in time.
// Data is nil when Exists is false.
type Snapshot struct {
	Path   string
	Exists bool
	Data   map[string]any
}

// DataTo decodes the snapshot into v using the document's JSON field names.
func (s Snapshot) DataTo(v any) error {
	if !s.Exists {
		return fmt.Errorf("%s: %w", s.Path, ErrNotFound)
	}
	b, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", s.Path, err)
	}
	return nil
}

// Store is the document store contract.
//
// Set overwrites the whole document. Update merges the named top-level
// fields only and fails with ErrNotFound when the document does not exist.
// Delete of an absent document is not an error.
//
// Watch calls fn with the current snapshot and then once per change, always
// from one goroutine owned by the watch and never from inside Watch itself,
// so fn may take locks held by the caller of Watch. The returned cancel
// stops delivery without waiting for an in-flight fn to return.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, data map[string]any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	Watch(ctx context.Context, path string, fn func(Snapshot)) (cancel func(), err error)
}

const serverTimestamp = "\x00tindecisos:serverTimestamp"

// ServerTimestamp is a field value the store replaces with its own clock
// (RFC 3339, UTC) when the write is applied.
func ServerTimestamp() any { return serverTimestamp }

func resolveServerTimestamps(fields map[string]any, now time.Time) {
	for k, v := range fields {
		if s, ok := v.(string); ok && s == serverTimestamp {
			fields[k] = now.UTC().Format(time.RFC3339Nano)
		}
	}
}

// ToFields converts a JSON-tagged value into the plain map shape documents
// are stored and transported in (numbers become float64, slices []any).
func ToFields(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToValue is ToFields for a single field value.
func ToValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
