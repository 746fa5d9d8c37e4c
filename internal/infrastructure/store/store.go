package store

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Reserved attribute names. They are owned by the store and stripped from
// caller supplied data.
const (
	FieldID        = "id"
	FieldCreatedBy = "created_by"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Record is one stored content item. Data holds the kind specific attributes.
type Record struct {
	ID        string
	Kind      string
	Data      map[string]any
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarshalJSON flattens Data next to the bookkeeping fields.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+4)
	maps.Copy(out, r.Data)
	out[FieldID] = r.ID
	out[FieldCreatedBy] = r.CreatedBy
	out[FieldCreatedAt] = r.CreatedAt.UTC()
	out[FieldUpdatedAt] = r.UpdatedAt.UTC()
	return json.Marshal(out)
}

// Store persists records grouped by kind.
type Store interface {
	Create(ctx context.Context, kind string, data map[string]any, createdBy string) (*Record, error)
	Get(ctx context.Context, kind, id string) (*Record, error)
	// List returns records of kind, newest first.
	List(ctx context.Context, kind string, limit, offset int) ([]*Record, error)
	// Update merges patch into the stored attributes.
	Update(ctx context.Context, kind, id string, patch map[string]any) (*Record, error)
	Delete(ctx context.Context, kind, id string) error
	// Ensure stores data under id unless a record already exists there and
	// returns the stored record either way.
	Ensure(ctx context.Context, kind, id string, data map[string]any, createdBy string) (*Record, error)
	// Modify runs fn on a copy of the stored attributes and saves the result
	// atomically. An error from fn aborts the write and is returned as is.
	Modify(ctx context.Context, kind, id string, fn func(data map[string]any) error) (*Record, error)
}

func sanitize(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch k {
		case FieldID, FieldCreatedBy, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out
}
