package inbound

import (
	"context"

	"go-portal-realtime/internal/infrastructure/store"
)

// ListQuery selects a page of a content kind. Filters holds the kind specific
// query parameters (featured, category, upcoming) as sent by the client.
type ListQuery struct {
	Limit   int
	Offset  int
	Filters map[string]string
}

// ContentUseCase is the CRUD surface over portal content kinds.
type ContentUseCase interface {
	List(ctx context.Context, kind string, q ListQuery) ([]*store.Record, error)
	Get(ctx context.Context, kind, id string) (*store.Record, error)
	Create(ctx context.Context, kind string, data map[string]any, userID string) (*store.Record, error)
	Update(ctx context.Context, kind, id string, patch map[string]any) (*store.Record, error)
	Delete(ctx context.Context, kind, id string) error

	// RSVP adds userID to an event's attendees.
	RSVP(ctx context.Context, eventID, userID string) (*store.Record, error)
	// Share replaces the set of users a document is shared with.
	Share(ctx context.Context, documentID string, sharedWith []string) (*store.Record, error)
}
