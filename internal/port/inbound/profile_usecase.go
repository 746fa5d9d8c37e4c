package inbound

import (
	"context"

	"go-portal-realtime/internal/infrastructure/store"
)

// Identity is the authenticated caller as asserted by the access token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// ProfileUseCase reads and edits the caller's own profile and portal
// preferences.
type ProfileUseCase interface {
	Profile(ctx context.Context, id Identity) (*store.Record, error)
	UpdateProfile(ctx context.Context, id Identity, patch map[string]any) (*store.Record, error)
	Preferences(ctx context.Context, id Identity) (*store.Record, error)
	UpdatePreferences(ctx context.Context, id Identity, patch map[string]any) (*store.Record, error)
}
