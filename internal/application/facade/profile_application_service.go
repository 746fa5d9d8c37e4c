package facade

import (
	"context"
	"fmt"

	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/store"
	"go-portal-realtime/internal/port/inbound"
)

const (
	kindUsers       = "users"
	kindPreferences = "portal_preferences"
)

type fieldType int

const (
	stringField fieldType = iota
	boolField
)

// Editable attributes; anything else in an update body is ignored.
var (
	profileFields = map[string]fieldType{
		"name":             stringField,
		"theme_preference": stringField,
		"timezone":         stringField,
		"avatar_url":       stringField,
	}
	preferenceFields = map[string]fieldType{
		"notifications_enabled":  boolField,
		"email_digest_frequency": stringField,
		"language":               stringField,
		"display_announcements":  boolField,
		"display_events":         boolField,
		"display_news":           boolField,
		"display_documents":      boolField,
	}
)

// ProfileApplicationService serves the caller's own profile and preferences.
// Both records are provisioned from the token's claims on first access.
// Profile changes are private to the user and never broadcast.
type ProfileApplicationService struct {
	store  store.Store
	logger logger.Logger
}

var _ inbound.ProfileUseCase = (*ProfileApplicationService)(nil)

func NewProfileApplicationService(s store.Store, log logger.Logger) *ProfileApplicationService {
	return &ProfileApplicationService{
		store:  s,
		logger: log.WithField("component", "profile"),
	}
}

func (s *ProfileApplicationService) Profile(ctx context.Context, id inbound.Identity) (*store.Record, error) {
	return s.store.Ensure(ctx, kindUsers, id.UserID, defaultProfile(id), id.UserID)
}

func (s *ProfileApplicationService) UpdateProfile(ctx context.Context, id inbound.Identity, patch map[string]any) (*store.Record, error) {
	if _, err := s.Profile(ctx, id); err != nil {
		return nil, err
	}
	return s.apply(ctx, kindUsers, id.UserID, profileFields, patch)
}

func (s *ProfileApplicationService) Preferences(ctx context.Context, id inbound.Identity) (*store.Record, error) {
	return s.store.Ensure(ctx, kindPreferences, id.UserID, defaultPreferences(id), id.UserID)
}

func (s *ProfileApplicationService) UpdatePreferences(ctx context.Context, id inbound.Identity, patch map[string]any) (*store.Record, error) {
	if _, err := s.Preferences(ctx, id); err != nil {
		return nil, err
	}
	return s.apply(ctx, kindPreferences, id.UserID, preferenceFields, patch)
}

// apply merges the editable, non-null attributes of patch.
func (s *ProfileApplicationService) apply(
	ctx context.Context,
	kind, userID string,
	fields map[string]fieldType,
	patch map[string]any,
) (*store.Record, error) {
	changes := make(map[string]any, len(patch))
	for key, value := range patch {
		typ, editable := fields[key]
		if !editable || value == nil {
			continue
		}
		if err := checkType(key, typ, value); err != nil {
			return nil, err
		}
		changes[key] = value
	}
	if name, ok := changes["name"]; ok && name == "" {
		return nil, &ValidationError{Message: "name must not be empty"}
	}

	return s.store.Update(ctx, kind, userID, changes)
}

func checkType(key string, typ fieldType, value any) error {
	switch typ {
	case boolField:
		if _, ok := value.(bool); !ok {
			return &ValidationError{Message: fmt.Sprintf("%s must be a boolean", key)}
		}
	default:
		if _, ok := value.(string); !ok {
			return &ValidationError{Message: fmt.Sprintf("%s must be a string", key)}
		}
	}
	return nil
}

func defaultProfile(id inbound.Identity) map[string]any {
	role := id.Role
	if role == "" {
		role = "user"
	}
	name := id.Email
	if name == "" {
		name = id.UserID
	}
	return map[string]any{
		"email":            id.Email,
		"name":             name,
		"role":             role,
		"avatar_url":       nil,
		"theme_preference": "light",
		"timezone":         "UTC",
	}
}

func defaultPreferences(id inbound.Identity) map[string]any {
	return map[string]any{
		"user_id":                id.UserID,
		"notifications_enabled":  true,
		"email_digest_frequency": "daily",
		"display_announcements":  true,
		"display_events":         true,
		"display_news":           true,
		"display_documents":      true,
		"language":               "en",
	}
}
