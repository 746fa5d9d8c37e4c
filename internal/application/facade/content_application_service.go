package facade

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/jonboulle/clockwork"

	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/store"
	"go-portal-realtime/internal/port/inbound"
)

// Actions published after a successful mutation.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

var (
	ErrUnknownKind   = errors.New("unknown content kind")
	ErrValidation    = errors.New("validation failed")
	ErrAlreadyRSVPed = errors.New("already attending")
)

// ValidationError carries the client facing reason a request was rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ContentApplicationService runs content mutations against the store and,
// when push-on-write is enabled, announces each successful one to every
// real-time client.
type ContentApplicationService struct {
	store       store.Store
	broadcaster hub.Broadcaster
	pushOnWrite bool
	clock       clockwork.Clock
	logger      logger.Logger
}

var _ inbound.ContentUseCase = (*ContentApplicationService)(nil)

type Option func(*ContentApplicationService)

// WithClock sets the clock used for publish dates and listing windows.
func WithClock(clock clockwork.Clock) Option {
	return func(s *ContentApplicationService) { s.clock = clock }
}

func NewContentApplicationService(
	s store.Store,
	broadcaster hub.Broadcaster,
	pushOnWrite bool,
	log logger.Logger,
	opts ...Option,
) *ContentApplicationService {
	svc := &ContentApplicationService{
		store:       s,
		broadcaster: broadcaster,
		pushOnWrite: pushOnWrite,
		clock:       clockwork.NewRealClock(),
		logger:      log.WithField("component", "content"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// List returns one page of kind. Kinds with filters or their own ordering are
// filtered and sorted before paging, so a page never comes up short because
// of records hidden by the filter.
func (s *ContentApplicationService) List(ctx context.Context, kind string, q inbound.ListQuery) ([]*store.Record, error) {
	k, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	limit, offset := q.Limit, q.Offset
	if limit <= 0 {
		limit = k.DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if k.visible == nil && k.compare == nil {
		return s.store.List(ctx, k.Name, limit, offset)
	}

	all, err := s.store.List(ctx, k.Name, 0, 0)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if k.visible != nil {
		all = slices.DeleteFunc(all, func(rec *store.Record) bool {
			return !k.visible(rec, q.Filters, now)
		})
	}
	if k.compare != nil {
		slices.SortStableFunc(all, k.compare)
	}

	if offset >= len(all) {
		return []*store.Record{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *ContentApplicationService) Get(ctx context.Context, kind, id string) (*store.Record, error) {
	k, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, k.Name, id)
}

func (s *ContentApplicationService) Create(ctx context.Context, kind string, data map[string]any, userID string) (*store.Record, error) {
	k, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	for _, field := range k.Required {
		if isBlank(data[field]) {
			return nil, &ValidationError{Message: k.requiredMessage}
		}
	}

	data = maps.Clone(data)
	if k.owner != "" {
		data[k.owner] = userID
	}
	if k.defaults != nil {
		k.defaults(data, userID, s.clock.Now())
	}

	rec, err := s.store.Create(ctx, k.Name, data, userID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, k.Name, ActionCreated, rec)
	return rec, nil
}

func (s *ContentApplicationService) Update(ctx context.Context, kind, id string, patch map[string]any) (*store.Record, error) {
	k, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	for _, field := range k.Required {
		if v, present := patch[field]; present && isBlank(v) {
			return nil, &ValidationError{Message: field + " must not be empty"}
		}
	}

	rec, err := s.store.Update(ctx, k.Name, id, patch)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, k.Name, ActionUpdated, rec)
	return rec, nil
}

func (s *ContentApplicationService) Delete(ctx context.Context, kind, id string) error {
	k, err := lookup(kind)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, k.Name, id); err != nil {
		return err
	}

	s.publish(ctx, k.Name, ActionDeleted, map[string]string{"id": id})
	return nil
}

// RSVP adds userID to an event's attendees. Attending twice is refused with
// ErrAlreadyRSVPed.
func (s *ContentApplicationService) RSVP(ctx context.Context, eventID, userID string) (*store.Record, error) {
	rec, err := s.store.Modify(ctx, "events", eventID, func(data map[string]any) error {
		attendees := stringList(data["attendees"])
		if slices.Contains(attendees, userID) {
			return ErrAlreadyRSVPed
		}
		data["attendees"] = toAnyList(append(attendees, userID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "events", ActionUpdated, rec)
	return rec, nil
}

// Share replaces the users a document is shared with and marks it shared.
func (s *ContentApplicationService) Share(ctx context.Context, documentID string, sharedWith []string) (*store.Record, error) {
	if sharedWith == nil {
		return nil, &ValidationError{Message: "shared_with must be an array"}
	}

	rec, err := s.store.Modify(ctx, "documents", documentID, func(data map[string]any) error {
		data["shared_with"] = toAnyList(sharedWith)
		data["is_shared"] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "documents", ActionUpdated, rec)
	return rec, nil
}

// publish never fails the mutation; the write has already been committed.
func (s *ContentApplicationService) publish(ctx context.Context, resource, action string, payload any) {
	if !s.pushOnWrite || s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(ctx, hub.NewUpdateEvent(resource, action, payload)); err != nil {
		s.logger.Errorf("Failed to publish %s/%s update: %v", resource, action, err)
	}
}

func lookup(kind string) (Kind, error) {
	k, ok := LookupKind(kind)
	if !ok {
		return Kind{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return k, nil
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}

// stringList reads a list attribute that may hold []string (fresh in memory)
// or []any (decoded from JSON).
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return []string{}
	}
}

func toAnyList(items []string) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
