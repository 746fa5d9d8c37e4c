package facade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/store"
	"go-portal-realtime/internal/port/inbound"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []hub.UpdateEvent
	err    error
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, event hub.UpdateEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBroadcaster) Events() []hub.UpdateEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]hub.UpdateEvent(nil), b.events...)
}

func newService(t *testing.T, pushOnWrite bool) (*ContentApplicationService, *recordingBroadcaster) {
	t.Helper()
	b := &recordingBroadcaster{}
	return NewContentApplicationService(store.NewMemory(), b, pushOnWrite, logger.NewNopLogger()), b
}

func newServiceAt(t *testing.T, clock clockwork.Clock) (*ContentApplicationService, *recordingBroadcaster) {
	t.Helper()
	b := &recordingBroadcaster{}
	return NewContentApplicationService(store.NewMemory(), b, true, logger.NewNopLogger(), WithClock(clock)), b
}

func titles(items []*store.Record) []string {
	out := make([]string, 0, len(items))
	for _, rec := range items {
		out = append(out, rec.Data["title"].(string))
	}
	return out
}

func TestContentService_CreatePublishesUpdate(t *testing.T) {
	svc, b := newService(t, true)

	rec, err := svc.Create(context.Background(), "news", map[string]any{"title": "Hi", "content": "Body"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.CreatedBy)

	events := b.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "news", events[0].Resource)
	assert.Equal(t, ActionCreated, events[0].Action)
	assert.Equal(t, rec, events[0].Payload)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestContentService_UpdateAndDeletePublish(t *testing.T) {
	svc, b := newService(t, true)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "events", map[string]any{
		"title": "Offsite", "start_time": "2024-07-01T09:00:00Z", "end_time": "2024-07-01T17:00:00Z",
	}, "u1")
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "events", rec.ID, map[string]any{"location": "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "Berlin", updated.Data["location"])
	assert.Equal(t, "Offsite", updated.Data["title"])

	require.NoError(t, svc.Delete(ctx, "events", rec.ID))

	events := b.Events()
	require.Len(t, events, 3)
	assert.Equal(t, ActionUpdated, events[1].Action)
	assert.Equal(t, ActionDeleted, events[2].Action)
	assert.Equal(t, map[string]string{"id": rec.ID}, events[2].Payload)
}

func TestContentService_ValidatesRequiredFields(t *testing.T) {
	tests := []struct {
		kind    string
		data    map[string]any
		message string
	}{
		{kind: "news", data: map[string]any{"title": "Only title"}, message: "Title and content required"},
		{kind: "announcements", data: map[string]any{"title": "", "content": "x"}, message: "Title and content required"},
		{kind: "events", data: map[string]any{"title": "x", "start_time": "now"}, message: "Title, start_time, and end_time required"},
		{kind: "documents", data: map[string]any{"title": "x", "file_name": "a.pdf"}, message: "Title, file_name, and file_path required"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			svc, b := newService(t, true)

			_, err := svc.Create(context.Background(), tt.kind, tt.data, "u1")

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.message, verr.Message)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, b.Events(), "rejected writes are not announced")
		})
	}
}

func TestContentService_UpdateRejectsBlankRequiredField(t *testing.T) {
	svc, b := newService(t, true)
	ctx := context.Background()
	rec, err := svc.Create(ctx, "news", map[string]any{"title": "t", "content": "c"}, "u1")
	require.NoError(t, err)

	_, err = svc.Update(ctx, "news", rec.ID, map[string]any{"title": ""})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, b.Events(), 1)
}

func TestContentService_FailedMutationsAreNotAnnounced(t *testing.T) {
	svc, b := newService(t, true)
	ctx := context.Background()

	_, err := svc.Update(ctx, "news", "missing", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "news", "missing"), store.ErrNotFound)

	assert.Empty(t, b.Events())
}

func TestContentService_UnknownKind(t *testing.T) {
	svc, _ := newService(t, true)

	_, err := svc.List(context.Background(), "memes", inbound.ListQuery{})
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = svc.Create(context.Background(), "memes", map[string]any{}, "u1")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestContentService_PushOnWriteDisabled(t *testing.T) {
	svc, b := newService(t, false)

	_, err := svc.Create(context.Background(), "news", map[string]any{"title": "t", "content": "c"}, "u1")
	require.NoError(t, err)
	assert.Empty(t, b.Events())
}

func TestContentService_BroadcastFailureDoesNotFailWrite(t *testing.T) {
	b := &recordingBroadcaster{err: errors.New("hub is not running")}
	s := store.NewMemory()
	svc := NewContentApplicationService(s, b, true, logger.NewNopLogger())

	rec, err := svc.Create(context.Background(), "news", map[string]any{"title": "t", "content": "c"}, "u1")
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "news", rec.ID)
	assert.NoError(t, err)
}

func TestContentService_ListAppliesDefaultLimit(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := svc.Create(ctx, "news", map[string]any{"title": "t", "content": "c"}, "u1")
		require.NoError(t, err)
	}

	items, err := svc.List(ctx, "news", inbound.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 10)

	items, err = svc.List(ctx, "news", inbound.ListQuery{Limit: 50, Offset: -3})
	require.NoError(t, err)
	assert.Len(t, items, 12)
}

var listNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestContentService_CreateStampsOwnerAndDefaults(t *testing.T) {
	svc, _ := newServiceAt(t, clockwork.NewFakeClockAt(listNow))
	ctx := context.Background()

	input := map[string]any{"title": "Hi", "content": "Body"}
	news, err := svc.Create(ctx, "news", input, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", news.Data["author_id"])
	assert.Equal(t, false, news.Data["featured"])
	assert.Equal(t, "2024-05-01T12:00:00Z", news.Data["published_at"])
	assert.NotContains(t, input, "author_id", "caller's map is left untouched")

	event, err := svc.Create(ctx, "events", map[string]any{
		"title": "Offsite", "start_time": "2024-06-01T09:00:00Z", "end_time": "2024-06-01T17:00:00Z",
	}, "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", event.Data["organizer_id"])
	assert.Equal(t, []any{"u2"}, event.Data["attendees"])

	ann, err := svc.Create(ctx, "announcements", map[string]any{"title": "A", "content": "c", "is_urgent": true}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "normal", ann.Data["priority"])
	assert.Equal(t, true, ann.Data["is_urgent"])
	assert.Equal(t, "2024-05-01T12:00:00Z", ann.Data["start_date"])
}

func TestContentService_ListNewsFeaturedByPublishDate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(listNow)
	svc, _ := newServiceAt(t, clock)
	ctx := context.Background()

	for _, n := range []struct {
		title    string
		featured bool
	}{{"old", true}, {"plain", false}, {"new", true}} {
		_, err := svc.Create(ctx, "news", map[string]any{"title": n.title, "content": "c", "featured": n.featured}, "u1")
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	_, err := svc.Create(ctx, "news", map[string]any{
		"title": "backdated", "content": "c", "published_at": "2020-01-01T00:00:00Z",
	}, "u1")
	require.NoError(t, err)

	all, err := svc.List(ctx, "news", inbound.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "plain", "old", "backdated"}, titles(all))

	featured, err := svc.List(ctx, "news", inbound.ListQuery{Filters: map[string]string{"featured": "true"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, titles(featured))

	page, err := svc.List(ctx, "news", inbound.ListQuery{Limit: 1, Offset: 1, Filters: map[string]string{"featured": "true"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, titles(page))
}

func TestContentService_ListEventsUpcomingBySoonest(t *testing.T) {
	svc, _ := newServiceAt(t, clockwork.NewFakeClockAt(listNow))
	ctx := context.Background()

	for title, start := range map[string]string{
		"later": "2024-07-01T09:00:00Z",
		"past":  "2024-04-01T09:00:00Z",
		"soon":  "2024-05-02T09:00:00Z",
	} {
		_, err := svc.Create(ctx, "events", map[string]any{"title": title, "start_time": start, "end_time": start}, "u1")
		require.NoError(t, err)
	}

	upcoming, err := svc.List(ctx, "events", inbound.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"soon", "later"}, titles(upcoming))

	all, err := svc.List(ctx, "events", inbound.ListQuery{Filters: map[string]string{"upcoming": "false"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"past", "soon", "later"}, titles(all))
}

func TestContentService_ListDocumentsByCategory(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()

	for title, category := range map[string]string{"handbook": "hr", "vpn": "it", "leave": "hr"} {
		_, err := svc.Create(ctx, "documents", map[string]any{
			"title": title, "file_name": title + ".pdf", "file_path": "/files/" + title, "category": category,
		}, "u1")
		require.NoError(t, err)
	}

	hr, err := svc.List(ctx, "documents", inbound.ListQuery{Filters: map[string]string{"category": "hr"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"handbook", "leave"}, titles(hr))

	all, err := svc.List(ctx, "documents", inbound.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestContentService_ListAnnouncementsActiveUrgentFirst(t *testing.T) {
	clock := clockwork.NewFakeClockAt(listNow)
	svc, _ := newServiceAt(t, clock)
	ctx := context.Background()

	create := func(data map[string]any) {
		t.Helper()
		data["content"] = "c"
		_, err := svc.Create(ctx, "announcements", data, "u1")
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	create(map[string]any{"title": "urgent", "is_urgent": true})
	create(map[string]any{"title": "normal"})
	create(map[string]any{"title": "expired", "end_date": "2024-05-01T12:01:00Z"})
	create(map[string]any{"title": "scheduled", "start_date": "2024-06-01T00:00:00Z"})
	create(map[string]any{"title": "running", "end_date": "2024-12-31T00:00:00Z"})

	items, err := svc.List(ctx, "announcements", inbound.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent", "running", "normal"}, titles(items))
}

func TestContentService_RSVP(t *testing.T) {
	svc, b := newService(t, true)
	ctx := context.Background()

	event, err := svc.Create(ctx, "events", map[string]any{
		"title": "Offsite", "start_time": "2030-06-01T09:00:00Z", "end_time": "2030-06-01T17:00:00Z",
	}, "organizer")
	require.NoError(t, err)

	rec, err := svc.RSVP(ctx, event.ID, "guest")
	require.NoError(t, err)
	assert.Equal(t, []any{"organizer", "guest"}, rec.Data["attendees"])

	_, err = svc.RSVP(ctx, event.ID, "guest")
	assert.ErrorIs(t, err, ErrAlreadyRSVPed)

	_, err = svc.RSVP(ctx, "missing", "guest")
	assert.ErrorIs(t, err, store.ErrNotFound)

	events := b.Events()
	require.Len(t, events, 2, "one create, one successful rsvp")
	assert.Equal(t, "events", events[1].Resource)
	assert.Equal(t, ActionUpdated, events[1].Action)
}

func TestContentService_Share(t *testing.T) {
	svc, b := newService(t, true)
	ctx := context.Background()

	doc, err := svc.Create(ctx, "documents", map[string]any{
		"title": "Policy", "file_name": "p.pdf", "file_path": "/files/p.pdf",
	}, "u1")
	require.NoError(t, err)
	assert.Equal(t, false, doc.Data["is_shared"])

	rec, err := svc.Share(ctx, doc.ID, []string{"u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, true, rec.Data["is_shared"])
	assert.Equal(t, []any{"u2", "u3"}, rec.Data["shared_with"])

	_, err = svc.Share(ctx, doc.ID, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "shared_with must be an array", verr.Message)

	_, err = svc.Share(ctx, "missing", []string{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.Len(t, b.Events(), 2)
}
