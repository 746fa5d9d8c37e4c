package facade

import (
	"strings"
	"time"

	"go-portal-realtime/internal/infrastructure/store"
)

// Kind describes one content collection exposed over the API.
type Kind struct {
	Name         string
	Label        string
	Required     []string
	DefaultLimit int
	// Filters lists the query parameters List honours for this kind.
	Filters []string

	// requiredMessage is returned when a create request lacks a required field.
	requiredMessage string
	// owner is the attribute stamped with the creating user's id.
	owner string
	// defaults fills attributes the client left out on create.
	defaults func(data map[string]any, userID string, now time.Time)
	// visible reports whether rec belongs in a listing.
	visible func(rec *store.Record, filters map[string]string, now time.Time) bool
	// compare orders listings; nil keeps the store's newest first order.
	compare func(a, b *store.Record) int
}

var kinds = map[string]Kind{
	"news": {
		Name:            "news",
		Label:           "News",
		Required:        []string{"title", "content"},
		DefaultLimit:    10,
		Filters:         []string{"featured"},
		requiredMessage: "Title and content required",
		owner:           "author_id",
		defaults: func(data map[string]any, _ string, now time.Time) {
			setDefault(data, "featured", false)
			setDefault(data, "tags", []any{})
			setDefault(data, "published_at", formatTime(now))
		},
		visible: func(rec *store.Record, filters map[string]string, _ time.Time) bool {
			if filters["featured"] != "true" {
				return true
			}
			featured, _ := rec.Data["featured"].(bool)
			return featured
		},
		compare: func(a, b *store.Record) int {
			return compareTime(a, b, "published_at", true)
		},
	},
	"events": {
		Name:            "events",
		Label:           "Event",
		Required:        []string{"title", "start_time", "end_time"},
		DefaultLimit:    20,
		Filters:         []string{"upcoming"},
		requiredMessage: "Title, start_time, and end_time required",
		owner:           "organizer_id",
		defaults: func(data map[string]any, userID string, _ time.Time) {
			setDefault(data, "attendees", []any{userID})
		},
		visible: func(rec *store.Record, filters map[string]string, now time.Time) bool {
			// upcoming defaults to true; any value other than "true" lists everything.
			if upcoming, ok := filters["upcoming"]; ok && upcoming != "true" {
				return true
			}
			start, ok := parseTime(rec.Data["start_time"])
			return ok && !start.Before(now)
		},
		compare: func(a, b *store.Record) int {
			return compareTime(a, b, "start_time", false)
		},
	},
	"documents": {
		Name:            "documents",
		Label:           "Document",
		Required:        []string{"title", "file_name", "file_path"},
		DefaultLimit:    20,
		Filters:         []string{"category"},
		requiredMessage: "Title, file_name, and file_path required",
		owner:           "uploaded_by",
		defaults: func(data map[string]any, _ string, _ time.Time) {
			setDefault(data, "tags", []any{})
			setDefault(data, "is_shared", false)
			setDefault(data, "shared_with", []any{})
		},
		visible: func(rec *store.Record, filters map[string]string, _ time.Time) bool {
			category := filters["category"]
			return category == "" || rec.Data["category"] == category
		},
	},
	"announcements": {
		Name:            "announcements",
		Label:           "Announcement",
		Required:        []string{"title", "content"},
		DefaultLimit:    10,
		requiredMessage: "Title and content required",
		owner:           "author_id",
		defaults: func(data map[string]any, _ string, now time.Time) {
			setDefault(data, "priority", "normal")
			setDefault(data, "is_urgent", false)
			setDefault(data, "visible_to_roles", []any{})
			setDefault(data, "published_at", formatTime(now))
			setDefault(data, "start_date", formatTime(now))
		},
		visible: func(rec *store.Record, _ map[string]string, now time.Time) bool {
			start, ok := parseTime(rec.Data["start_date"])
			if !ok || start.After(now) {
				return false
			}
			end, ok := parseTime(rec.Data["end_date"])
			return !ok || !end.Before(now)
		},
		compare: func(a, b *store.Record) int {
			au, _ := a.Data["is_urgent"].(bool)
			bu, _ := b.Data["is_urgent"].(bool)
			if au != bu {
				if au {
					return -1
				}
				return 1
			}
			return compareTime(a, b, "published_at", true)
		},
	},
}

// LookupKind returns the collection registered under name.
func LookupKind(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// KindNames lists every collection name in route order.
func KindNames() []string {
	return []string{"news", "events", "documents", "announcements"}
}

func setDefault(data map[string]any, key string, value any) {
	if v, ok := data[key]; !ok || v == nil {
		data[key] = value
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime reads a timestamp attribute. Values without a zone are UTC.
func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// compareTime orders by a timestamp attribute. Records missing it sort last
// in either direction.
func compareTime(a, b *store.Record, field string, desc bool) int {
	at, aok := parseTime(a.Data[field])
	bt, bok := parseTime(b.Data[field])
	switch {
	case aok && bok:
		if desc {
			return bt.Compare(at)
		}
		return at.Compare(bt)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return 0
	}
}
