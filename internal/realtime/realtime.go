// Package realtime fans table change notifications out to subscribers. A
// subscription is scoped by table, event type and optionally the owning user.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// ParseEventType accepts the lower or upper case forms used by clients.
func ParseEventType(v string) (EventType, error) {
	switch EventType(strings.ToUpper(strings.TrimSpace(v))) {
	case "", EventAll:
		return EventAll, nil
	case EventInsert:
		return EventInsert, nil
	case EventUpdate:
		return EventUpdate, nil
	case EventDelete:
		return EventDelete, nil
	default:
		return "", fmt.Errorf("unknown event type %q", v)
	}
}

type Change struct {
	Table           string         `json:"table"`
	Event           EventType      `json:"event"`
	New             map[string]any `json:"new,omitempty"`
	Old             map[string]any `json:"old,omitempty"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}

// UserID returns the user_id column of the new row, falling back to the old row.
func (c Change) UserID() string {
	for _, row := range []map[string]any{c.New, c.Old} {
		if v, ok := row["user_id"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

type Filter struct {
	Table  string
	Event  EventType
	UserID string
}

func (f Filter) Matches(c Change) bool {
	if f.Table != "" && f.Table != "*" && f.Table != c.Table {
		return false
	}
	if f.Event != "" && f.Event != EventAll && f.Event != c.Event {
		return false
	}
	if f.UserID != "" && c.UserID() != f.UserID {
		return false
	}
	return true
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

type Broker interface {
	Publisher
	Subscribe(ctx context.Context, filter Filter) (*Subscription, error)
}

// Subscription delivers matching changes on C until Unsubscribe is called.
type Subscription struct {
	C      <-chan Change
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

// NewChange builds a change whose row maps are the JSON form of the given values.
func NewChange(table string, event EventType, newRow, oldRow any) (Change, error) {
	c := Change{Table: table, Event: event, CommitTimestamp: time.Now().UTC()}
	var err error
	if newRow != nil {
		if c.New, err = toRow(newRow); err != nil {
			return Change{}, err
		}
	}
	if oldRow != nil {
		if c.Old, err = toRow(oldRow); err != nil {
			return Change{}, err
		}
	}
	return c, nil
}

func toRow(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal row: %w", err)
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("unmarshal row: %w", err)
	}
	return row, nil
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Change) error { return nil }
