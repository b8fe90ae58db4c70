package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	MaxBatchEvents  = 100
	maxElementDepth = 32
)

var ErrUnknownKind = errors.New("unknown event type")

// envelope is the wire form posted by the browser beacon.
type envelope struct {
	Type Kind `json:"type"`
	Page

	Target *Element `json:"target,omitempty"`

	Form   *Form   `json:"form,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Valid  *bool   `json:"valid,omitempty"`

	Message  string `json:"message,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Filename string `json:"filename,omitempty"`
	Line     int    `json:"lineno,omitempty"`
	Column   int    `json:"colno,omitempty"`
	Stack    string `json:"stack,omitempty"`

	Visibility string `json:"visibility,omitempty"`
}

// Decode parses one envelope or an array of them.
func Decode(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty event payload")
	}
	var envs []envelope
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &envs); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	} else {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		envs = []envelope{env}
	}
	if len(envs) > MaxBatchEvents {
		return nil, fmt.Errorf("too many events: %d > %d", len(envs), MaxBatchEvents)
	}
	events := make([]Event, 0, len(envs))
	for i, env := range envs {
		ev, err := env.event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (env envelope) event() (Event, error) {
	switch Kind(strings.ToLower(string(env.Type))) {
	case KindClick:
		if depth(env.Target) > maxElementDepth {
			return nil, fmt.Errorf("click target nested deeper than %d", maxElementDepth)
		}
		return ClickEvent{Page: env.Page, Target: env.Target}, nil
	case KindSubmit:
		ev := SubmitEvent{Page: env.Page, Fields: env.Fields, Valid: true}
		if env.Form != nil {
			ev.Form = *env.Form
		}
		if env.Valid != nil {
			ev.Valid = *env.Valid
		}
		return ev, nil
	case KindError:
		return ErrorEvent{
			Page:     env.Page,
			Message:  env.Message,
			Filename: env.Filename,
			Line:     env.Line,
			Column:   env.Column,
			Stack:    env.Stack,
		}, nil
	case KindUnhandledRejection:
		message := env.Message
		if message == "" {
			message = env.Reason
		}
		return ErrorEvent{Page: env.Page, Rejection: true, Message: message, Stack: env.Stack}, nil
	case KindVisibilityChange:
		return VisibilityEvent{Page: env.Page, Hidden: strings.EqualFold(env.Visibility, "hidden")}, nil
	case KindOnline:
		return NetworkEvent{Page: env.Page, Online: true}, nil
	case KindOffline:
		return NetworkEvent{Page: env.Page, Online: false}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, env.Type)
	}
}

func depth(e *Element) int {
	n := 0
	for cur := e; cur != nil; cur = cur.Parent {
		n++
		if n > maxElementDepth {
			break
		}
	}
	return n
}
