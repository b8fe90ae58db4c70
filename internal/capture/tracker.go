package capture

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sandeepkv93/activity-logging-gateway/internal/activity"
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/redact"
)

const maxElementText = 100

// ActivityLogger is the part of activity.Logger the tracker drives.
type ActivityLogger interface {
	Initialize(ctx context.Context, userID string) string
	Cleanup(ctx context.Context)
	LogActivity(ctx context.Context, e activity.Entry) domain.UserActivity
}

type Tracker struct {
	logger ActivityLogger
	target EventTarget

	// lifecycleMu serializes Mount and Unmount. mu guards the fields below
	// and is never held across logger calls.
	lifecycleMu sync.Mutex

	mu       sync.Mutex
	mounted  bool
	removers []func()
	lastPath string
}

func NewTracker(logger ActivityLogger, target EventTarget) *Tracker {
	return &Tracker{logger: logger, target: target}
}

// Mount initializes the logger and registers one listener per event kind.
// Mounting an already mounted tracker only returns the session id. Session
// setup can wait on storage and geo lookups; Navigate and Mounted do not
// wait for it.
func (t *Tracker) Mount(ctx context.Context, userID string) string {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	sessionID := t.logger.Initialize(ctx, userID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mounted {
		return sessionID
	}
	handlers := map[Kind]Listener{
		KindClick:              t.handleClick,
		KindSubmit:             t.handleSubmit,
		KindError:              t.handleError,
		KindUnhandledRejection: t.handleError,
		KindVisibilityChange:   t.handleVisibility,
		KindOnline:             t.handleNetwork,
		KindOffline:            t.handleNetwork,
	}
	for _, kind := range Kinds {
		t.removers = append(t.removers, t.target.AddListener(kind, handlers[kind]))
	}
	t.mounted = true
	return sessionID
}

// Unmount removes every listener Mount registered and cleans the logger up.
func (t *Tracker) Unmount(ctx context.Context) {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	t.mu.Lock()
	removers := t.removers
	t.removers = nil
	t.mounted = false
	t.lastPath = ""
	t.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	t.logger.Cleanup(ctx)
}

func (t *Tracker) Mounted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mounted
}

// Navigate records a page view unless path equals the previous one.
func (t *Tracker) Navigate(ctx context.Context, pv PageView) bool {
	t.mu.Lock()
	if pv.Path == t.lastPath {
		t.mu.Unlock()
		return false
	}
	previous := t.lastPath
	t.lastPath = pv.Path
	t.mu.Unlock()

	details := map[string]any{"path": pv.Path}
	if previous != "" {
		details["from"] = previous
	}
	if pv.Referrer != "" {
		details["referrer"] = pv.Referrer
	}
	label := pv.Title
	if label == "" {
		label = pv.Path
	}
	t.logger.LogActivity(ctx, activity.Entry{
		Type:       domain.ActivityPageView,
		Category:   domain.CategoryNavigation,
		Label:      label,
		Details:    details,
		PageURL:    pv.URL,
		PageTitle:  pv.Title,
		Route:      pv.Path,
		LoadTimeMs: pv.LoadTimeMs,
	})
	return true
}

func (t *Tracker) handleClick(ctx context.Context, e Event) {
	click, ok := e.(ClickEvent)
	if !ok {
		return
	}
	el := click.Target.Closest()
	if el == nil {
		return
	}
	elementType := strings.ToLower(el.Type)
	if elementType == "" {
		elementType = strings.ToLower(el.Tag)
	}
	details := map[string]any{"tag": strings.ToLower(el.Tag)}
	if el.Href != "" {
		details["href"] = el.Href
	}
	if el.Role != "" {
		details["role"] = el.Role
	}
	t.logger.LogActivity(ctx, activity.Entry{
		Type:         domain.ActivityButtonClick,
		Category:     domain.CategoryInteraction,
		Label:        el.Label(),
		Details:      details,
		PageURL:      click.URL,
		PageTitle:    click.Title,
		Route:        click.Route,
		ElementID:    el.ID,
		ElementClass: el.Class,
		ElementType:  elementType,
		ElementText:  truncate(strings.TrimSpace(el.Text), maxElementText),
	})
}

func (t *Tracker) handleSubmit(ctx context.Context, e Event) {
	submit, ok := e.(SubmitEvent)
	if !ok {
		return
	}
	names := make([]any, 0, len(submit.Fields))
	values := make(map[string]any, len(submit.Fields))
	for _, f := range submit.Fields {
		names = append(names, f.Name)
		if redact.IsSensitiveKey(f.Name) {
			values[f.Name] = redact.Marker
		} else {
			values[f.Name] = f.Value
		}
	}
	label := submit.Form.Name
	if label == "" {
		label = submit.Form.ID
	}
	if label == "" {
		label = "form"
	}
	valid := submit.Valid
	t.logger.LogActivity(ctx, activity.Entry{
		Type:     domain.ActivityFormSubmit,
		Category: domain.CategoryForm,
		Label:    label,
		Details: map[string]any{
			"field_names":  names,
			"field_values": values,
			"is_valid":     submit.Valid,
			"form_action":  submit.Form.Action,
			"form_method":  strings.ToUpper(submit.Form.Method),
		},
		PageURL:   submit.URL,
		PageTitle: submit.Title,
		Route:     submit.Route,
		ElementID: submit.Form.ID,
		Success:   &valid,
	})
}

func (t *Tracker) handleError(ctx context.Context, e Event) {
	ev, ok := e.(ErrorEvent)
	if !ok {
		return
	}
	message := ev.Message
	if message == "" {
		message = "Unknown error"
	}
	failed := false
	t.logger.LogActivity(ctx, activity.Entry{
		Type:     domain.ActivityError,
		Category: domain.CategoryError,
		Label:    truncate(message, 255),
		Details: map[string]any{
			"kind":     string(ev.Kind()),
			"filename": ev.Filename,
			"line":     ev.Line,
			"column":   ev.Column,
			"stack":    ev.Stack,
		},
		PageURL:      ev.URL,
		PageTitle:    ev.Title,
		Route:        ev.Route,
		Success:      &failed,
		ErrorMessage: message,
	})
}

func (t *Tracker) handleVisibility(ctx context.Context, e Event) {
	ev, ok := e.(VisibilityEvent)
	if !ok {
		return
	}
	state, label := "visible", "Tab visible"
	if ev.Hidden {
		state, label = "hidden", "Tab hidden"
	}
	t.logger.LogActivity(ctx, activity.Entry{
		Type:      domain.ActivityTabSwitch,
		Category:  domain.CategorySystem,
		Label:     label,
		Details:   map[string]any{"visibility": state},
		PageURL:   ev.URL,
		PageTitle: ev.Title,
		Route:     ev.Route,
	})
}

func (t *Tracker) handleNetwork(ctx context.Context, e Event) {
	ev, ok := e.(NetworkEvent)
	if !ok {
		return
	}
	label := "Offline"
	if ev.Online {
		label = "Online"
	}
	t.logger.LogActivity(ctx, activity.Entry{
		Type:      domain.ActivityNetworkStatus,
		Category:  domain.CategorySystem,
		Label:     label,
		Details:   map[string]any{"online": ev.Online},
		PageURL:   ev.URL,
		PageTitle: ev.Title,
		Route:     ev.Route,
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
