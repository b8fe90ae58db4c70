// Package capture turns browser events into activity records. Events reach a
// Tracker through an EventTarget, the same way DOM events reach listeners.
package capture

import "strings"

type Kind string

const (
	KindClick              Kind = "click"
	KindSubmit             Kind = "submit"
	KindError              Kind = "error"
	KindUnhandledRejection Kind = "unhandledrejection"
	KindVisibilityChange   Kind = "visibilitychange"
	KindOnline             Kind = "online"
	KindOffline            Kind = "offline"
)

// Kinds lists every kind a Tracker listens for.
var Kinds = []Kind{
	KindClick,
	KindSubmit,
	KindError,
	KindUnhandledRejection,
	KindVisibilityChange,
	KindOnline,
	KindOffline,
}

type Event interface {
	Kind() Kind
	Context() Page
}

// Page is where the event happened.
type Page struct {
	URL   string `json:"page_url,omitempty"`
	Route string `json:"route,omitempty"`
	Title string `json:"page_title,omitempty"`
}

// Element is the subset of a DOM node the tracker inspects. Parent links
// walk towards the document root.
type Element struct {
	Tag       string   `json:"tag"`
	ID        string   `json:"id,omitempty"`
	Class     string   `json:"class,omitempty"`
	Type      string   `json:"type,omitempty"`
	Text      string   `json:"text,omitempty"`
	AriaLabel string   `json:"aria_label,omitempty"`
	Title     string   `json:"title,omitempty"`
	Role      string   `json:"role,omitempty"`
	Href      string   `json:"href,omitempty"`
	Parent    *Element `json:"parent,omitempty"`
}

// Interactive reports whether the element is a button or link.
func (e *Element) Interactive() bool {
	if e == nil {
		return false
	}
	switch strings.ToLower(e.Tag) {
	case "button", "a":
		return true
	case "input":
		t := strings.ToLower(e.Type)
		return t == "submit" || t == "button"
	}
	return strings.EqualFold(e.Role, "button")
}

// Closest returns the nearest interactive element starting at e itself.
func (e *Element) Closest() *Element {
	for cur := e; cur != nil; cur = cur.Parent {
		if cur.Interactive() {
			return cur
		}
	}
	return nil
}

// Label is the first non-empty of visible text, aria-label and title.
func (e *Element) Label() string {
	if e == nil {
		return ""
	}
	for _, v := range []string{e.Text, e.AriaLabel, e.Title} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

type ClickEvent struct {
	Page
	Target *Element
}

func (ClickEvent) Kind() Kind      { return KindClick }
func (e ClickEvent) Context() Page { return e.Page }

type Form struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Action string `json:"action,omitempty"`
	Method string `json:"method,omitempty"`
}

type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type SubmitEvent struct {
	Page
	Form   Form
	Fields []Field
	Valid  bool
}

func (SubmitEvent) Kind() Kind      { return KindSubmit }
func (e SubmitEvent) Context() Page { return e.Page }

// ErrorEvent covers thrown errors and unhandled promise rejections.
type ErrorEvent struct {
	Page
	Rejection bool
	Message   string
	Filename  string
	Line      int
	Column    int
	Stack     string
}

func (e ErrorEvent) Kind() Kind {
	if e.Rejection {
		return KindUnhandledRejection
	}
	return KindError
}

func (e ErrorEvent) Context() Page { return e.Page }

type VisibilityEvent struct {
	Page
	Hidden bool
}

func (VisibilityEvent) Kind() Kind      { return KindVisibilityChange }
func (e VisibilityEvent) Context() Page { return e.Page }

type NetworkEvent struct {
	Page
	Online bool
}

func (e NetworkEvent) Kind() Kind {
	if e.Online {
		return KindOnline
	}
	return KindOffline
}

func (e NetworkEvent) Context() Page { return e.Page }

// PageView is a route change reported by the client router.
type PageView struct {
	Path       string `json:"path" validate:"required"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	Referrer   string `json:"referrer,omitempty"`
	LoadTimeMs *int64 `json:"load_time_ms,omitempty"`
}
