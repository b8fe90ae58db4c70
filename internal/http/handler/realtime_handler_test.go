package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"
)

func TestRealtimeStreamsOnlyOwnChanges(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime?table=user_activities&event=insert"
	header := http.Header{testUserHeader: []string{"u1"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v (%v)", err, resp)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	other, _ := realtime.NewChange("user_activities", realtime.EventInsert, map[string]any{"id": "a0", "user_id": "u2"}, nil)
	wrongTable, _ := realtime.NewChange("user_sessions", realtime.EventInsert, map[string]any{"id": "s1", "user_id": "u1"}, nil)
	own, _ := realtime.NewChange("user_activities", realtime.EventInsert, map[string]any{"id": "a1", "user_id": "u1"}, nil)
	for _, c := range []realtime.Change{other, wrongTable, own} {
		if err := env.broker.Publish(ctx, c); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got realtime.Change
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if got.Table != "user_activities" || got.New["id"] != "a1" {
		t.Fatalf("unexpected change: %+v", got)
	}
}

func TestRealtimeRejectsBadFilters(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name  string
		query string
	}{
		{"unknown table", "table=users"},
		{"unknown event", "event=truncate"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, "u1", http.MethodGet, "/realtime?"+tc.query, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
	if rr := env.do(t, "", http.MethodGet, "/realtime", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", rr.Code)
	}
}
