package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/response"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"
)

const (
	realtimeWriteWait  = 10 * time.Second
	realtimePongWait   = 60 * time.Second
	realtimePingPeriod = realtimePongWait * 9 / 10
)

var realtimeTables = []string{
	domain.Session{}.TableName(),
	domain.UserActivity{}.TableName(),
	domain.AIPromptLog{}.TableName(),
	domain.CommunicationLog{}.TableName(),
	domain.FileOperationLog{}.TableName(),
}

// RealtimeHandler streams the caller's own table changes over a websocket.
type RealtimeHandler struct {
	broker   realtime.Broker
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(broker realtime.Broker, allowedOrigins []string) *RealtimeHandler {
	allowAll := slices.Contains(allowedOrigins, "*")
	return &RealtimeHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowAll || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user", nil)
		return
	}
	table := r.URL.Query().Get("table")
	if table != "" && table != "*" && !slices.Contains(realtimeTables, table) {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "unknown table", map[string]any{"allowed": realtimeTables})
		return
	}
	event, err := realtime.ParseEventType(r.URL.Query().Get("event"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub, err := h.broker.Subscribe(ctx, realtime.Filter{Table: table, Event: event, UserID: claims.UserID()})
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, response.CodeUpstream, "change feed unavailable", nil)
		return
	}
	defer sub.Unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	observability.RecordRealtimeStream(ctx, 1)
	defer observability.RecordRealtimeStream(context.WithoutCancel(ctx), -1)

	go readUntilClosed(conn, cancel)

	ping := time.NewTicker(realtimePingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(realtimeWriteWait))
			return
		case change, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(realtimeWriteWait))
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(realtimeWriteWait)); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so pongs and close frames are
// processed, and cancels the stream once the peer goes away.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(realtimePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(realtimePongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
