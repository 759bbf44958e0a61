package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 60 * time.Second
	wsReadLimit  = 4 * 1024
)

// ExpenseFeedHandler streams the caller's expense change events over a
// WebSocket. The connection is read-only from the client's side; inbound
// frames other than control frames are discarded.
type ExpenseFeedHandler struct {
	auth     *services.AuthService
	hub      *services.ExpenseHub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewExpenseFeedHandler accepts upgrades from allowedOrigins, or from any
// origin when the list is empty.
func NewExpenseFeedHandler(auth *services.AuthService, hub *services.ExpenseHub, allowedOrigins []string, log *zap.Logger) *ExpenseFeedHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &ExpenseFeedHandler{
		auth: auth,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins[origin]
			},
		},
		log: log.Named("expense_feed"),
	}
}

// Serve handles GET /ws/expenses.
func (h *ExpenseFeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.CurrentUserID(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(userID.String())
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				h.log.Debug("expense feed write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
