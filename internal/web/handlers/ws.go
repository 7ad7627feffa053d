package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-attendance/internal/broadcast"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsSnapshotLimit = 10
)

// WSHandler serves the live attendance feeds over WebSocket.
type WSHandler struct {
	hub        *broadcast.Hub
	employees  database.EmployeeStore
	attendance database.AttendanceStore
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(hub *broadcast.Hub, employees database.EmployeeStore, attendance database.AttendanceStore) *WSHandler {
	return &WSHandler{
		hub:        hub,
		employees:  employees,
		attendance: attendance,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS policy is enforced by the HTTP middleware stack.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Notifications streams the global attendance notification feed.
func (h *WSHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, broadcast.TopicNotifications, nil)
}

// Dashboard streams dashboard updates, starting with a stats snapshot.
func (h *WSHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, broadcast.TopicDashboard, func(ctx context.Context) (any, error) {
		stats, err := h.attendance.Stats(ctx, time.Now())
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "initial_stats", "stats": stats}, nil
	})
}

// EmployeeDashboard streams one employee's feed, starting with a snapshot of
// today's summary and their latest records.
func (h *WSHandler) EmployeeDashboard(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	emp, err := h.employees.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get employee")
		return
	}

	h.serve(w, r, broadcast.EmployeeTopic(emp.Code), func(ctx context.Context) (any, error) {
		records, err := h.attendance.RecentRecordsForEmployee(ctx, emp.ID, wsSnapshotLimit)
		if err != nil {
			return nil, err
		}

		summary, err := h.attendance.SummaryForDay(ctx, emp.ID, time.Now())
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}

		return map[string]any{
			"type":    "initial_state",
			"summary": summary,
			"records": records,
		}, nil
	})
}

// serve upgrades the connection, optionally sends an initial snapshot, and
// then forwards topic messages until either side disconnects. Missed messages
// are not replayed; clients resynchronize from the snapshot endpoints.
func (h *WSHandler) serve(w http.ResponseWriter, r *http.Request, topic string, initial func(context.Context) (any, error)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	if initial != nil {
		payload, err := initial(r.Context())
		if err != nil {
			log.Printf("ws: building snapshot for %s: %v", topic, err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			return
		}
	}

	sub := h.hub.Subscribe(topic)
	defer sub.Close()

	// Reader goroutine detects the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
