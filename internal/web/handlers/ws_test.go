package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-attendance/internal/broadcast"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func newWSFixture() (*WSHandler, *broadcast.Hub, *mock.EmployeeStore, *mock.AttendanceStore) {
	hub := broadcast.NewHub()
	employees := mock.NewEmployeeStore()
	records := mock.NewAttendanceStore()
	return NewWSHandler(hub, employees, records), hub, employees, records
}

func wsServer(handler *WSHandler) *httptest.Server {
	r := chi.NewRouter()
	r.Get("/ws/attendance/notifications", handler.Notifications)
	r.Get("/ws/dashboard/updates", handler.Dashboard)
	r.Get("/ws/employee/{code}/dashboard", handler.EmployeeDashboard)
	return httptest.NewServer(r)
}

func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(server.URL, "http", "ws", 1) + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", path, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

// waitForSubscriber blocks until the hub sees a subscriber on the topic.
func waitForSubscriber(t *testing.T, hub *broadcast.Hub, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(topic) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no subscriber appeared on %s", topic)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readWSMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message: %v", err)
	}
	return msg
}

func TestWS_NotificationsFeed(t *testing.T) {
	handler, hub, _, _ := newWSFixture()
	server := wsServer(handler)
	defer server.Close()

	conn := dialWS(t, server, "/ws/attendance/notifications")
	defer conn.Close()
	waitForSubscriber(t, hub, broadcast.TopicNotifications)

	hub.PublishEvent(broadcast.Event{
		EmployeeName: "Jane Doe",
		EmployeeID:   "EMP001",
		Action:       "Check In",
		Confidence:   92.5,
	})

	msg := readWSMessage(t, conn)
	if msg["type"] != "attendance_notification" {
		t.Errorf("message type = %v", msg["type"])
	}
	payload, ok := msg["message"].(map[string]any)
	if !ok || payload["employee_id"] != "EMP001" {
		t.Errorf("unexpected payload: %v", msg["message"])
	}
}

func TestWS_DashboardSnapshotThenUpdates(t *testing.T) {
	handler, hub, _, records := newWSFixture()
	records.TotalEmployees = 3
	server := wsServer(handler)
	defer server.Close()

	conn := dialWS(t, server, "/ws/dashboard/updates")
	defer conn.Close()

	// First frame is the stats snapshot.
	msg := readWSMessage(t, conn)
	if msg["type"] != "initial_stats" {
		t.Fatalf("first message type = %v, want initial_stats", msg["type"])
	}
	stats, ok := msg["stats"].(map[string]any)
	if !ok || stats["total_employees"] != float64(3) {
		t.Errorf("unexpected stats snapshot: %v", msg["stats"])
	}

	waitForSubscriber(t, hub, broadcast.TopicDashboard)
	hub.PublishEvent(broadcast.Event{EmployeeID: "EMP001", Action: "Check In"})

	msg = readWSMessage(t, conn)
	if msg["type"] != "dashboard_update" {
		t.Errorf("second message type = %v, want dashboard_update", msg["type"])
	}
}

func TestWS_EmployeeDashboardSnapshot(t *testing.T) {
	handler, hub, employees, _ := newWSFixture()
	employees.Add(database.Employee{Code: "EMP001", FirstName: "Jane", LastName: "Doe", Active: true})
	server := wsServer(handler)
	defer server.Close()

	conn := dialWS(t, server, "/ws/employee/EMP001/dashboard")
	defer conn.Close()

	msg := readWSMessage(t, conn)
	if msg["type"] != "initial_state" {
		t.Fatalf("first message type = %v, want initial_state", msg["type"])
	}

	waitForSubscriber(t, hub, broadcast.EmployeeTopic("EMP001"))
	hub.PublishEvent(broadcast.Event{EmployeeID: "EMP001", Action: "Check Out"})

	msg = readWSMessage(t, conn)
	if msg["type"] != "employee_update" {
		t.Errorf("second message type = %v, want employee_update", msg["type"])
	}
}

func TestWS_EmployeeDashboardUnknownEmployee(t *testing.T) {
	handler, _, _, _ := newWSFixture()
	server := wsServer(handler)
	defer server.Close()

	url := strings.Replace(server.URL, "http", "ws", 1) + "/ws/employee/NOPE/dashboard"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure for unknown employee")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Errorf("expected 404 response, got %+v", resp)
	}
	if resp != nil {
		resp.Body.Close()
	}
}
