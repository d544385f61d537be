package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/clinicaid/clinisync/internal/event"
	"github.com/clinicaid/clinisync/internal/remote"
	"github.com/clinicaid/clinisync/internal/store"
	"github.com/clinicaid/clinisync/internal/syncer"
)

func newTestServer(t *testing.T) (*Server, *event.Bus) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "documents.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	quiet := log.New(io.Discard, "", 0)
	client := remote.New("http://127.0.0.1:1", time.Second, quiet)
	bus := event.NewBus(quiet)
	engine := syncer.NewEngine(st, client, bus, quiet)

	srv := NewServer("127.0.0.1:0", engine, bus, quiet)
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, bus
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/status")
	if err != nil {
		t.Fatalf("Failed to fetch status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var status syncer.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.IsOnline {
		t.Error("Expected offline status for a fresh engine")
	}
	if status.TotalDocuments != 0 {
		t.Errorf("Expected an empty store, got %d documents", status.TotalDocuments)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /metrics, got %d", resp.StatusCode)
	}
}

func TestWebSocketReceivesBusEvents(t *testing.T) {
	srv, bus := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the subscription to be visible before emitting.
	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Emit(event.Event{Type: event.TypeSyncComplete, PassID: "pass-1"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if we.Type != event.TypeSyncComplete || we.PassID != "pass-1" {
		t.Errorf("Unexpected event payload: %+v", we)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("Failed to fetch health: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected ok status, got %v", body["status"])
	}
}
