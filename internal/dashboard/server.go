// Package dashboard exposes the sync subsystem's state over HTTP.
//
// Three surfaces: /status returns a JSON snapshot of store statistics and
// connectivity, /metrics serves the Prometheus registry, and /ws streams
// bus events (document lifecycle, connectivity, sync phase) to WebSocket
// clients so a local UI can react without polling.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicaid/clinisync/internal/event"
	"github.com/clinicaid/clinisync/internal/syncer"
)

// wireEvent is the JSON shape pushed to WebSocket clients. Err is flattened
// to a string because error values do not marshal.
type wireEvent struct {
	Type      event.Type      `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Entity    string          `json:"entity,omitempty"`
	LocalID   string          `json:"localId,omitempty"`
	PassID    string          `json:"passId,omitempty"`
	Error     string          `json:"error,omitempty"`
	Document  json.RawMessage `json:"document,omitempty"`
}

// Server is the local dashboard HTTP server.
type Server struct {
	addr     string
	engine   *syncer.Engine
	bus      *event.Bus
	logger   *log.Logger
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast   chan wireEvent
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer wires a dashboard server listening on addr. If logger is nil, a
// default logger writing to stderr is used.
func NewServer(addr string, engine *syncer.Engine, bus *event.Bus, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		engine:    engine,
		bus:       bus,
		logger:    logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan wireEvent, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start binds the listener, subscribes to the event bus and begins serving.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.unsubscribe = s.bus.Subscribe(s.onEvent)

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop unsubscribes from the bus, closes client connections and shuts the
// HTTP server down.
func (s *Server) Stop() error {
	s.logger.Printf("Stopping dashboard")
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown error: %w", err)
	}
	s.wg.Wait()
	return nil
}

// Addr returns the bound listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// onEvent converts a bus event to the wire shape and queues it. A full
// queue drops the event; the dashboard is an observer, never backpressure
// on the sync engine.
func (s *Server) onEvent(ev event.Event) {
	we := wireEvent{
		Type:      ev.Type,
		Timestamp: time.Now().UTC(),
		Entity:    string(ev.Entity),
		LocalID:   ev.LocalID,
		PassID:    ev.PassID,
	}
	if ev.Err != nil {
		we.Error = ev.Err.Error()
	}
	if ev.Document != nil {
		if data, err := json.Marshal(ev.Document); err == nil {
			we.Document = data
		}
	}

	select {
	case s.broadcast <- we:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("WARNING: broadcast queue full, dropping %s event", ev.Type)
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case we := <-s.broadcast:
			data, err := json.Marshal(we)
			if err != nil {
				s.logger.Printf("Failed to marshal event: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Client connected (total: %d)", count)

	go s.readLoop(conn)
}

// readLoop drains client frames until disconnect. Client messages carry no
// meaning; the stream is one-way.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		count := len(s.clients)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", count)
		return
	}
	s.clientsMu.Unlock()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.GetStatus(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
