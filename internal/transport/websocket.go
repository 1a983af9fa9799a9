// Package transport serves the wire protocol over WebSocket and raw TCP
// listeners, each feeding decoded frames into a client.Client and writing
// its responses back out.
package transport

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/mhub-dev/mhub/internal/client"
	"github.com/mhub-dev/mhub/internal/config"
	"github.com/mhub-dev/mhub/internal/hub"
)

// defaultMaxMessageSize bounds a single WebSocket frame.
const defaultMaxMessageSize = 1 << 20 // 1MiB

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketServer serves the wire protocol at /ws over HTTP(S).
type WebSocketServer struct {
	h      *hub.Hub
	log    *slog.Logger
	server *http.Server
}

// NewWebSocketServer builds a chi-routed HTTP server whose /ws endpoint
// upgrades to WebSocket and speaks the wire protocol, one JSON document per
// frame.
func NewWebSocketServer(spec config.ListenSpec, h *hub.Hub, log *slog.Logger) *WebSocketServer {
	if log == nil {
		log = slog.Default()
	}
	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &WebSocketServer{h: h, log: log}
	mux.Get("/ws", srv.handleWS)

	addr := listenAddr(spec)
	httpSrv := &http.Server{Addr: addr, Handler: mux}
	if spec.Cert != "" && spec.Key != "" {
		httpSrv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	srv.server = httpSrv
	return srv
}

// ListenAndServe blocks serving connections until the listener closes or an
// error occurs. Callers typically run it in its own goroutine.
func (s *WebSocketServer) ListenAndServe(spec config.ListenSpec) error {
	s.log.Info("websocket listener starting", "addr", s.server.Addr)
	if spec.Cert != "" && spec.Key != "" {
		return s.server.ListenAndServeTLS(spec.Cert, spec.Key)
	}
	return s.server.ListenAndServe()
}

// Close shuts the listener down.
func (s *WebSocketServer) Close() error {
	return s.server.Close()
}

func (s *WebSocketServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(defaultMaxMessageSize)

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	evicted := make(chan struct{})
	onEvict := func() {
		select {
		case <-evicted:
		default:
			close(evicted)
		}
	}

	c := client.New(s.h, send, onEvict, s.log)
	defer c.Close()

	go func() {
		<-evicted
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := c.HandleCommand(data); err != nil {
			s.log.Debug("websocket write failed, closing connection", "error", err)
			return
		}
	}
}

// listenAddr resolves a WebSocket listener's bind address, defaulting to
// port 13901 when TLS is configured and 13900 otherwise.
func listenAddr(spec config.ListenSpec) string {
	port := spec.Port
	if port == 0 {
		if spec.Cert != "" && spec.Key != "" {
			port = 13901
		} else {
			port = 13900
		}
	}
	return fmt.Sprintf("%s:%d", spec.Host, port)
}
