package transport

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/mhub-dev/mhub/internal/client"
	"github.com/mhub-dev/mhub/internal/config"
	"github.com/mhub-dev/mhub/internal/hub"
	"github.com/mhub-dev/mhub/internal/protocol"
)

// TCPServer serves the wire protocol over a newline-delimited TCP stream:
// one JSON document per line, tolerant of trailing \r and blank lines. A
// line that does not decode as a command is answered with an error response
// and the connection is then closed.
type TCPServer struct {
	h        *hub.Hub
	log      *slog.Logger
	listener net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	done    chan struct{}
}

// NewTCPServer builds a TCPServer bound to hub h. Call Start to begin
// accepting connections.
func NewTCPServer(h *hub.Hub, log *slog.Logger) *TCPServer {
	if log == nil {
		log = slog.Default()
	}
	return &TCPServer{h: h, log: log, conns: make(map[net.Conn]struct{}), done: make(chan struct{})}
}

// Start begins listening per spec and accepting connections in the
// background. Non-blocking.
func (s *TCPServer) Start(spec config.ListenSpec) error {
	addr := tcpListenAddr(spec)
	var ln net.Listener
	var err error
	if spec.Cert != "" && spec.Key != "" {
		cert, cerr := tls.LoadX509KeyPair(spec.Cert, spec.Key)
		if cerr != nil {
			return fmt.Errorf("load tls keypair: %w", cerr)
		}
		ln, err = tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}
	s.listener = ln
	s.log.Info("tcp listener starting", "addr", addr)
	go s.acceptLoop()
	return nil
}

// Close stops accepting connections and closes every open one.
func (s *TCPServer) Close() error {
	close(s.done)
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()
	return err
}

func (s *TCPServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.Warn("tcp accept error", "error", err)
				continue
			}
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *TCPServer) removeConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer s.removeConn(conn)

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = append(data, '\n')
		_, err = conn.Write(data)
		return err
	}

	evicted := make(chan struct{})
	onEvict := func() {
		select {
		case <-evicted:
		default:
			close(evicted)
		}
	}
	go func() {
		<-evicted
		_ = conn.Close()
	}()

	c := client.New(s.h, send, onEvict, s.log)
	defer c.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := trimCR(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		_, protoErr := protocol.Decode(line)
		if err := c.HandleCommand(line); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Debug("tcp write failed, closing connection", "error", err)
			}
			return
		}
		if protoErr != nil {
			s.log.Debug("tcp protocol error, closing connection", "error", protoErr)
			return
		}
	}
}

// tcpListenAddr resolves a TCP listener's bind address, defaulting to port
// 13902 regardless of TLS (the WebSocket listener owns the 13900/13901 split).
func tcpListenAddr(spec config.ListenSpec) string {
	port := spec.Port
	if port == 0 {
		port = 13902
	}
	return fmt.Sprintf("%s:%d", spec.Host, port)
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
