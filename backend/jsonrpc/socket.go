package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"

	"nhooyr.io/websocket"
)

// Notification is an unsolicited server→client envelope received over the
// WebSocket channel. Params are kept raw: notifications are invalidation
// signals, and the affected state is refetched rather than parsed in place.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Socket maintains one WebSocket connection to the server's notification
// endpoint. Open and Close are idempotent; opening over a live connection
// first closes the old one.
type Socket struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSocket(host string, tcpPort int) *Socket {
	return &Socket{
		url: fmt.Sprintf("ws://%s/jsonrpc", net.JoinHostPort(host, fmt.Sprintf("%d", tcpPort))),
	}
}

func (s *Socket) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close(websocket.StatusNormalClosure, "reconnecting")
		s.conn = nil
	}
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	conn.SetReadLimit(1 << 20)
	s.conn = conn
	return nil
}

func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close(websocket.StatusNormalClosure, "")
		s.conn = nil
	}
}

// Ping sends a low-level WebSocket ping and waits for the pong.
// A concurrent Receive loop must be running for the pong to be read.
func (s *Socket) Ping(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: socket closed", ErrNetwork)
	}
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil
}

// Receive blocks until the next decodable notification frame arrives.
// Frames that do not decode as a notification envelope are logged and
// skipped; an error return means the socket itself failed or was closed.
func (s *Socket) Receive(ctx context.Context) (*Notification, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%w: socket closed", ErrNetwork)
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		var n Notification
		if err := json.Unmarshal(data, &n); err != nil || n.Method == "" {
			log.Printf("ignoring undecodable notification frame (%d bytes)", len(data))
			continue
		}
		return &n, nil
	}
}
