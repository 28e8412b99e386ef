package backend

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/kodiak-app/kodiak/backend/jsonrpc"
)

// NotificationListener keeps exactly one receive loop alive per open socket
// and dispatches decoded notifications to the handlers registered at
// session construction. Notifications are invalidation signals: handlers
// refetch the affected state rather than parse the payload. A minimal
// heartbeat pings the peer at a fixed interval; any socket or ping failure
// is reported once and the loops stop.
type NotificationListener struct {
	// OnConnectionError receives the first socket or ping failure after
	// a Start. Handled by the connection monitor.
	OnConnectionError func(error)

	socket       *jsonrpc.Socket
	pingInterval time.Duration

	mu       sync.Mutex
	handlers map[string]func(json.RawMessage)
}

func NewNotificationListener(socket *jsonrpc.Socket, pingInterval time.Duration) *NotificationListener {
	return &NotificationListener{
		socket:       socket,
		pingInterval: pingInterval,
		handlers:     make(map[string]func(json.RawMessage)),
	}
}

// Handle registers the handler for a notification kind. The table is fixed
// at session construction; there is no unregistration.
func (l *NotificationListener) Handle(method string, fn func(json.RawMessage)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[method] = fn
}

func (l *NotificationListener) handler(method string) func(json.RawMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handlers[method]
}

// Start launches the receive loop and the heartbeat for the currently open
// socket. Both end on ctx cancellation or the first connection error.
func (l *NotificationListener) Start(ctx context.Context) {
	var reportOnce sync.Once
	report := func(err error) {
		reportOnce.Do(func() {
			if ctx.Err() != nil {
				return // shutdown, not a connection failure
			}
			log.Printf("notification channel error: %v", err)
			if l.OnConnectionError != nil {
				l.OnConnectionError(err)
			}
		})
	}

	go l.receiveLoop(ctx, report)
	go l.pingLoop(ctx, report)
}

func (l *NotificationListener) receiveLoop(ctx context.Context, report func(error)) {
	for {
		n, err := l.socket.Receive(ctx)
		if err != nil {
			report(err)
			return
		}
		if fn := l.handler(n.Method); fn != nil {
			fn(n.Params)
		}
		// unknown kinds are ignored and the loop re-arms
	}
}

// pingLoop sends a ping immediately after socket open and re-schedules the
// next one after a fixed delay on each success.
func (l *NotificationListener) pingLoop(ctx context.Context, report func(error)) {
	for {
		pingCtx, cancel := context.WithTimeout(ctx, l.pingInterval)
		err := l.socket.Ping(pingCtx)
		cancel()
		if err != nil {
			report(err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.pingInterval):
		}
	}
}
