package backend

import (
	"context"
	"log"
	"sync"
	"time"
)

type ConnectionState int

const (
	NoHostConfigured ConnectionState = iota
	Disconnected
	Connecting
	LoadingLibrary
	LoadedLibrary
	OutdatedLibrary
	Offline
	Failure
)

func (s ConnectionState) String() string {
	switch s {
	case NoHostConfigured:
		return "no host configured"
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case LoadingLibrary:
		return "loading library"
	case LoadedLibrary:
		return "library loaded"
	case OutdatedLibrary:
		return "library outdated"
	case Offline:
		return "offline"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// ConnectionMonitor is the top-level session state machine, driven by
// transport and notification-listener events and consumed by the UI layer.
// The scanning flag is orthogonal to the connection state.
type ConnectionMonitor struct {
	// Callbacks are invoked outside the monitor's lock.
	OnStateChanged    func(ConnectionState)
	OnScanningChanged func(bool)
	// OnOffline fires on entering Offline; player and queue in-memory
	// state is cleared by its subscribers.
	OnOffline func()
	// OnReconnected fires when the offline probe succeeds again.
	OnReconnected func()
	// Probe is the liveness check used while offline.
	Probe func(ctx context.Context) error

	probeInterval time.Duration

	mu          sync.Mutex
	state       ConnectionState
	scanning    bool
	probeCancel context.CancelFunc
}

func NewConnectionMonitor(hostConfigured bool, probeInterval time.Duration) *ConnectionMonitor {
	state := NoHostConfigured
	if hostConfigured {
		state = Disconnected
	}
	return &ConnectionMonitor{
		probeInterval: probeInterval,
		state:         state,
	}
}

func (m *ConnectionMonitor) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionMonitor) Scanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}

func (m *ConnectionMonitor) setState(s ConnectionState) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	log.Printf("connection state: %s -> %s", m.state, s)
	m.state = s
	cb := m.OnStateChanged
	m.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Reset forces the machine back to its initial state, e.g. on host switch.
// This is the only transition out of Failure.
func (m *ConnectionMonitor) Reset(hostConfigured bool) {
	m.stopProbe()
	m.SetScanning(false)
	if hostConfigured {
		m.setState(Disconnected)
	} else {
		m.setState(NoHostConfigured)
	}
}

func (m *ConnectionMonitor) BeginConnecting() {
	if m.State() == Failure {
		return
	}
	m.stopProbe()
	m.setState(Connecting)
}

// ConnectionProven records a successful first RPC call on the new session.
func (m *ConnectionMonitor) ConnectionProven(libraryLoaded bool) {
	if m.State() != Connecting {
		return
	}
	if libraryLoaded {
		m.setState(LoadedLibrary)
	} else {
		m.setState(LoadingLibrary)
	}
}

func (m *ConnectionMonitor) LibraryLoaded() {
	if s := m.State(); s == LoadingLibrary || s == OutdatedLibrary {
		m.setState(LoadedLibrary)
	}
}

// LibraryOutdated is advisory: it drives a reload prompt, never an
// automatic reload.
func (m *ConnectionMonitor) LibraryOutdated() {
	if m.State() == LoadedLibrary {
		m.setState(OutdatedLibrary)
	}
}

func (m *ConnectionMonitor) SetScanning(scanning bool) {
	m.mu.Lock()
	if m.scanning == scanning {
		m.mu.Unlock()
		return
	}
	m.scanning = scanning
	cb := m.OnScanningChanged
	m.mu.Unlock()
	if cb != nil {
		cb(scanning)
	}
}

// ConnectionLost moves any connected state to Offline and starts the
// periodic reconnect probe, which retries indefinitely until the host
// responds or the user switches hosts.
func (m *ConnectionMonitor) ConnectionLost(ctx context.Context) {
	switch m.State() {
	case NoHostConfigured, Disconnected, Offline, Failure:
		return
	}
	m.setState(Offline)
	if m.OnOffline != nil {
		m.OnOffline()
	}
	m.startProbe(ctx)
}

// Fail records an unrecoverable error distinct from "offline"; terminal
// until the user reconfigures.
func (m *ConnectionMonitor) Fail() {
	m.stopProbe()
	m.setState(Failure)
}

func (m *ConnectionMonitor) startProbe(ctx context.Context) {
	if m.Probe == nil {
		return
	}
	m.mu.Lock()
	if m.probeCancel != nil {
		m.mu.Unlock()
		return // probe already running
	}
	probeCtx, cancel := context.WithCancel(ctx)
	m.probeCancel = cancel
	m.mu.Unlock()

	go func() {
		t := time.NewTicker(m.probeInterval)
		defer t.Stop()
		for {
			select {
			case <-probeCtx.Done():
				return
			case <-t.C:
				if m.State() != Offline {
					return
				}
				if err := m.Probe(probeCtx); err != nil {
					continue
				}
				m.stopProbe()
				m.setState(Connecting)
				if m.OnReconnected != nil {
					m.OnReconnected()
				}
				return
			}
		}
	}()
}

func (m *ConnectionMonitor) stopProbe() {
	m.mu.Lock()
	cancel := m.probeCancel
	m.probeCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
