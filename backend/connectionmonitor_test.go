package backend

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func Test_ConnectionMonitorHappyPath(t *testing.T) {
	m := NewConnectionMonitor(true, time.Second)
	if m.State() != Disconnected {
		t.Fatalf("initial state = %v, want Disconnected", m.State())
	}

	var transitions []ConnectionState
	m.OnStateChanged = func(s ConnectionState) { transitions = append(transitions, s) }

	m.BeginConnecting()
	m.ConnectionProven(false)
	m.LibraryLoaded()

	want := []ConnectionState{Connecting, LoadingLibrary, LoadedLibrary}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func Test_ConnectionMonitorNoHost(t *testing.T) {
	m := NewConnectionMonitor(false, time.Second)
	if m.State() != NoHostConfigured {
		t.Errorf("initial state = %v, want NoHostConfigured", m.State())
	}
}

func Test_ConnectionProvenWithWarmLibrary(t *testing.T) {
	m := NewConnectionMonitor(true, time.Second)
	m.BeginConnecting()
	m.ConnectionProven(true)
	if m.State() != LoadedLibrary {
		t.Errorf("state = %v, want LoadedLibrary when the cached library is already in", m.State())
	}
}

func Test_LibraryOutdatedIsAdvisory(t *testing.T) {
	m := NewConnectionMonitor(true, time.Second)
	m.BeginConnecting()
	m.ConnectionProven(true)

	m.LibraryOutdated()
	if m.State() != OutdatedLibrary {
		t.Fatalf("state = %v, want OutdatedLibrary", m.State())
	}

	// a reload clears the flag
	m.LibraryLoaded()
	if m.State() != LoadedLibrary {
		t.Errorf("state = %v, want LoadedLibrary after reload", m.State())
	}
}

func Test_ConnectionLostFiresOfflineOnce(t *testing.T) {
	m := NewConnectionMonitor(true, time.Hour)
	var offlineCount atomic.Int32
	m.OnOffline = func() { offlineCount.Add(1) }
	m.Probe = func(ctx context.Context) error { return errors.New("down") }

	m.BeginConnecting()
	m.ConnectionProven(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.ConnectionLost(ctx)
	m.ConnectionLost(ctx) // repeated loss reports must not re-fire

	if m.State() != Offline {
		t.Errorf("state = %v, want Offline", m.State())
	}
	if got := offlineCount.Load(); got != 1 {
		t.Errorf("OnOffline fired %d times, want 1", got)
	}
}

func Test_ConnectionLostWhileLoading(t *testing.T) {
	m := NewConnectionMonitor(true, time.Hour)
	var wentOffline bool
	m.OnOffline = func() { wentOffline = true }

	m.BeginConnecting()
	m.ConnectionProven(false)
	if m.State() != LoadingLibrary {
		t.Fatalf("state = %v, want LoadingLibrary", m.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.ConnectionLost(ctx)
	if m.State() != Offline {
		t.Errorf("state = %v, want Offline on failure mid-load", m.State())
	}
	if !wentOffline {
		t.Error("OnOffline not fired")
	}
}

func Test_ConnectionLostIgnoredWhenNotConnected(t *testing.T) {
	m := NewConnectionMonitor(true, time.Hour)
	m.ConnectionLost(context.Background())
	if m.State() != Disconnected {
		t.Errorf("state = %v, want Disconnected", m.State())
	}
}

func Test_ProbeRecovers(t *testing.T) {
	m := NewConnectionMonitor(true, 5*time.Millisecond)
	reconnected := make(chan struct{})
	m.OnReconnected = func() { close(reconnected) }

	var attempts atomic.Int32
	m.Probe = func(ctx context.Context) error {
		// fail twice, then the host is back
		if attempts.Add(1) < 3 {
			return errors.New("still down")
		}
		return nil
	}

	m.BeginConnecting()
	m.ConnectionProven(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.ConnectionLost(ctx)

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("probe never reconnected")
	}
	if m.State() != Connecting {
		t.Errorf("state = %v, want Connecting after probe success", m.State())
	}
	if attempts.Load() < 3 {
		t.Errorf("probe attempts = %d, want at least 3", attempts.Load())
	}
}

func Test_FailureIsTerminalUntilReset(t *testing.T) {
	m := NewConnectionMonitor(true, time.Second)
	m.Fail()

	m.BeginConnecting()
	if m.State() != Failure {
		t.Errorf("state = %v, BeginConnecting must not leave Failure", m.State())
	}
	m.ConnectionLost(context.Background())
	if m.State() != Failure {
		t.Errorf("state = %v, ConnectionLost must not leave Failure", m.State())
	}

	m.Reset(true)
	if m.State() != Disconnected {
		t.Errorf("state = %v, want Disconnected after Reset", m.State())
	}
}

func Test_ScanningFlagIsOrthogonal(t *testing.T) {
	m := NewConnectionMonitor(true, time.Second)
	m.BeginConnecting()
	m.ConnectionProven(true)

	var changes []bool
	m.OnScanningChanged = func(b bool) { changes = append(changes, b) }

	m.SetScanning(true)
	m.SetScanning(true) // no-op repeat
	if m.State() != LoadedLibrary {
		t.Errorf("scanning changed connection state to %v", m.State())
	}
	if !m.Scanning() {
		t.Error("Scanning() = false")
	}
	m.SetScanning(false)

	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Errorf("scanning change callbacks = %v, want [true false]", changes)
	}
}
