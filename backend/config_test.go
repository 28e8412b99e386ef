package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func Test_ConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	c := DefaultConfig()
	c.Application.PingIntervalSeconds = 7
	c.Hosts = []*HostConfig{
		{ID: uuid.New(), Name: "Living Room", IP: "192.168.1.20", HTTPPort: 8080, TCPPort: 9090, Username: "kodi", Selected: true},
	}
	if err := c.WriteConfigFile(path); err != nil {
		t.Fatalf("WriteConfigFile: %v", err)
	}

	got, err := ReadConfigFile(path)
	if err != nil {
		t.Fatalf("ReadConfigFile: %v", err)
	}
	if got.Application.PingIntervalSeconds != 7 {
		t.Errorf("PingIntervalSeconds = %d, want 7", got.Application.PingIntervalSeconds)
	}
	if len(got.Hosts) != 1 {
		t.Fatalf("hosts = %d, want 1", len(got.Hosts))
	}
	h := got.Hosts[0]
	if h.ID != c.Hosts[0].ID || h.Name != "Living Room" || h.IP != "192.168.1.20" || !h.Selected {
		t.Errorf("host round-trip mismatch: %+v", h)
	}
}

func Test_ConfigDecodeOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	// a sparse hand-written file keeps defaults for everything it omits
	os.WriteFile(path, []byte("[Application]\nDialTimeoutSeconds = 15\n"), 0644)

	got, err := ReadConfigFile(path)
	if err != nil {
		t.Fatalf("ReadConfigFile: %v", err)
	}
	if got.Application.DialTimeoutSeconds != 15 {
		t.Errorf("DialTimeoutSeconds = %d, want 15", got.Application.DialTimeoutSeconds)
	}
	if got.Application.RequestTimeoutSeconds != 300 {
		t.Errorf("RequestTimeoutSeconds = %d, want default 300", got.Application.RequestTimeoutSeconds)
	}
	if got.Library.RecentlyAddedCap != 500 {
		t.Errorf("RecentlyAddedCap = %d, want default 500", got.Library.RecentlyAddedCap)
	}
}

func Test_ConfigBackfillsHostIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte(`
[[Hosts]]
Name = "Bedroom"
IP = "10.0.0.7"
HTTPPort = 8080
TCPPort = 9090
`), 0644)

	got, err := ReadConfigFile(path)
	if err != nil {
		t.Fatalf("ReadConfigFile: %v", err)
	}
	if len(got.Hosts) != 1 {
		t.Fatalf("hosts = %d, want 1", len(got.Hosts))
	}
	if got.Hosts[0].ID == uuid.Nil {
		t.Error("hand-edited host did not get an ID backfilled")
	}
}

func Test_HostConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		host HostConfig
		ok   bool
	}{
		{"valid", HostConfig{IP: "10.0.0.7", HTTPPort: 8080, TCPPort: 9090}, true},
		{"missing ip", HostConfig{HTTPPort: 8080, TCPPort: 9090}, false},
		{"zero http port", HostConfig{IP: "10.0.0.7", TCPPort: 9090}, false},
		{"http port too high", HostConfig{IP: "10.0.0.7", HTTPPort: 70000, TCPPort: 9090}, false},
		{"zero tcp port", HostConfig{IP: "10.0.0.7", HTTPPort: 8080}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.host.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
