package backend

import (
	"errors"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidHost = errors.New("invalid host configuration")

// HostConfig identifies one remote media-center server. Exactly one host
// may be selected at a time, or none.
type HostConfig struct {
	ID       uuid.UUID
	Name     string
	IP       string
	HTTPPort int
	TCPPort  int
	Username string
	// Password is only stored here in portable mode; otherwise
	// credentials live in the system keyring.
	Password string `toml:",omitempty"`
	Selected bool
}

// Validate rejects malformed host entries before any network call.
func (h *HostConfig) Validate() error {
	if h.IP == "" {
		return ErrInvalidHost
	}
	if h.HTTPPort <= 0 || h.HTTPPort > 65535 {
		return ErrInvalidHost
	}
	if h.TCPPort <= 0 || h.TCPPort > 65535 {
		return ErrInvalidHost
	}
	return nil
}

type AppConfig struct {
	RequestTimeoutSeconds int
	DialTimeoutSeconds    int
	PingIntervalSeconds   int
	ReconnectProbeSeconds int
}

type LibraryConfig struct {
	RecentlyAddedCap        int
	RecentlyPlayedCap       int
	MostPlayedCap           int
	RandomCap               int
	FavoriteRatingThreshold int
	FavoriteRating          int
}

type Config struct {
	Application AppConfig
	Library     LibraryConfig
	Hosts       []*HostConfig
}

func DefaultConfig() *Config {
	return &Config{
		Application: AppConfig{
			RequestTimeoutSeconds: 300,
			DialTimeoutSeconds:    60,
			PingIntervalSeconds:   5,
			ReconnectProbeSeconds: 10,
		},
		Library: LibraryConfig{
			RecentlyAddedCap:        500,
			RecentlyPlayedCap:       100,
			MostPlayedCap:           100,
			RandomCap:               100,
			FavoriteRatingThreshold: 4,
			FavoriteRating:          10,
		},
	}
}

func ReadConfigFile(filepath string) (*Config, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := DefaultConfig()
	if err := toml.NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}

	// Backfill IDs for hosts created by hand-editing the config
	for _, h := range c.Hosts {
		if h.ID == uuid.Nil {
			h.ID = uuid.New()
		}
	}

	return c, nil
}

var writeLock sync.Mutex

func (c *Config) WriteConfigFile(filepath string) error {
	if !writeLock.TryLock() {
		return nil // another write in progress
	}
	defer writeLock.Unlock()

	b, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	os.WriteFile(filepath, b, 0644)

	return nil
}
