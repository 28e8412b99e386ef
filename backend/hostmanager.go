package backend

import (
	"errors"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

var ErrHostNotFound = errors.New("host not found")

// HostManager owns the ordered host list and the exactly-one-selected
// invariant. Hosts are created and edited by the external config UI and
// persisted with the rest of the config file.
type HostManager struct {
	appName    string
	config     *Config
	useKeyring bool

	onHostSelected []func(*HostConfig)
	onDisconnect   []func()
}

func NewHostManager(appName string, config *Config, useKeyring bool) *HostManager {
	return &HostManager{
		appName:    appName,
		config:     config,
		useKeyring: useKeyring,
	}
}

func (m *HostManager) Hosts() []*HostConfig {
	return m.config.Hosts
}

func (m *HostManager) SelectedHost() *HostConfig {
	for _, h := range m.config.Hosts {
		if h.Selected {
			return h
		}
	}
	return nil
}

// SelectHost marks the given host selected, deselecting any other, and
// notifies listeners.
func (m *HostManager) SelectHost(id uuid.UUID) error {
	var selected *HostConfig
	for _, h := range m.config.Hosts {
		if h.ID == id {
			selected = h
		}
	}
	if selected == nil {
		return ErrHostNotFound
	}
	if err := selected.Validate(); err != nil {
		return err
	}
	for _, h := range m.config.Hosts {
		h.Selected = h == selected
	}
	for _, cb := range m.onHostSelected {
		cb(selected)
	}
	return nil
}

// Deselect clears any host selection and notifies disconnect listeners.
func (m *HostManager) Deselect() {
	for _, h := range m.config.Hosts {
		h.Selected = false
	}
	for _, cb := range m.onDisconnect {
		cb()
	}
}

func (m *HostManager) AddHost(h *HostConfig) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m.config.Hosts = append(m.config.Hosts, h)
	return nil
}

func (m *HostManager) DeleteHost(id uuid.UUID) {
	hosts := make([]*HostConfig, 0, len(m.config.Hosts))
	for _, h := range m.config.Hosts {
		if h.ID == id {
			if m.useKeyring {
				keyring.Delete(m.appName, h.ID.String())
			}
			continue
		}
		hosts = append(hosts, h)
	}
	m.config.Hosts = hosts
}

func (m *HostManager) Password(h *HostConfig) (string, error) {
	if !m.useKeyring {
		return h.Password, nil
	}
	pass, err := keyring.Get(m.appName, h.ID.String())
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return pass, err
}

func (m *HostManager) SetPassword(h *HostConfig, password string) error {
	if !m.useKeyring {
		h.Password = password
		return nil
	}
	return keyring.Set(m.appName, h.ID.String(), password)
}

func (m *HostManager) OnHostSelected(cb func(*HostConfig)) {
	m.onHostSelected = append(m.onHostSelected, cb)
}

func (m *HostManager) OnDisconnect(cb func()) {
	m.onDisconnect = append(m.onDisconnect, cb)
}
