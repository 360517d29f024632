// Package host holds the record of one known streaming server.
package host

import (
	"net"
	"strings"
	"sync"

	"github.com/streamhosts/pkg/protocol"
	"github.com/streamhosts/pkg/store"
)

// UnknownName is used when a server does not report a hostname
const UnknownName = "UNKNOWN"

// PairState is whether this client is paired with the server
type PairState int

const (
	PairUnknown PairState = iota
	PairPaired
	PairNotPaired
)

func (p PairState) String() string {
	switch p {
	case PairPaired:
		return "paired"
	case PairNotPaired:
		return "not_paired"
	default:
		return "unknown"
	}
}

// ConnectionState is the last observed reachability
type ConnectionState int

const (
	StateUnknown ConnectionState = iota
	StateOnline
	StateOffline
)

func (s ConnectionState) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// App is one launchable title on a server
type App struct {
	Name         string `json:"name"`
	ID           int    `json:"id"`
	HDRSupported bool   `json:"hdr_supported"`
}

// Info is a point-in-time copy of a Host.
type Info struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	MAC             string          `json:"mac,omitempty"`
	CodecSupport    int             `json:"codec_support"`
	LocalAddress    string          `json:"local_address,omitempty"`
	RemoteAddress   string          `json:"remote_address,omitempty"`
	ManualAddress   string          `json:"manual_address,omitempty"`
	ActiveAddress   string          `json:"active_address,omitempty"`
	PairState       PairState       `json:"-"`
	State           ConnectionState `json:"-"`
	Pair            string          `json:"pair_state"`
	Status          string          `json:"state"`
	CurrentGameID   int             `json:"current_game_id"`
	SoftwareVersion string          `json:"software_version,omitempty"`
	PlatformVersion string          `json:"platform_version,omitempty"`
	Apps            []App           `json:"apps,omitempty"`
}

// Host is one known server. All access goes through its methods.
type Host struct {
	mu sync.RWMutex

	id              string
	name            string
	mac             net.HardwareAddr
	codecSupport    int
	localAddress    string
	remoteAddress   string
	manualAddress   string
	activeAddress   string
	pairState       PairState
	state           ConnectionState
	currentGameID   int
	softwareVersion string
	platformVersion string
	apps            []App
}

// New returns an empty record for id. Used mostly by tests.
func New(id, name string) *Host {
	if name == "" {
		name = UnknownName
	}
	return &Host{id: id, name: name}
}

// NewFromEntry restores a persisted host. Live state starts out unknown.
func NewFromEntry(e store.HostEntry) *Host {
	h := New(e.ID, e.Name)
	h.mac = parseMAC(e.MAC)
	h.codecSupport = e.CodecSupport
	h.localAddress = e.LocalAddress
	h.remoteAddress = e.RemoteAddress
	h.manualAddress = e.ManualAddress
	for _, a := range e.Apps {
		h.apps = append(h.apps, App{Name: a.Name, ID: a.ID, HDRSupported: a.HDR})
	}
	return h
}

// NewFromServerInfo builds an online host from a status response received on address.
func NewFromServerInfo(address string, info *protocol.ServerInfo) *Host {
	h := New(strings.TrimSpace(info.UniqueID), strings.TrimSpace(info.Hostname))
	if info.HasMAC() {
		h.mac = parseMAC(info.MAC)
	}
	h.codecSupport = info.CodecSupport()
	h.localAddress = strings.TrimSpace(info.LocalIP)
	h.remoteAddress = strings.TrimSpace(info.ExternalIP)
	if info.Paired() {
		h.pairState = PairPaired
	} else {
		h.pairState = PairNotPaired
	}
	h.currentGameID = info.CurrentGameID()
	h.softwareVersion = info.AppVersion
	h.platformVersion = info.GfeVersion
	h.activeAddress = address
	h.state = StateOnline
	return h
}

func parseMAC(s string) net.HardwareAddr {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	mac, err := net.ParseMAC(s)
	if err != nil || len(mac) != 6 {
		return nil
	}
	for _, b := range mac {
		if b != 0 {
			return mac
		}
	}
	return nil
}

// ID is immutable and safe to read without locking
func (h *Host) ID() string {
	return h.id
}

func (h *Host) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.name
}

func (h *Host) State() ConnectionState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Host) MAC() net.HardwareAddr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append(net.HardwareAddr(nil), h.mac...)
}

// HasApps reports whether an app list is known
func (h *Host) HasApps() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.apps) > 0
}

// Snapshot copies every field under the read lock.
func (h *Host) Snapshot() Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info := Info{
		ID:              h.id,
		Name:            h.name,
		CodecSupport:    h.codecSupport,
		LocalAddress:    h.localAddress,
		RemoteAddress:   h.remoteAddress,
		ManualAddress:   h.manualAddress,
		ActiveAddress:   h.activeAddress,
		PairState:       h.pairState,
		State:           h.state,
		Pair:            h.pairState.String(),
		Status:          h.state.String(),
		CurrentGameID:   h.currentGameID,
		SoftwareVersion: h.softwareVersion,
		PlatformVersion: h.platformVersion,
		Apps:            append([]App(nil), h.apps...),
	}
	if h.mac != nil {
		info.MAC = h.mac.String()
	}
	return info
}

// SetLocalAddress records the address a host was discovered on
func (h *Host) SetLocalAddress(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.localAddress = address
}

// SetManualAddress records the address a user entered
func (h *Host) SetManualAddress(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.manualAddress = address
}

// SetApps replaces the app list. An empty list is ignored.
func (h *Host) SetApps(apps []App) {
	if len(apps) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.apps = append([]App(nil), apps...)
}

// MarkOffline records that no address answered. Returns true if the state changed.
func (h *Host) MarkOffline() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateOffline {
		return false
	}
	h.state = StateOffline
	return true
}

// Serialize writes the persisted fields into e. e.Apps is kept when no app list is known.
func (h *Host) Serialize(e *store.HostEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e.ID = h.id
	e.Name = h.name
	e.MAC = ""
	if h.mac != nil {
		e.MAC = h.mac.String()
	}
	e.CodecSupport = h.codecSupport
	e.LocalAddress = h.localAddress
	e.RemoteAddress = h.remoteAddress
	e.ManualAddress = h.manualAddress
	if len(h.apps) > 0 {
		e.Apps = make([]store.AppEntry, 0, len(h.apps))
		for _, a := range h.apps {
			e.Apps = append(e.Apps, store.AppEntry{Name: a.Name, ID: a.ID, HDR: a.HDRSupported})
		}
	}
}

// AppsFromInfo converts an /applist response
func AppsFromInfo(in []protocol.AppInfo) []App {
	if len(in) == 0 {
		return nil
	}
	out := make([]App, 0, len(in))
	for _, a := range in {
		out = append(out, App{Name: a.Title, ID: a.ID, HDRSupported: a.HDR()})
	}
	return out
}
