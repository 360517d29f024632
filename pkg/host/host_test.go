package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhosts/pkg/protocol"
	"github.com/streamhosts/pkg/store"
)

func newTestHost(id string, fn func(h *Host)) *Host {
	h := New(id, "Den-PC")
	if fn != nil {
		fn(h)
	}
	return h
}

func TestUniqueAddressesOrderAndDedup(t *testing.T) {
	h := newTestHost("X", func(h *Host) {
		h.activeAddress = "192.0.2.10"
		h.localAddress = "192.0.2.10"
		h.remoteAddress = "203.0.113.5"
	})
	assert.Equal(t, []string{"192.0.2.10", "203.0.113.5"}, h.UniqueAddresses())

	h = newTestHost("X", func(h *Host) {
		h.manualAddress = "den-pc.example"
		h.localAddress = "192.0.2.10"
	})
	assert.Equal(t, []string{"192.0.2.10", "den-pc.example"}, h.UniqueAddresses())
}

func TestUniqueAddressesPanicsWithoutAddresses(t *testing.T) {
	assert.Panics(t, func() { New("X", "").UniqueAddresses() })
}

func TestNewFromServerInfo(t *testing.T) {
	info := &protocol.ServerInfo{
		Hostname:               "",
		UniqueID:               "X",
		MAC:                    "00:00:00:00:00:00",
		LocalIP:                "192.0.2.10",
		ExternalIP:             "203.0.113.5",
		ServerCodecModeSupport: "259",
		PairStatus:             "1",
		CurrentGame:            "42",
		State:                  "SUNSHINE_SERVER_BUSY",
		AppVersion:             "7.1.431.-1",
	}
	h := NewFromServerInfo("192.0.2.10:47989", info)
	snap := h.Snapshot()

	assert.Equal(t, "X", snap.ID)
	assert.Equal(t, UnknownName, snap.Name)
	assert.Empty(t, snap.MAC, "all-zero mac means unknown")
	assert.Equal(t, PairPaired, snap.PairState)
	assert.Equal(t, StateOnline, snap.State)
	assert.Equal(t, 42, snap.CurrentGameID)
	assert.Equal(t, 259, snap.CodecSupport)
	assert.Equal(t, "192.0.2.10:47989", snap.ActiveAddress)
	assert.Equal(t, "online", snap.Status)
}

func TestEntryRoundTripResetsLiveState(t *testing.T) {
	entry := store.HostEntry{
		ID: "X", Name: "Den-PC", MAC: "aa:bb:cc:dd:ee:ff", CodecSupport: 1,
		ManualAddress: "192.0.2.10",
		Apps:          []store.AppEntry{{Name: "Game A", ID: 1, HDR: true}},
	}
	h := NewFromEntry(entry)
	snap := h.Snapshot()
	assert.Equal(t, StateUnknown, snap.State)
	assert.Equal(t, PairUnknown, snap.PairState)
	assert.Empty(t, snap.ActiveAddress)
	assert.Equal(t, []App{{Name: "Game A", ID: 1, HDRSupported: true}}, snap.Apps)

	var out store.HostEntry
	h.Serialize(&out)
	assert.Equal(t, entry, out)
}

func TestSerializeKeepsAppsWhenUnknown(t *testing.T) {
	h := newTestHost("X", func(h *Host) { h.manualAddress = "192.0.2.10" })
	prev := store.HostEntry{ID: "X", Apps: []store.AppEntry{{Name: "Game A", ID: 1}}}
	h.Serialize(&prev)
	assert.Equal(t, []store.AppEntry{{Name: "Game A", ID: 1}}, prev.Apps)
	assert.Equal(t, "Den-PC", prev.Name)
}

func TestMarkOffline(t *testing.T) {
	h := New("X", "Den-PC")
	assert.True(t, h.MarkOffline())
	assert.False(t, h.MarkOffline())
	assert.Equal(t, StateOffline, h.State())
}

func TestSetAppsIgnoresEmpty(t *testing.T) {
	h := New("X", "Den-PC")
	h.SetApps([]App{{Name: "Game A", ID: 1}})
	h.SetApps(nil)
	require.True(t, h.HasApps())
	assert.Len(t, h.Snapshot().Apps, 1)
}
