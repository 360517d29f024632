package host

import (
	"bytes"
	"fmt"
)

// Update merges an observation of the same server into h and reports whether anything changed.
//
// Fields that describe the current server state are replaced whenever they differ.
// Addresses, the MAC and the app list are only replaced by non-empty values, so an
// observation that lacks them never erases what is already known.
//
// Panics if observed has a different ID.
func (h *Host) Update(observed *Host) bool {
	if h == observed {
		return false
	}
	if h.id != observed.id {
		panic(fmt.Sprintf("host: update of %q with observation of %q", h.id, observed.id))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	observed.mu.RLock()
	defer observed.mu.RUnlock()

	changed := false

	if h.name != observed.name {
		h.name = observed.name
		changed = true
	}
	if h.pairState != observed.pairState {
		h.pairState = observed.pairState
		changed = true
	}
	if h.codecSupport != observed.codecSupport {
		h.codecSupport = observed.codecSupport
		changed = true
	}
	if h.currentGameID != observed.currentGameID {
		h.currentGameID = observed.currentGameID
		changed = true
	}
	if h.activeAddress != observed.activeAddress {
		h.activeAddress = observed.activeAddress
		changed = true
	}
	if h.state != observed.state {
		h.state = observed.state
		changed = true
	}
	if h.softwareVersion != observed.softwareVersion {
		h.softwareVersion = observed.softwareVersion
		changed = true
	}
	if h.platformVersion != observed.platformVersion {
		h.platformVersion = observed.platformVersion
		changed = true
	}

	if len(observed.mac) > 0 && !bytes.Equal(h.mac, observed.mac) {
		h.mac = append(h.mac[:0:0], observed.mac...)
		changed = true
	}
	changed = mergeAddress(&h.localAddress, observed.localAddress) || changed
	changed = mergeAddress(&h.remoteAddress, observed.remoteAddress) || changed
	changed = mergeAddress(&h.manualAddress, observed.manualAddress) || changed

	if len(observed.apps) > 0 && !appsEqual(h.apps, observed.apps) {
		h.apps = append([]App(nil), observed.apps...)
		changed = true
	}

	return changed
}

func mergeAddress(dst *string, observed string) bool {
	if observed == "" || *dst == observed {
		return false
	}
	*dst = observed
	return true
}

func appsEqual(a, b []App) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
