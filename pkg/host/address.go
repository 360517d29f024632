package host

import "fmt"

// UniqueAddresses lists the known addresses in connection order:
// active, local, remote, manual. Empty and repeated entries are dropped.
//
// Panics if the host has no address at all.
func (h *Host) UniqueAddresses() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	candidates := [...]string{h.activeAddress, h.localAddress, h.remoteAddress, h.manualAddress}
	out := make([]string, 0, len(candidates))
	for _, addr := range candidates {
		if addr == "" || contains(out, addr) {
			continue
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		panic(fmt.Sprintf("host: %q has no addresses", h.id))
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
