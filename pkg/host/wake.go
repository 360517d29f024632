package host

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/streamhosts/pkg/logging"
	"github.com/streamhosts/pkg/protocol"
)

// BroadcastAddress is always tried in addition to the host's own addresses
const BroadcastAddress = "255.255.255.255"

// DefaultWakePorts covers the discard/echo ports and the streaming ports
var DefaultWakePorts = []int{7, 9, 47998, 47999, 48000}

const magicPacketLen = 6 + 16*6

// MagicPacket returns the wake payload for mac: 6 bytes of 0xFF then mac 16 times.
// Returns nil unless mac is 6 bytes long.
func MagicPacket(mac net.HardwareAddr) []byte {
	if len(mac) != 6 {
		return nil
	}
	payload := make([]byte, 0, magicPacketLen)
	for i := 0; i < 6; i++ {
		payload = append(payload, 0xFF)
	}
	for i := 0; i < 16; i++ {
		payload = append(payload, mac...)
	}
	return payload
}

// Waker sends wake packets. Zero values use the defaults.
type Waker struct {
	Ports []int
	// Lookup resolves a hostname. Defaults to net.DefaultResolver.
	Lookup func(ctx context.Context, host string) ([]net.IP, error)
	// ListenPacket opens the sending socket. Defaults to a broadcast-enabled UDP socket.
	ListenPacket func(ctx context.Context, network, address string) (net.PacketConn, error)
}

// DefaultWaker is used by (*Host).Wake
var DefaultWaker = &Waker{}

// Wake asks h to power on. Returns true right away if h is online, false if its MAC is unknown.
// Otherwise the result is true if at least one packet was sent.
func (h *Host) Wake(ctx context.Context) bool {
	return DefaultWaker.Wake(ctx, h)
}

func (w *Waker) Wake(ctx context.Context, h *Host) bool {
	h.mu.RLock()
	state, mac := h.state, append(net.HardwareAddr(nil), h.mac...)
	h.mu.RUnlock()

	if state == StateOnline {
		logging.Debugf("[wake] host=%s already online", h.id)
		return true
	}
	payload := MagicPacket(mac)
	if payload == nil {
		logging.Debugf("[wake] host=%s no mac known", h.id)
		return false
	}

	targets := append(h.UniqueAddresses(), BroadcastAddress)
	resolved := w.resolveAll(ctx, targets)

	sent := false
	for i, ips := range resolved {
		for _, ip := range ips {
			if w.sendTo(ctx, ip, payload) {
				sent = true
				logging.Debugf("[wake] host=%s target=%s ip=%s sent", h.id, targets[i], ip)
			}
		}
	}
	if sent {
		logging.Logf("[wake] host=%s mac=%s wake packets sent", h.id, mac)
	} else {
		logging.Warnf("[wake] host=%s mac=%s no wake packet could be sent", h.id, mac)
	}
	return sent
}

// resolveAll resolves every target concurrently. The result keeps target order.
func (w *Waker) resolveAll(ctx context.Context, targets []string) [][]net.IP {
	results := make([][]net.IP, len(targets))
	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			ips, err := w.resolve(ctx, protocol.HostOnly(target))
			if err != nil {
				logging.Debugf("[wake] target=%s resolve failed: %v", target, err)
				return nil
			}
			results[i] = ips
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (w *Waker) resolve(ctx context.Context, target string) ([]net.IP, error) {
	if ip := net.ParseIP(target); ip != nil {
		return []net.IP{ip}, nil
	}
	if w.Lookup != nil {
		return w.Lookup(ctx, target)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, target)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

func (w *Waker) sendTo(ctx context.Context, ip net.IP, payload []byte) bool {
	network, bind := "udp6", "[::]:0"
	if ip.To4() != nil {
		network, bind = "udp4", "0.0.0.0:0"
	}

	listen := w.ListenPacket
	if listen == nil {
		listen = listenBroadcast
	}
	conn, err := listen(ctx, network, bind)
	if err != nil {
		logging.Debugf("[wake] ip=%s socket failed: %v", ip, err)
		return false
	}
	defer conn.Close()

	ports := w.Ports
	if len(ports) == 0 {
		ports = DefaultWakePorts
	}
	sent := false
	for _, port := range ports {
		n, err := conn.WriteTo(payload, &net.UDPAddr{IP: ip, Port: port})
		if err != nil || n != len(payload) {
			logging.Debugf("[wake] ip=%s port=%d send failed: %v", ip, port, err)
			continue
		}
		sent = true
	}
	return sent
}

func listenBroadcast(ctx context.Context, network, address string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: controlBroadcast}
	return lc.ListenPacket(ctx, network, address)
}
