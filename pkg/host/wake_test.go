package host

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentPacket struct {
	network string
	to      string
	payload []byte
}

type recorder struct {
	mu   sync.Mutex
	sent []sentPacket
	fail map[string]bool
}

func (r *recorder) listen(ctx context.Context, network, address string) (net.PacketConn, error) {
	return &fakeConn{r: r, network: network}, nil
}

func (r *recorder) packets() []sentPacket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentPacket(nil), r.sent...)
}

type fakeConn struct {
	r       *recorder
	network string
}

func (c *fakeConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.r.fail[addr.(*net.UDPAddr).IP.String()] {
		return 0, errors.New("network unreachable")
	}
	c.r.sent = append(c.r.sent, sentPacket{network: c.network, to: addr.String(), payload: append([]byte(nil), p...)})
	return len(p), nil
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) { return 0, nil, errors.New("not supported") }
func (c *fakeConn) Close() error                               { return nil }
func (c *fakeConn) LocalAddr() net.Addr                        { return &net.UDPAddr{} }
func (c *fakeConn) SetDeadline(t time.Time) error              { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error          { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error         { return nil }

var testMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}

func TestMagicPacket(t *testing.T) {
	p := MagicPacket(testMAC)
	require.Len(t, p, 102)
	for i := 0; i < 6; i++ {
		assert.Equal(t, byte(0xFF), p[i])
	}
	for i := 0; i < 16; i++ {
		assert.Equal(t, []byte(testMAC), p[6+i*6:12+i*6])
	}
	assert.Nil(t, MagicPacket(nil))
}

func TestWakeWithoutMACSendsNothing(t *testing.T) {
	r := &recorder{}
	w := &Waker{ListenPacket: r.listen}
	h := newTestHost("X", func(h *Host) { h.manualAddress = "192.0.2.10" })

	assert.False(t, w.Wake(context.Background(), h))
	assert.Empty(t, r.packets())
}

func TestWakeOnlineHostSendsNothing(t *testing.T) {
	r := &recorder{}
	w := &Waker{ListenPacket: r.listen}
	h := newTestHost("X", func(h *Host) {
		h.manualAddress = "192.0.2.10"
		h.mac = testMAC
		h.state = StateOnline
	})

	assert.True(t, w.Wake(context.Background(), h))
	assert.Empty(t, r.packets())
}

func TestWakeSendsToEveryTargetAndPort(t *testing.T) {
	r := &recorder{}
	w := &Waker{
		Ports:        []int{9, 47998},
		ListenPacket: r.listen,
		Lookup: func(ctx context.Context, name string) ([]net.IP, error) {
			assert.Equal(t, "den-pc.example", name)
			return []net.IP{net.ParseIP("2001:db8::10")}, nil
		},
	}
	h := newTestHost("X", func(h *Host) {
		h.localAddress = "192.0.2.10:47989"
		h.manualAddress = "den-pc.example"
		h.mac = testMAC
		h.state = StateOffline
	})

	assert.True(t, w.Wake(context.Background(), h))

	var to []string
	for _, p := range r.packets() {
		assert.Equal(t, MagicPacket(testMAC), p.payload)
		to = append(to, p.network+" "+p.to)
	}
	assert.Equal(t, []string{
		"udp4 192.0.2.10:9", "udp4 192.0.2.10:47998",
		"udp6 [2001:db8::10]:9", "udp6 [2001:db8::10]:47998",
		"udp4 255.255.255.255:9", "udp4 255.255.255.255:47998",
	}, to)
}

func TestWakePartialFailureStillSucceeds(t *testing.T) {
	r := &recorder{fail: map[string]bool{"192.0.2.10": true}}
	w := &Waker{
		ListenPacket: r.listen,
		Lookup: func(ctx context.Context, name string) ([]net.IP, error) {
			return nil, errors.New("no such host")
		},
	}
	h := newTestHost("X", func(h *Host) {
		h.localAddress = "192.0.2.10"
		h.manualAddress = "unresolvable.example"
		h.mac = testMAC
	})

	assert.True(t, w.Wake(context.Background(), h))
	for _, p := range r.packets() {
		assert.Contains(t, p.to, "255.255.255.255")
	}
	assert.Len(t, r.packets(), len(DefaultWakePorts))
}

func TestWakeAllSendsFail(t *testing.T) {
	r := &recorder{fail: map[string]bool{"192.0.2.10": true, "255.255.255.255": true}}
	w := &Waker{ListenPacket: r.listen}
	h := newTestHost("X", func(h *Host) {
		h.localAddress = "192.0.2.10"
		h.mac = testMAC
	})
	assert.False(t, w.Wake(context.Background(), h))
}
