// Package udpm implements a UDP multicast publish/subscribe transport:
// short single-datagram messages, a fragmentation path for messages too
// large for one datagram, a bounded reassembly store, and a ring-buffer
// backed receive path that avoids allocating on the common case.
package udpm

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"

	"github.com/openmcast/udpm/fragstore"
	"github.com/openmcast/udpm/ringbuf"
	"github.com/openmcast/udpm/slab"
)

// Transport is one open multicast group membership: a send path, a
// receive path, and the buffer economy backing both.
//
// A Transport is safe for concurrent Send calls. Recv is not reentrant —
// it is meant to be driven by a single goroutine, which must Release (or
// let the next Recv implicitly release) each Message before the
// resources it holds can be reused — but Close and Send may be called
// concurrently with an in-flight Recv.
type Transport struct {
	cfg    *Config
	logger Logger

	sendConn *net.UDPConn
	send     *sender

	recvConn *net.UDPConn
	destAddr *net.UDPAddr

	mu     sync.Mutex
	ring   *ringbuf.Ring
	empty  *slab.Queue
	frag   *fragstore.Store
	health *health

	lastMsg *Message
	closed  atomic.Bool
}

// New opens a Transport bound to groupAddr:port. It probes connectivity
// to the group immediately (so a dead route surfaces at construction
// rather than on the first Send), opens and configures the send and
// receive sockets, and joins the multicast group on both.
func New(groupAddr net.IP, port uint16, opts ...Option) (*Transport, error) {
	cfg := newConfig(groupAddr, port, opts)

	ip4 := cfg.GroupAddr.To4()
	if ip4 == nil || !ip4.IsMulticast() {
		return nil, fmt.Errorf("udpm: %v is not an ipv4 multicast address", cfg.GroupAddr)
	}

	destAddr := &net.UDPAddr{IP: ip4, Port: int(cfg.Port)}
	if err := probeSendable(destAddr); err != nil {
		return nil, err
	}

	sendUDPConn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("udpm: open send socket: %w", err)
	}
	sendPC := ipv4.NewPacketConn(sendUDPConn)
	if cfg.Iface != nil {
		if err := sendPC.SetMulticastInterface(cfg.Iface); err != nil {
			// Some platforms refuse this on a send-only, unbound UDP
			// socket; the group join on the receive socket is what
			// actually matters for interface selection, so this is a
			// best-effort call.
			cfg.Logger.Debug("udpm: set multicast interface on send socket", "error", err)
		}
	}
	if err := sendPC.SetMulticastTTL(int(cfg.TTL)); err != nil {
		_ = sendUDPConn.Close()
		return nil, fmt.Errorf("udpm: set multicast ttl: %w", err)
	}
	if err := sendPC.SetMulticastLoopback(cfg.Loopback); err != nil {
		_ = sendUDPConn.Close()
		return nil, fmt.Errorf("udpm: set multicast loopback: %w", err)
	}
	// Joining on the send socket too matches some platforms' expectation
	// that a socket transmitting to a group also holds membership in it;
	// on others (notably Windows) an unbound send-only socket refuses the
	// join, so failure here is logged and tolerated rather than fatal.
	if err := sendPC.JoinGroup(cfg.Iface, &net.UDPAddr{IP: ip4}); err != nil {
		cfg.Logger.Warn("udpm: join multicast group on send socket", "error", err)
	}

	recvConn, grantedRcvBuf, err := openRecvSocket(cfg)
	if err != nil {
		_ = sendUDPConn.Close()
		return nil, err
	}

	h := newHealth()
	if cfg.RecvBufSize > 0 && grantedRcvBuf < cfg.RecvBufSize {
		h.warnSmallRecvBuf(cfg.Logger, cfg.RecvBufSize, grantedRcvBuf)
	}

	empty := slab.NewQueue(cfg.RecvBufs)
	for i := 0; i < cfg.RecvBufs; i++ {
		empty.Put(slab.NewHeap())
	}

	t := &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		sendConn: sendUDPConn,
		send:     newSender(sendPC, destAddr, cfg.Logger),
		recvConn: recvConn,
		destAddr: destAddr,
		ring:     ringbuf.New(cfg.RingSize),
		empty:    empty,
		frag:     fragstore.New(cfg.MaxFragBufTotalSize, cfg.MaxNumFragBufs),
		health:   h,
	}
	return t, nil
}

// GetMtu returns the largest payload Send will accept.
func (t *Transport) GetMtu() int { return MTU }

// RecvEnable exists for parity with implementations that separate socket
// setup from reception; this Transport's receive socket is always ready
// to read once New returns, so RecvEnable is a no-op.
func (t *Transport) RecvEnable() error { return nil }

// Send publishes payload on channel to the multicast group.
func (t *Transport) Send(channel string, payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if len(payload) > MTU {
		return fmt.Errorf("%w: payload of %d bytes exceeds mtu %d", ErrInvalid, len(payload), MTU)
	}
	return t.send.Send(channel, payload)
}

// Close releases the send and receive sockets. It does not block waiting
// for an in-flight Recv; a concurrent Recv unblocks with ErrClosed (via
// the now-closed receive socket) or an I/O error from the severed
// connection.
func (t *Transport) Close() error {
	if !t.closed.CAS(false, true) {
		return nil
	}
	err1 := t.sendConn.Close()
	err2 := t.recvConn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
