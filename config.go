package udpm

import (
	"net"
	"time"
)

// Tunable constants, per the transport's wire and resource-bound
// contract. Defaults are chosen for determinism and match published
// UDPM deployments.
const (
	// MTU is the largest application payload a single Send call will
	// accept.
	MTU = 1 << 20

	// ChannelMax is the longest legal channel name, re-exported from wire
	// for callers that don't want to import both packages.
	ChannelMax = 63

	// ShortThreshold is the largest payload_wire (channel + NUL +
	// payload) that still fits in a single datagram alongside the short
	// header. Chosen conservatively for Ethernet-safe MTU paths.
	ShortThreshold = 1400

	// FragmentMaxPayload is the per-datagram body bound used when
	// fragmenting a long message.
	FragmentMaxPayload = 1400

	// DefaultRingSize is the default RingBuffer capacity.
	DefaultRingSize = 10 << 20

	// DefaultRecvBufs is the default number of PacketSlab descriptors
	// kept in the empty queue.
	DefaultRecvBufs = 32

	// DefaultMaxFragBufTotalSize bounds the aggregate resident
	// reassembly payload in the FragBufStore.
	DefaultMaxFragBufTotalSize = 1 << 24

	// DefaultMaxNumFragBufs bounds the number of resident reassemblies.
	DefaultMaxNumFragBufs = 1000

	// healthInterval is the minimum spacing between rate-limited health
	// lines, per spec.
	healthInterval = 2 * time.Second
)

// Config holds everything needed to open a Transport. New starts every
// field at its default (TTL 1, loopback and timestamping enabled, the
// Default* constants above, slog.Default()) and then applies the Options
// in order; an Option that sets a zero value keeps that zero.
type Config struct {
	GroupAddr net.IP
	Port      uint16
	TTL       uint8
	Loopback  bool

	// SourceAddr, if set, requests source-specific multicast (join only
	// traffic from this source) rather than an any-source join.
	SourceAddr net.IP

	Iface *net.Interface

	// RecvBufSize is a hint passed to SO_RCVBUF; 0 leaves the kernel
	// default in place.
	RecvBufSize int

	RingSize            int
	RecvBufs            int
	MaxFragBufTotalSize uint32
	MaxNumFragBufs      int

	// Timestamp enables kernel receive-timestamp capture where the
	// platform supports it (SO_TIMESTAMP, microsecond resolution).
	Timestamp bool

	Logger Logger
}

// Option configures a Config. Options compose with functional-options
// style: New(groupAddr, port, WithTTL(1), WithLogger(l)).
type Option func(*Config)

// WithTTL sets the multicast TTL. Per the protocol's convention, 0 keeps
// packets on localhost and 1 keeps them on the local network segment;
// values above 1 are legal but discouraged.
func WithTTL(ttl uint8) Option {
	return func(c *Config) { c.TTL = ttl }
}

// WithLoopback enables or disables IP_MULTICAST_LOOP on the send socket.
func WithLoopback(enabled bool) Option {
	return func(c *Config) { c.Loopback = enabled }
}

// WithInterface pins the multicast join and send interface.
func WithInterface(iface *net.Interface) Option {
	return func(c *Config) { c.Iface = iface }
}

// WithSourceSpecificMulticast requests a source-specific join restricted
// to src.
func WithSourceSpecificMulticast(src net.IP) Option {
	return func(c *Config) { c.SourceAddr = src }
}

// WithRecvBufSize requests a kernel receive buffer of at least n bytes.
func WithRecvBufSize(n int) Option {
	return func(c *Config) { c.RecvBufSize = n }
}

// WithRingSize overrides the RingBuffer capacity.
func WithRingSize(n int) Option {
	return func(c *Config) { c.RingSize = n }
}

// WithRecvBufs overrides the number of PacketSlab descriptors.
func WithRecvBufs(n int) Option {
	return func(c *Config) { c.RecvBufs = n }
}

// WithFragStoreBounds overrides the FragBufStore's aggregate byte and
// count bounds.
func WithFragStoreBounds(maxBytes uint32, maxCount int) Option {
	return func(c *Config) {
		c.MaxFragBufTotalSize = maxBytes
		c.MaxNumFragBufs = maxCount
	}
}

// WithTimestamping enables or disables kernel receive-timestamp capture.
func WithTimestamping(enabled bool) Option {
	return func(c *Config) { c.Timestamp = enabled }
}

// WithLogger sets the Logger used for health reporting and debug
// tracing. The default is slog.Default().
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func newConfig(groupAddr net.IP, port uint16, opts []Option) *Config {
	c := &Config{
		GroupAddr:           groupAddr,
		Port:                port,
		TTL:                 1,
		Loopback:            true,
		RingSize:            DefaultRingSize,
		RecvBufs:            DefaultRecvBufs,
		MaxFragBufTotalSize: DefaultMaxFragBufTotalSize,
		MaxNumFragBufs:      DefaultMaxNumFragBufs,
		Timestamp:           true,
		Logger:              defaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
