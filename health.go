package udpm

import (
	"time"

	"go.uber.org/atomic"
)

// health tracks the receive-side counters the transport reports on its
// rate-limited health line: packets received, packets discarded as
// malformed, and the ring buffer's low watermark (the smallest fraction
// of free space observed since the last report).
type health struct {
	rx           atomic.Uint64
	discardedBad atomic.Uint64

	lowWatermark atomic.Float64
	lastReport   atomic.Int64 // unix nanoseconds
	warnedSmallBuf atomic.Bool
}

func newHealth() *health {
	h := &health{}
	h.lowWatermark.Store(1.0)
	return h
}

func (h *health) recordRx() {
	h.rx.Inc()
}

func (h *health) recordDiscardedBad() {
	h.discardedBad.Inc()
}

// observeRingFree records the current free fraction of the ring, keeping
// the lowest value seen since the last report.
func (h *health) observeRingFree(free, capacity int) {
	if capacity == 0 {
		return
	}
	frac := float64(free) / float64(capacity)
	for {
		cur := h.lowWatermark.Load()
		if frac >= cur {
			return
		}
		if h.lowWatermark.CAS(cur, frac) {
			return
		}
	}
}

// maybeReport emits a rate-limited health line through logger and resets
// the window's counters, if at least healthInterval has elapsed since the
// last report. It is cheap to call on every receive iteration.
func (h *health) maybeReport(logger Logger, now time.Time) {
	nowNanos := now.UnixNano()
	last := h.lastReport.Load()
	if last != 0 && time.Duration(nowNanos-last) < healthInterval {
		return
	}
	if !h.lastReport.CAS(last, nowNanos) {
		return
	}

	rx := h.rx.Swap(0)
	bad := h.discardedBad.Swap(0)
	watermark := h.lowWatermark.Swap(1.0)

	if rx == 0 && bad == 0 {
		return
	}
	logger.Info("udpm health",
		"received", rx,
		"discarded_bad", bad,
		"ring_low_watermark", watermark,
	)
}

func (h *health) warnSmallRecvBuf(logger Logger, requested, granted int) {
	if h.warnedSmallBuf.Swap(true) {
		return
	}
	logger.Warn("udpm: kernel granted a smaller receive buffer than requested",
		"requested", requested,
		"granted", granted,
	)
}
