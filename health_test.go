package udpm

import (
	"testing"
	"time"
)

type recordingLogger struct {
	infos []string
	warns []string
}

func (l *recordingLogger) Debug(msg string, args ...any) {}
func (l *recordingLogger) Info(msg string, args ...any)  { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Error(msg string, args ...any) {}

func TestHealthReportIsRateLimited(t *testing.T) {
	h := newHealth()
	h.recordRx()
	logger := &recordingLogger{}

	base := time.Unix(1000, 0)
	h.maybeReport(logger, base)
	if len(logger.infos) != 1 {
		t.Fatalf("first report count = %d, want 1", len(logger.infos))
	}

	h.recordRx()
	h.maybeReport(logger, base.Add(time.Second))
	if len(logger.infos) != 1 {
		t.Errorf("report within the interval should be suppressed, got %d reports", len(logger.infos))
	}

	h.maybeReport(logger, base.Add(3*time.Second))
	if len(logger.infos) != 2 {
		t.Errorf("report after the interval elapsed should fire, got %d reports", len(logger.infos))
	}
}

func TestHealthReportSkipsWhenIdle(t *testing.T) {
	h := newHealth()
	logger := &recordingLogger{}

	base := time.Unix(2000, 0)
	h.maybeReport(logger, base)
	h.maybeReport(logger, base.Add(3*time.Second))

	if len(logger.infos) != 0 {
		t.Errorf("expected no health lines with zero traffic, got %d", len(logger.infos))
	}
}

func TestWarnSmallRecvBufFiresOnce(t *testing.T) {
	h := newHealth()
	logger := &recordingLogger{}

	h.warnSmallRecvBuf(logger, 1<<20, 1<<16)
	h.warnSmallRecvBuf(logger, 1<<20, 1<<16)

	if len(logger.warns) != 1 {
		t.Errorf("warned %d times, want 1", len(logger.warns))
	}
}

func TestLowWatermarkTracksMinimum(t *testing.T) {
	h := newHealth()
	h.observeRingFree(80, 100)
	h.observeRingFree(20, 100)
	h.observeRingFree(50, 100)

	if got := h.lowWatermark.Load(); got != 0.2 {
		t.Errorf("low watermark = %v, want 0.2 (the minimum observed)", got)
	}

	logger := &recordingLogger{}
	h.recordRx()
	h.maybeReport(logger, time.Unix(3000, 0))

	if h.lowWatermark.Load() != 1.0 {
		t.Errorf("low watermark should reset after a report, got %v", h.lowWatermark.Load())
	}
}
