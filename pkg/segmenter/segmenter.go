// Package segmenter slices a continuous microphone capture into discrete
// audio segments ready for transcription.
//
// Two modes are supported. In automatic mode the capture device is restarted
// on a fixed interval so each segment covers one interval of speech, with a
// short settle delay between stop and restart to let the device flush. In
// push-to-talk mode the caller brackets the capture explicitly: pressing
// discards anything buffered and starts fresh, releasing stops the capture
// after a debounce and flushes the segment regardless of size.
//
// Undersized segments (background noise, silence) are discarded unless the
// flush was forced. A send-rate guard keeps at most one segment hand-off in
// flight at a time; the guard clears on a timer rather than on delivery.
package segmenter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults matching the reference client behaviour.
const (
	DefaultInterval        = 3000 * time.Millisecond
	DefaultSettleDelay     = 300 * time.Millisecond
	DefaultDebounceDelay   = 300 * time.Millisecond
	DefaultMinSegmentBytes = 1000
	DefaultSendResetDelay  = 1000 * time.Millisecond
)

// Recorder is the injected capture device. Implementations wrap whatever
// actually produces encoded audio (a browser MediaRecorder bridge, a test
// double). Start and Stop are never called concurrently by the segmenter.
type Recorder interface {
	// Start begins a new capture.
	Start() error

	// Stop ends the capture and returns everything recorded since Start.
	Stop() ([]byte, error)
}

// SendFunc hands a completed segment to the transport. Errors are logged;
// the segment is not retried.
type SendFunc func(data []byte) error

// Config tunes the segmenter. Zero values fall back to the defaults above.
type Config struct {
	// Interval is the automatic capture-restart period.
	Interval time.Duration

	// SettleDelay is the pause between stopping one automatic capture and
	// starting the next.
	SettleDelay time.Duration

	// DebounceDelay is the push-to-talk release debounce before the forced
	// flush.
	DebounceDelay time.Duration

	// MinSegmentBytes is the smallest segment sent without a forced flush.
	MinSegmentBytes int

	// SendResetDelay is how long the in-flight guard stays set after a
	// segment is handed off.
	SendResetDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.DebounceDelay == 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
	if c.MinSegmentBytes == 0 {
		c.MinSegmentBytes = DefaultMinSegmentBytes
	}
	if c.SendResetDelay == 0 {
		c.SendResetDelay = DefaultSendResetDelay
	}
}

// Segmenter drives a Recorder and forwards completed segments. Safe for
// concurrent use of Press/Release alongside RunAuto.
type Segmenter struct {
	rec  Recorder
	send SendFunc
	cfg  Config
	log  *slog.Logger

	mu         sync.Mutex
	inFlight   bool
	resetTimer *time.Timer
	debounce   *time.Timer
	capturing  bool
}

// New creates a Segmenter. logger may be nil, in which case slog.Default()
// is used.
func New(rec Recorder, send SendFunc, cfg Config, logger *slog.Logger) *Segmenter {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{
		rec:  rec,
		send: send,
		cfg:  cfg,
		log:  logger,
	}
}

// RunAuto runs the automatic capture loop until ctx is cancelled. Capture
// errors are logged and the loop continues on the next interval.
func (s *Segmenter) RunAuto(ctx context.Context) error {
	for {
		started := true
		if err := s.startCapture(); err != nil {
			s.log.Error("capture start failed", "error", err)
			started = false
		}

		select {
		case <-ctx.Done():
			if started {
				s.flushCapture(false)
			}
			s.Close()
			return ctx.Err()
		case <-time.After(s.cfg.Interval):
		}

		if started {
			s.flushCapture(false)
		}

		select {
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		case <-time.After(s.cfg.SettleDelay):
		}
	}
}

// Press starts a push-to-talk capture. Anything buffered from a previous
// capture is discarded so the segment contains only what follows the press.
func (s *Segmenter) Press() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.capturing {
		// Discard the partial capture.
		s.capturing = false
		if _, err := s.rec.Stop(); err != nil {
			s.log.Error("discard partial capture failed", "error", err)
		}
	}

	if err := s.startCaptureLocked(); err != nil {
		s.log.Error("capture start failed", "error", err)
		return err
	}
	return nil
}

// Release schedules the push-to-talk flush. After the debounce delay the
// capture stops and the segment is sent even if it is below the minimum
// size.
func (s *Segmenter) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.cfg.DebounceDelay, func() {
		s.flushCapture(true)
		s.mu.Lock()
		s.debounce = nil
		s.mu.Unlock()
	})
}

// Close cancels pending timers. The segmenter must not be reused afterwards.
func (s *Segmenter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

func (s *Segmenter) startCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCaptureLocked()
}

// startCaptureLocked requires s.mu held. Recorder transitions happen under
// the mutex so Start and Stop stay serialized with the capturing flag.
func (s *Segmenter) startCaptureLocked() error {
	if err := s.rec.Start(); err != nil {
		return err
	}
	s.capturing = true
	return nil
}

// flushCapture stops the active capture and processes the segment. A forced
// flush bypasses the minimum-size check.
func (s *Segmenter) flushCapture(forced bool) {
	s.mu.Lock()
	if !s.capturing {
		s.mu.Unlock()
		return
	}
	s.capturing = false
	data, err := s.rec.Stop()
	s.mu.Unlock()

	if err != nil {
		s.log.Error("capture stop failed", "error", err)
		return
	}
	s.process(data, forced)
}

func (s *Segmenter) process(data []byte, forced bool) {
	if len(data) == 0 {
		return
	}
	if !forced && len(data) < s.cfg.MinSegmentBytes {
		s.log.Debug("discarding undersized segment", "bytes", len(data))
		return
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.log.Debug("send guard active, dropping segment", "bytes", len(data))
		return
	}
	s.inFlight = true
	s.resetTimer = time.AfterFunc(s.cfg.SendResetDelay, func() {
		s.mu.Lock()
		s.inFlight = false
		s.resetTimer = nil
		s.mu.Unlock()
	})
	s.mu.Unlock()

	if err := s.send(data); err != nil {
		s.log.Error("segment send failed", "bytes", len(data), "error", err)
	}
}
