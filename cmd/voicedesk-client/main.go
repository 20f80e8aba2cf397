// Command voicedesk-client is a terminal client for the voicedesk relay.
//
// It reads an encoded audio stream (a file, or stdin fed by a capture tool
// like arecord or ffmpeg), segments it, and streams the segments to the
// relay over a websocket call. Transcripts and assistant replies are printed
// as they arrive; replies can optionally be voiced through an external
// synthesiser command.
//
// Examples:
//
//	arecord -f cd -t wav - | voicedesk-client -user alice -input -
//	voicedesk-client -user alice -input sample.webm -mode ptt
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/pkg/segmenter"
	"github.com/voicedesk/voicedesk/pkg/speech"
	"github.com/voicedesk/voicedesk/pkg/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	server := flag.String("server", "ws://localhost:3000/ws", "relay websocket endpoint")
	user := flag.String("user", "", "user ID to call as (required)")
	input := flag.String("input", "-", `encoded audio source: a file path or "-" for stdin`)
	mode := flag.String("mode", "auto", `capture mode: "auto" or "ptt" (press Enter to talk)`)
	speakCmd := flag.String("speak-cmd", "", `external synthesiser command for replies, e.g. "say" or "espeak"`)
	configPath := flag.String("config", "", "optional YAML config; only the segmenter section is used")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	if *user == "" {
		fmt.Fprintln(os.Stderr, "voicedesk-client: -user is required")
		return 2
	}
	if *mode != "auto" && *mode != "ptt" {
		fmt.Fprintf(os.Stderr, "voicedesk-client: unknown mode %q\n", *mode)
		return 2
	}
	if *mode == "ptt" && *input == "-" {
		fmt.Fprintln(os.Stderr, "voicedesk-client: ptt mode needs -input pointing at a file; stdin is the push-to-talk key")
		return 2
	}

	segCfg := segmenter.Config{}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voicedesk-client: %v\n", err)
			return 1
		}
		segCfg = segmenter.Config{
			Interval:        cfg.Segmenter.Interval.Std(),
			SettleDelay:     cfg.Segmenter.SettleDelay.Std(),
			DebounceDelay:   cfg.Segmenter.DebounceDelay.Std(),
			MinSegmentBytes: cfg.Segmenter.MinSegmentBytes,
			SendResetDelay:  cfg.Segmenter.SendResetDelay.Std(),
		}
	}

	var speaker speech.Speaker = &speech.Logging{Logger: logger}
	if *speakCmd != "" {
		speaker = &speech.Command{Name: *speakCmd}
	}

	// ── Audio source ──────────────────────────────────────────────────────────
	src := io.Reader(os.Stdin)
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voicedesk-client: %v\n", err)
			return 1
		}
		defer f.Close()
		src = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Connect and call the assistant ────────────────────────────────────────
	ch, err := transport.Dial(ctx, *server, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicedesk-client: %v\n", err)
		return 1
	}
	defer ch.Close()

	if err := ch.SendEvent(ctx, transport.EventCallRequest, transport.CallRequest{
		From:        *user,
		Destination: "assistant",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "voicedesk-client: %v\n", err)
		return 1
	}
	fmt.Println("calling the assistant…")

	cl := &client{
		ch:      ch,
		speaker: speaker,
		userID:  *user,
		picked:  make(chan struct{}),
	}

	// ── Read loop ─────────────────────────────────────────────────────────────
	readErr := make(chan error, 1)
	go func() { readErr <- cl.readLoop(ctx) }()

	select {
	case <-ctx.Done():
		return cl.hangUp()
	case err := <-readErr:
		slog.Error("channel closed before pickup", "err", err)
		return 1
	case <-cl.picked:
	}
	fmt.Println("call picked up — speak now")

	// ── Capture ───────────────────────────────────────────────────────────────
	rec := newStreamRecorder(src)
	go rec.pump()

	seg := segmenter.New(rec, cl.sendSegment, segCfg, logger)
	defer seg.Close()

	switch *mode {
	case "auto":
		go seg.RunAuto(ctx)
	case "ptt":
		go pttLoop(ctx, seg)
	}

	select {
	case <-ctx.Done():
	case err := <-readErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("channel closed", "err", err)
			return 1
		}
	}
	return cl.hangUp()
}

// client holds the call state shared between the read loop and capture.
type client struct {
	ch      *transport.Channel
	speaker speech.Speaker
	userID  string

	pickOnce sync.Once
	picked   chan struct{}
}

// readLoop dispatches server events until the channel drops.
func (c *client) readLoop(ctx context.Context) error {
	for {
		env, err := c.ch.Receive(ctx)
		if err != nil {
			return err
		}

		switch env.Event {
		case transport.EventCallAccepted:
			c.pickOnce.Do(func() { close(c.picked) })

		case transport.EventSegmentReceived:
			var ack transport.SegmentReceived
			if err := json.Unmarshal(env.Data, &ack); err == nil {
				slog.Debug("segment acknowledged", "bytes", ack.Size, "id", env.ID)
			}

		case transport.EventUserTranscript:
			var tr transport.UserTranscript
			if err := json.Unmarshal(env.Data, &tr); err != nil {
				slog.Warn("malformed transcript", "err", err)
				continue
			}
			fmt.Printf("you: %s\n", tr.Text)

		case transport.EventAssistantResponse:
			var resp transport.AssistantResponse
			if err := json.Unmarshal(env.Data, &resp); err != nil {
				slog.Warn("malformed response", "err", err)
				continue
			}
			fmt.Printf("assistant: %s\n", resp.Text)
			if err := c.speaker.Speak(resp.Text); err != nil {
				slog.Warn("speech synthesis failed", "err", err)
			}

		default:
			slog.Debug("ignoring event", "event", env.Event)
		}
	}
}

// sendSegment ships one completed audio segment, tagged for acknowledgement.
func (c *client) sendSegment(data []byte) error {
	env := transport.NewEnvelope(transport.EventAudioSegment, transport.AudioSegment{
		UserID: c.userID,
		Data:   data,
	})
	env.ID = ulid.Make().String()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.ch.Send(ctx, env)
}

// hangUp ends the call politely; by this point the signal context is done,
// so a fresh context bounds the farewell.
func (c *client) hangUp() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.ch.SendEvent(ctx, transport.EventEndCall, transport.EndCall{UserID: c.userID}); err != nil {
		slog.Debug("end-call not delivered", "err", err)
	}
	fmt.Println("call ended")
	return 0
}

// pttLoop maps Enter presses on the terminal to press/release pairs.
func pttLoop(ctx context.Context, seg *segmenter.Segmenter) {
	fmt.Println("push-to-talk: press Enter to start talking, Enter again to send")
	scanner := bufio.NewScanner(os.Stdin)
	talking := false
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(scanner.Text()) == "q" {
			return
		}
		if talking {
			seg.Release()
			talking = false
			fmt.Println("…sent")
			continue
		}
		if err := seg.Press(); err != nil {
			slog.Error("capture failed", "err", err)
			continue
		}
		talking = true
		fmt.Println("…recording")
	}
}

// streamRecorder adapts a continuous encoded audio stream to the segmenter's
// start/stop capture contract. A single pump goroutine drains the source;
// bytes read while no capture is active are dropped.
type streamRecorder struct {
	src io.Reader

	mu        sync.Mutex
	buf       bytes.Buffer
	capturing bool
	err       error
}

func newStreamRecorder(src io.Reader) *streamRecorder {
	return &streamRecorder{src: src}
}

// pump drains the source into the capture buffer. Runs until the source is
// exhausted.
func (r *streamRecorder) pump() {
	chunk := make([]byte, 4096)
	for {
		n, err := r.src.Read(chunk)
		r.mu.Lock()
		if n > 0 && r.capturing {
			r.buf.Write(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
	}
}

func (r *streamRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return fmt.Errorf("audio source: %w", r.err)
	}
	r.buf.Reset()
	r.capturing = true
	return nil
}

func (r *streamRecorder) Stop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturing = false
	data := append([]byte(nil), r.buf.Bytes()...)
	r.buf.Reset()
	return data, nil
}

var _ segmenter.Recorder = (*streamRecorder)(nil)
