// Package assistant runs the conversation pipeline: buffered audio is flushed
// into one clip, transcribed, appended to the user's history, answered by the
// completion provider, and emitted back to the user's channel.
//
// Turns are serialized per user. Audio segments that arrive while a turn is
// in flight queue up and are processed strictly in arrival order, so history
// entries never interleave within one conversation.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/voicedesk/voicedesk/internal/call"
	"github.com/voicedesk/voicedesk/internal/observe"
	"github.com/voicedesk/voicedesk/pkg/provider/llm"
	"github.com/voicedesk/voicedesk/pkg/provider/stt"
)

// Fixed user-facing replies. These are sent as assistant responses so the
// client renders and speaks them like any other reply.
const (
	// AudioErrorReply is emitted when transcription fails.
	AudioErrorReply = "I'm sorry, there was an error processing your audio. Please try again."

	// ProcessingErrorReply is emitted when the completion provider fails.
	ProcessingErrorReply = "I'm sorry, there was an error processing your request. Please try again."

	// EmptyTranscriptReply is emitted when the clip contained no
	// recognisable speech.
	EmptyTranscriptReply = "I'm sorry, I couldn't understand what you said. Could you please repeat that?"
)

// Turn outcome labels recorded on the turns counter.
const (
	outcomeOK       = "ok"
	outcomeEmpty    = "empty"
	outcomeSTTError = "stt_error"
	outcomeLLMError = "llm_error"
)

// Emitter delivers pipeline output to a user's transport channel.
// Implementations must tolerate emission for users whose channel has closed
// mid-turn (drop silently).
type Emitter interface {
	// EmitTranscript sends the recognised user text back for display.
	EmitTranscript(userID, text string)

	// EmitResponse sends an assistant reply. The client is responsible for
	// on-device speech synthesis.
	EmitResponse(userID, text string)
}

// Config tunes the pipeline's completion parameters and timeouts.
type Config struct {
	// Temperature is passed to the completion provider.
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int

	// ReplyTimeout bounds each transcription and completion call. Zero
	// disables the bound.
	ReplyTimeout time.Duration
}

// Pipeline drives conversation turns for all users.
type Pipeline struct {
	registry    *call.Registry
	transcriber stt.Provider
	completer   llm.Provider
	emitter     Emitter
	metrics     *observe.Metrics
	cfg         Config
	queue       *turnQueue
}

// NewPipeline wires a Pipeline. metrics may be nil, in which case the
// package-level default instruments are used.
func NewPipeline(registry *call.Registry, transcriber stt.Provider, completer llm.Provider, emitter Emitter, metrics *observe.Metrics, cfg Config) *Pipeline {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		registry:    registry,
		transcriber: transcriber,
		completer:   completer,
		emitter:     emitter,
		metrics:     metrics,
		cfg:         cfg,
		queue:       newTurnQueue(),
	}
}

// HandleSegment buffers one audio segment for userID and schedules a turn.
// It returns the buffered fragment count immediately; the turn itself runs
// asynchronously, after any turns already queued for the same user.
func (p *Pipeline) HandleSegment(ctx context.Context, userID string, data []byte) int {
	n := p.registry.AppendAudio(userID, data)
	p.metrics.SegmentsReceived.Add(ctx, 1)

	p.queue.Do(userID, func() {
		p.processTurn(ctx, userID)
	})
	return n
}

// WaitIdle blocks until all turns currently queued for userID have finished.
// Intended for tests and graceful shutdown.
func (p *Pipeline) WaitIdle(userID string) {
	p.queue.Wait(userID)
}

// processTurn runs one full conversation turn for userID. The pending buffer
// is consumed up front, so it is empty again no matter how the turn ends.
func (p *Pipeline) processTurn(ctx context.Context, userID string) {
	audio := p.registry.Flush(userID)
	if len(audio) == 0 {
		return
	}

	ctx, span := observe.StartSpan(ctx, "assistant.turn")
	defer span.End()
	log := observe.Logger(ctx).With("user_id", userID)

	turnStart := time.Now()
	defer func() {
		p.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	}()

	text, err := p.transcribe(ctx, audio)
	if err != nil {
		log.Error("transcription failed", "error", err)
		p.metrics.RecordProviderError(ctx, "stt", "transcribe")
		p.metrics.RecordTurn(ctx, outcomeSTTError)
		p.emitter.EmitResponse(userID, AudioErrorReply)
		return
	}

	if strings.TrimSpace(text) == "" {
		log.Info("transcription empty, asking user to repeat")
		p.metrics.RecordTurn(ctx, outcomeEmpty)
		p.emitter.EmitResponse(userID, EmptyTranscriptReply)
		return
	}

	log.Info("user transcription", "text", text)
	p.emitter.EmitTranscript(userID, text)

	history := p.registry.History(userID)
	if history == nil {
		// Session was ended while the turn sat in the queue.
		log.Info("session gone before completion, dropping turn")
		return
	}
	history.Append(llm.RoleUser, text)

	reply, err := p.complete(ctx, history.Messages())
	if err != nil {
		// The user turn stays recorded so the next turn has full context.
		log.Error("completion failed", "error", err)
		p.metrics.RecordProviderError(ctx, "llm", "complete")
		p.metrics.RecordTurn(ctx, outcomeLLMError)
		p.emitter.EmitResponse(userID, ProcessingErrorReply)
		return
	}

	history.Append(llm.RoleAssistant, reply)
	log.Info("assistant response", "text", reply)
	p.metrics.RecordTurn(ctx, outcomeOK)
	p.emitter.EmitResponse(userID, reply)
}

// transcribe runs the STT call under the configured timeout.
func (p *Pipeline) transcribe(ctx context.Context, audio []byte) (string, error) {
	if p.cfg.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ReplyTimeout)
		defer cancel()
	}

	ctx, span := observe.StartSpan(ctx, "assistant.transcribe")
	defer span.End()

	start := time.Now()
	transcript, err := p.transcriber.Transcribe(ctx, stt.Clip{
		Data:        audio,
		ContentType: "audio/webm",
		Filename:    "audio.webm",
	})
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return transcript.Text, nil
}

// complete runs the chat completion under the configured timeout.
func (p *Pipeline) complete(ctx context.Context, messages []llm.Message) (string, error) {
	if p.cfg.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ReplyTimeout)
		defer cancel()
	}

	ctx, span := observe.StartSpan(ctx, "assistant.complete")
	defer span.End()

	start := time.Now()
	resp, err := p.completer.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
