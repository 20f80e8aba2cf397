package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/voicedesk/voicedesk/internal/assistant"
	"github.com/voicedesk/voicedesk/internal/call"
	"github.com/voicedesk/voicedesk/internal/observe"
	"github.com/voicedesk/voicedesk/pkg/provider/llm"
	llmmock "github.com/voicedesk/voicedesk/pkg/provider/llm/mock"
	"github.com/voicedesk/voicedesk/pkg/provider/stt"
	sttmock "github.com/voicedesk/voicedesk/pkg/provider/stt/mock"
)

// newE2EStack wires a real router and pipeline over mock providers.
func newE2EStack(t *testing.T, transcriber *sttmock.Provider, completer *llmmock.Provider) (*Router, *assistant.Pipeline, *call.Registry) {
	t.Helper()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	registry := call.NewRegistry("you are an HR assistant", 10)

	// Two-phase wiring: the router is the pipeline's emitter and the
	// pipeline is the router's segment handler.
	router := NewRouter(registry, nil, metrics, RouterConfig{
		CalleeID:    "assistant",
		PickupDelay: 10 * time.Millisecond,
	})
	pipeline := assistant.NewPipeline(registry, transcriber, completer, router, metrics, assistant.Config{
		Temperature:  0.7,
		MaxTokens:    150,
		ReplyTimeout: 15 * time.Second,
	})
	router.SetSegmentHandler(pipeline)

	return router, pipeline, registry
}

func TestEndToEndHappyTurn(t *testing.T) {
	transcriber := &sttmock.Provider{TranscribeResult: stt.Transcript{Text: "how many sick days do I get?"}}
	completer := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Ten paid sick days per year."}}
	router, pipeline, _ := newE2EStack(t, transcriber, completer)

	c, ws := newTestConn(t)
	ctx := context.Background()

	// Call the assistant and wait for the simulated pickup.
	router.HandleEnvelope(ctx, c, mustEnvelope(t, EventCallRequest, CallRequest{
		From:        "alice",
		Destination: "assistant",
		Signal:      json.RawMessage(`{"sdp":"offer"}`),
	}))
	if !waitFor(t, func() bool { return len(ws.envelopes(EventCallAccepted)) == 1 }) {
		t.Fatal("pickup never happened")
	}

	// Send one audio segment.
	env := mustEnvelope(t, EventAudioSegment, AudioSegment{UserID: "alice", Data: []byte("audio")})
	env.ID = "seg-1"
	router.HandleEnvelope(ctx, c, env)
	pipeline.WaitIdle("alice")

	// Ack, transcript, and reply all arrive on the caller's channel.
	if !waitFor(t, func() bool {
		return len(ws.envelopes(EventSegmentReceived)) == 2 &&
			len(ws.envelopes(EventUserTranscript)) == 1 &&
			len(ws.envelopes(EventAssistantResponse)) == 1
	}) {
		t.Fatalf("expected ack + transcript + response, got %+v", ws.frames)
	}

	var tr UserTranscript
	if err := json.Unmarshal(ws.envelopes(EventUserTranscript)[0].Data, &tr); err != nil {
		t.Fatalf("unmarshal transcript: %v", err)
	}
	if tr.Text != "how many sick days do I get?" {
		t.Errorf("transcript = %q", tr.Text)
	}

	var resp AssistantResponse
	if err := json.Unmarshal(ws.envelopes(EventAssistantResponse)[0].Data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Text != "Ten paid sick days per year." {
		t.Errorf("response = %q", resp.Text)
	}
	if resp.Audio != nil {
		t.Error("audio should be null")
	}
}

func TestEndToEndTranscriptionFailure(t *testing.T) {
	transcriber := &sttmock.Provider{TranscribeErr: errors.New("whisper unavailable")}
	completer := &llmmock.Provider{}
	router, pipeline, registry := newE2EStack(t, transcriber, completer)

	c, ws := newTestConn(t)
	ctx := context.Background()

	router.HandleEnvelope(ctx, c, mustEnvelope(t, EventCallRequest, CallRequest{
		From:        "bob",
		Destination: "assistant",
	}))
	router.HandleEnvelope(ctx, c, mustEnvelope(t, EventAudioSegment, AudioSegment{
		UserID: "bob",
		Data:   []byte("garbled"),
	}))
	pipeline.WaitIdle("bob")

	if !waitFor(t, func() bool { return len(ws.envelopes(EventAssistantResponse)) == 1 }) {
		t.Fatal("apology never arrived")
	}

	var resp AssistantResponse
	if err := json.Unmarshal(ws.envelopes(EventAssistantResponse)[0].Data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Text != assistant.AudioErrorReply {
		t.Errorf("response = %q, want audio error apology", resp.Text)
	}

	// No transcript was emitted, no completion ran, and the history holds
	// only the system message.
	if len(ws.envelopes(EventUserTranscript)) != 0 {
		t.Error("transcript emitted despite transcription failure")
	}
	if len(completer.CompleteCalls) != 0 {
		t.Error("completion ran despite transcription failure")
	}
	if n := registry.History("bob").Len(); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}
	// The audio buffer is clear for the next attempt.
	if registry.Flush("bob") != nil {
		t.Error("pending audio survived the failed turn")
	}
}
