// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcripts into the
// conversation pipeline without a live transcription backend.
package mock

import (
	"context"
	"sync"

	"github.com/voicedesk/voicedesk/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Clip is the audio clip passed to Transcribe.
	Clip stt.Clip
}

// Provider is a mock implementation of stt.Provider.
// Zero values for response fields cause Transcribe to return a zero Transcript
// and nil error. Set TranscribeErr to inject errors.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe.
	TranscribeResult stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if non-nil, overrides TranscribeResult/TranscribeErr
	// and is invoked for every Transcribe call.
	TranscribeFunc func(ctx context.Context, clip stt.Clip) (stt.Transcript, error)

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, clip stt.Clip) (stt.Transcript, error) {
	p.mu.Lock()
	data := make([]byte, len(clip.Data))
	copy(data, clip.Data)
	recorded := stt.Clip{Data: data, ContentType: clip.ContentType, Filename: clip.Filename}
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Clip: recorded})
	fn := p.TranscribeFunc
	res, err := p.TranscribeResult, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, clip)
	}
	return res, err
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
