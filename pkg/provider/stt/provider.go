// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., OpenAI Whisper or a
// local inference server) and exposes a uniform clip-based interface: the
// caller hands over one complete audio segment and receives the recognised
// text. Clip boundaries are the segmenter's responsibility, not the
// provider's.
//
// Implementations must be safe for concurrent use. Multiple transcriptions
// may be in flight simultaneously (e.g., one per connected user).
package stt

import "context"

// Clip is one complete audio segment ready for transcription. The bytes are
// an encoded container as captured by the client (typically WebM/Opus), not
// raw PCM.
type Clip struct {
	// Data is the encoded audio payload. Must be non-empty.
	Data []byte

	// ContentType is the MIME type of Data (e.g., "audio/webm").
	// An empty string lets the provider assume its default.
	ContentType string

	// Filename is a hint for providers whose APIs infer the container format
	// from a file extension (e.g., "audio.webm"). Optional.
	Filename string
}

// Transcript is the recognition result for a single Clip.
type Transcript struct {
	// Text is the recognised text. May be empty if the clip contained no
	// intelligible speech.
	Text string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe sends the clip to the backend and waits for the full
	// recognition result. Returns an error if the request fails or if ctx
	// is cancelled before the transcript arrives.
	Transcribe(ctx context.Context, clip Clip) (Transcript, error)
}
