package relay

import "github.com/voicedesk/voicedesk/pkg/transport"

// The wire schema is owned by pkg/transport so client programs can import
// it; the aliases below keep this package's call sites short.

const (
	EventCallRequest       = transport.EventCallRequest
	EventCallAnswer        = transport.EventCallAnswer
	EventCallIncoming      = transport.EventCallIncoming
	EventCallAccepted      = transport.EventCallAccepted
	EventAudioSegment      = transport.EventAudioSegment
	EventSegmentReceived   = transport.EventSegmentReceived
	EventEndCall           = transport.EventEndCall
	EventUserTranscript    = transport.EventUserTranscript
	EventAssistantResponse = transport.EventAssistantResponse
)

type (
	Envelope          = transport.Envelope
	CallRequest       = transport.CallRequest
	CallAnswer        = transport.CallAnswer
	CallNotice        = transport.CallNotice
	AudioSegment      = transport.AudioSegment
	SegmentReceived   = transport.SegmentReceived
	EndCall           = transport.EndCall
	UserTranscript    = transport.UserTranscript
	AssistantResponse = transport.AssistantResponse
)

// NewEnvelope marshals data into an [Envelope] for the given event.
var NewEnvelope = transport.NewEnvelope
