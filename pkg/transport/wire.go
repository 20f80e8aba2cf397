// Package transport defines the websocket wire schema spoken between
// clients and the relay server, plus a thin client-side channel for it.
//
// Every frame is one JSON [Envelope] carrying a named event. The schema is
// shared by the server's relay and by client programs; there is no
// auto-reconnect, a dropped channel means the call is over.
package transport

import "encoding/json"

// Wire event names.
const (
	// EventCallRequest is sent by a client to start a call. When the
	// destination is the reserved assistant callee, the server simulates a
	// pickup; otherwise the request is forwarded to the destination user.
	EventCallRequest = "call-request"

	// EventCallAnswer is sent by a callee to accept an incoming user call.
	EventCallAnswer = "call-answer"

	// EventCallIncoming notifies a user that someone is calling them.
	EventCallIncoming = "call-incoming"

	// EventCallAccepted notifies the caller that the call was picked up.
	EventCallAccepted = "call-accepted"

	// EventAudioSegment carries one captured audio segment from the client.
	EventAudioSegment = "audio-segment"

	// EventSegmentReceived acknowledges a received audio segment.
	EventSegmentReceived = "segment-received"

	// EventEndCall terminates the caller's session.
	EventEndCall = "end-call"

	// EventUserTranscript carries the recognised text of the user's segment.
	EventUserTranscript = "user-transcript"

	// EventAssistantResponse carries the assistant's reply text. Audio is
	// always null; speech synthesis happens on the client device.
	EventAssistantResponse = "assistant-response"
)

// Envelope is the framing for every websocket message in both directions.
// ID is set by clients on requests that expect a direct acknowledgement; the
// server copies it onto the ack envelope.
type Envelope struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an [Envelope] for the given event.
// Marshalling the payload types in this package cannot fail; errors indicate
// a programming mistake and yield an envelope with empty data.
func NewEnvelope(event string, data any) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{Event: event}
	}
	return Envelope{Event: event, Data: raw}
}

// CallRequest is the payload of [EventCallRequest].
type CallRequest struct {
	// From is the caller's user ID.
	From string `json:"from"`

	// Destination is the callee: the reserved assistant ID or another user.
	Destination string `json:"destination"`

	// Signal is an opaque signalling payload forwarded verbatim.
	Signal json.RawMessage `json:"signal,omitempty"`
}

// CallAnswer is the payload of [EventCallAnswer].
type CallAnswer struct {
	// To is the original caller's user ID.
	To string `json:"to"`

	// Signal is the accept payload forwarded verbatim to the caller.
	Signal json.RawMessage `json:"signal,omitempty"`
}

// CallNotice is the payload of [EventCallIncoming] and [EventCallAccepted].
type CallNotice struct {
	// From identifies who is calling or who accepted.
	From string `json:"from"`

	// Signal is the opaque signalling payload, echoed or forwarded verbatim.
	Signal json.RawMessage `json:"signal,omitempty"`
}

// AudioSegment is the payload of [EventAudioSegment]. Data is base64 in the
// JSON encoding.
type AudioSegment struct {
	UserID string `json:"userId"`
	Data   []byte `json:"data"`
}

// SegmentReceived is the payload of [EventSegmentReceived].
type SegmentReceived struct {
	// Size is the byte length of the acknowledged segment.
	Size int `json:"size"`
}

// EndCall is the payload of [EventEndCall].
type EndCall struct {
	UserID string `json:"userId"`
}

// UserTranscript is the payload of [EventUserTranscript].
type UserTranscript struct {
	Text string `json:"text"`
}

// AssistantResponse is the payload of [EventAssistantResponse]. Audio is
// always null in this build; it exists so clients that expect a server-side
// synthesis field keep working.
type AssistantResponse struct {
	Text  string  `json:"text"`
	Audio *string `json:"audio"`
}
