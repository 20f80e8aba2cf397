package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/voicedesk/voicedesk/internal/call"
	"github.com/voicedesk/voicedesk/internal/observe"
)

// SegmentHandler receives buffered audio segments for processing. Implemented
// by the assistant pipeline; tests substitute a fake.
type SegmentHandler interface {
	// HandleSegment buffers one segment for userID and schedules a turn.
	// Returns the buffered fragment count.
	HandleSegment(ctx context.Context, userID string, data []byte) int
}

// RouterConfig tunes call routing behaviour.
type RouterConfig struct {
	// CalleeID is the reserved destination that routes a call to the
	// assistant instead of another user.
	CalleeID string

	// PickupDelay is how long the simulated assistant "rings" before the
	// call-accepted event is sent back.
	PickupDelay time.Duration
}

// Router dispatches inbound envelopes: assistant calls get a simulated pickup
// and a conversation pipeline, user-to-user calls are forwarded verbatim.
//
// Router implements the pipeline's Emitter so transcripts and replies flow
// back to the right channel. All methods are safe for concurrent use.
type Router struct {
	registry *call.Registry
	segments SegmentHandler
	metrics  *observe.Metrics
	cfg      RouterConfig

	mu      sync.Mutex
	conns   map[string]*conn       // by user ID
	pickups map[string]*time.Timer // pending simulated pickups by user ID
}

// NewRouter wires a Router. metrics may be nil, in which case the
// package-level default instruments are used.
func NewRouter(registry *call.Registry, segments SegmentHandler, metrics *observe.Metrics, cfg RouterConfig) *Router {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Router{
		registry: registry,
		segments: segments,
		metrics:  metrics,
		cfg:      cfg,
		conns:    make(map[string]*conn),
		pickups:  make(map[string]*time.Timer),
	}
}

// SetSegmentHandler wires the segment handler after construction. The router
// and the pipeline reference each other, so one of them has to be attached
// late. Must be called before the first envelope arrives.
func (r *Router) SetSegmentHandler(h SegmentHandler) {
	r.segments = h
}

// HandleEnvelope processes one inbound envelope from c.
func (r *Router) HandleEnvelope(ctx context.Context, c *conn, env Envelope) {
	switch env.Event {
	case EventCallRequest:
		r.handleCallRequest(ctx, c, env)
	case EventCallAnswer:
		r.handleCallAnswer(c, env)
	case EventAudioSegment:
		r.handleAudioSegment(ctx, c, env)
	case EventEndCall:
		r.handleEndCall(ctx, c, env)
	default:
		slog.Warn("unknown event", "event", env.Event, "conn_id", c.id)
	}
}

func (r *Router) handleCallRequest(ctx context.Context, c *conn, env Envelope) {
	var req CallRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		slog.Warn("malformed call-request", "conn_id", c.id, "error", err)
		return
	}
	if req.From == "" {
		slog.Warn("call-request without caller id", "conn_id", c.id)
		return
	}

	r.attach(c, req.From)

	if req.Destination == r.cfg.CalleeID {
		_, created := r.registry.GetOrCreate(req.From)
		if created {
			r.metrics.ActiveSessions.Add(ctx, 1)
		}
		slog.Info("assistant call started",
			"user_id", req.From,
			"room_id", call.RoomID(req.From),
		)
		r.schedulePickup(c, req)
		return
	}

	// User-to-user call: forward verbatim, no session involved.
	target, ok := r.connFor(req.Destination)
	if !ok {
		slog.Warn("call destination not connected",
			"from", req.From,
			"destination", req.Destination,
		)
		return
	}
	target.send(NewEnvelope(EventCallIncoming, CallNotice{
		From:   req.From,
		Signal: req.Signal,
	}))
}

// schedulePickup arms the simulated assistant pickup timer for the caller.
// A new call-request from the same user rearms the timer; end-call and
// disconnect cancel it.
func (r *Router) schedulePickup(c *conn, req CallRequest) {
	accepted := NewEnvelope(EventCallAccepted, CallNotice{
		From:   r.cfg.CalleeID,
		Signal: req.Signal,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.pickups[req.From]; ok {
		prev.Stop()
	}
	r.pickups[req.From] = time.AfterFunc(r.cfg.PickupDelay, func() {
		r.mu.Lock()
		delete(r.pickups, req.From)
		r.mu.Unlock()
		c.send(accepted)
	})
}

func (r *Router) handleCallAnswer(c *conn, env Envelope) {
	var ans CallAnswer
	if err := json.Unmarshal(env.Data, &ans); err != nil {
		slog.Warn("malformed call-answer", "conn_id", c.id, "error", err)
		return
	}

	caller, ok := r.connFor(ans.To)
	if !ok {
		slog.Warn("call-answer for unknown caller", "to", ans.To)
		return
	}
	caller.send(NewEnvelope(EventCallAccepted, CallNotice{
		From:   c.user(),
		Signal: ans.Signal,
	}))
}

func (r *Router) handleAudioSegment(ctx context.Context, c *conn, env Envelope) {
	var seg AudioSegment
	if err := json.Unmarshal(env.Data, &seg); err != nil {
		slog.Warn("malformed audio-segment", "conn_id", c.id, "error", err)
		return
	}
	userID := seg.UserID
	if userID == "" {
		userID = c.user()
	}
	if userID == "" {
		slog.Warn("audio-segment without user id", "conn_id", c.id)
		return
	}

	r.attach(c, userID)
	r.segments.HandleSegment(ctx, userID, seg.Data)

	ack := SegmentReceived{Size: len(seg.Data)}
	if env.ID != "" {
		reply := NewEnvelope(EventSegmentReceived, ack)
		reply.ID = env.ID
		c.send(reply)
	}
	c.send(NewEnvelope(EventSegmentReceived, ack))
}

func (r *Router) handleEndCall(ctx context.Context, c *conn, env Envelope) {
	var end EndCall
	if err := json.Unmarshal(env.Data, &end); err != nil {
		slog.Warn("malformed end-call", "conn_id", c.id, "error", err)
		return
	}
	userID := end.UserID
	if userID == "" {
		userID = c.user()
	}

	r.cancelPickup(userID)
	if r.registry.End(userID) {
		r.metrics.ActiveSessions.Add(ctx, -1)
		slog.Info("call ended", "user_id", userID)
	}
}

// OnDisconnect cleans up after c's channel closes: the pending pickup is
// cancelled and the bound session, if any, is ended.
func (r *Router) OnDisconnect(ctx context.Context, c *conn) {
	userID := c.user()
	if userID != "" {
		r.cancelPickup(userID)

		r.mu.Lock()
		if r.conns[userID] == c {
			delete(r.conns, userID)
		}
		r.mu.Unlock()
	}

	if endedUser, ended := r.registry.OnDisconnect(c.id); ended {
		r.metrics.ActiveSessions.Add(ctx, -1)
		slog.Info("call ended by disconnect", "user_id", endedUser)
	}
}

// EmitTranscript implements the pipeline Emitter.
func (r *Router) EmitTranscript(userID, text string) {
	if c, ok := r.connFor(userID); ok {
		c.send(NewEnvelope(EventUserTranscript, UserTranscript{Text: text}))
	}
}

// EmitResponse implements the pipeline Emitter. Audio is always null; speech
// synthesis happens on the client device.
func (r *Router) EmitResponse(userID, text string) {
	if c, ok := r.connFor(userID); ok {
		c.send(NewEnvelope(EventAssistantResponse, AssistantResponse{Text: text}))
	}
}

// attach binds the channel to userID in both the router's connection table
// and the registry's reverse index.
func (r *Router) attach(c *conn, userID string) {
	c.bindUser(userID)
	r.registry.BindChannel(c.id, userID)

	r.mu.Lock()
	r.conns[userID] = c
	r.mu.Unlock()
}

func (r *Router) connFor(userID string) (*conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[userID]
	return c, ok
}

func (r *Router) cancelPickup(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.pickups[userID]; ok {
		t.Stop()
		delete(r.pickups, userID)
	}
}
