// Package call tracks active voice sessions and their conversation state.
//
// A Session exists for every user currently in a call with the assistant. It
// buffers incoming audio fragments until the pipeline flushes them as one
// clip, and carries the room identifier the user was placed in. The Registry
// owns all sessions plus their conversation histories and the channel
// bindings used for disconnect cleanup.
package call

import (
	"strings"
	"sync"
	"time"
)

// Session is the per-user call state. Fields are managed by the Registry;
// access pendingAudio only through AppendAudio and Flush.
type Session struct {
	// UserID identifies the user this session belongs to.
	UserID string

	// RoomID is the room the user was placed in, derived from the user ID.
	RoomID string

	// CreatedAt is when the session was first created.
	CreatedAt time.Time

	pendingAudio [][]byte
}

// RoomID derives the room identifier for a user.
func RoomID(userID string) string {
	return "call-" + userID
}

// Registry is the authoritative store of active sessions. It maps user IDs to
// sessions and conversation histories, and channel IDs to user IDs so that a
// dropped connection can be cleaned up without scanning.
//
// All methods are safe for concurrent use.
type Registry struct {
	systemPrompt string
	historyLimit int

	mu        sync.Mutex
	sessions  map[string]*Session
	histories map[string]*History
	byChannel map[string]string
	byUser    map[string]string
}

// NewRegistry creates an empty Registry. systemPrompt seeds every new
// conversation history; historyLimit caps each history's length.
func NewRegistry(systemPrompt string, historyLimit int) *Registry {
	return &Registry{
		systemPrompt: systemPrompt,
		historyLimit: historyLimit,
		sessions:     make(map[string]*Session),
		histories:    make(map[string]*History),
		byChannel:    make(map[string]string),
		byUser:       make(map[string]string),
	}
}

// GetOrCreate returns the session for userID, creating it (and its
// conversation history) if none exists. The second return value reports
// whether the session was newly created.
func (r *Registry) GetOrCreate(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(userID)
}

// getOrCreateLocked is GetOrCreate without locking. Must be called with r.mu held.
func (r *Registry) getOrCreateLocked(userID string) (*Session, bool) {
	if s, ok := r.sessions[userID]; ok {
		return s, false
	}
	s := &Session{
		UserID:    userID,
		RoomID:    RoomID(userID),
		CreatedAt: time.Now(),
	}
	r.sessions[userID] = s
	if _, ok := r.histories[userID]; !ok {
		r.histories[userID] = NewHistory(r.systemPrompt, r.historyLimit)
	}
	return s, true
}

// Get returns the session for userID, or nil if none exists.
func (r *Registry) Get(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[userID]
}

// AppendAudio buffers one audio fragment for userID, creating the session if
// needed. Returns the total number of buffered fragments.
func (r *Registry) AppendAudio(userID string, chunk []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, _ := r.getOrCreateLocked(userID)
	s.pendingAudio = append(s.pendingAudio, chunk)
	return len(s.pendingAudio)
}

// Flush concatenates and returns all buffered audio for userID, clearing the
// buffer in the same step. Returns nil if the session does not exist or has
// no buffered audio.
func (r *Registry) Flush(userID string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok || len(s.pendingAudio) == 0 {
		return nil
	}

	total := 0
	for _, c := range s.pendingAudio {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range s.pendingAudio {
		out = append(out, c...)
	}
	s.pendingAudio = nil
	return out
}

// ClearPending drops any buffered audio for userID without returning it.
func (r *Registry) ClearPending(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		s.pendingAudio = nil
	}
}

// History returns the conversation history for userID, or nil if the user has
// no active session.
func (r *Registry) History(userID string) *History {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.histories[userID]
}

// End removes the session and conversation history for userID. Ending a user
// that has no session is a no-op. Returns true if a session was removed.
func (r *Registry) End(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[userID]
	delete(r.sessions, userID)
	delete(r.histories, userID)
	return ok
}

// BindChannel associates a transport channel with a user so that a dropped
// channel can be mapped back to its session. Rebinding a user to a new channel
// drops the previous binding, so a lingering old channel cannot tear down the
// session the new one owns.
func (r *Registry) BindChannel(channelID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byUser[userID]; ok && prev != channelID {
		delete(r.byChannel, prev)
	}
	r.byChannel[channelID] = userID
	r.byUser[userID] = channelID
}

// OnDisconnect removes the channel binding and, if the channel was bound to a
// user, ends that user's session. Returns the bound user ID and whether a
// live session was removed.
func (r *Registry) OnDisconnect(channelID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, bound := r.byChannel[channelID]
	if !bound {
		return "", false
	}
	delete(r.byChannel, channelID)
	if r.byUser[userID] == channelID {
		delete(r.byUser, userID)
	}

	_, hadSession := r.sessions[userID]
	delete(r.sessions, userID)
	delete(r.histories, userID)
	return userID, hadSession
}

// ActiveCount returns the number of live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// UserFromRoom extracts the user ID from a room identifier, or "" if the room
// ID is not in the expected form.
func UserFromRoom(roomID string) string {
	if !strings.HasPrefix(roomID, "call-") {
		return ""
	}
	return strings.TrimPrefix(roomID, "call-")
}
