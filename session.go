package chatterline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Session states
// ============================================================================

// SessionState is the lifecycle state of the open conversation, driven by
// screen focus transitions.
type SessionState string

const (
	// SessionIdle: no conversation open, no room bound.
	SessionIdle SessionState = "idle"
	// SessionOpening: screen gained focus, join requested, snapshot pending.
	SessionOpening SessionState = "opening"
	// SessionActive: snapshot applied, live updates flowing.
	SessionActive SessionState = "active"
)

// ============================================================================
// SessionController
// ============================================================================

// SessionController reacts to screen focus transitions: it opens and
// closes room associations on the socket, registers the conversation
// event handlers, and routes inbound events through the reconciler.
//
// Exactly one conversation can be open; Open for a different peer always
// unbinds the previous association first. The controller owns the Socket
// value; nothing else reaches for it as ambient state.
type SessionController struct {
	sock  *Socket
	store *RoomStore
	rec   *Reconciler
	log   *slog.Logger

	mu         sync.Mutex
	state      SessionState
	selfID     string
	peerID     string
	roomID     string
	foreground bool

	// onLive, if set, observes messages appended live to the open room.
	onLive func(Message)
	// onActive, if set, fires once the room snapshot has been applied.
	onActive func(roomID string)
}

// NewSessionController wires a controller over the socket and store. The
// controller registers itself as the reconciler's focus authority.
func NewSessionController(sock *Socket, store *RoomStore, log *slog.Logger) *SessionController {
	if log == nil {
		log = slog.Default()
	}
	c := &SessionController{
		sock:       sock,
		store:      store,
		log:        log,
		state:      SessionIdle,
		foreground: true,
	}
	c.rec = NewReconciler(store, c, log)
	return c
}

// Reconciler exposes the controller's reconciler, the single entry point
// for push notification payloads.
func (c *SessionController) Reconciler() *Reconciler { return c.rec }

// State returns the current lifecycle state.
func (c *SessionController) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FocusedRoom implements Focus: the open room counts as focused only once
// the session is active and the app is foregrounded.
func (c *SessionController) FocusedRoom() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != SessionActive {
		return "", c.foreground
	}
	return c.roomID, c.foreground
}

// SetForeground records app foreground/background transitions.
func (c *SessionController) SetForeground(fg bool) {
	c.mu.Lock()
	c.foreground = fg
	c.mu.Unlock()
}

// OnLiveMessage registers an observer for messages appended live to the
// open conversation. Pass nil to clear.
func (c *SessionController) OnLiveMessage(fn func(Message)) {
	c.mu.Lock()
	c.onLive = fn
	c.mu.Unlock()
}

// OnActive registers an observer for the opening->active transition.
func (c *SessionController) OnActive(fn func(roomID string)) {
	c.mu.Lock()
	c.onActive = fn
	c.mu.Unlock()
}

// ============================================================================
// Focus transitions
// ============================================================================

// Open starts a conversation with peerID: registers the conversation
// handlers (replacing any prior registration for the same events), binds
// the room pair on the socket, and waits for the server snapshot to go
// active. knownRoomID may carry the room id when the conversation was
// entered from the room list; "" means first contact and the id arrives
// with the `room` event.
func (c *SessionController) Open(ctx context.Context, selfID, peerID, knownRoomID string) error {
	c.mu.Lock()
	if c.state != SessionIdle && c.peerID != peerID {
		c.mu.Unlock()
		// Unbind before any bind for a different peer.
		if err := c.Close(ctx); err != nil {
			return err
		}
		c.mu.Lock()
	}
	c.selfID = selfID
	c.peerID = peerID
	c.roomID = knownRoomID
	c.state = SessionOpening
	c.mu.Unlock()

	// Clear-before-register: On replaces any handler left from a previous
	// visit, so repeated opens never stack handlers.
	c.sock.On(EventRoom, c.handleRoomAssigned)
	c.sock.On(EventRoomChats, c.handleSnapshot)
	c.sock.On(EventPrivateMessage, c.handlePrivateMessage)

	if knownRoomID != "" {
		c.sock.SetRoomID(knownRoomID)
		c.store.ResetUnread(knownRoomID)
	}

	return c.sock.Bind(ctx, selfID, peerID)
}

// Close ends the open conversation: unbinds the room association, clears
// the conversation handlers and returns the controller to idle. Always
// safe to call.
func (c *SessionController) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == SessionIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = SessionIdle
	c.selfID, c.peerID, c.roomID = "", "", ""
	c.mu.Unlock()

	c.sock.Off(EventRoom)
	c.sock.Off(EventRoomChats)
	c.sock.Off(EventPrivateMessage)

	return c.sock.Unbind(ctx)
}

// Send delivers a message to the open conversation's peer and records it
// locally. Fire-and-forget on the wire.
func (c *SessionController) Send(ctx context.Context, text string) (Message, error) {
	c.mu.Lock()
	peerID, selfID, roomID := c.peerID, c.selfID, c.roomID
	c.mu.Unlock()

	msg := Message{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
		User:      MessageUser{ID: selfID},
	}
	if err := c.sock.SendPrivate(ctx, msg, peerID); err != nil {
		return Message{}, err
	}
	if roomID != "" {
		c.store.AppendMessage(roomID, msg)
	}
	return msg, nil
}

// ============================================================================
// Socket event handlers
// ============================================================================

// handleRoomAssigned promotes a first-contact placeholder to the
// server-assigned room. The server answer is authoritative: the client
// never invents room ids.
func (c *SessionController) handleRoomAssigned(payload json.RawMessage) {
	var p RoomAssignedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("bad room payload", "err", err)
		return
	}

	c.mu.Lock()
	hadRoom := c.roomID != ""
	c.roomID = p.NewRoomID
	c.mu.Unlock()

	c.sock.SetRoomID(p.NewRoomID)

	if !hadRoom && p.ExistingRoom != nil {
		c.store.AddOrUpdateRoom(*p.ExistingRoom)
	}
}

// handleSnapshot applies the full room history and moves the session from
// opening to active.
func (c *SessionController) handleSnapshot(payload json.RawMessage) {
	var p RoomSnapshotPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("bad room_chats payload", "err", err)
		return
	}

	c.rec.ApplySnapshot(p.RoomID, p.Messages)

	c.mu.Lock()
	c.roomID = p.RoomID
	if c.state == SessionOpening {
		c.state = SessionActive
	}
	onActive := c.onActive
	c.mu.Unlock()

	c.sock.SetRoomID(p.RoomID)
	if onActive != nil {
		onActive(p.RoomID)
	}
}

// handlePrivateMessage routes a live inbound message through the
// reconciler; the visibility decision picks live append or unread.
func (c *SessionController) handlePrivateMessage(payload json.RawMessage) {
	var p PrivateMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("bad private message payload", "err", err)
		return
	}

	c.mu.Lock()
	roomID := c.roomID
	onLive := c.onLive
	c.mu.Unlock()
	if roomID == "" {
		c.log.Warn("live message before room assignment, dropping", "from", p.From)
		return
	}

	before, _ := c.store.Latest(roomID)
	c.rec.ApplyLive(roomID, p.Content)
	after, ok := c.store.Latest(roomID)

	// Surface only messages that actually landed live.
	if onLive != nil && ok && after.Key() == p.Content.Key() && before.Key() != after.Key() {
		onLive(p.Content)
	}
}
