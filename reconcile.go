package chatterline

import (
	"log/slog"
)

// ============================================================================
// Visibility Router
// ============================================================================

// Delivery is the routing decision for an inbound message.
type Delivery int

const (
	// DeliverLive appends the message to the open conversation.
	DeliverLive Delivery = iota
	// DeliverUnread records the message against the room's unread counter.
	DeliverUnread
)

// Decide routes an inbound message: live append only when the target room
// is the one currently open and the app is foregrounded. Pure decision,
// no side effects.
func Decide(targetRoomID, focusedRoomID string, foreground bool) Delivery {
	if foreground && targetRoomID != "" && targetRoomID == focusedRoomID {
		return DeliverLive
	}
	return DeliverUnread
}

// ============================================================================
// Reconciler
// ============================================================================

// Focus reports which conversation, if any, is currently on screen.
// Implemented by the SessionController; a nil Focus means nothing is open.
type Focus interface {
	// FocusedRoom returns the open room id ("" when none) and whether the
	// app is foregrounded.
	FocusedRoom() (roomID string, foreground bool)
}

// Reconciler merges the three inbound event shapes (room snapshot, live
// socket message, push notification) into RoomStore operations. Socket
// and push may both deliver the same logical message in either order; the
// idempotency check absorbs the duplicate silently.
type Reconciler struct {
	store *RoomStore
	focus Focus
	log   *slog.Logger
}

// NewReconciler creates a reconciler over the given store. focus may be
// nil; then every message routes to the unread counter.
func NewReconciler(store *RoomStore, focus Focus, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, focus: focus, log: log}
}

// ApplySnapshot installs the server's full room history and clears the
// unread counter, which a room open implies.
func (rc *Reconciler) ApplySnapshot(roomID string, msgs []Message) {
	rc.store.SetRoomSnapshot(roomID, msgs)
	rc.store.ResetUnread(roomID)
}

// ApplyLive handles a live socket message for the given room.
func (rc *Reconciler) ApplyLive(roomID string, msg Message) {
	if rc.isDuplicate(roomID, msg) {
		rc.log.Debug("duplicate live message absorbed", "roomId", roomID, "sender", msg.User.ID)
		return
	}
	rc.route(roomID, msg)
}

// ApplyPush handles a push notification delivered while the app is
// foregrounded. The two server branches stay distinct: a payload carrying
// a full room descriptor means the room is unknown here: the room is
// installed and the message counts as unread; otherwise the message is
// routed like a live one.
func (rc *Reconciler) ApplyPush(p PushPayload) {
	if _, known := rc.store.Room(p.RoomID); !known {
		if p.Room == nil {
			rc.log.Warn("push for unknown room without room payload, dropping", "roomId", p.RoomID)
			return
		}
		rc.store.AddOrUpdateRoom(*p.Room)
		rc.store.MarkUnread(p.RoomID, p.Content)
		return
	}

	if rc.isDuplicate(p.RoomID, p.Content) {
		rc.log.Debug("duplicate push absorbed", "roomId", p.RoomID, "sender", p.Content.User.ID)
		return
	}
	rc.route(p.RoomID, p.Content)
}

// route applies the visibility decision for one non-duplicate message.
func (rc *Reconciler) route(roomID string, msg Message) {
	focused, foreground := "", false
	if rc.focus != nil {
		focused, foreground = rc.focus.FocusedRoom()
	}
	switch Decide(roomID, focused, foreground) {
	case DeliverLive:
		rc.store.AppendMessage(roomID, msg)
	case DeliverUnread:
		rc.store.MarkUnread(roomID, msg)
	}
}

// isDuplicate reports whether msg matches the newest message already in
// the room. Duplicates only ever arrive back-to-back (snapshot tail vs
// live, socket vs push), so checking the head is sufficient.
func (rc *Reconciler) isDuplicate(roomID string, msg Message) bool {
	head, ok := rc.store.Latest(roomID)
	if !ok {
		return false
	}
	return head.Key() == msg.Key()
}
