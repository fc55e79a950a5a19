package chatterline

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// User is a chat participant. Fetched wholesale on authentication and
// never mutated locally afterwards.
type User struct {
	ID             string `json:"_id"`
	Name           string `json:"name"`
	DisplayPicture string `json:"displayPicture,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
}

// MessageUser identifies the sender embedded in a message.
type MessageUser struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// Message is a single chat message. Once added to a room's sequence it is
// never mutated; unread state lives on the room, not the message.
type Message struct {
	ID        string      `json:"_id"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
	User      MessageUser `json:"user"`
}

// Key returns the idempotency key used by the reconciler to detect a
// message delivered through more than one channel (socket and push).
// Room scoping is implicit: keys are only compared within one room.
func (m Message) Key() MessageKey {
	return MessageKey{SenderID: m.User.ID, CreatedAt: m.CreatedAt.UTC()}
}

// MessageKey identifies a message independent of delivery channel.
type MessageKey struct {
	SenderID  string
	CreatedAt time.Time
}

// Room is a two-party conversation. Messages are ordered most-recent-first:
// index 0 is the newest message. Room ids are assigned by the server on
// first contact and are stable afterwards; the client never fabricates one
// beyond a local placeholder that the `room` event replaces.
type Room struct {
	ID       string    `json:"_id"`
	Users    []User    `json:"userIds"`
	Messages []Message `json:"messages"`
	Unread   int       `json:"count"`
}

// Peer returns the participant that is not selfID, if present.
func (r Room) Peer(selfID string) (User, bool) {
	for _, u := range r.Users {
		if u.ID != selfID {
			return u, true
		}
	}
	return User{}, false
}

// ============================================================================
// Socket wire format
// ============================================================================

// Envelope is the wire format for all socket events.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Command is a client-to-server socket emission.
type Command struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Inbound socket event names.
const (
	EventRoom           = "room"
	EventRoomChats      = "room_chats"
	EventPrivateMessage = "private message"
	EventYourRooms      = "your_rooms"
	EventConnectError   = "connect_error"
)

// Outbound socket event names.
const (
	CmdConnectRoom    = "connect_me_to_room"
	CmdDisconnectRoom = "disconnectRoom"
	CmdPrivateMessage = "private message"
	CmdGetMyChats     = "get_my_chats"
)

// RoomAssignedPayload is sent by the server after a room join request.
// ExistingRoom is nil on first contact between the two users.
type RoomAssignedPayload struct {
	NewRoomID    string `json:"newRoomId"`
	ExistingRoom *Room  `json:"existingRoom"`
}

// RoomSnapshotPayload carries the full message history of a room on open.
type RoomSnapshotPayload struct {
	Messages []Message `json:"messages"`
	RoomID   string    `json:"roomId"`
}

// PrivateMessagePayload is a live inbound message.
type PrivateMessagePayload struct {
	Content Message `json:"content"`
	From    string  `json:"from"`
}

// ConnectRoomPayload requests a room association for a user pair.
type ConnectRoomPayload struct {
	SelfID     string `json:"selfId"`
	ReceiverID string `json:"receiverId"`
}

// SendMessagePayload is an outbound private message.
type SendMessagePayload struct {
	Content Message `json:"content"`
	To      string  `json:"to"`
}

// DisconnectRoomPayload tears down the current room association.
type DisconnectRoomPayload struct {
	RoomID string `json:"roomId"`
}

// GetMyChatsPayload requests the full room list for a user.
type GetMyChatsPayload struct {
	SelfID string `json:"selfId"`
}

// YourRoomsPayload is the full known-room list for a user.
type YourRoomsPayload struct {
	Rooms []Room `json:"rooms"`
}

// ConnectErrorPayload reports a transport-level error from the server.
type ConnectErrorPayload struct {
	Err string `json:"err"`
}

// ============================================================================
// Push notifications
// ============================================================================

// PushPayload is the data portion of a push notification. Room is only
// populated when the server knows the recipient has no local copy of the
// room yet (first contact delivered via push).
type PushPayload struct {
	RoomID  string  `json:"roomId"`
	Content Message `json:"content"`
	Room    *Room   `json:"room,omitempty"`
}

// ============================================================================
// Auth HTTP types
// ============================================================================

// AuthResponse is returned by OTP verification and auto-login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
	Error string `json:"Error,omitempty"`
}

// AvatarResponse is returned by the avatar upload endpoint.
type AvatarResponse struct {
	DisplayPicture string `json:"displayPicture"`
}
