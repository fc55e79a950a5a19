package chatterline

import (
	"log/slog"
	"sync"
)

// ============================================================================
// RoomStore
// ============================================================================

// RoomStore is the single authoritative local copy of the room collection.
// All mutations go through its operations; observers only ever receive
// copies, so a returned Room is a stable snapshot.
//
// Every operation keyed by a room id tolerates an unknown id. The policy
// per operation:
//
//	AppendMessage    unknown room -> dropped, logged (push can race the
//	                 room-list fetch)
//	SetRoomSnapshot  unknown room -> room shell created
//	MarkUnread       unknown room -> dropped, logged
//	ResetUnread      unknown room -> no-op
//	AddOrUpdateRoom  unknown room -> inserted
type RoomStore struct {
	mu    sync.RWMutex
	rooms []Room
	log   *slog.Logger
}

// NewRoomStore creates an empty room store.
func NewRoomStore(log *slog.Logger) *RoomStore {
	if log == nil {
		log = slog.Default()
	}
	return &RoomStore{log: log}
}

// UpsertRoomList replaces the entire known room collection. Used on the
// initial `your_rooms` fetch. Full replace, not a merge.
func (s *RoomStore) UpsertRoomList(rooms []Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make([]Room, len(rooms))
	for i, r := range rooms {
		s.rooms[i] = cloneRoom(r)
	}
}

// AppendMessage prepends msg to the room's sequence (index 0 is newest).
// Unknown room ids are dropped with a log line, never an error: the room
// may simply not have synced yet.
func (s *RoomStore) AppendMessage(roomID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(roomID)
	if i < 0 {
		s.log.Warn("append for unknown room, dropping", "roomId", roomID, "sender", msg.User.ID)
		return
	}
	r := cloneRoom(s.rooms[i])
	r.Messages = append([]Message{msg}, r.Messages...)
	s.rooms[i] = r
}

// SetRoomSnapshot replaces the room's message sequence wholesale with the
// server-provided history. If the room is unknown a shell is created so
// the snapshot is never lost. Idempotent for a fixed message set.
func (s *RoomStore) SetRoomSnapshot(roomID string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := append([]Message(nil), msgs...)
	i := s.index(roomID)
	if i < 0 {
		s.rooms = append(s.rooms, Room{ID: roomID, Messages: seq})
		return
	}
	r := cloneRoom(s.rooms[i])
	r.Messages = seq
	s.rooms[i] = r
}

// MarkUnread increments the room's unread counter without touching its
// message sequence. Unknown room ids are dropped with a log line.
func (s *RoomStore) MarkUnread(roomID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(roomID)
	if i < 0 {
		s.log.Warn("unread mark for unknown room, dropping", "roomId", roomID, "sender", msg.User.ID)
		return
	}
	r := cloneRoom(s.rooms[i])
	r.Unread++
	s.rooms[i] = r
}

// ResetUnread zeroes the room's unread counter. Called on room open.
func (s *RoomStore) ResetUnread(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(roomID)
	if i < 0 {
		return
	}
	r := cloneRoom(s.rooms[i])
	r.Unread = 0
	s.rooms[i] = r
}

// AddOrUpdateRoom inserts the room if unknown, else merges: the incoming
// descriptor's participants and history win where present, the local
// unread counter is kept. Used when a first-contact push carries a full
// room payload.
func (s *RoomStore) AddOrUpdateRoom(room Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(room.ID)
	if i < 0 {
		s.rooms = append(s.rooms, cloneRoom(room))
		return
	}
	merged := cloneRoom(s.rooms[i])
	if len(room.Users) > 0 {
		merged.Users = append([]User(nil), room.Users...)
	}
	if len(room.Messages) > 0 {
		merged.Messages = append([]Message(nil), room.Messages...)
	}
	s.rooms[i] = merged
}

// Room returns a copy of the room with the given id.
func (s *RoomStore) Room(roomID string) (Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(roomID)
	if i < 0 {
		return Room{}, false
	}
	return cloneRoom(s.rooms[i]), true
}

// Rooms returns a copy of the full room collection in list order.
func (s *RoomStore) Rooms() []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Room, len(s.rooms))
	for i, r := range s.rooms {
		out[i] = cloneRoom(r)
	}
	return out
}

// Latest returns the newest message of the room, if any.
func (s *RoomStore) Latest(roomID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(roomID)
	if i < 0 || len(s.rooms[i].Messages) == 0 {
		return Message{}, false
	}
	return s.rooms[i].Messages[0], true
}

// TotalUnread sums unread counters across all rooms.
func (s *RoomStore) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, r := range s.rooms {
		total += r.Unread
	}
	return total
}

// index returns the position of roomID, or -1. Callers hold s.mu.
func (s *RoomStore) index(roomID string) int {
	for i, r := range s.rooms {
		if r.ID == roomID {
			return i
		}
	}
	return -1
}

func cloneRoom(r Room) Room {
	out := r
	out.Users = append([]User(nil), r.Users...)
	out.Messages = append([]Message(nil), r.Messages...)
	return out
}
