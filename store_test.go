package chatterline

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMessage(sender, text string, at time.Time) Message {
	return Message{
		ID:        fmt.Sprintf("%s-%d", sender, at.UnixNano()),
		Text:      text,
		CreatedAt: at,
		User:      MessageUser{ID: sender},
	}
}

func testRoom(id string, users ...User) Room {
	return Room{ID: id, Users: users}
}

// ============================================================================
// RoomStore operations
// ============================================================================

func TestRoomStoreAppendMessage(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("distinct appends all land", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.UpsertRoomList([]Room{testRoom("r1")})

		const n = 5
		for i := 0; i < n; i++ {
			s.AppendMessage("r1", testMessage("u1", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Second)))
		}
		room, ok := s.Room("r1")
		if !ok {
			t.Fatal("room r1 missing")
		}
		if len(room.Messages) != n {
			t.Fatalf("expected %d messages, got %d", n, len(room.Messages))
		}
	})

	t.Run("newest message sits at index 0", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.UpsertRoomList([]Room{testRoom("r1")})

		s.AppendMessage("r1", testMessage("u1", "first", base))
		s.AppendMessage("r1", testMessage("u1", "second", base.Add(time.Second)))

		room, _ := s.Room("r1")
		if room.Messages[0].Text != "second" {
			t.Fatalf("expected newest at head, got %q", room.Messages[0].Text)
		}
	})

	t.Run("unknown room is dropped without panic", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.AppendMessage("nope", testMessage("u1", "hi", base))
		if len(s.Rooms()) != 0 {
			t.Fatal("expected no rooms created")
		}
	})
}

func TestRoomStoreSetRoomSnapshot(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		testMessage("u2", "three", base.Add(2*time.Second)),
		testMessage("u1", "two", base.Add(time.Second)),
		testMessage("u1", "one", base),
	}

	t.Run("replaces history wholesale", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.UpsertRoomList([]Room{testRoom("r1")})
		s.AppendMessage("r1", testMessage("u1", "stale", base))

		s.SetRoomSnapshot("r1", msgs)
		room, _ := s.Room("r1")
		if len(room.Messages) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(room.Messages))
		}
		if room.Messages[0].Text != "three" {
			t.Fatalf("expected snapshot head, got %q", room.Messages[0].Text)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.SetRoomSnapshot("r1", msgs)
		s.SetRoomSnapshot("r1", msgs)
		room, _ := s.Room("r1")
		if len(room.Messages) != 3 {
			t.Fatalf("expected 3 messages after double snapshot, got %d", len(room.Messages))
		}
	})

	t.Run("unknown room creates shell", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.SetRoomSnapshot("r9", msgs)
		room, ok := s.Room("r9")
		if !ok {
			t.Fatal("expected shell room")
		}
		if len(room.Messages) != 3 {
			t.Fatalf("expected snapshot kept, got %d messages", len(room.Messages))
		}
	})
}

func TestRoomStoreUnreadCounters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("mark increments without touching messages", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.UpsertRoomList([]Room{testRoom("r1")})

		s.MarkUnread("r1", testMessage("u2", "hi", base))
		s.MarkUnread("r1", testMessage("u2", "ho", base.Add(time.Second)))

		room, _ := s.Room("r1")
		if room.Unread != 2 {
			t.Fatalf("expected unread 2, got %d", room.Unread)
		}
		if len(room.Messages) != 0 {
			t.Fatalf("expected messages untouched, got %d", len(room.Messages))
		}
	})

	t.Run("reset zeroes", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.UpsertRoomList([]Room{testRoom("r1")})
		s.MarkUnread("r1", testMessage("u2", "hi", base))

		s.ResetUnread("r1")
		room, _ := s.Room("r1")
		if room.Unread != 0 {
			t.Fatalf("expected unread 0, got %d", room.Unread)
		}
	})

	t.Run("unknown rooms tolerated", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.MarkUnread("nope", testMessage("u2", "hi", base))
		s.ResetUnread("nope")
		if len(s.Rooms()) != 0 {
			t.Fatal("expected no rooms created")
		}
	})

	t.Run("total sums across rooms", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.UpsertRoomList([]Room{testRoom("r1"), testRoom("r2")})
		s.MarkUnread("r1", testMessage("u2", "a", base))
		s.MarkUnread("r2", testMessage("u3", "b", base))
		s.MarkUnread("r2", testMessage("u3", "c", base))
		if got := s.TotalUnread(); got != 3 {
			t.Fatalf("expected total 3, got %d", got)
		}
	})
}

func TestRoomStoreUpsertRoomList(t *testing.T) {
	s := NewRoomStore(testLogger())
	s.UpsertRoomList([]Room{testRoom("r1"), testRoom("r2")})
	s.UpsertRoomList([]Room{testRoom("r3")})

	rooms := s.Rooms()
	if len(rooms) != 1 || rooms[0].ID != "r3" {
		t.Fatalf("expected full replace with r3, got %+v", rooms)
	}
}

func TestRoomStoreAddOrUpdateRoom(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice := User{ID: "u1", Name: "alice"}
	bob := User{ID: "u2", Name: "bob"}

	t.Run("inserts unknown room", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.AddOrUpdateRoom(Room{ID: "r1", Users: []User{alice, bob}})
		if _, ok := s.Room("r1"); !ok {
			t.Fatal("expected room inserted")
		}
	})

	t.Run("merge keeps local unread", func(t *testing.T) {
		s := NewRoomStore(testLogger())
		s.AddOrUpdateRoom(Room{ID: "r1", Users: []User{alice}})
		s.MarkUnread("r1", testMessage("u2", "hi", base))

		s.AddOrUpdateRoom(Room{
			ID:       "r1",
			Users:    []User{alice, bob},
			Messages: []Message{testMessage("u2", "hi", base)},
		})
		room, _ := s.Room("r1")
		if room.Unread != 1 {
			t.Fatalf("expected unread kept, got %d", room.Unread)
		}
		if len(room.Users) != 2 {
			t.Fatalf("expected participants merged, got %d", len(room.Users))
		}
		if len(room.Messages) != 1 {
			t.Fatalf("expected history merged, got %d", len(room.Messages))
		}
	})
}

func TestRoomStoreSnapshotsDoNotAlias(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewRoomStore(testLogger())
	s.UpsertRoomList([]Room{testRoom("r1")})
	s.AppendMessage("r1", testMessage("u1", "hi", base))

	room, _ := s.Room("r1")
	room.Messages[0].Text = "tampered"
	room.Unread = 42

	fresh, _ := s.Room("r1")
	if fresh.Messages[0].Text != "hi" || fresh.Unread != 0 {
		t.Fatal("store state leaked through returned copy")
	}
}

func TestRoomStoreLatest(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewRoomStore(testLogger())

	if _, ok := s.Latest("r1"); ok {
		t.Fatal("expected no latest for unknown room")
	}

	s.UpsertRoomList([]Room{testRoom("r1")})
	if _, ok := s.Latest("r1"); ok {
		t.Fatal("expected no latest for empty room")
	}

	s.AppendMessage("r1", testMessage("u1", "old", base))
	s.AppendMessage("r1", testMessage("u1", "new", base.Add(time.Second)))
	latest, ok := s.Latest("r1")
	if !ok || latest.Text != "new" {
		t.Fatalf("expected newest message, got %+v ok=%v", latest, ok)
	}
}
