package chatterline

import (
	"testing"
	"time"
)

// fakeFocus is a controllable Focus for reconciler tests.
type fakeFocus struct {
	roomID     string
	foreground bool
}

func (f *fakeFocus) FocusedRoom() (string, bool) { return f.roomID, f.foreground }

// ============================================================================
// Visibility Router
// ============================================================================

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		focused    string
		foreground bool
		want       Delivery
	}{
		{"focused room foregrounded", "r1", "r1", true, DeliverLive},
		{"different room focused", "r1", "r2", true, DeliverUnread},
		{"no room focused", "r1", "", true, DeliverUnread},
		{"backgrounded", "r1", "r1", false, DeliverUnread},
		{"empty target", "", "", true, DeliverUnread},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.target, tt.focused, tt.foreground); got != tt.want {
				t.Fatalf("Decide(%q, %q, %v) = %v, want %v", tt.target, tt.focused, tt.foreground, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Reconciler
// ============================================================================

func TestReconcilerApplySnapshot(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewRoomStore(testLogger())
	store.UpsertRoomList([]Room{testRoom("r1")})
	store.MarkUnread("r1", testMessage("u2", "pending", base))
	rc := NewReconciler(store, nil, testLogger())

	rc.ApplySnapshot("r1", []Message{
		testMessage("u2", "two", base.Add(time.Second)),
		testMessage("u1", "one", base),
	})

	room, _ := store.Room("r1")
	if len(room.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(room.Messages))
	}
	if room.Unread != 0 {
		t.Fatalf("expected unread cleared on snapshot, got %d", room.Unread)
	}
}

func TestReconcilerApplyLive(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("focused appends live", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		store.UpsertRoomList([]Room{testRoom("r1")})
		rc := NewReconciler(store, &fakeFocus{roomID: "r1", foreground: true}, testLogger())

		rc.ApplyLive("r1", testMessage("u2", "hi", base))

		room, _ := store.Room("r1")
		if len(room.Messages) != 1 || room.Unread != 0 {
			t.Fatalf("expected live append, got %d messages unread %d", len(room.Messages), room.Unread)
		}
	})

	t.Run("unfocused records unread by exactly one", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		store.UpsertRoomList([]Room{testRoom("r1")})
		rc := NewReconciler(store, &fakeFocus{roomID: "r2", foreground: true}, testLogger())

		rc.ApplyLive("r1", testMessage("u2", "hi", base))

		room, _ := store.Room("r1")
		if room.Unread != 1 {
			t.Fatalf("expected unread 1, got %d", room.Unread)
		}
		if len(room.Messages) != 0 {
			t.Fatalf("expected sequence untouched, got %d", len(room.Messages))
		}
	})

	t.Run("backgrounded records unread", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		store.UpsertRoomList([]Room{testRoom("r1")})
		rc := NewReconciler(store, &fakeFocus{roomID: "r1", foreground: false}, testLogger())

		rc.ApplyLive("r1", testMessage("u2", "hi", base))

		room, _ := store.Room("r1")
		if room.Unread != 1 || len(room.Messages) != 0 {
			t.Fatalf("expected unread path, got %d messages unread %d", len(room.Messages), room.Unread)
		}
	})
}

func TestReconcilerDeduplication(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("socket then push delivers once", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		store.UpsertRoomList([]Room{testRoom("r1")})
		rc := NewReconciler(store, &fakeFocus{roomID: "r1", foreground: true}, testLogger())

		msg := testMessage("u2", "hi", base)
		rc.ApplyLive("r1", msg)
		rc.ApplyPush(PushPayload{RoomID: "r1", Content: msg})

		room, _ := store.Room("r1")
		if len(room.Messages) != 1 {
			t.Fatalf("expected 1 message after duplicate delivery, got %d", len(room.Messages))
		}
		if room.Unread != 0 {
			t.Fatalf("expected no unread from absorbed duplicate, got %d", room.Unread)
		}
	})

	t.Run("snapshot tail redelivered live stays put", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		rc := NewReconciler(store, &fakeFocus{roomID: "r1", foreground: true}, testLogger())

		tail := testMessage("u2", "three", base.Add(2*time.Second))
		rc.ApplySnapshot("r1", []Message{
			tail,
			testMessage("u1", "two", base.Add(time.Second)),
			testMessage("u1", "one", base),
		})
		rc.ApplyLive("r1", tail)

		room, _ := store.Room("r1")
		if len(room.Messages) != 3 {
			t.Fatalf("expected sequence length 3, got %d", len(room.Messages))
		}
	})

	t.Run("same sender different timestamp is not a duplicate", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		store.UpsertRoomList([]Room{testRoom("r1")})
		rc := NewReconciler(store, &fakeFocus{roomID: "r1", foreground: true}, testLogger())

		rc.ApplyLive("r1", testMessage("u2", "hi", base))
		rc.ApplyLive("r1", testMessage("u2", "hi", base.Add(time.Second)))

		room, _ := store.Room("r1")
		if len(room.Messages) != 2 {
			t.Fatalf("expected both messages kept, got %d", len(room.Messages))
		}
	})
}

func TestReconcilerApplyPush(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice := User{ID: "u1", Name: "alice"}
	bob := User{ID: "u2", Name: "bob"}

	t.Run("unknown room installs payload room and marks unread", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		rc := NewReconciler(store, &fakeFocus{}, testLogger())

		msg := testMessage("u2", "hi", base)
		rc.ApplyPush(PushPayload{
			RoomID:  "r1",
			Content: msg,
			Room:    &Room{ID: "r1", Users: []User{alice, bob}, Messages: []Message{msg}},
		})

		room, ok := store.Room("r1")
		if !ok {
			t.Fatal("expected room installed from push payload")
		}
		if room.Unread != 1 {
			t.Fatalf("expected unread 1, got %d", room.Unread)
		}
		if len(room.Users) != 2 {
			t.Fatalf("expected participants from payload, got %d", len(room.Users))
		}
	})

	t.Run("unknown room without payload room is dropped", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		rc := NewReconciler(store, &fakeFocus{}, testLogger())

		rc.ApplyPush(PushPayload{RoomID: "r1", Content: testMessage("u2", "hi", base)})
		if len(store.Rooms()) != 0 {
			t.Fatal("expected drop, room was created")
		}
	})

	t.Run("known room routes by visibility", func(t *testing.T) {
		store := NewRoomStore(testLogger())
		store.UpsertRoomList([]Room{testRoom("r1")})
		rc := NewReconciler(store, &fakeFocus{roomID: "", foreground: true}, testLogger())

		rc.ApplyPush(PushPayload{RoomID: "r1", Content: testMessage("u2", "hi", base)})

		room, _ := store.Room("r1")
		if room.Unread != 1 || len(room.Messages) != 0 {
			t.Fatalf("expected unread path for unfocused room, got %d messages unread %d", len(room.Messages), room.Unread)
		}
	})
}

// Receiver-side first contact: B is not focused on the chat. The push
// carries the full room; the unread counter reaches 1 while the sequence
// stays empty until B opens the room and the snapshot lands.
func TestReceiverFirstContactScenario(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userA := User{ID: "1", Name: "a"}
	userB := User{ID: "2", Name: "b"}

	store := NewRoomStore(testLogger())
	rc := NewReconciler(store, &fakeFocus{roomID: "", foreground: true}, testLogger())
	recv := NewPushReceiver(rc, testLogger())

	hi := testMessage("1", "hi", base)
	recv.Receive(PushPayload{
		RoomID:  "r1",
		Content: hi,
		Room:    &Room{ID: "r1", Users: []User{userA, userB}},
	})

	room, _ := store.Room("r1")
	if room.Unread != 1 {
		t.Fatalf("expected unread 1 before open, got %d", room.Unread)
	}
	if len(room.Messages) != 0 {
		t.Fatalf("expected empty sequence before open, got %d", len(room.Messages))
	}

	// B opens the chat: snapshot + reset.
	rc.ApplySnapshot("r1", []Message{hi})
	room, _ = store.Room("r1")
	if len(room.Messages) != 1 || room.Unread != 0 {
		t.Fatalf("expected 1 message and unread 0 after open, got %d/%d", len(room.Messages), room.Unread)
	}
}
