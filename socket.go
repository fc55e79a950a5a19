package chatterline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// SocketConfig configures the socket connection.
type SocketConfig struct {
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	Logger               *slog.Logger
}

func (c *SocketConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// SocketState represents the connection state.
type SocketState string

const (
	StateDisconnected SocketState = "disconnected"
	StateConnecting   SocketState = "connecting"
	StateConnected    SocketState = "connected"
	StateReconnecting SocketState = "reconnecting"
)

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *SocketConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// Socket
// ============================================================================

// EventHandler receives the raw payload of one socket event.
type EventHandler func(payload json.RawMessage)

// binding is the pending room association metadata. Exactly one binding
// may be active at a time for a connection identity; the server treats
// the last join request as authoritative.
type binding struct {
	selfID string
	peerID string
	roomID string
}

// Socket owns the persistent bidirectional connection to the chat server:
// the connection identity, the current room binding, and typed send
// primitives. Handlers run synchronously on the read loop, so events are
// observed in arrival order.
//
// The handler registry holds at most one handler per event name: On
// replaces any prior registration, which keeps repeated screen visits
// from accumulating duplicate handlers.
type Socket struct {
	baseURL string
	config  *SocketConfig
	log     *slog.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            SocketState
	intentionalClose bool
	cancelFn         context.CancelFunc
	bind             binding

	handlersMu sync.RWMutex
	handlers   map[string]EventHandler

	recon *reconnector
}

// NewSocket creates a socket client for the given server base URL.
// Call Connect to establish the connection.
func NewSocket(baseURL string, config *SocketConfig) *Socket {
	cfg := SocketConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	return &Socket{
		baseURL:  strings.TrimRight(baseURL, "/"),
		config:   &cfg,
		log:      cfg.Logger,
		state:    StateDisconnected,
		handlers: make(map[string]EventHandler),
		recon:    newReconnector(&cfg),
	}
}

// On registers the handler for an event name, replacing any prior handler
// for that name.
func (s *Socket) On(event string, h EventHandler) {
	s.handlersMu.Lock()
	s.handlers[event] = h
	s.handlersMu.Unlock()
}

// Off removes the handler for an event name.
func (s *Socket) Off(event string) {
	s.handlersMu.Lock()
	delete(s.handlers, event)
	s.handlersMu.Unlock()
}

// OffAll removes every registered handler.
func (s *Socket) OffAll() {
	s.handlersMu.Lock()
	s.handlers = make(map[string]EventHandler)
	s.handlersMu.Unlock()
}

// State returns the current connection state.
func (s *Socket) State() SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the websocket connection and starts the read loop.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.intentionalClose = false
	s.mu.Unlock()

	wsURL := strings.Replace(s.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/socket"
	if s.config.Token != "" {
		wsURL += "?token=" + s.config.Token
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("socket dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()
	s.recon.markConnected()

	connCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelFn = cancel
	s.mu.Unlock()

	go s.readLoop(connCtx)
	return nil
}

// Close gracefully tears down the connection and clears every handler.
func (s *Socket) Close() error {
	s.mu.Lock()
	s.intentionalClose = true
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.bind = binding{}
	s.mu.Unlock()

	s.OffAll()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// ============================================================================
// Room binding
// ============================================================================

// Bind requests a room association for the (selfID, peerID) pair and
// records it as the pending binding. Binding again to the same peer is a
// no-op; binding to a different peer requires Unbind first, so that no
// two rooms are ever simultaneously bound for one connection identity.
func (s *Socket) Bind(ctx context.Context, selfID, peerID string) error {
	s.mu.Lock()
	if s.bind.selfID == selfID && s.bind.peerID == peerID {
		s.mu.Unlock()
		return nil
	}
	if s.bind.peerID != "" {
		s.mu.Unlock()
		return fmt.Errorf("already bound to peer %s: unbind first", s.bind.peerID)
	}
	s.bind = binding{selfID: selfID, peerID: peerID}
	s.mu.Unlock()

	return s.emit(ctx, Command{
		Event:   CmdConnectRoom,
		Payload: ConnectRoomPayload{SelfID: selfID, ReceiverID: peerID},
	})
}

// SetRoomID records the server-assigned room id for the current binding.
func (s *Socket) SetRoomID(roomID string) {
	s.mu.Lock()
	s.bind.roomID = roomID
	s.mu.Unlock()
}

// RoomID returns the server-assigned room id of the current binding, or "".
func (s *Socket) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bind.roomID
}

// Unbind emits a disconnect for the current room association and clears
// the binding metadata. Safe to call when nothing is bound.
func (s *Socket) Unbind(ctx context.Context) error {
	s.mu.Lock()
	b := s.bind
	s.bind = binding{}
	s.mu.Unlock()

	if b.roomID == "" {
		return nil
	}
	return s.emit(ctx, Command{
		Event:   CmdDisconnectRoom,
		Payload: DisconnectRoomPayload{RoomID: b.roomID},
	})
}

// ============================================================================
// Send primitives
// ============================================================================

// SendPrivate emits a private message to a peer. Fire-and-forget: the
// client does not wait for acknowledgment and never retries.
func (s *Socket) SendPrivate(ctx context.Context, msg Message, toPeerID string) error {
	return s.emit(ctx, Command{
		Event:   CmdPrivateMessage,
		Payload: SendMessagePayload{Content: msg, To: toPeerID},
	})
}

// RequestRooms asks the server for the user's full room list. The answer
// arrives as a `your_rooms` event.
func (s *Socket) RequestRooms(ctx context.Context, selfID string) error {
	return s.emit(ctx, Command{
		Event:   CmdGetMyChats,
		Payload: GetMyChatsPayload{SelfID: selfID},
	})
}

func (s *Socket) emit(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// ============================================================================
// Read loop
// ============================================================================

func (s *Socket) readLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			intentional := s.intentionalClose
			s.mu.Unlock()
			if intentional {
				return
			}

			s.mu.Lock()
			s.state = StateDisconnected
			s.conn = nil
			s.mu.Unlock()

			s.log.Warn("socket read failed", "err", err)

			if s.config.AutoReconnect && s.recon.shouldReconnect() {
				s.scheduleReconnect(ctx)
			}
			return
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}

		if env.Event == EventConnectError {
			var p ConnectErrorPayload
			if json.Unmarshal(env.Payload, &p) == nil {
				s.log.Warn("server reported connect error", "err", p.Err)
			}
		}

		s.dispatch(env)
	}
}

// dispatch runs the registered handler synchronously so that events keep
// their arrival order.
func (s *Socket) dispatch(env Envelope) {
	s.handlersMu.RLock()
	h := s.handlers[env.Event]
	s.handlersMu.RUnlock()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event handler panicked", "event", env.Event, "panic", r)
		}
	}()
	h(env.Payload)
}

func (s *Socket) scheduleReconnect(ctx context.Context) {
	delay := s.recon.nextDelay()
	s.mu.Lock()
	s.state = StateReconnecting
	s.mu.Unlock()

	s.log.Info("socket reconnecting", "attempt", s.recon.attempt, "delay", delay)
	time.Sleep(delay)

	if err := s.Connect(context.Background()); err != nil {
		if s.config.AutoReconnect && s.recon.shouldReconnect() {
			s.scheduleReconnect(ctx)
		} else {
			s.mu.Lock()
			s.state = StateDisconnected
			s.mu.Unlock()
		}
	}
}
