package chatterline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// ============================================================================
// Push token state
// ============================================================================

// Push token grant states persisted in local key-value storage.
const (
	PushGrantKey     = "pushToken"
	PushGrantGranted = "granted"
	PushGrantRevoked = "revoked"
)

// TokenStore is the local persisted key-value storage used for push token
// state, the platform storage collaborator.
type TokenStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// MemoryTokenStore is an in-memory TokenStore, used in tests.
type MemoryTokenStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{values: make(map[string]string)}
}

func (s *MemoryTokenStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *MemoryTokenStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// FileTokenStore persists key-value state as a TOML file on disk.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore creates a token store backed by the given file path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (s *FileTokenStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	data, err := toml.Marshal(values)
	if err != nil {
		return fmt.Errorf("cannot marshal token store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write token store: %w", err)
	}
	return nil
}

func (s *FileTokenStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot read token store: %w", err)
	}
	values := map[string]string{}
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("cannot parse token store: %w", err)
	}
	return values, nil
}

// ============================================================================
// Push token registration
// ============================================================================

// TokenFetcher obtains a device push token from the platform notification
// service, or an error when the user denies the permission.
type TokenFetcher func(ctx context.Context) (string, error)

// EnsurePushToken registers the device push token with the server once
// per grant: if the stored grant state is already "granted" nothing
// happens. A fetch failure records "revoked" so the prompt is not
// repeated on every launch.
func EnsurePushToken(ctx context.Context, client *Client, store TokenStore, authToken string, fetch TokenFetcher) error {
	state, err := store.Get(PushGrantKey)
	if err != nil {
		return err
	}
	if state == PushGrantGranted {
		return nil
	}

	pushToken, err := fetch(ctx)
	if err != nil {
		if setErr := store.Set(PushGrantKey, PushGrantRevoked); setErr != nil {
			return setErr
		}
		return fmt.Errorf("push token fetch: %w", err)
	}

	if err := client.RegisterPushToken(ctx, authToken, pushToken); err != nil {
		return err
	}
	return store.Set(PushGrantKey, PushGrantGranted)
}

// ============================================================================
// Push receiver
// ============================================================================

// PushReceiver routes foregrounded push notification payloads into the
// reconciler. Backgrounded notifications go to OS-level display and never
// reach this path; the message is picked up later via the room snapshot.
type PushReceiver struct {
	rec *Reconciler
	log *slog.Logger
}

// NewPushReceiver creates a receiver over the given reconciler.
func NewPushReceiver(rec *Reconciler, log *slog.Logger) *PushReceiver {
	if log == nil {
		log = slog.Default()
	}
	return &PushReceiver{rec: rec, log: log}
}

// Receive merges one push payload into the local store. Duplicates with
// socket-delivered messages are absorbed by the reconciler.
func (p *PushReceiver) Receive(payload PushPayload) {
	if payload.RoomID == "" {
		p.log.Warn("push without room id, dropping")
		return
	}
	p.rec.ApplyPush(payload)
}
