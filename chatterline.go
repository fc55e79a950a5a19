// Package chatterline is a Go client for the chatterline chat service.
//
// It keeps a local conversation view consistent with the server's socket
// stream and push-notification deliveries: the RoomStore holds the local
// room collection, the Reconciler merges inbound events without
// duplication, and the SessionController drives room binding across
// conversation open/close transitions.
//
// Example:
//
//	client := chatterline.NewClient(chatterline.WithBaseURL("https://chat.example.com"))
//	auth, _ := client.VerifyOTP(ctx, "ada", "1234", "5550100")
//
//	sock := chatterline.NewSocket("https://chat.example.com", &chatterline.SocketConfig{Token: auth.Token})
//	_ = sock.Connect(ctx)
//
//	store := chatterline.NewRoomStore(nil)
//	session := chatterline.NewSessionController(sock, store, nil)
//	_ = session.Open(ctx, auth.User.ID, "peer-id", "")
package chatterline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds every auth HTTP request.
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the chat service's HTTP endpoints: OTP sign-in, push
// token registration and avatar upload. Realtime messaging goes through
// Socket, not here.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a chatterline HTTP client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path, authToken string, body interface{}) ([]byte, int, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("x-auth-token", authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Auth endpoints
// ============================================================================

// SignIn requests an OTP for the phone number.
func (c *Client) SignIn(ctx context.Context, phoneNumber string) error {
	_, status, err := c.doRequest(ctx, "POST", "/auth/sign-in", "", map[string]string{
		"phoneNumber": phoneNumber,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &APIError{Code: "SIGN_IN_FAILED", Message: fmt.Sprintf("sign-in returned HTTP %d", status)}
	}
	return nil
}

// VerifyOTP submits the OTP code and returns the auth token together with
// the full user record, which replaces any locally cached identity.
func (c *Client) VerifyOTP(ctx context.Context, name, code, phoneNumber string) (*AuthResponse, error) {
	data, status, err := c.doRequest(ctx, "POST", "/auth/authenticate-phonenumber", "", map[string]string{
		"phoneNumber": phoneNumber,
		"name":        name,
		"code":        code,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{Code: "OTP_REJECTED", Message: fmt.Sprintf("verification returned HTTP %d", status)}
	}
	return decodeJSON[AuthResponse](data)
}

// AutoLogin refreshes the session from a stored token.
func (c *Client) AutoLogin(ctx context.Context, token string) (*AuthResponse, error) {
	data, status, err := c.doRequest(ctx, "GET", "/auth/autoLogIn", token, nil)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[AuthResponse](data)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("auto-login returned HTTP %d", status)
		}
		return nil, &APIError{Code: "AUTO_LOGIN_FAILED", Message: msg}
	}
	return resp, nil
}

// RegisterPushToken reports the device push token to the server.
func (c *Client) RegisterPushToken(ctx context.Context, token, pushToken string) error {
	_, status, err := c.doRequest(ctx, "POST", "/auth/push-token", token, map[string]string{
		"pushToken": pushToken,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &APIError{Code: "PUSH_TOKEN_FAILED", Message: fmt.Sprintf("push token registration returned HTTP %d", status)}
	}
	return nil
}

// UploadAvatar uploads a new display picture and returns its URL.
func (c *Client) UploadAvatar(ctx context.Context, token, fileName string, data []byte) (*AvatarResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file data: %w", err)
	}
	_ = w.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/user/edit-dp", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("x-auth-token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Code: "AVATAR_UPLOAD_FAILED", Message: fmt.Sprintf("upload returned HTTP %d", resp.StatusCode)}
	}
	return decodeJSON[AvatarResponse](body)
}
