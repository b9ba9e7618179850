package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/model"
)

// TokenSource supplies the current auth token. Returning an error means no
// token is available; requests are then sent unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the SHOPNET backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// Config holds REST client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// AuthResult is the backend's answer to login, register, and OTP checks.
type AuthResult struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

type authResponse struct {
	Success bool            `json:"success"`
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user"`
	apiError
}

// apiError mirrors the backend's ad hoc error envelope: either `message` or
// `error` carries a display string.
type apiError struct {
	Message string `json:"message"`
	Err     string `json:"error"`
}

func (e apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err
}

// Login authenticates with email/phone and password.
func (c *Client) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	return c.authCall(ctx, "/api/auth/login", map[string]string{
		"identifiant": identifier,
		"password":    password,
	})
}

// RegisterRequest carries the fields of the registration form.
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Register creates an account. The backend replies with an OTP challenge or
// a token, depending on its verification policy.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	return c.authCall(ctx, "/api/auth/register", req)
}

// VerifyOTP confirms a one-time code sent during registration.
func (c *Client) VerifyOTP(ctx context.Context, identifier, code string) (*AuthResult, error) {
	return c.authCall(ctx, "/api/auth/verify-otp", map[string]string{
		"identifiant": identifier,
		"otp":         code,
	})
}

// Refresh exchanges a token for a fresh one.
func (c *Client) Refresh(ctx context.Context, token string) (string, error) {
	var resp authResponse
	if err := c.post(ctx, "/api/auth/refresh", map[string]string{"token": token}, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.Token == "" {
		return "", fmt.Errorf("refresh rejected: %s", resp.text())
	}
	return resp.Token, nil
}

func (c *Client) authCall(ctx context.Context, path string, body any) (*AuthResult, error) {
	var resp authResponse
	if err := c.post(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s: %s", path, resp.text())
	}
	return &AuthResult{Token: resp.Token, User: resp.User}, nil
}

// FetchNotifications returns the current notification list. The backend
// answers with either a `{success, notifications: [...]}` envelope or a bare
// array; both are accepted. Items that fail the parse boundary entirely are
// logged and skipped, never fatal.
func (c *Client) FetchNotifications(ctx context.Context) ([]model.Notification, error) {
	body, err := c.get(ctx, "/api/notifications")
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage

	var envelope struct {
		Success       bool              `json:"success"`
		Notifications []json.RawMessage `json:"notifications"`
		apiError
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Notifications != nil {
		items = envelope.Notifications
	} else if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}

	now := time.Now()
	notifications := make([]model.Notification, 0, len(items))
	for _, item := range items {
		n, coercions, err := model.ParseAt(item, now)
		if err != nil {
			c.logger.Warn("skip unparseable notification", "error", err)
			continue
		}
		if len(coercions) > 0 {
			c.logger.Debug("coerced notification fields", "id", n.ID, "coercions", coercions)
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// SavePushToken uploads the device push token for the given user.
func (c *Client) SavePushToken(ctx context.Context, userID int64, pushToken string) error {
	var resp struct {
		Success bool `json:"success"`
		apiError
	}
	body := map[string]any{"userId": userID, "expoPushToken": pushToken}
	if err := c.post(ctx, "/api/save-expo-token", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("save push token rejected: %s", resp.text())
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		return errorFromBody(path, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		return nil, errorFromBody(path, resp.StatusCode, data)
	}
	return data, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	token, err := c.tokens.Token()
	if err != nil || token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// errorFromBody extracts the backend's `message`/`error` string when present.
func errorFromBody(path string, status int, body []byte) error {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.text() != "" {
		return fmt.Errorf("%s: %s (status %d)", path, e.text(), status)
	}
	return fmt.Errorf("%s: status %d", path, status)
}
