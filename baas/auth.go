// Package baas talks to the hosted backend: GoTrue for identities and the
// S3-compatible endpoint for object storage.
package baas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Auth is the subset of GoTrue the service relies on.
type Auth interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	GetUser(ctx context.Context, accessToken string) (*User, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
	AdminCreateUser(ctx context.Context, email, password string, metadata map[string]any) (*User, error)
	AdminDeleteUser(ctx context.Context, userID string) error
}

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// AuthError is a non-2xx answer from GoTrue.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %d: %s", e.Status, e.Message)
}

// IsAuthStatus reports whether err is an AuthError with one of codes.
func IsAuthStatus(err error, codes ...int) bool {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return false
	}
	for _, c := range codes {
		if ae.Status == c {
			return true
		}
	}
	return false
}

// AuthClient calls the GoTrue REST API under {BaseURL}/auth/v1.
type AuthClient struct {
	BaseURL    string
	AnonKey    string
	ServiceKey string
	Client     *http.Client
	log        *zap.Logger
}

func NewAuthClient(baseURL, anonKey, serviceKey string, log *zap.Logger) *AuthClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthClient{
		BaseURL:    baseURL,
		AnonKey:    anonKey,
		ServiceKey: serviceKey,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With(zap.String("component", "gotrue")),
	}
}

func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", c.AnonKey, "",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/user", c.AnonKey, accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", c.AnonKey, accessToken, nil, nil)
}

func (c *AuthClient) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return c.do(ctx, http.MethodPut, "/user", c.AnonKey, accessToken,
		map[string]string{"password": password}, nil)
}

// AdminCreateUser creates a confirmed identity with the service-role key.
func (c *AuthClient) AdminCreateUser(ctx context.Context, email, password string, metadata map[string]any) (*User, error) {
	body := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}
	if len(metadata) > 0 {
		body["user_metadata"] = metadata
	}
	var out User
	if err := c.do(ctx, http.MethodPost, "/admin/users", c.ServiceKey, c.ServiceKey, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AuthClient) AdminDeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), c.ServiceKey, c.ServiceKey, nil, nil)
}

func (c *AuthClient) do(ctx context.Context, method, path, apiKey, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/auth/v1"+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue %s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := errorMessage(raw)
		c.log.Debug("gotrue error", zap.String("method", method), zap.String("path", path),
			zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return &AuthError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gotrue %s response: %w", path, err)
	}
	return nil
}

// errorMessage picks the human-readable field out of GoTrue's error shapes.
func errorMessage(raw []byte) string {
	var e struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil {
		for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
			if s != "" {
				return s
			}
		}
	}
	if len(raw) == 0 {
		return "empty response"
	}
	return string(raw)
}
