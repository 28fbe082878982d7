// Package client calls the ecodigital API the way the mobile app does and
// keeps the resulting session in a session.Store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"ecodigital/activity"
	"ecodigital/ranks"
	"ecodigital/services"
	"ecodigital/session"
	"ecodigital/utils"
)

// ErrSignedOut is returned by calls that need a session when there is none.
var ErrSignedOut = errors.New("not signed in")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Store   *session.Store
}

func New(baseURL string, store *session.Store) *Client {
	if store == nil {
		store = session.NewStore()
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: utils.HTTPClient, Store: store}
}

type loginResponse struct {
	Session struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	} `json:"session"`
	Profile session.Profile `json:"profile"`
}

// Login signs in as a mobile user. The store moves through Authenticating to
// SignedIn, or back to SignedOut with the failure recorded.
func (c *Client) Login(ctx context.Context, email, password string) (session.State, error) {
	if _, err := c.Store.Dispatch(session.SignInRequested{}); err != nil {
		return c.Store.State(), err
	}

	var res loginResponse
	body := map[string]string{"email": email, "password": password, "app": services.AppMobile}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", jsonBody(body), "application/json", &res); err != nil {
		st, _ := c.Store.Dispatch(session.SignInFailed{Err: err})
		return st, err
	}

	tok := session.Tokens{AccessToken: res.Session.AccessToken, RefreshToken: res.Session.RefreshToken}
	if res.Session.ExpiresAt > 0 {
		tok.ExpiresAt = time.Unix(res.Session.ExpiresAt, 0).UTC()
	}
	return c.Store.Dispatch(session.SignInSucceeded{Profile: res.Profile, Tokens: tok})
}

// Logout ends the server session. The local state is signed out even when the
// server call fails.
func (c *Client) Logout(ctx context.Context) error {
	token, err := c.token()
	if err != nil {
		return err
	}
	callErr := c.do(ctx, http.MethodPost, "/api/auth/logout", token, nil, "", nil)
	if _, err := c.Store.Dispatch(session.SignedOutEvent{}); err != nil {
		return err
	}
	return callErr
}

// Summary mirrors GET /api/me.
type Summary struct {
	Profile    session.Profile    `json:"profile"`
	Patent     ranks.Patent       `json:"patent"`
	NextPatent *ranks.Patent      `json:"next_patent"`
	Progress   float64            `json:"progress"`
	Position   *services.Position `json:"position,omitempty"`
	Initials   string             `json:"initials"`
}

// Me fetches the caller's summary and refreshes the stored profile.
func (c *Client) Me(ctx context.Context) (*Summary, error) {
	var sum Summary
	if err := c.authed(ctx, http.MethodGet, "/api/me", &sum); err != nil {
		return nil, err
	}
	if _, err := c.Store.Dispatch(session.ProfileRefreshed{Profile: sum.Profile}); err != nil {
		return nil, err
	}
	return &sum, nil
}

// Missions lists missions, optionally filtered by new, in_progress or completed.
func (c *Client) Missions(ctx context.Context, status string) ([]services.MissionView, error) {
	path := "/api/missions"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var res struct {
		Missions []services.MissionView `json:"missions"`
	}
	if err := c.authed(ctx, http.MethodGet, path, &res); err != nil {
		return nil, err
	}
	return res.Missions, nil
}

func (c *Client) Mission(ctx context.Context, id string) (*services.MissionView, error) {
	var m services.MissionView
	if err := c.authed(ctx, http.MethodGet, "/api/missions/"+url.PathEscape(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Start begins a mission; started is false when it was already in progress.
func (c *Client) Start(ctx context.Context, id string) (started bool, err error) {
	var res struct {
		Started bool `json:"started"`
	}
	if err := c.authed(ctx, http.MethodPost, "/api/missions/"+url.PathEscape(id)+"/start", &res); err != nil {
		return false, err
	}
	return res.Started, nil
}

type Completion struct {
	Message  string       `json:"message"`
	XPEarned int64        `json:"xp_earned"`
	XPPoints int64        `json:"xp_points"`
	Patent   ranks.Patent `json:"patent"`
	RankUp   bool         `json:"rank_up"`
}

// Complete uploads evidence for a mission.
func (c *Client) Complete(ctx context.Context, id, filename string, evidence io.Reader) (*Completion, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("evidence", filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, evidence); err != nil {
		return nil, fmt.Errorf("read evidence: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var res Completion
	err = c.do(ctx, http.MethodPost, "/api/missions/"+url.PathEscape(id)+"/complete", token, &buf, mw.FormDataContentType(), &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Feed returns the company's latest activity.
func (c *Client) Feed(ctx context.Context) ([]activity.Item, error) {
	var res struct {
		Items []activity.Item `json:"items"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/feed", &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) token() (string, error) {
	st := c.Store.State()
	if st.Status != session.SignedIn || st.Tokens == nil {
		return "", ErrSignedOut
	}
	return st.Tokens.AccessToken, nil
}

func (c *Client) authed(ctx context.Context, method, path string, out any) error {
	token, err := c.token()
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, token, nil, "", out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func jsonBody(v any) io.Reader {
	raw, _ := json.Marshal(v)
	return bytes.NewReader(raw)
}
