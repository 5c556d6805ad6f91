package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// API is the subset of the auth server the guard talks to.
type API interface {
	Me(ctx context.Context, accessToken string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type userEnvelope struct {
	Success bool  `json:"success"`
	User    *User `json:"user"`
}

type tokensEnvelope struct {
	Success bool   `json:"success"`
	Tokens  Tokens `json:"tokens"`
	User    *User  `json:"user"`
}

func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var body userEnvelope
	status, err := c.do(req, "me", &body)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, ErrUnauthorized
	case status != http.StatusOK:
		return nil, &NetworkError{Op: "me", Err: fmt.Errorf("unexpected status %d", status)}
	case !body.Success || body.User == nil:
		return nil, ErrMalformedResponse
	}
	return body.User, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	var body tokensEnvelope
	status, err := c.postJSON(ctx, "refresh", "/auth/refresh", map[string]string{"refreshToken": refreshToken}, &body)
	if err != nil {
		return Session{}, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Session{}, ErrInvalidSession
	case status != http.StatusOK:
		return Session{}, &NetworkError{Op: "refresh", Err: fmt.Errorf("unexpected status %d", status)}
	}
	return body.session()
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var body tokensEnvelope
	status, err := c.postJSON(ctx, "login", "/auth/login", map[string]string{"email": email, "password": password}, &body)
	if err != nil {
		return Session{}, err
	}

	switch status {
	case http.StatusOK:
		return body.session()
	case http.StatusUnauthorized:
		return Session{}, ErrInvalidCredentials
	case http.StatusLocked:
		return Session{}, ErrAccountLocked
	default:
		return Session{}, &NetworkError{Op: "login", Err: fmt.Errorf("unexpected status %d", status)}
	}
}

func (e tokensEnvelope) session() (Session, error) {
	if !e.Success || e.Tokens.AccessToken == "" || e.Tokens.RefreshToken == "" || e.User == nil {
		return Session{}, ErrMalformedResponse
	}
	return Session{
		AccessToken:  e.Tokens.AccessToken,
		RefreshToken: e.Tokens.RefreshToken,
		User:         e.User,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, op, out)
}

// do sends req and decodes a 200 body into out. Error statuses are returned
// without decoding.
func (c *Client) do(req *http.Request, op string, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp.StatusCode, nil
}
