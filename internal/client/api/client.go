// Package api is a typed client for the gateway's /v1/auth endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NordCoder/Classly/internal/client/session"
)

type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	IsPremium   bool      `json:"isPremium"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Session struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Client struct {
	baseURL string
	// bare sends token refreshes and anonymous calls; it never goes through
	// the agent so a refresh cannot recurse.
	bare   *http.Client
	authed *http.Client
	agent  *session.Agent
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = NewHTTPClient(HTTPConfig{})
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), bare: hc, authed: hc}
}

// WithAgent returns a copy whose authenticated calls go through agent and
// whose Register and Login store the issued pair in it.
func (c *Client) WithAgent(agent *session.Agent) *Client {
	cp := *c
	cp.agent = agent
	cp.authed = &http.Client{
		Timeout:   c.bare.Timeout,
		Transport: agent.Transport(c.bare.Transport),
	}
	return &cp
}

func (c *Client) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	var out Session
	err := c.do(ctx, c.bare, http.MethodPost, "/v1/auth/register", map[string]string{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, c.remember(ctx, out)
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var out Session
	err := c.do(ctx, c.bare, http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, c.remember(ctx, out)
}

// Refresh implements session.Refresher.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	err := c.do(ctx, c.bare, http.MethodPost, "/v1/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, c.authed, http.MethodGet, "/v1/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout revokes the agent's refresh token on the server and forgets the
// local credentials even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	if c.agent == nil {
		return ErrNotLoggedIn
	}
	creds := c.agent.Credentials()
	if creds.Empty() {
		return ErrNotLoggedIn
	}
	err := c.do(ctx, c.authed, http.MethodPost, "/v1/auth/logout", map[string]string{
		"refreshToken": creds.RefreshToken,
	}, nil)
	if cerr := c.agent.Logout(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// RequestPasswordReset returns the reset token only when the gateway runs
// in demo mode.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var out struct {
		Message    string `json:"message"`
		ResetToken string `json:"resetToken"`
	}
	err := c.do(ctx, c.bare, http.MethodPost, "/v1/auth/password/forgot", map[string]string{
		"email": email,
	}, &out)
	return out.ResetToken, err
}

func (c *Client) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, c.bare, http.MethodPost, "/v1/auth/password/reset", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	}, nil)
}

func (c *Client) remember(ctx context.Context, s Session) error {
	if c.agent == nil {
		return nil
	}
	return c.agent.SetCredentials(ctx, session.Credentials{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	})
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &Error{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
