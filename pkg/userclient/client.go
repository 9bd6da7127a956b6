// Package userclient reads credential records from the User service over its
// internal API. Requests carry a service token.
package userclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient wraps rt (usually a servicetoken.Transport) with tracing. A nil
// rt uses a pooled default transport.
func NewClient(baseURL string, rt http.RoundTripper) *Client {
	if rt == nil {
		rt = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(rt),
		},
	}
}

func (c *Client) FindByEmail(ctx context.Context, email string) (*User, error) {
	return c.get(ctx, "/internal/users?email="+url.QueryEscape(email))
}

func (c *Client) FindByID(ctx context.Context, id string) (*User, error) {
	return c.get(ctx, "/internal/users/"+url.PathEscape(id))
}

func (c *Client) get(ctx context.Context, path string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("user service responded with status: %d", resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &u, nil
}
