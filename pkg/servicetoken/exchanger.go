// Package servicetoken lets one student-records service call another with a
// machine credential obtained through the OAuth2 client-credentials grant,
// and lets the callee verify such credentials.
package servicetoken

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

var ErrTokenAcquisitionFailed = errors.New("service token acquisition failed")

// AcquisitionError carries the identity provider's status code. StatusCode
// is zero when the provider could not be reached at all.
type AcquisitionError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *AcquisitionError) Error() string {
	msg := fmt.Sprintf("%v: status %d", ErrTokenAcquisitionFailed, e.StatusCode)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AcquisitionError) Is(target error) bool { return target == ErrTokenAcquisitionFailed }

func (e *AcquisitionError) Unwrap() error { return e.Err }

type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Exchanger performs the client-credentials grant against TokenURL.
type Exchanger struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Now          func() time.Time
}

func NewExchanger(tokenURL, clientID, clientSecret string) *Exchanger {
	return &Exchanger{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: otelhttp.NewTransport(&http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
		Now: time.Now,
	}
}

func (x *Exchanger) GetServiceToken(ctx context.Context, audience string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {x.ClientID},
		"client_secret": {x.ClientSecret},
		"audience":      {audience},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := x.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &AcquisitionError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &AcquisitionError{StatusCode: resp.StatusCode, Reason: "token endpoint rejected the request"}
	}

	var body tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return nil, &AcquisitionError{StatusCode: resp.StatusCode, Reason: "decode token response", Err: err}
	}
	if body.AccessToken == "" {
		return nil, &AcquisitionError{StatusCode: resp.StatusCode, Reason: "response has no access_token"}
	}

	now := time.Now()
	if x.Now != nil {
		now = x.Now()
	}
	tokenType := body.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &Token{
		AccessToken: body.AccessToken,
		TokenType:   tokenType,
		ExpiresAt:   now.Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
