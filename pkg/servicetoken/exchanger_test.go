package servicetoken

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchanger_GetServiceToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "enrolment-service", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "user-service", r.PostForm.Get("audience"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"machine-token","token_type":"Bearer","expires_in":300}`))
	}))
	defer srv.Close()

	x := NewExchanger(srv.URL, "enrolment-service", "s3cret")
	x.Now = func() time.Time { return now }

	tok, err := x.GetServiceToken(context.Background(), "user-service")
	require.NoError(t, err)
	assert.Equal(t, "machine-token", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, now.Add(5*time.Minute), tok.ExpiresAt)
}

func TestExchanger_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "unauthorized client", status: http.StatusUnauthorized, body: `{"error":"invalid_client"}`, wantStatus: http.StatusUnauthorized},
		{name: "provider error", status: http.StatusServiceUnavailable, body: ``, wantStatus: http.StatusServiceUnavailable},
		{name: "bad json", status: http.StatusOK, body: `{"access_token":`, wantStatus: http.StatusOK},
		{name: "missing token", status: http.StatusOK, body: `{"token_type":"Bearer"}`, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewExchanger(srv.URL, "id", "secret").GetServiceToken(context.Background(), "aud")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTokenAcquisitionFailed)

			var acqErr *AcquisitionError
			require.True(t, errors.As(err, &acqErr))
			assert.Equal(t, tt.wantStatus, acqErr.StatusCode)
		})
	}
}

func TestExchanger_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewExchanger(url, "id", "secret").GetServiceToken(context.Background(), "aud")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenAcquisitionFailed)

	var acqErr *AcquisitionError
	require.True(t, errors.As(err, &acqErr))
	assert.Zero(t, acqErr.StatusCode)
}
