package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/student_records/pkg/db"
	"github.com/Skotchmaster/student_records/pkg/logging"
	"github.com/Skotchmaster/student_records/pkg/metrics"
	authmw "github.com/Skotchmaster/student_records/pkg/middleware/auth"
	"github.com/Skotchmaster/student_records/pkg/revocation"
	"github.com/Skotchmaster/student_records/pkg/tokens"
	"github.com/Skotchmaster/student_records/services/auth/internal/models"
	"github.com/Skotchmaster/student_records/services/auth/internal/repo"
	"github.com/Skotchmaster/student_records/services/auth/internal/service"
)

type server struct {
	e     *echo.Echo
	store *revocation.MemoryStore
	svc   *service.AuthService
}

func newServer(t *testing.T, loginRate int) *server {
	t.Helper()

	gdb, err := db.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	r := &repo.GormRepo{DB: gdb}
	require.NoError(t, r.Migrate(context.Background()))

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, r.CreateUserIfNotExists(context.Background(), &models.User{
		Email: "a@b.com", PasswordHash: string(hash), Role: "Student",
	}))

	codec := tokens.NewCodec([]byte("http-test-secret"), "student-records-auth", "student-records")
	store := revocation.NewMemoryStore()
	m := metrics.New(nil)
	svc := &service.AuthService{
		Users:       r,
		Tokens:      r,
		Codec:       codec,
		Revocations: store,
		Metrics:     m,
	}
	gw := authmw.NewGateway(codec, store)
	gw.Metrics = m

	e := echo.New()
	Register(e, &Deps{
		AuthHandler:        &AuthHTTP{Svc: svc},
		Gateway:            gw,
		Metrics:            m,
		Logger:             logging.NewWithWriter(&bytes.Buffer{}, "error"),
		LoginRatePerMinute: loginRate,
		Ready:              func(context.Context) error { return nil },
	})
	return &server{e: e, store: store, svc: svc}
}

func (s *server) do(t *testing.T, method, path, body, bearer string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func refreshCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", RefreshCookie)
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestLogin(t *testing.T) {
	t.Parallel()

	s := newServer(t, 0)

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{name: "ok", body: `{"email":"a@b.com","password":"secret"}`, code: http.StatusOK},
		{name: "wrong password", body: `{"email":"a@b.com","password":"nope"}`, code: http.StatusUnauthorized, msg: "invalid email or password"},
		{name: "unknown email", body: `{"email":"x@b.com","password":"secret"}`, code: http.StatusUnauthorized, msg: "invalid email or password"},
		{name: "empty password", body: `{"email":"a@b.com","password":""}`, code: http.StatusBadRequest, msg: "email and password are required"},
		{name: "bad json", body: `{"email":`, code: http.StatusBadRequest, msg: "invalid body"},
	}
	for _, tt := range tests {
		rec := s.do(t, http.MethodPost, "/api/auth/login", tt.body, "")
		require.Equal(t, tt.code, rec.Code, tt.name)
		body := decode(t, rec)
		if tt.code != http.StatusOK {
			assert.Equal(t, tt.msg, body["message"], tt.name)
			continue
		}
		assert.NotEmpty(t, body["token"])
		assert.NotEmpty(t, body["id"])

		c := refreshCookieFrom(t, rec)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.WithinDuration(t, time.Now().Add(tokens.DefaultRefreshTTL), c.Expires, time.Minute)
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	s := newServer(t, 0)
	login := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret"}`, "")
	require.Equal(t, http.StatusOK, login.Code)
	cookie := refreshCookieFrom(t, login)

	rec := s.do(t, http.MethodPost, "/api/auth/refresh-token", "", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := refreshCookieFrom(t, rec)
	assert.NotEqual(t, cookie.Value, rotated.Value)
	assert.NotEqual(t, decode(t, login)["token"], decode(t, rec)["token"])

	// the old refresh token was consumed by the rotation
	rec = s.do(t, http.MethodPost, "/api/auth/refresh-token", "", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/refresh-token", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing refresh token", decode(t, rec)["message"])
}

func TestLogout_RequiresBothCredentials(t *testing.T) {
	t.Parallel()

	s := newServer(t, 0)
	login := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret"}`, "")
	require.Equal(t, http.StatusOK, login.Code)
	token := decode(t, login)["token"].(string)
	cookie := refreshCookieFrom(t, login)

	rec := s.do(t, http.MethodPost, "/api/auth/logout", "", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/logout", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type brokenStore struct{}

func (brokenStore) MarkRevoked(context.Context, string, time.Duration) error {
	return revocation.ErrStoreUnavailable
}

func (brokenStore) IsRevoked(context.Context, string) (bool, error) {
	return false, revocation.ErrStoreUnavailable
}

func TestLogout_StoreUnavailable(t *testing.T) {
	t.Parallel()

	s := newServer(t, 0)
	login := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret"}`, "")
	require.Equal(t, http.StatusOK, login.Code)

	s.svc.Revocations = brokenStore{}
	rec := s.do(t, http.MethodPost, "/api/auth/logout", "", decode(t, login)["token"].(string), refreshCookieFrom(t, login))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()

	s := newServer(t, 2)
	body := `{"email":"a@b.com","password":"nope"}`
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/login", body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/login", body, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodPost, "/api/auth/login", body, "").Code)
}

func TestHealthAndMetricsBypassGateway(t *testing.T) {
	t.Parallel()

	s := newServer(t, 0)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/metrics", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/auth/me", "", "").Code)
}

func TestEndToEnd_LogoutRevokesAccessToken(t *testing.T) {
	t.Parallel()

	s := newServer(t, 0)

	login := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret"}`, "")
	require.Equal(t, http.StatusOK, login.Code)
	token, _ := decode(t, login)["token"].(string)
	require.NotEmpty(t, token)
	cookie := refreshCookieFrom(t, login)

	me := s.do(t, http.MethodGet, "/api/auth/me", "", token)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "a@b.com", decode(t, me)["email"])

	logout := s.do(t, http.MethodPost, "/api/auth/logout", "", token, cookie)
	require.Equal(t, http.StatusOK, logout.Code)
	assert.Equal(t, "logged out", decode(t, logout)["message"])

	again := s.do(t, http.MethodGet, "/api/auth/me", "", token)
	assert.Equal(t, http.StatusUnauthorized, again.Code)
	assert.Equal(t, authmw.ReasonRevoked, decode(t, again)["message"])
}
