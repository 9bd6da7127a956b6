package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newTestCodec(clock *fakeClock) *Codec {
	c := NewCodec([]byte("test-jwt-secret"), "student-records-auth", "student-records")
	c.Now = clock.Now
	return c
}

func TestCodec_AccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(clock)

	tests := []struct {
		name   string
		userID string
		email  string
		role   string
	}{
		{name: "admin", userID: uuid.NewString(), email: "admin@uni.edu", role: "Admin"},
		{name: "tutor", userID: uuid.NewString(), email: "tutor@uni.edu", role: "Tutor"},
		{name: "student", userID: uuid.NewString(), email: "a@b.com", role: "Student"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := codec.IssueAccessToken(tt.userID, tt.email, tt.role)
			require.NoError(t, err)

			claims, err := codec.ValidateAccessToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.UserID())
			assert.Equal(t, tt.email, claims.Email)
			assert.Equal(t, tt.role, claims.Role)
			assert.NotEmpty(t, claims.TokenID())
			assert.Equal(t, "student-records-auth", claims.Issuer)
			assert.Contains(t, claims.Audience, "student-records")
			assert.WithinDuration(t, clock.t.Add(DefaultAccessTTL), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestCodec_AccessToken_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: issued}
	codec := newTestCodec(clock)

	token, err := codec.IssueAccessToken("u1", "a@b.com", "Student")
	require.NoError(t, err)

	clock.t = issued.Add(59 * time.Minute)
	_, err = codec.ValidateAccessToken(token)
	require.NoError(t, err)

	clock.t = issued.Add(61 * time.Minute)
	_, err = codec.ValidateAccessToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestCodec_AccessToken_FreshJTIPerIssue(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(&fakeClock{t: time.Now()})

	first, err := codec.IssueAccessToken("u1", "a@b.com", "Student")
	require.NoError(t, err)
	second, err := codec.IssueAccessToken("u1", "a@b.com", "Student")
	require.NoError(t, err)

	c1, err := codec.ValidateAccessToken(first)
	require.NoError(t, err)
	c2, err := codec.ValidateAccessToken(second)
	require.NoError(t, err)
	assert.NotEqual(t, c1.TokenID(), c2.TokenID())
}

func TestCodec_ValidateAccessToken_Rejects(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(clock)

	other := newTestCodec(clock)
	other.Secret = []byte("another-secret")
	foreignSig, err := other.IssueAccessToken("u1", "a@b.com", "Admin")
	require.NoError(t, err)

	otherIssuer := newTestCodec(clock)
	otherIssuer.Issuer = "someone-else"
	foreignIss, err := otherIssuer.IssueAccessToken("u1", "a@b.com", "Admin")
	require.NoError(t, err)

	otherAudience := newTestCodec(clock)
	otherAudience.Audience = "payments"
	foreignAud, err := otherAudience.IssueAccessToken("u1", "a@b.com", "Admin")
	require.NoError(t, err)

	refresh, err := codec.IssueRefreshToken("u1", "a@b.com")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "wrong secret", token: foreignSig, want: ErrTokenInvalid},
		{name: "wrong issuer", token: foreignIss, want: ErrTokenInvalid},
		{name: "wrong audience", token: foreignAud, want: ErrTokenInvalid},
		{name: "refresh token", token: refresh, want: ErrTokenInvalid},
		{name: "garbage", token: "not-a-valid-jwt", want: ErrTokenMalformed},
		{name: "empty", token: "", want: ErrTokenMalformed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := codec.ValidateAccessToken(tt.token)
			require.Error(t, err)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCodec_RefreshToken(t *testing.T) {
	t.Parallel()

	issued := time.Now()
	clock := &fakeClock{t: issued}
	codec := newTestCodec(clock)

	token, err := codec.IssueRefreshToken("u1", "a@b.com")
	require.NoError(t, err)

	claims, err := codec.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, "a@b.com", claims.Email)
	assert.NotEmpty(t, claims.TokenID())
	assert.WithinDuration(t, issued.Add(DefaultRefreshTTL), claims.ExpiresAt.Time, time.Second)

	access, err := codec.IssueAccessToken("u1", "a@b.com", "Student")
	require.NoError(t, err)
	_, err = codec.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	clock.t = issued.Add(DefaultRefreshTTL + time.Minute)
	_, err = codec.ValidateRefreshToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestCodec_ReadClaimsUnverified(t *testing.T) {
	t.Parallel()

	issued := time.Now()
	clock := &fakeClock{t: issued}
	codec := newTestCodec(clock)

	token, err := codec.IssueAccessToken("u1", "a@b.com", "Tutor")
	require.NoError(t, err)

	clock.t = issued.Add(3 * time.Hour)
	other := newTestCodec(clock)
	other.Secret = []byte("unrelated")

	claims, err := other.ReadClaimsUnverified(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, "Tutor", claims.Role)
	assert.NotEmpty(t, claims.TokenID())

	left, ok := claims.Remaining(clock.t)
	assert.True(t, ok)
	assert.Zero(t, left)
}

func TestCodec_ReadClaimsUnverified_Malformed(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(&fakeClock{t: time.Now()})

	for _, token := range []string{"", "abc", "a.b", "a.b.c", strings.Repeat("x", 10) + ".." + "y"} {
		_, err := codec.ReadClaimsUnverified(token)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestCodec_EmptySecret(t *testing.T) {
	t.Parallel()

	codec := NewCodec(nil, "iss", "aud")
	_, err := codec.IssueAccessToken("u1", "a@b.com", "Admin")
	require.Error(t, err)
}
