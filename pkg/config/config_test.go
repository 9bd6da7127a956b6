package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	t.Parallel()

	var cfg Shared
	err := LoadFrom(context.Background(), &cfg, envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "secret",
		"REDIS_URL":  "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "student-records-auth", cfg.Tokens.Issuer)
	assert.Equal(t, "student-records", cfg.Tokens.Audience)
	assert.Equal(t, 60*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Revocation.Timeout)
	assert.Equal(t, "revoked:", cfg.Revocation.KeyPrefix)
	assert.Empty(t, cfg.MachineAuth.JWKSURL)

	codec := cfg.Tokens.Codec()
	assert.Equal(t, []byte("secret"), codec.Secret)
	assert.Equal(t, 60*time.Minute, codec.AccessTTL)
}

func TestLoadFrom_RequiredMissing(t *testing.T) {
	t.Parallel()

	var cfg Shared
	err := LoadFrom(context.Background(), &cfg, envconfig.MapLookuper(map[string]string{
		"REDIS_URL": "redis://localhost:6379/0",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestCSV(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CSV(""))
	assert.Equal(t, []string{"a", "b"}, CSV(" a, ,b ,"))
}

func TestPairs(t *testing.T) {
	t.Parallel()

	got, err := Pairs("/api/courses=http://course:8080, /api/grades=http://grade:8080")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"/api/courses": "http://course:8080",
		"/api/grades":  "http://grade:8080",
	}, got)

	_, err = Pairs("/api/courses")
	assert.Error(t, err)
	_, err = Pairs("=http://x")
	assert.Error(t, err)
}
