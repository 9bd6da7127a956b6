// Package config loads environment configuration shared by every
// student-records binary.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/Skotchmaster/student_records/pkg/tokens"
)

type Tokens struct {
	Secret     string        `env:"JWT_SECRET,required"`
	Issuer     string        `env:"JWT_ISSUER,default=student-records-auth"`
	Audience   string        `env:"JWT_AUDIENCE,default=student-records"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL,default=60m"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`
}

func (t Tokens) Codec() *tokens.Codec {
	c := tokens.NewCodec([]byte(t.Secret), t.Issuer, t.Audience)
	c.AccessTTL = t.AccessTTL
	c.RefreshTTL = t.RefreshTTL
	return c
}

type Revocation struct {
	RedisURL  string        `env:"REDIS_URL,required"`
	Timeout   time.Duration `env:"REVOCATION_TIMEOUT,default=500ms"`
	KeyPrefix string        `env:"REVOCATION_KEY_PREFIX,default=revoked:"`
}

// MachineAuth describes the external identity provider whose tokens are
// accepted from other services. Empty JWKSURL disables machine tokens.
type MachineAuth struct {
	Issuer   string `env:"SERVICE_AUTH_ISSUER"`
	Audience string `env:"SERVICE_AUTH_AUDIENCE"`
	JWKSURL  string `env:"SERVICE_AUTH_JWKS_URL"`
}

type Shared struct {
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Tokens      Tokens
	Revocation  Revocation
	MachineAuth MachineAuth
}

// Load reads an optional .env file and decodes the environment into cfg.
func Load(ctx context.Context, cfg any) error {
	LoadDotEnv()
	return LoadFrom(ctx, cfg, envconfig.OsLookuper())
}

// LoadDotEnv copies ./.env into the process environment when the file exists.
// Variables already set win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadFrom(ctx context.Context, cfg any, l envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: l}); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Pairs parses "k1=v1,k2=v2". Values may contain ':' so envconfig's map
// decoding does not fit URLs.
func Pairs(v string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range CSV(v) {
		k, val, ok := strings.Cut(item, "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if !ok || k == "" || val == "" {
			return nil, fmt.Errorf("invalid pair %q", item)
		}
		out[k] = val
	}
	return out, nil
}
