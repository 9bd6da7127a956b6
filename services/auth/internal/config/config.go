package config

import (
	"context"

	sharedcfg "github.com/Skotchmaster/student_records/pkg/config"
)

type Config struct {
	Shared sharedcfg.Shared

	Addr               string `env:"AUTH_ADDR,default=:8081"`
	DatabaseURL        string `env:"DATABASE_URL,required"`
	AutoMigrate        bool   `env:"AUTO_MIGRATE,default=true"`
	CookieSecure       bool   `env:"COOKIE_SECURE,default=true"`
	LoginRatePerMinute int    `env:"LOGIN_RATE_PER_MINUTE,default=20"`

	KafkaBrokers []string `env:"KAFKA_BROKERS"`
	KafkaTopic   string   `env:"KAFKA_TOPIC,default=auth_events"`

	ESURL      string `env:"ES_URL"`
	ESUser     string `env:"ES_USER"`
	ESPassword string `env:"ES_PASSWORD"`
	ESIndex    string `env:"ES_INDEX,default=auth-audit"`

	// When UserServiceURL is set credentials come from the User service,
	// authenticated with a client-credentials token.
	UserServiceURL  string `env:"USER_SERVICE_URL"`
	S2STokenURL     string `env:"S2S_TOKEN_URL"`
	S2SClientID     string `env:"S2S_CLIENT_ID"`
	S2SClientSecret string `env:"S2S_CLIENT_SECRET"`
	S2SUserAudience string `env:"S2S_USER_AUDIENCE,default=user-service"`
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := sharedcfg.Load(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
