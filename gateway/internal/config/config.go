package config

import (
	"context"
	"fmt"

	sharedcfg "github.com/Skotchmaster/student_records/pkg/config"
)

type Config struct {
	Shared sharedcfg.Shared

	ListenAddr string `env:"GATEWAY_ADDR,default=:8080"`
	AuthURL    string `env:"AUTH_URL,required"`
	// ServiceRoutes maps a path prefix to a backend, e.g.
	// "/api/courses=http://course:8080,/api/grades=http://grade:8080".
	ServiceRoutes string `env:"SERVICE_ROUTES"`

	Routes map[string]string
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := sharedcfg.Load(ctx, &cfg); err != nil {
		return nil, err
	}
	routes, err := sharedcfg.Pairs(cfg.ServiceRoutes)
	if err != nil {
		return nil, fmt.Errorf("SERVICE_ROUTES: %w", err)
	}
	cfg.Routes = routes
	return &cfg, nil
}
