package core

import (
	"fmt"
	"strings"
	"time"
)

type OAuthConfig struct {
	StateTTL time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	RefreshSkew time.Duration `koanf:"refresh_skew" mapstructure:"refresh_skew"`
	OAuth       OAuthConfig   `koanf:"oauth" mapstructure:"oauth"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "credentials",
		RefreshSkew: DefaultRefreshSkew,
		OAuth: OAuthConfig{
			StateTTL: defaultOAuthStateTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.RefreshSkew < 0 {
		return fmt.Errorf("core: refresh_skew must not be negative")
	}
	if c.OAuth.StateTTL < 0 {
		return fmt.Errorf("core: oauth state_ttl must not be negative")
	}
	return nil
}
