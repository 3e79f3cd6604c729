package postgres

import (
	"testing"
	"time"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	if cfg.MaxOpenConns < cfg.MaxIdleConns {
		t.Fatalf("idle conns %d exceed open conns %d", cfg.MaxIdleConns, cfg.MaxOpenConns)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	base := Config{
		URL:          "postgres://localhost/provost",
		PingTimeout:  time.Second,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.URL = "" }},
		{"zero ping timeout", func(c *Config) { c.PingTimeout = 0 }},
		{"zero open conns", func(c *Config) { c.MaxOpenConns = 0 }},
		{"idle above open", func(c *Config) { c.MaxIdleConns = 10 }},
		{"negative lifetime", func(c *Config) { c.ConnMaxLifetime = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
