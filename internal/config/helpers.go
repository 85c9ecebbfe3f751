package config

import (
	"fmt"

	"qtcache/pkg/confkit"
	"qtcache/pkg/market"
)

// MustLoadGateway loads etc/questrade.yaml from the project root and panics
// on error. Tools that only talk to the broker use it instead of the full
// application config.
func MustLoadGateway() *market.Config {
	return market.MustLoad()
}

// GatewayConfig returns the hydrated gateway section, falling back to the
// project default file when the main config does not name one.
func (c *Config) GatewayConfig() (*market.Config, error) {
	if c.Gateway.Value != nil {
		return c.Gateway.Value, nil
	}
	path, err := confkit.ProjectPath("etc/questrade.yaml")
	if err != nil {
		return nil, err
	}
	cfg, err := market.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load gateway config %s: %w", path, err)
	}
	return cfg, nil
}
