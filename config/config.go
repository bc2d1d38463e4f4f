/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config reads the on-disk YAML configuration for a gPTP node:
// its port inventory, priority values and per-domain tuning, and bridges
// it into a node.Config the core can run.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/gptp-go/gptpd/node"
	"github.com/gptp-go/gptpd/pathdelay"
	"github.com/gptp-go/gptpd/protocol"
)

// PortConfig is one port's entry in the on-disk configuration.
type PortConfig struct {
	PortNumber                       uint16 `yaml:"port_number"`
	Domain                            int    `yaml:"domain"`
	LogSyncInterval                   int8   `yaml:"log_sync_interval"`
	LogAnnounceInterval               int8   `yaml:"log_announce_interval"`
	LogPdelayInterval                 int8   `yaml:"log_pdelay_interval"`
	AnnounceReceiptTimeoutMultiplier  int    `yaml:"announce_receipt_timeout_multiplier"`
	PathDelayProfile                  string `yaml:"path_delay_profile"`
	RateRatioWindow                   int    `yaml:"rate_ratio_window"`
}

// Validate reports whether the port's configured values are usable.
func (c *PortConfig) Validate() error {
	if c.PortNumber == 0 {
		return fmt.Errorf("port_number must be positive")
	}
	if c.Domain < 0 || c.Domain > 255 {
		return fmt.Errorf("port %d: domain must be 0..255", c.PortNumber)
	}
	if c.AnnounceReceiptTimeoutMultiplier <= 0 {
		return fmt.Errorf("port %d: announce_receipt_timeout_multiplier must be positive", c.PortNumber)
	}
	switch c.PathDelayProfile {
	case pathdelay.ProfileAutomotive, pathdelay.ProfileIndustrial, pathdelay.ProfileHighPrecision:
	default:
		return fmt.Errorf("port %d: unknown path_delay_profile %q", c.PortNumber, c.PathDelayProfile)
	}
	if c.RateRatioWindow <= 0 {
		return fmt.Errorf("port %d: rate_ratio_window must be positive", c.PortNumber)
	}
	return nil
}

// Config is the whole on-disk node configuration.
type Config struct {
	Interface          string       `yaml:"interface"`
	Priority1          uint8        `yaml:"priority1"`
	Priority2          uint8        `yaml:"priority2"`
	GrandmasterCapable bool         `yaml:"grandmaster_capable"`
	MetricsListen      string       `yaml:"metrics_listen"`
	LogLevel           string       `yaml:"log_level"`
	TickInterval       string       `yaml:"tick_interval"` // loaded but not read; gptpd takes its tick from --tick-ms
	Ports              []PortConfig `yaml:"ports"`
}

// DefaultConfig returns a Config with the spec's named defaults and no
// ports; callers append ports or load them from YAML.
func DefaultConfig() *Config {
	return &Config{
		Interface:          "eth0",
		Priority1:          248,
		Priority2:          248,
		GrandmasterCapable: true,
		MetricsListen:      ":8888",
		LogLevel:           "info",
		TickInterval:       "1ms",
	}
}

// Validate reports whether the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface must be specified")
	}
	if len(c.Ports) == 0 {
		return fmt.Errorf("at least one port must be specified")
	}
	seen := make(map[uint16]bool, len(c.Ports))
	for i := range c.Ports {
		if err := c.Ports[i].Validate(); err != nil {
			return err
		}
		if seen[c.Ports[i].PortNumber] {
			return fmt.Errorf("duplicate port_number %d", c.Ports[i].PortNumber)
		}
		seen[c.Ports[i].PortNumber] = true
	}
	return nil
}

// ReadConfig reads and validates a Config from a YAML file at path.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return c, nil
}

// ToNodeConfig bridges the on-disk configuration into a node.Config the
// core's node.Manager accepts.
func (c *Config) ToNodeConfig() node.Config {
	nc := node.DefaultConfig()
	nc.Priority1 = c.Priority1
	nc.Priority2 = c.Priority2
	nc.GrandmasterCapable = c.GrandmasterCapable

	nc.Ports = make([]node.PortConfig, len(c.Ports))
	for i, pc := range c.Ports {
		npc := node.DefaultPortConfig(pc.PortNumber, pc.Domain)
		npc.LogSyncInterval = protocol.LogInterval(pc.LogSyncInterval)
		npc.LogAnnounceInterval = protocol.LogInterval(pc.LogAnnounceInterval)
		npc.LogPdelayInterval = protocol.LogInterval(pc.LogPdelayInterval)
		npc.AnnounceReceiptTimeoutMultiplier = pc.AnnounceReceiptTimeoutMultiplier
		npc.PathDelayProfile = pc.PathDelayProfile
		npc.RateRatioWindowN = pc.RateRatioWindow
		nc.Ports[i] = npc
	}
	return nc
}
