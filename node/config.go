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

package node

import (
	"time"

	"github.com/gptp-go/gptpd/pathdelay"
	"github.com/gptp-go/gptpd/protocol"
	"github.com/gptp-go/gptpd/servo"
)

// PortConfig is one port's worth of the node configuration table (spec §6).
type PortConfig struct {
	PortNumber          uint16
	Domain              int
	LogSyncInterval     protocol.LogInterval // default -3 (125ms)
	LogAnnounceInterval protocol.LogInterval // default 0 (1s)
	LogPdelayInterval   protocol.LogInterval // default 0 (1s)

	AnnounceReceiptTimeoutMultiplier int // default 3

	PathDelayProfile string // pathdelay.ProfileAutomotive/Industrial/HighPrecision
	RateRatioWindowN int    // default 10
}

// DefaultPortConfig returns a PortConfig with the spec's named defaults for
// the given port number and domain.
func DefaultPortConfig(portNumber uint16, domain int) PortConfig {
	return PortConfig{
		PortNumber:                       portNumber,
		Domain:                           domain,
		LogSyncInterval:                  -3,
		LogAnnounceInterval:              0,
		LogPdelayInterval:                0,
		AnnounceReceiptTimeoutMultiplier: 3,
		PathDelayProfile:                 pathdelay.ProfileAutomotive,
		RateRatioWindowN:                 10,
	}
}

func (c PortConfig) syncInterval() time.Duration     { return c.LogSyncInterval.Duration() }
func (c PortConfig) announceInterval() time.Duration { return c.LogAnnounceInterval.Duration() }
func (c PortConfig) pdelayInterval() time.Duration   { return c.LogPdelayInterval.Duration() }

// Config is the whole-node configuration: its default priority values and
// every port it owns.
type Config struct {
	Priority1          uint8 // default 248
	Priority2          uint8 // default 248
	GrandmasterCapable bool

	ServoConfig servo.Config

	Ports []PortConfig
}

// DefaultConfig returns a Config with no ports; callers append PortConfigs.
func DefaultConfig() Config {
	return Config{
		Priority1:          248,
		Priority2:          248,
		GrandmasterCapable: true,
		ServoConfig:        servo.DefaultConfig(),
	}
}
