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

// Package clockquality derives the ClockQuality triple, priority1 and
// priority2 a node advertises in Announce messages from a description of
// its oscillator and upstream time source. None of this is consulted by
// the BMCA itself, which only ever compares the resulting opaque bytes
// (protocol.ClockQuality.Compare); this package is the configuration-time
// layer that produces them.
package clockquality

import (
	"fmt"
	"sync"
	"time"

	"github.com/gptp-go/gptpd/protocol"
)

// ClockSourceType describes the physical or logical origin of a node's
// time, used to pick a default offsetScaledLogVariance and to decide
// whether the node qualifies as a primary reference.
type ClockSourceType int

// Recognized clock source types.
const (
	SourceUnknown ClockSourceType = iota
	SourceFreeRunningCrystal
	SourceIEEE8023Crystal
	SourceTCXO
	SourceOCXO
	SourceRubidium
	SourceCesium
	SourceGPSDisciplined
	SourceGNSSDisciplined
	SourceNTPSynchronized
	SourcePTPSynchronized
	SourceRadioSynchronized
	SourceManualInput
)

var sourceTypeToString = map[ClockSourceType]string{
	SourceUnknown:            "unknown",
	SourceFreeRunningCrystal: "free-running crystal",
	SourceIEEE8023Crystal:    "IEEE 802.3 crystal",
	SourceTCXO:               "temperature-compensated crystal",
	SourceOCXO:               "oven-controlled crystal",
	SourceRubidium:           "rubidium oscillator",
	SourceCesium:             "cesium oscillator",
	SourceGPSDisciplined:     "GPS-disciplined oscillator",
	SourceGNSSDisciplined:    "GNSS-disciplined oscillator",
	SourceNTPSynchronized:    "NTP-synchronized",
	SourcePTPSynchronized:    "PTP-synchronized (boundary clock)",
	SourceRadioSynchronized:  "radio-synchronized",
	SourceManualInput:        "manually set",
}

func (s ClockSourceType) String() string {
	if v, ok := sourceTypeToString[s]; ok {
		return v
	}
	return "unrecognized"
}

// isPrimaryReferenceCapable reports whether this source type, combined
// with a traceable external source, justifies ClockClassPrimaryReference.
func (s ClockSourceType) isPrimaryReferenceCapable() bool {
	switch s {
	case SourceGPSDisciplined, SourceGNSSDisciplined, SourceRubidium, SourceCesium, SourceRadioSynchronized:
		return true
	}
	return false
}

// defaultVariance is this source type's offsetScaledLogVariance absent an
// explicit config override, roughly ordered by stability (lower is
// better). Values mirror IEEE 1588/802.1AS informative defaults.
func (s ClockSourceType) defaultVariance() uint16 {
	switch s {
	case SourceCesium, SourceRubidium:
		return 0x2000
	case SourceGPSDisciplined, SourceGNSSDisciplined:
		return 0x3000
	case SourceOCXO:
		return 0x3a00
	case SourceTCXO:
		return 0x4000
	case SourcePTPSynchronized, SourceNTPSynchronized:
		return 0x4100
	case SourceIEEE8023Crystal, SourceFreeRunningCrystal:
		return 0x436A // IEEE 802.1AS default
	}
	return 0x436A
}

// Config is the static description of a node's clock an operator supplies
// at startup (§6.5: priority1/priority2, grandmaster_capable).
type Config struct {
	SourceType              ClockSourceType
	GrandmasterCapable      bool
	Priority1               uint8
	Priority2               uint8
	EstimatedAccuracy       time.Duration // used to derive ClockAccuracy
	OffsetScaledLogVariance uint16        // 0 selects SourceType's default
	HasExternalTimeSource   bool
	TimeSourceTraceable     bool
	HoldoverCapability      time.Duration
}

// DefaultConfig returns the configuration of a grandmaster-capable node
// with an ordinary crystal oscillator and no external time source, the
// same posture as an unconfigured gPTP end station.
func DefaultConfig() Config {
	return Config{
		SourceType:         SourceIEEE8023Crystal,
		GrandmasterCapable: true,
		Priority1:          uint8(protocol.ClockClassDefault),
		Priority2:          128,
		EstimatedAccuracy:  100 * time.Microsecond,
	}
}

// Manager tracks a node's current clock quality posture, updated as its
// external time source comes and goes, and produces the values the BMCA
// advertises in Announce messages.
type Manager struct {
	mu sync.Mutex

	cfg Config

	inHoldover              bool
	externalSourceAvailable bool
	externalSourceTraceable bool

	hasManagementPriority1 bool
	managementPriority1    uint8
}

// NewManager constructs a Manager from a static Config.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// SetConfig replaces the manager's static configuration.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Config returns the manager's current static configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// ClockQuality computes the (clockClass, clockAccuracy,
// offsetScaledLogVariance) triple this node currently advertises.
func (m *Manager) ClockQuality() protocol.ClockQuality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return protocol.ClockQuality{
		ClockClass:              m.clockClassLocked(),
		ClockAccuracy:           protocol.ClockAccuracyFromOffset(m.cfg.EstimatedAccuracy),
		OffsetScaledLogVariance: m.offsetScaledLogVarianceLocked(),
	}
}

func (m *Manager) clockClassLocked() protocol.ClockClass {
	if !m.cfg.GrandmasterCapable {
		return protocol.ClockClassSlaveOnly
	}
	if m.inHoldover {
		return protocol.ClockClassHoldover
	}
	if m.externalSourceAvailable && m.externalSourceTraceable && m.cfg.SourceType.isPrimaryReferenceCapable() {
		return protocol.ClockClassPrimaryReference
	}
	return protocol.ClockClassDefault
}

func (m *Manager) offsetScaledLogVarianceLocked() uint16 {
	if m.cfg.OffsetScaledLogVariance != 0 {
		return m.cfg.OffsetScaledLogVariance
	}
	return m.cfg.SourceType.defaultVariance()
}

// Priority1 returns the priority1 value this node advertises: a
// management override if set, 255 if not grandmaster-capable (forcing
// slave-only per §6.5), otherwise the configured value.
func (m *Manager) Priority1() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasManagementPriority1 {
		return m.managementPriority1
	}
	if !m.cfg.GrandmasterCapable {
		return 255
	}
	return m.cfg.Priority1
}

// Priority2 returns the configured priority2 value.
func (m *Manager) Priority2() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Priority2
}

// GrandmasterCapable reports whether this node may become grandmaster.
func (m *Manager) GrandmasterCapable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.GrandmasterCapable
}

// UpdateTimeSourceStatus records whether an external time source (GPS,
// GNSS, upstream PTP, etc.) is currently available and traceable.
func (m *Manager) UpdateTimeSourceStatus(available, traceable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.externalSourceAvailable = available
	m.externalSourceTraceable = traceable
}

// UpdateAccuracyEstimate updates the estimated clock accuracy used to
// derive the advertised ClockAccuracy byte.
func (m *Manager) UpdateAccuracyEstimate(accuracy time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.EstimatedAccuracy = accuracy
}

// SetHoldoverMode marks the node as running on holdover (no current
// traceable external source, but still within spec of its local
// oscillator), which degrades its advertised clockClass.
func (m *Manager) SetHoldoverMode(inHoldover bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inHoldover = inHoldover
}

// SetManagementPriority1 installs a management-protocol override for
// priority1, taking precedence over the configured and derived values
// until cleared by ClearManagementPriority1.
func (m *Manager) SetManagementPriority1(priority1 uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasManagementPriority1 = true
	m.managementPriority1 = priority1
}

// ClearManagementPriority1 removes any management override installed by
// SetManagementPriority1.
func (m *Manager) ClearManagementPriority1() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasManagementPriority1 = false
}

// TimeSource maps this node's ClockSourceType to the wire-format
// TimeSource enumeration carried in Announce messages.
func (m *Manager) TimeSource() protocol.TimeSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.cfg.SourceType {
	case SourceGPSDisciplined, SourceGNSSDisciplined:
		return protocol.TimeSourceGNSS
	case SourceRubidium, SourceCesium:
		return protocol.TimeSourceAtomicClock
	case SourceRadioSynchronized:
		return protocol.TimeSourceTerrestrialRadio
	case SourceNTPSynchronized:
		return protocol.TimeSourceNTP
	case SourcePTPSynchronized:
		return protocol.TimeSourcePTP
	case SourceManualInput:
		return protocol.TimeSourceHandSet
	case SourceOCXO, SourceTCXO, SourceIEEE8023Crystal, SourceFreeRunningCrystal:
		return protocol.TimeSourceInternalOscillator
	}
	return protocol.TimeSourceOther
}

// SourceDescription returns a human-readable description of the node's
// clock source, for logging and status readouts.
func (m *Manager) SourceDescription() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%s (grandmaster_capable=%v)", m.cfg.SourceType, m.cfg.GrandmasterCapable)
}

// IsValidPriority1 reports whether p is an acceptable priority1 value.
// Every uint8 is syntactically valid; 255 has the additional meaning
// "slave-only, never grandmaster".
func IsValidPriority1(p uint8) bool { return true }

// IsValidClockClass reports whether c is one of the named clockClass
// values or lies below 128.
func IsValidClockClass(c protocol.ClockClass) bool {
	switch c {
	case protocol.ClockClassPrimaryReference, protocol.ClockClassHoldover,
		protocol.ClockClassDefault, protocol.ClockClassSlaveOnly:
		return true
	}
	return c < 128 // application-specific/reserved ranges still decode, just unrecognized
}
