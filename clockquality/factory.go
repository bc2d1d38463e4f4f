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

package clockquality

import "time"

// NewGPSGrandmaster returns a Manager configured for a GPS-disciplined
// grandmaster-capable clock: high priority1, primary-reference-eligible.
func NewGPSGrandmaster() *Manager {
	m := NewManager(Config{
		SourceType:            SourceGPSDisciplined,
		GrandmasterCapable:    true,
		Priority1:             128,
		Priority2:             128,
		EstimatedAccuracy:     100 * time.Nanosecond,
		HasExternalTimeSource: true,
		TimeSourceTraceable:   true,
	})
	m.UpdateTimeSourceStatus(true, true)
	return m
}

// NewIEEE8023EndStation returns a Manager for an ordinary grandmaster-
// capable end station with an IEEE 802.3 compliant crystal and no
// external time source — the common default posture.
func NewIEEE8023EndStation() *Manager {
	return NewManager(Config{
		SourceType:         SourceIEEE8023Crystal,
		GrandmasterCapable: true,
		Priority1:          uint8(248),
		Priority2:          128,
		EstimatedAccuracy:  1 * time.Millisecond,
	})
}

// NewHighPrecisionOscillator returns a Manager for a grandmaster-capable
// node built around an oven-controlled crystal oscillator.
func NewHighPrecisionOscillator() *Manager {
	return NewManager(Config{
		SourceType:         SourceOCXO,
		GrandmasterCapable: true,
		Priority1:          uint8(248),
		Priority2:          128,
		EstimatedAccuracy:  1 * time.Microsecond,
	})
}

// NewSlaveOnlyClock returns a Manager for a node that must never become
// grandmaster; its priority1 always reads back as 255.
func NewSlaveOnlyClock() *Manager {
	return NewManager(Config{
		SourceType:         SourceFreeRunningCrystal,
		GrandmasterCapable: false,
		Priority1:          255,
		Priority2:          255,
		EstimatedAccuracy:  10 * time.Millisecond,
	})
}

// NewBoundaryClock returns a Manager for a grandmaster-capable node whose
// own time is derived from an upstream PTP domain.
func NewBoundaryClock() *Manager {
	m := NewManager(Config{
		SourceType:            SourcePTPSynchronized,
		GrandmasterCapable:    true,
		Priority1:             128,
		Priority2:             128,
		EstimatedAccuracy:     1 * time.Microsecond,
		HasExternalTimeSource: true,
		TimeSourceTraceable:   true,
	})
	m.UpdateTimeSourceStatus(true, true)
	return m
}
