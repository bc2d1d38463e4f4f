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

// Package servo implements the PI clock servo: offset-to-frequency/phase
// control, outlier rejection, and lock detection.
package servo

import "time"

// State names the phases of a servo. PiServo does not track or return a
// State; Sample reports lock through Sample.Locked.
type State uint8

// Servo states.
const (
	StateInit   State = 0 // not enough samples yet
	StateJump   State = 1 // phase step just emitted, integral reset
	StateLocked State = 2 // locked: frequency-only steady state
	StateFilter State = 3 // running, not yet locked
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateJump:
		return "JUMP"
	case StateLocked:
		return "LOCKED"
	case StateFilter:
		return "FILTER"
	}
	return "UNSUPPORTED"
}

// Config holds the PI servo's tunable parameters; field names and defaults
// follow the offset/frequency/lock equations.
type Config struct {
	KP float64 // proportional gain, default 0.7
	KI float64 // integral gain, default 0.3

	MaxFreqAdjustmentPPB   float64 // clamp on frequencyAdjustment output, default 100000
	MaxPhaseAdjustment     time.Duration // phase-step threshold, default 1ms
	OutlierThresholdNs     float64       // default 1ms worth of ns, relative to running median
	LockThresholdPPB       float64       // default 5
	LockSamples            int           // consecutive good samples to declare lock, default 8
	MaxSamples             int           // sample-count factor saturation point, default 100
	HistorySize            int           // ring buffer size for median/stdev, default 30
}

// DefaultConfig returns the servo defaults named in the control-loop spec.
func DefaultConfig() Config {
	return Config{
		KP:                   0.7,
		KI:                   0.3,
		MaxFreqAdjustmentPPB: 100000,
		MaxPhaseAdjustment:   time.Millisecond,
		OutlierThresholdNs:   1_000_000,
		LockThresholdPPB:     5,
		LockSamples:          8,
		MaxSamples:           100,
		HistorySize:          30,
	}
}
