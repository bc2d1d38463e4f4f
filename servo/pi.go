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

package servo

import (
	"container/ring"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sample is a single servo measurement result.
type Sample struct {
	PhaseAdjustmentNs     float64
	FrequencyAdjustmentPPB float64
	Locked                bool
	Confidence            float64
}

// PiServo is the PI clock servo: offset in, (phase step, frequency
// adjustment, lock state, confidence) out.
type PiServo struct {
	cfg Config

	integral float64 // clamped integral term, in ppb-seconds equivalent
	lastFreq float64

	history            *ring.Ring // *float64 offsets, for median/stdev
	historyCount       int
	lastOffsetForMedian float64

	consecutiveLockSamples int
	locked                 bool
	lastFreqAdj            float64
	haveLastFreqAdj        bool

	samplesSeen int
}

// NewPiServo constructs a PiServo with the given configuration.
func NewPiServo(cfg Config) *PiServo {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 30
	}
	return &PiServo{
		cfg:     cfg,
		history: ring.New(cfg.HistorySize),
	}
}

// Unlock resets the servo's integral and lock state, as required when a
// port transitions to Slave or a phase step is emitted.
func (s *PiServo) Unlock() {
	s.integral = 0
	s.lastFreq = 0
	s.consecutiveLockSamples = 0
	s.locked = false
	s.haveLastFreqAdj = false
}

// Locked reports the servo's current lock state.
func (s *PiServo) Locked() bool {
	return s.locked
}

func (s *PiServo) recordOffset(offsetNs float64) {
	s.history.Value = offsetNs
	s.history = s.history.Next()
	if s.historyCount < s.cfg.HistorySize {
		s.historyCount++
	}
}

func (s *PiServo) medianOffset() float64 {
	if s.historyCount == 0 {
		return 0
	}
	vals := make([]float64, 0, s.historyCount)
	s.history.Do(func(v any) {
		if v == nil {
			return
		}
		vals = append(vals, v.(float64))
	})
	// insertion sort: history is bounded (default 30), no need for sort.Slice overhead
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j-1] > vals[j]; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
	return vals[len(vals)/2]
}

func (s *PiServo) stdevOffset() float64 {
	if s.historyCount < 2 {
		return 0
	}
	var mean, m2 float64
	n := 0.0
	s.history.Do(func(v any) {
		if v == nil {
			return
		}
		n++
		x := v.(float64)
		delta := x - mean
		mean += delta / n
		m2 += delta * (x - mean)
	})
	if n < 2 {
		return 0
	}
	return math.Sqrt(m2 / n)
}

func clip(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// IsOutlier reports whether offsetNs is beyond the configured outlier
// threshold relative to the running median of recent offsets.
func (s *PiServo) IsOutlier(offsetNs float64) bool {
	if s.historyCount == 0 {
		return false
	}
	return math.Abs(offsetNs-s.medianOffset()) > s.cfg.OutlierThresholdNs
}

// Sample feeds one offset measurement (nanoseconds) taken syncInterval
// apart into the servo and returns the resulting correction.
//
// offset = (T2 − (T1 + correction)) − meanLinkDelay is computed by the
// caller (portsm.SiteSyncSync, using the mean link delay from package
// pathdelay); Sample
// only ever sees the already-combined nanosecond value.
func (s *PiServo) Sample(offsetNs float64, syncInterval time.Duration) Sample {
	s.samplesSeen++
	s.recordOffset(offsetNs)

	result := Sample{}

	if math.Abs(offsetNs) > float64(s.cfg.MaxPhaseAdjustment.Nanoseconds()) {
		result.PhaseAdjustmentNs = offsetNs
		s.integral = 0
		s.consecutiveLockSamples = 0
		s.locked = false
		s.haveLastFreqAdj = false
		log.Warningf("servo: phase step of %.0fns, resetting integral", offsetNs)
		result.FrequencyAdjustmentPPB = s.lastFreq
		result.Locked = false
		result.Confidence = s.confidence()
		return result
	}

	maxIntegral := 0.0
	if s.cfg.KI != 0 {
		maxIntegral = s.cfg.MaxFreqAdjustmentPPB / s.cfg.KI
	}
	s.integral = clip(s.integral+offsetNs, maxIntegral)

	freqAdj := s.cfg.KP*offsetNs + s.cfg.KI*s.integral
	freqAdj = clip(freqAdj, s.cfg.MaxFreqAdjustmentPPB)
	s.lastFreq = freqAdj

	syncIntervalNs := float64(syncInterval.Nanoseconds())
	lockThresholdOffset := s.cfg.LockThresholdPPB * syncIntervalNs / 1e9
	goodSample := math.Abs(offsetNs) < lockThresholdOffset
	if goodSample && s.haveLastFreqAdj {
		goodSample = math.Abs(freqAdj-s.lastFreqAdj) < s.cfg.LockThresholdPPB
	}
	s.lastFreqAdj = freqAdj
	s.haveLastFreqAdj = true

	if goodSample {
		s.consecutiveLockSamples++
	} else {
		s.consecutiveLockSamples = 0
	}
	wasLocked := s.locked
	s.locked = s.consecutiveLockSamples >= s.cfg.LockSamples
	if s.locked != wasLocked {
		log.Debugf("servo: lock state changed to %v after %d consecutive samples", s.locked, s.consecutiveLockSamples)
	}

	result.FrequencyAdjustmentPPB = freqAdj
	result.Locked = s.locked
	result.Confidence = s.confidence()
	return result
}

func (s *PiServo) confidence() float64 {
	stdev := s.stdevOffset()
	stability := 1.0 / (1.0 + stdev/1000.0) // 1µs = 1000ns
	lockFactor := 0.5
	if s.locked {
		lockFactor = 1.0
	}
	maxSamples := s.cfg.MaxSamples
	if maxSamples <= 0 {
		maxSamples = 1
	}
	sampleFactor := float64(s.samplesSeen) / float64(maxSamples)
	if sampleFactor > 1 {
		sampleFactor = 1
	}
	return stability * lockFactor * sampleFactor
}
