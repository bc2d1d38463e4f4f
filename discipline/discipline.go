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

// Package discipline applies servo output to a disciplined hardware clock:
// it separates the continuous frequency-adjustment path from the rare,
// disruptive phase-step path, and tracks cumulative applied adjustment,
// clamp events, and lock state for status readouts.
package discipline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/gptp-go/gptpd/gptpio"
	"github.com/gptp-go/gptpd/servo"
)

// Adapter drives one gptpio.HardwareClock from servo.Sample results.
// node.Manager creates one Adapter per domain; Apply and the status
// readouts are serialized by an internal mutex.
type Adapter struct {
	clock gptpio.HardwareClock
	label string

	mu                  sync.Mutex
	cumulativeAdjustPPB float64
	lastPhaseStep       time.Duration
	lastPhaseStepAt     time.Time
	rejectedCount       int

	freqGauge       prometheus.Gauge
	cumulativeGauge prometheus.Gauge
	phaseStepGauge  prometheus.Gauge
	rejectedCounter prometheus.Counter
	lockedGauge     prometheus.Gauge
}

// NewAdapter constructs an Adapter for clock, registering its gauges under
// label (typically "domain<N>") with registry. registry may be nil, in
// which case metrics are computed but never exported.
func NewAdapter(clock gptpio.HardwareClock, label string, registry *prometheus.Registry) *Adapter {
	a := &Adapter{
		clock: clock,
		label: label,
		freqGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gptp_discipline_frequency_adjustment_ppb",
			Help:        "Last frequency adjustment applied to the hardware clock, in ppb.",
			ConstLabels: prometheus.Labels{"domain": label},
		}),
		cumulativeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gptp_discipline_cumulative_frequency_adjustment_ppb",
			Help:        "Cumulative applied frequency adjustment, in ppb.",
			ConstLabels: prometheus.Labels{"domain": label},
		}),
		phaseStepGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gptp_discipline_last_phase_step_ns",
			Help:        "Most recent phase step applied to the hardware clock, in nanoseconds.",
			ConstLabels: prometheus.Labels{"domain": label},
		}),
		rejectedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gptp_discipline_rejected_adjustments_total",
			Help:        "Count of hardware-clock adjustments the clock rejected or clamped.",
			ConstLabels: prometheus.Labels{"domain": label},
		}),
		lockedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gptp_discipline_locked",
			Help:        "1 if the servo driving this clock reports locked, 0 otherwise.",
			ConstLabels: prometheus.Labels{"domain": label},
		}),
	}
	if registry != nil {
		for _, c := range []prometheus.Collector{a.freqGauge, a.cumulativeGauge, a.phaseStepGauge, a.rejectedCounter, a.lockedGauge} {
			_ = registry.Register(c)
		}
	}
	return a
}

// Apply applies one servo.Sample to the hardware clock: a phase step if
// the sample carries one, otherwise a frequency adjustment. If the clock
// clamps or rejects the requested adjustment, Apply logs a warning and
// records it, but never mutates sample or notifies the servo — the
// servo's integral must stay consistent with what it computed.
func (a *Adapter) Apply(sample servo.Sample, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lockedGauge.Set(boolToFloat(sample.Locked))

	if sample.PhaseAdjustmentNs != 0 {
		step := time.Duration(sample.PhaseAdjustmentNs)
		if err := a.clock.AdjustPhase(step); err != nil {
			a.rejectedCount++
			a.rejectedCounter.Inc()
			log.Warningf("discipline[%s]: hardware clock rejected phase step of %s: %v", a.label, step, err)
			return
		}
		a.lastPhaseStep = step
		a.lastPhaseStepAt = now
		a.phaseStepGauge.Set(float64(step.Nanoseconds()))
		return
	}

	actual, err := a.clock.AdjustFrequency(sample.FrequencyAdjustmentPPB)
	if err != nil {
		a.rejectedCount++
		a.rejectedCounter.Inc()
		log.Warningf("discipline[%s]: hardware clock rejected frequency adjustment of %.2fppb: %v", a.label, sample.FrequencyAdjustmentPPB, err)
		return
	}
	if actual != sample.FrequencyAdjustmentPPB {
		a.rejectedCount++
		a.rejectedCounter.Inc()
		log.Warningf("discipline[%s]: hardware clock clamped frequency adjustment %.2fppb to %.2fppb", a.label, sample.FrequencyAdjustmentPPB, actual)
	}
	a.cumulativeAdjustPPB += actual
	a.freqGauge.Set(actual)
	a.cumulativeGauge.Set(a.cumulativeAdjustPPB)
}

// CumulativeFrequencyPPB returns the sum of every frequency adjustment
// actually applied (post-clamp) to the hardware clock so far.
func (a *Adapter) CumulativeFrequencyPPB() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cumulativeAdjustPPB
}

// LastPhaseStep returns the most recently applied phase step and when it
// was applied; the zero Time means none has ever been applied.
func (a *Adapter) LastPhaseStep() (time.Duration, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPhaseStep, a.lastPhaseStepAt
}

// RejectedCount returns how many adjustments the hardware clock has
// clamped or rejected since the Adapter was created.
func (a *Adapter) RejectedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rejectedCount
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
