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

package pathdelay

import (
	"fmt"
	"time"
)

// filterLength is the size of the median filter applied to raw mean link
// delay samples (IEEE 802.1AS §16.4.3: "last 8 values").
const filterLength = 8

// defaultRateRatioWindow is the number of peer-delay exchanges bracketing
// the neighbor rate ratio regression (Eq. 16-1).
const defaultRateRatioWindow = 10

// rateRatioMin and rateRatioMax bound an accepted neighbor rate ratio; a
// computed ratio outside this range is rejected and the previous value is
// retained.
const (
	rateRatioMin = 0.9998
	rateRatioMax = 1.0002
)

var errRateRatioOutOfRange = fmt.Errorf("neighbor rate ratio out of range")
var errRateRatioNoWindow = fmt.Errorf("rate ratio window not yet full")

// Exchange carries everything one completed peer-delay round might supply.
// Which fields matter depends on the Calculator: StandardP2P uses T1..T4,
// NativeCSN uses ExternalDelay/ExternalRatio, IntrinsicCSN uses
// ResidenceTime. Unused fields are ignored by a given implementation.
type Exchange struct {
	T1, T2, T3, T4 time.Time
	ExternalDelay  time.Duration
	ExternalRatio  float64
	ResidenceTime  time.Duration
}

// Result is one calculator output: the raw and filtered mean link delay and
// the current neighbor rate ratio estimate.
type Result struct {
	MeanLinkDelay         time.Duration
	FilteredMeanLinkDelay time.Duration
	NeighborRateRatio     float64
	RateRatioValid        bool
}

// Calculator computes mean link delay and neighbor rate ratio from
// completed peer-delay exchanges. Three variants exist (StandardP2P,
// NativeCSN, IntrinsicCSN); selection is per-port configuration and does
// not change at runtime.
type Calculator interface {
	// AddExchange records one completed exchange and returns the updated
	// result, or an error if the exchange fails validation (the previous
	// delay/ratio are retained in that case).
	AddExchange(ex Exchange) (Result, error)
}

// StandardP2P implements Eq. 16-1 (neighbor rate ratio) and Eq. 16-2 (mean
// link delay) over raw T1..T4 timestamps, per IEEE 802.1AS §16.4.3.2.
type StandardP2P struct {
	windowSize int
	maxDelay   time.Duration

	t3Window []time.Time // ring of responder tx timestamps, oldest first
	t4Window []time.Time // ring of initiator rx timestamps, paired with t3Window
	windowLen int
	windowPos int

	ratio      float64
	ratioValid bool

	delays *slidingWindow
}

// NewStandardP2P constructs a StandardP2P calculator. windowN is the
// neighbor-rate-ratio regression window size (0 selects the default of
// 10); maxDelay bounds accepted mean link delay per exchange (0 disables
// the bound).
func NewStandardP2P(windowN int, maxDelay time.Duration) *StandardP2P {
	if windowN <= 0 {
		windowN = defaultRateRatioWindow
	}
	return &StandardP2P{
		windowSize: windowN + 1, // indices 0..N bracket the window
		maxDelay:   maxDelay,
		t3Window:   make([]time.Time, windowN+1),
		t4Window:   make([]time.Time, windowN+1),
		ratio:      1.0,
		delays:     newSlidingWindow(filterLength),
	}
}

func (c *StandardP2P) pushWindow(t3, t4 time.Time) {
	c.t3Window[c.windowPos] = t3
	c.t4Window[c.windowPos] = t4
	c.windowPos = (c.windowPos + 1) % c.windowSize
	if c.windowLen < c.windowSize {
		c.windowLen++
	}
}

func (c *StandardP2P) updateRatio() error {
	if c.windowLen < c.windowSize {
		return errRateRatioNoWindow
	}
	// oldest sample is at windowPos (the slot about to be overwritten next);
	// newest sample is the one just written, i.e. one behind windowPos.
	oldest := c.windowPos
	newest := (c.windowPos - 1 + c.windowSize) % c.windowSize
	dT3 := c.t3Window[newest].Sub(c.t3Window[oldest])
	dT4 := c.t4Window[newest].Sub(c.t4Window[oldest])
	if dT4 == 0 {
		return errRateRatioOutOfRange
	}
	ratio := float64(dT3) / float64(dT4)
	if ratio < rateRatioMin || ratio > rateRatioMax {
		return errRateRatioOutOfRange
	}
	c.ratio = ratio
	c.ratioValid = true
	return nil
}

// AddExchange implements Calculator.
func (c *StandardP2P) AddExchange(ex Exchange) (Result, error) {
	if !ex.T4.After(ex.T1) {
		return Result{}, fmt.Errorf("pathdelay: T4 <= T1")
	}
	if ex.T3.Before(ex.T2) {
		return Result{}, fmt.Errorf("pathdelay: T3 < T2")
	}

	c.pushWindow(ex.T3, ex.T4)
	_ = c.updateRatio() // rejection retains the previous ratio, per Eq. 16-1

	raw := time.Duration((float64(ex.T4.Sub(ex.T1))*c.ratio - float64(ex.T3.Sub(ex.T2))) / 2)
	if raw < 0 {
		raw = 0
	}
	if c.maxDelay > 0 && raw > c.maxDelay {
		return Result{}, fmt.Errorf("pathdelay: mean link delay %s exceeds max %s", raw, c.maxDelay)
	}

	c.delays.add(float64(raw))
	filtered := time.Duration(c.delays.median())

	return Result{
		MeanLinkDelay:         raw,
		FilteredMeanLinkDelay: filtered,
		NeighborRateRatio:     c.ratio,
		RateRatioValid:        c.ratioValid,
	}, nil
}

// NativeCSN accepts an externally supplied (delay, ratio) pair per
// exchange, bypassing Eqs. 16-1/16-2 entirely (IEEE 802.1AS §16.4.3.3).
type NativeCSN struct {
	delays *slidingWindow
	ratio  float64
}

// NewNativeCSN constructs a NativeCSN calculator.
func NewNativeCSN() *NativeCSN {
	return &NativeCSN{delays: newSlidingWindow(filterLength), ratio: 1.0}
}

// AddExchange implements Calculator.
func (c *NativeCSN) AddExchange(ex Exchange) (Result, error) {
	if ex.ExternalDelay < 0 {
		return Result{}, fmt.Errorf("pathdelay: negative external delay")
	}
	c.ratio = ex.ExternalRatio
	c.delays.add(float64(ex.ExternalDelay))
	return Result{
		MeanLinkDelay:         ex.ExternalDelay,
		FilteredMeanLinkDelay: time.Duration(c.delays.median()),
		NeighborRateRatio:     c.ratio,
		RateRatioValid:        true,
	}, nil
}

// IntrinsicCSN assumes a fully time-synchronized underlying network and
// reports meanLinkDelay = residenceTime, neighborRateRatio = 1.0 (IEEE
// 802.1AS §16.4.3.4).
type IntrinsicCSN struct{}

// NewIntrinsicCSN constructs an IntrinsicCSN calculator.
func NewIntrinsicCSN() *IntrinsicCSN { return &IntrinsicCSN{} }

// AddExchange implements Calculator.
func (c *IntrinsicCSN) AddExchange(ex Exchange) (Result, error) {
	return Result{
		MeanLinkDelay:         ex.ResidenceTime,
		FilteredMeanLinkDelay: ex.ResidenceTime,
		NeighborRateRatio:     1.0,
		RateRatioValid:        true,
	}, nil
}
