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
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is one state of the per-port peer-delay state machine (IEEE
// 802.1AS §16.4.3, "LinkDelaySyncIntervalSetting"/"MDPdelayReq" state
// machines, collapsed into a single driver).
type State int

// Peer-delay engine states.
const (
	StateNotEnabled State = iota
	StateInitialSend
	StateReset
	StateSend
	StateWaitResp
	StateWaitRespFollowUp
)

func (s State) String() string {
	switch s {
	case StateNotEnabled:
		return "NOT_ENABLED"
	case StateInitialSend:
		return "INITIAL_SEND"
	case StateReset:
		return "RESET"
	case StateSend:
		return "SEND"
	case StateWaitResp:
		return "WAIT_RESP"
	case StateWaitRespFollowUp:
		return "WAIT_RESP_FOLLOW_UP"
	}
	return "UNKNOWN"
}

// Config holds the tunables of one port's Engine.
type Config struct {
	ResponseTimeout         time.Duration // default 100ms
	MaxLinkDelay            time.Duration // profile-dependent; see NewConfigForProfile
	RateRatioWindow         int           // default 10
	MinConsecutiveForCapable int          // default 2
	MaxRejectedRatioStreak   int          // default 3
}

// Profile names recognized by NewConfigForProfile.
const (
	ProfileAutomotive    = "automotive"
	ProfileIndustrial    = "industrial"
	ProfileHighPrecision = "high_precision"
)

// NewConfigForProfile returns the default Config for a named path-delay
// profile, selecting its configured max link delay.
func NewConfigForProfile(profile string) Config {
	cfg := Config{
		ResponseTimeout:          100 * time.Millisecond,
		RateRatioWindow:          defaultRateRatioWindow,
		MinConsecutiveForCapable: 2,
		MaxRejectedRatioStreak:   3,
	}
	switch profile {
	case ProfileIndustrial:
		cfg.MaxLinkDelay = 10 * time.Millisecond
	case ProfileHighPrecision:
		cfg.MaxLinkDelay = 100 * time.Microsecond
	default:
		cfg.MaxLinkDelay = 500 * time.Microsecond
	}
	return cfg
}

// pending holds the in-flight exchange's timestamps as they accumulate.
type pending struct {
	seq uint16
	t1  time.Time
	t2  time.Time
	t4  time.Time
}

// Engine drives one port's peer-delay state machine and feeds completed
// exchanges to its configured Calculator.
type Engine struct {
	mu sync.Mutex

	cfg   Config
	calc  Calculator
	state State

	cur pending

	deadline time.Time // WaitResp/WaitRespFollowUp timeout

	rejectedRatioStreak int
	consecutiveGood      int
	asCapable            bool

	lastResult Result
}

// NewEngine constructs an Engine in StateNotEnabled.
func NewEngine(calc Calculator, cfg Config) *Engine {
	return &Engine{cfg: cfg, calc: calc, state: StateNotEnabled, lastResult: Result{NeighborRateRatio: 1.0}}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AsCapable reports whether this port has exchanged enough consecutive
// valid peer-delay measurements to be considered "asCapable" (802.1AS
// §10.2.4.24), a prerequisite for the port to forward sync.
func (e *Engine) AsCapable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.asCapable
}

// LastResult returns the most recently computed delay/ratio result.
func (e *Engine) LastResult() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResult
}

// Enable transitions NotEnabled -> InitialSend, the entry point for a port
// becoming active.
func (e *Engine) Enable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateInitialSend
}

// Disable transitions back to NotEnabled and clears asCapable.
func (e *Engine) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateNotEnabled
	e.asCapable = false
	e.consecutiveGood = 0
}

// ReadyToSend reports whether the engine is in a state where the interval
// timer firing should cause a Pdelay_Req to be sent (InitialSend, Reset or
// Send), advancing InitialSend and Reset to Send.
func (e *Engine) ReadyToSend() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateInitialSend, StateReset:
		e.state = StateSend
		return true
	case StateSend:
		return true
	}
	return false
}

// OnRequestSent records T1 (the captured tx timestamp of the Pdelay_Req
// just sent) and transitions Send -> WaitResp.
func (e *Engine) OnRequestSent(seq uint16, t1 time.Time, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cur = pending{seq: seq, t1: t1}
	e.state = StateWaitResp
	e.deadline = now.Add(e.cfg.ResponseTimeout)
}

// OnPdelayResp records T2 (from the Pdelay_Resp body) and T4 (this port's
// rx timestamp of the Pdelay_Resp frame), and transitions WaitResp ->
// WaitRespFollowUp. A sequence mismatch is reported and the engine stays in
// WaitResp, awaiting either a retransmission or the timeout.
func (e *Engine) OnPdelayResp(seq uint16, t2 time.Time, rxTimestamp time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateWaitResp {
		return fmt.Errorf("pathdelay: Pdelay_Resp in state %s, dropped", e.state)
	}
	if seq != e.cur.seq {
		return fmt.Errorf("pathdelay: Pdelay_Resp seq %d != outstanding %d", seq, e.cur.seq)
	}
	e.cur.t2 = t2
	e.cur.t4 = rxTimestamp
	e.state = StateWaitRespFollowUp
	return nil
}

// OnPdelayRespFollowUp records T3 (the responder's tx timestamp of
// Pdelay_Resp, carried by Pdelay_Resp_Follow_Up), completes the exchange,
// computes the delay/ratio result, and returns to Send.
func (e *Engine) OnPdelayRespFollowUp(seq uint16, t3 time.Time) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateWaitRespFollowUp {
		return Result{}, fmt.Errorf("pathdelay: Pdelay_Resp_Follow_Up in state %s, dropped", e.state)
	}
	if seq != e.cur.seq {
		return Result{}, fmt.Errorf("pathdelay: Pdelay_Resp_Follow_Up seq %d != outstanding %d", seq, e.cur.seq)
	}
	t1, t2, t4 := e.cur.t1, e.cur.t2, e.cur.t4
	e.state = StateSend

	res, err := e.calc.AddExchange(Exchange{T1: t1, T2: t2, T3: t3, T4: t4})
	if err != nil {
		e.rejectedRatioStreak++
		e.consecutiveGood = 0
		if e.rejectedRatioStreak >= e.cfg.MaxRejectedRatioStreak {
			if e.asCapable {
				log.Warningf("pathdelay: clearing asCapable after %d rejected exchanges", e.rejectedRatioStreak)
			}
			e.asCapable = false
		}
		return Result{}, err
	}
	e.rejectedRatioStreak = 0
	e.consecutiveGood++
	if e.consecutiveGood >= e.cfg.MinConsecutiveForCapable {
		e.asCapable = true
	}
	e.lastResult = res
	return res, nil
}

// Timeout checks the response deadline and, if exceeded while waiting on a
// peer, moves the engine to Reset (the exchange is abandoned; the next
// ReadyToSend sends a fresh request) and reports whether a timeout action
// was taken.
func (e *Engine) Timeout(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateWaitResp && e.state != StateWaitRespFollowUp {
		return false
	}
	if now.Before(e.deadline) {
		return false
	}
	e.state = StateReset
	e.rejectedRatioStreak++
	e.consecutiveGood = 0
	if e.rejectedRatioStreak >= e.cfg.MaxRejectedRatioStreak {
		e.asCapable = false
	}
	return true
}
