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

// Package simtransport is an in-memory implementation of the gptpio
// interfaces, for the two-node demo and for tests that need something
// more end-to-end than a single package's unit tests. It is glue code,
// not part of the single-threaded core: each frame is delivered from its
// own time.AfterFunc timer goroutine once the link delay has passed,
// independently of the caller.
package simtransport

import (
	"fmt"
	"sync"
	"time"
)

// Link joins two Endpoints with a fixed one-way propagation delay in
// both directions.
type Link struct {
	delay time.Duration
}

// NewPair returns two Endpoints wired together through a Link with the
// given one-way propagation delay.
func NewPair(delay time.Duration) (*Endpoint, *Endpoint) {
	link := &Link{delay: delay}
	a := &Endpoint{id: 1, link: link}
	b := &Endpoint{id: 2, link: link}
	a.peer = b
	b.peer = a
	return a, b
}

// Endpoint is one side of a simulated point-to-point gPTP link.
// Implements gptpio.Transport.
type Endpoint struct {
	id   byte
	link *Link
	peer *Endpoint

	mu       sync.Mutex
	callback func(port uint16, payload []byte, rxTimestamp time.Time)
	dropAll  bool
}

// Send transmits payload to the peer endpoint after the link's
// propagation delay and returns this node's software tx timestamp
// (taken immediately, per gptpio.Transport's deadline contract).
func (e *Endpoint) Send(port uint16, payload []byte) (time.Time, error) {
	now := time.Now()
	e.mu.Lock()
	drop := e.dropAll
	e.mu.Unlock()
	if drop {
		return now, nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	delay := e.link.delay
	peer := e.peer
	time.AfterFunc(delay, func() {
		peer.deliver(port, cp)
	})
	return now, nil
}

// OnReceive registers the callback invoked for every frame this endpoint
// receives from its peer.
func (e *Endpoint) OnReceive(callback func(port uint16, payload []byte, rxTimestamp time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = callback
}

// InterfaceMAC returns a deterministic fake MAC for port, unique per
// endpoint and port number so ClockIdentity derivation in tests is
// reproducible.
func (e *Endpoint) InterfaceMAC(port uint16) ([6]byte, error) {
	return [6]byte{0x02, 0x00, 0x00, 0x00, e.id, byte(port)}, nil
}

// SetDropAll makes every future Send a silent no-op, simulating a
// severed link without tearing down the Endpoint.
func (e *Endpoint) SetDropAll(drop bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropAll = drop
}

func (e *Endpoint) deliver(port uint16, payload []byte) {
	e.mu.Lock()
	cb := e.callback
	e.mu.Unlock()
	if cb == nil {
		return
	}
	cb(port, payload, time.Now())
}

// Clock is a simulated disciplined hardware clock: frequency and phase
// adjustments are applied against a real-time anchor, so Now() tracks
// wall-clock time skewed by whatever the servo has requested so far.
// Implements both gptpio.HardwareClock and gptpio.MonotonicClock (the
// demo uses one instance as both, matching a PHC also used for
// interval-timer deadlines).
type Clock struct {
	mu          sync.Mutex
	anchorWall  time.Time
	anchorValue time.Time
	freqPPB     float64
	maxFreqPPB  float64
}

// NewClock returns a Clock starting at start, accepting frequency
// adjustments up to maxFreqPPB in either direction.
func NewClock(start time.Time, maxFreqPPB float64) *Clock {
	return &Clock{anchorWall: time.Now(), anchorValue: start, maxFreqPPB: maxFreqPPB}
}

// Now returns the clock's current disciplined time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() time.Time {
	elapsed := time.Since(c.anchorWall)
	skewed := time.Duration(float64(elapsed) * (1 + c.freqPPB*1e-9))
	return c.anchorValue.Add(skewed)
}

// rebaseLocked folds elapsed time under the current frequency into the
// anchor, so a later Now() call composes adjustments correctly.
func (c *Clock) rebaseLocked() {
	c.anchorValue = c.nowLocked()
	c.anchorWall = time.Now()
}

// AdjustFrequency sets the clock's frequency offset, clamping to
// ±maxFreqPPB and reporting the clamped value actually applied.
func (c *Clock) AdjustFrequency(ppb float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebaseLocked()
	actual := ppb
	if c.maxFreqPPB > 0 {
		if actual > c.maxFreqPPB {
			actual = c.maxFreqPPB
		}
		if actual < -c.maxFreqPPB {
			actual = -c.maxFreqPPB
		}
	}
	c.freqPPB = actual
	return actual, nil
}

// AdjustPhase steps the clock by delta immediately.
func (c *Clock) AdjustPhase(delta time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebaseLocked()
	c.anchorValue = c.anchorValue.Add(delta)
	return nil
}

func (c *Clock) String() string {
	return fmt.Sprintf("simclock(now=%s freqPPB=%.2f)", c.Now(), c.freqPPB)
}
