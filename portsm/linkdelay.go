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

package portsm

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gptp-go/gptpd/pathdelay"
	"github.com/gptp-go/gptpd/protocol"
)

// PdelayReqSender is the callback surface LinkDelay uses to transmit
// Pdelay_Req frames.
type PdelayReqSender interface {
	SendPdelayReq(seq uint16)
}

// LinkDelay is the thin Event-dispatch adapter around a pathdelay.Engine:
// it is enabled/disabled by port-enable and link up/down events, drives the Engine off the
// "pdelay" interval timer, and converts incoming Pdelay_Resp /
// Pdelay_Resp_Follow_Up messages into Engine calls.
type LinkDelay struct {
	mu sync.Mutex

	portIdentity protocol.PortIdentity
	engine       *pathdelay.Engine
	sender       PdelayReqSender
	nextSeq      uint16

	onCapabilityChange func(capable bool)
	lastCapable        bool
}

// NewLinkDelay wraps engine for event-driven use by one port.
func NewLinkDelay(portIdentity protocol.PortIdentity, engine *pathdelay.Engine, sender PdelayReqSender) *LinkDelay {
	return &LinkDelay{portIdentity: portIdentity, engine: engine, sender: sender}
}

// OnCapabilityChange registers a callback invoked whenever the wrapped
// engine's AsCapable() flips, so the port's other state machines can
// react to gaining or losing peer-delay measurement (802.1AS §10.2.4.24).
func (l *LinkDelay) OnCapabilityChange(cb func(capable bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCapabilityChange = cb
}

func (l *LinkDelay) checkCapabilityChange() {
	l.mu.Lock()
	capable := l.engine.AsCapable()
	changed := capable != l.lastCapable
	l.lastCapable = capable
	cb := l.onCapabilityChange
	l.mu.Unlock()
	if changed && cb != nil {
		cb(capable)
	}
}

// Engine returns the wrapped pathdelay.Engine, e.g. for AsCapable()/LastResult().
func (l *LinkDelay) Engine() *pathdelay.Engine {
	return l.engine
}

// MeanLinkDelay returns the current filtered mean link delay, for use as
// SiteSyncSync's pathDelay callback.
func (l *LinkDelay) MeanLinkDelay() time.Duration {
	return l.engine.LastResult().FilteredMeanLinkDelay
}

// HandleEvent applies ev to the wrapped engine.
func (l *LinkDelay) HandleEvent(ev Event, now time.Time) {
	switch ev.Kind {
	case EventPortEnabled, EventLinkUp:
		l.engine.Enable()

	case EventPortDisabled, EventLinkDown:
		l.engine.Disable()
		l.checkCapabilityChange()

	case EventIntervalTimer:
		if ev.Timer != "pdelay" {
			return
		}
		if !l.engine.ReadyToSend() {
			return
		}
		l.mu.Lock()
		seq := l.nextSeq
		l.nextSeq++
		l.mu.Unlock()
		l.sender.SendPdelayReq(seq)
		l.engine.OnRequestSent(seq, now, now)

	case EventMessageReceived:
		switch ev.MsgType {
		case protocol.MessagePDelayResp:
			l.handlePdelayResp(ev, now)
		case protocol.MessagePDelayRespFollowUp:
			l.handlePdelayRespFollowUp(ev)
		}
	}
}

func (l *LinkDelay) handlePdelayResp(ev Event, now time.Time) {
	resp := ev.PdelayRespMessage
	if resp == nil {
		return
	}
	if err := l.engine.OnPdelayResp(ev.Seq, resp.RequestReceiptTimestamp.Time(), now); err != nil {
		logrus.Debugf("portsm: port %s %v", l.portIdentity, err)
	}
}

func (l *LinkDelay) handlePdelayRespFollowUp(ev Event) {
	fu := ev.PdelayRespFollowUpMessage
	if fu == nil {
		return
	}
	if _, err := l.engine.OnPdelayRespFollowUp(ev.Seq, fu.ResponseOriginTimestamp.Time()); err != nil {
		logrus.Debugf("portsm: port %s %v", l.portIdentity, err)
	}
	l.checkCapabilityChange()
}

// Timeout sweeps the wrapped engine's response deadline.
func (l *LinkDelay) Timeout(now time.Time) bool {
	timedOut := l.engine.Timeout(now)
	l.checkCapabilityChange()
	return timedOut
}
