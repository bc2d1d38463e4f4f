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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gptp-go/gptpd/pathdelay"
	"github.com/gptp-go/gptpd/protocol"
)

type recordingPdelaySender struct {
	sent []uint16
}

func (r *recordingPdelaySender) SendPdelayReq(seq uint16) {
	r.sent = append(r.sent, seq)
}

func newTestLinkDelay() (*LinkDelay, *recordingPdelaySender) {
	calc := pathdelay.NewStandardP2P(10, 500*time.Microsecond)
	engine := pathdelay.NewEngine(calc, pathdelay.NewConfigForProfile(pathdelay.ProfileAutomotive))
	sender := &recordingPdelaySender{}
	return NewLinkDelay(testPortIdentity(), engine, sender), sender
}

func TestLinkDelayEnablesOnPortEnabledAndSendsOnTick(t *testing.T) {
	l, sender := newTestLinkDelay()
	now := time.Unix(1000, 0)
	l.HandleEvent(Event{Kind: EventPortEnabled}, now)
	require.Equal(t, pathdelay.StateInitialSend, l.Engine().State())

	l.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "pdelay"}, now)
	require.Equal(t, pathdelay.StateWaitResp, l.Engine().State())
	require.Equal(t, []uint16{0}, sender.sent)
}

func TestLinkDelayFullExchangeSetsAsCapableOverTime(t *testing.T) {
	l, _ := newTestLinkDelay()
	base := time.Unix(1000, 0)
	l.HandleEvent(Event{Kind: EventPortEnabled}, base)

	for i := 0; i < 2; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		l.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "pdelay"}, now)

		resp := &protocol.PDelayResp{
			Header:         protocol.Header{SequenceID: uint16(i)},
			PDelayRespBody: protocol.PDelayRespBody{RequestReceiptTimestamp: protocol.NewTimestamp(now.Add(5 * time.Microsecond))},
		}
		l.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessagePDelayResp, Seq: uint16(i), PdelayRespMessage: resp}, now.Add(210*time.Microsecond))

		fu := &protocol.PDelayRespFollowUp{
			Header:                 protocol.Header{SequenceID: uint16(i)},
			PDelayRespFollowUpBody: protocol.PDelayRespFollowUpBody{ResponseOriginTimestamp: protocol.NewTimestamp(now.Add(205 * time.Microsecond))},
		}
		l.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessagePDelayRespFollowUp, Seq: uint16(i), PdelayRespFollowUpMessage: fu}, now)
	}

	require.True(t, l.Engine().AsCapable())
}

func TestLinkDelayDisablesOnLinkDown(t *testing.T) {
	l, _ := newTestLinkDelay()
	now := time.Unix(1000, 0)
	l.HandleEvent(Event{Kind: EventPortEnabled}, now)
	l.HandleEvent(Event{Kind: EventLinkDown}, now)
	require.Equal(t, pathdelay.StateNotEnabled, l.Engine().State())
}

func TestLinkDelayNotifiesOnCapabilityGainedAndLost(t *testing.T) {
	l, _ := newTestLinkDelay()
	var transitions []bool
	l.OnCapabilityChange(func(capable bool) { transitions = append(transitions, capable) })

	base := time.Unix(1000, 0)
	l.HandleEvent(Event{Kind: EventPortEnabled}, base)

	for i := 0; i < 2; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		l.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "pdelay"}, now)
		resp := &protocol.PDelayResp{
			Header:         protocol.Header{SequenceID: uint16(i)},
			PDelayRespBody: protocol.PDelayRespBody{RequestReceiptTimestamp: protocol.NewTimestamp(now.Add(5 * time.Microsecond))},
		}
		l.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessagePDelayResp, Seq: uint16(i), PdelayRespMessage: resp}, now.Add(210*time.Microsecond))
		fu := &protocol.PDelayRespFollowUp{
			Header:                 protocol.Header{SequenceID: uint16(i)},
			PDelayRespFollowUpBody: protocol.PDelayRespFollowUpBody{ResponseOriginTimestamp: protocol.NewTimestamp(now.Add(205 * time.Microsecond))},
		}
		l.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessagePDelayRespFollowUp, Seq: uint16(i), PdelayRespFollowUpMessage: fu}, now)
	}
	require.True(t, l.Engine().AsCapable())
	require.Equal(t, []bool{true}, transitions)

	l.HandleEvent(Event{Kind: EventLinkDown}, base.Add(3*time.Second))
	require.Equal(t, []bool{true, false}, transitions)
}

func TestLinkDelayTimeoutResetsEngine(t *testing.T) {
	l, _ := newTestLinkDelay()
	now := time.Unix(1000, 0)
	l.HandleEvent(Event{Kind: EventPortEnabled}, now)
	l.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "pdelay"}, now)
	require.Equal(t, pathdelay.StateWaitResp, l.Engine().State())

	require.True(t, l.Timeout(now.Add(time.Second)))
	require.Equal(t, pathdelay.StateReset, l.Engine().State())
}
