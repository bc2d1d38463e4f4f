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

	"github.com/gptp-go/gptpd/bmca"
	"github.com/gptp-go/gptpd/protocol"
)

func testPortIdentity() protocol.PortIdentity {
	return protocol.PortIdentity{ClockIdentity: 1, PortNumber: 1}
}

func TestPortSyncMasterForwardsImmediately(t *testing.T) {
	p := NewPortSync(testPortIdentity(), 125*time.Millisecond)
	require.False(t, p.Forwarding())

	p.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster}, time.Now())
	require.True(t, p.Forwarding())
}

func TestPortSyncSlaveWaitsForFirstValidSync(t *testing.T) {
	p := NewPortSync(testPortIdentity(), 125*time.Millisecond)
	now := time.Unix(1000, 0)

	p.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)
	require.False(t, p.Forwarding(), "no valid sync received yet")

	p.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync}, now)
	require.True(t, p.Forwarding())
}

func TestPortSyncSlaveRevertsOnReceiptTimeout(t *testing.T) {
	p := NewPortSync(testPortIdentity(), 125*time.Millisecond)
	now := time.Unix(1000, 0)

	p.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)
	p.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync}, now)
	require.True(t, p.Forwarding())

	p.HandleEvent(Event{Kind: EventIntervalTimer}, now.Add(500*time.Millisecond))
	require.False(t, p.Forwarding(), "3x syncInterval elapsed with no fresh sync")
}

func TestPortSyncDisabledOnLinkDown(t *testing.T) {
	p := NewPortSync(testPortIdentity(), 125*time.Millisecond)
	now := time.Unix(1000, 0)
	p.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster}, now)
	require.True(t, p.Forwarding())

	p.HandleEvent(Event{Kind: EventLinkDown}, now)
	require.False(t, p.Forwarding())
}

func TestPortSyncCollapsesToDiscardOnCapabilityLoss(t *testing.T) {
	p := NewPortSync(testPortIdentity(), 125*time.Millisecond)
	now := time.Unix(1000, 0)
	p.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster}, now)
	require.True(t, p.Forwarding())

	p.HandleEvent(Event{Kind: EventCapabilityChanged, Capable: false}, now)
	require.False(t, p.Forwarding(), "asCapable loss must collapse forwarding regardless of role")

	p.HandleEvent(Event{Kind: EventCapabilityChanged, Capable: true}, now)
	require.True(t, p.Forwarding(), "capability regained restores the role-derived state")
}

func TestPortSyncIgnoresUnrelatedMessageTypes(t *testing.T) {
	p := NewPortSync(testPortIdentity(), 125*time.Millisecond)
	now := time.Unix(1000, 0)
	p.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)
	p.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageAnnounce}, now)
	require.False(t, p.Forwarding())
}
