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

type recordingSyncSender struct {
	sentSyncs     []uint16
	sentFollowUps []uint16
}

func (r *recordingSyncSender) SendSync(seq uint16) {
	r.sentSyncs = append(r.sentSyncs, seq)
}

func (r *recordingSyncSender) SendFollowUp(seq uint16, _ protocol.Timestamp) {
	r.sentFollowUps = append(r.sentFollowUps, seq)
}

func TestMDSyncEmitsSyncOnTickWhenMaster(t *testing.T) {
	pool := protocol.NewSequencePool()
	sender := &recordingSyncSender{}
	m := NewMDSync(testPortIdentity(), pool, sender)

	m.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster})
	require.Equal(t, MDSyncSendSync, m.State())

	m.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "sync"})
	require.Equal(t, MDSyncWaitFollowUpTx, m.State())
	require.Equal(t, []uint16{0}, sender.sentSyncs)
	require.Empty(t, sender.sentFollowUps)
}

func TestMDSyncEmitsFollowUpOnTxTimestamp(t *testing.T) {
	pool := protocol.NewSequencePool()
	sender := &recordingSyncSender{}
	m := NewMDSync(testPortIdentity(), pool, sender)
	m.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster})
	m.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "sync"})

	m.HandleEvent(Event{Kind: EventTxTimestampReady, MsgType: protocol.MessageSync, Seq: 0, TxTimestamp: time.Unix(1000, 0)})
	require.Equal(t, MDSyncSendSync, m.State())
	require.Equal(t, []uint16{0}, sender.sentFollowUps)
}

func TestMDSyncDropsFollowUpIfTxTimestampNeverArrives(t *testing.T) {
	pool := protocol.NewSequencePool()
	sender := &recordingSyncSender{}
	m := NewMDSync(testPortIdentity(), pool, sender)
	m.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster})
	m.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "sync"})
	require.Equal(t, MDSyncWaitFollowUpTx, m.State())

	// Next tick arrives before the tx timestamp did.
	m.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "sync"})
	require.Equal(t, 1, m.DroppedCount())
	require.Equal(t, []uint16{0, 1}, sender.sentSyncs)
}

func TestMDSyncParksOnRoleChangeAwayFromMaster(t *testing.T) {
	pool := protocol.NewSequencePool()
	sender := &recordingSyncSender{}
	m := NewMDSync(testPortIdentity(), pool, sender)
	m.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster})
	m.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave})
	require.Equal(t, MDSyncInitializing, m.State())

	m.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "sync"})
	require.Empty(t, sender.sentSyncs, "must not emit Sync while not Master")
}

func TestMDSyncParksOnCapabilityLossAndResumesOnRegain(t *testing.T) {
	pool := protocol.NewSequencePool()
	sender := &recordingSyncSender{}
	m := NewMDSync(testPortIdentity(), pool, sender)
	m.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster})
	require.Equal(t, MDSyncSendSync, m.State())

	m.HandleEvent(Event{Kind: EventCapabilityChanged, Capable: false})
	require.Equal(t, MDSyncInitializing, m.State())

	m.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "sync"})
	require.Empty(t, sender.sentSyncs, "must not emit Sync while asCapable is false")

	m.HandleEvent(Event{Kind: EventCapabilityChanged, Capable: true})
	require.Equal(t, MDSyncSendSync, m.State())

	m.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "sync"})
	require.Equal(t, []uint16{0}, sender.sentSyncs)
}

func TestMDSyncIgnoresTxTimestampForStaleSeq(t *testing.T) {
	pool := protocol.NewSequencePool()
	sender := &recordingSyncSender{}
	m := NewMDSync(testPortIdentity(), pool, sender)
	m.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster})
	m.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "sync"})

	m.HandleEvent(Event{Kind: EventTxTimestampReady, MsgType: protocol.MessageSync, Seq: 99, TxTimestamp: time.Unix(1000, 0)})
	require.Empty(t, sender.sentFollowUps)
	require.Equal(t, MDSyncWaitFollowUpTx, m.State())
}
