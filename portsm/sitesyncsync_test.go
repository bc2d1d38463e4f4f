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

func noDelay() time.Duration { return 0 }

func TestSiteSyncSyncTwoStepResolvesOnFollowUp(t *testing.T) {
	var got []OffsetSample
	s := NewSiteSyncSync(testPortIdentity(), noDelay, func(o OffsetSample) { got = append(got, o) })
	now := time.Unix(1000, 0)
	s.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)

	masterOrigin := protocol.NewTimestamp(time.Unix(1000, 0))
	sync := &protocol.Sync{
		Header:   protocol.Header{FlagField: protocol.FlagTwoStep, SequenceID: 7},
		SyncBody: protocol.SyncBody{OriginTimestamp: masterOrigin},
	}
	rx := now.Add(10 * time.Millisecond)
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync, Seq: 7, SyncMessage: sync}, rx)
	require.Empty(t, got, "two-step Sync alone must not resolve an offset")

	fu := &protocol.FollowUp{
		Header:       protocol.Header{SequenceID: 7},
		FollowUpBody: protocol.FollowUpBody{PreciseOriginTimestamp: masterOrigin},
	}
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageFollowUp, Seq: 7, FollowUpMessage: fu}, rx.Add(time.Millisecond))
	require.Len(t, got, 1)
	require.Equal(t, uint16(7), got[0].Seq)
	require.InDelta(t, (10 * time.Millisecond).Seconds(), got[0].OffsetFromMaster.Seconds(), 0.001)
}

func TestSiteSyncSyncOneStepResolvesImmediately(t *testing.T) {
	var got []OffsetSample
	s := NewSiteSyncSync(testPortIdentity(), noDelay, func(o OffsetSample) { got = append(got, o) })
	now := time.Unix(2000, 0)
	s.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)

	sync := &protocol.Sync{
		Header:   protocol.Header{SequenceID: 3},
		SyncBody: protocol.SyncBody{OriginTimestamp: protocol.NewTimestamp(now)},
	}
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync, Seq: 3, SyncMessage: sync}, now)
	require.Len(t, got, 1)
}

func TestSiteSyncSyncExpiresPendingTwoStepSync(t *testing.T) {
	var got []OffsetSample
	s := NewSiteSyncSync(testPortIdentity(), noDelay, func(o OffsetSample) { got = append(got, o) })
	now := time.Unix(3000, 0)
	s.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)

	sync := &protocol.Sync{
		Header:   protocol.Header{FlagField: protocol.FlagTwoStep, SequenceID: 1},
		SyncBody: protocol.SyncBody{OriginTimestamp: protocol.NewTimestamp(now)},
	}
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync, Seq: 1, SyncMessage: sync}, now)

	s.HandleEvent(Event{Kind: EventIntervalTimer, Timer: "pending_sync_sweep"}, now.Add(200*time.Millisecond))
	require.Equal(t, 1, s.DroppedCount())
	require.Empty(t, got)
}

func TestSiteSyncSyncUnmatchedFollowUpIncrementsDropped(t *testing.T) {
	var got []OffsetSample
	s := NewSiteSyncSync(testPortIdentity(), noDelay, func(o OffsetSample) { got = append(got, o) })
	now := time.Unix(5000, 0)
	s.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)

	fu := &protocol.FollowUp{
		Header:       protocol.Header{SequenceID: 9},
		FollowUpBody: protocol.FollowUpBody{PreciseOriginTimestamp: protocol.NewTimestamp(now)},
	}
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageFollowUp, Seq: 9, FollowUpMessage: fu}, now)
	require.Equal(t, 1, s.DroppedCount())
	require.Empty(t, got)
}

func TestSiteSyncSyncDropsAndClearsPendingOnCapabilityLoss(t *testing.T) {
	var got []OffsetSample
	s := NewSiteSyncSync(testPortIdentity(), noDelay, func(o OffsetSample) { got = append(got, o) })
	now := time.Unix(6000, 0)
	s.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)

	sync := &protocol.Sync{
		Header:   protocol.Header{FlagField: protocol.FlagTwoStep, SequenceID: 1},
		SyncBody: protocol.SyncBody{OriginTimestamp: protocol.NewTimestamp(now)},
	}
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync, Seq: 1, SyncMessage: sync}, now)

	s.HandleEvent(Event{Kind: EventCapabilityChanged, Capable: false}, now)

	// The Follow_Up for the Sync buffered before capability was lost must
	// not resolve: the pending entry was cleared.
	fu := &protocol.FollowUp{
		Header:       protocol.Header{SequenceID: 1},
		FollowUpBody: protocol.FollowUpBody{PreciseOriginTimestamp: protocol.NewTimestamp(now)},
	}
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageFollowUp, Seq: 1, FollowUpMessage: fu}, now)
	require.Empty(t, got)
	require.Equal(t, 1, s.DroppedCount(), "unmatched Follow_Up after the pending map was cleared")

	// A one-step Sync arriving while still not asCapable is dropped too.
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync, Seq: 2, SyncMessage: &protocol.Sync{
		Header:   protocol.Header{SequenceID: 2},
		SyncBody: protocol.SyncBody{OriginTimestamp: protocol.NewTimestamp(now)},
	}}, now)
	require.Empty(t, got)
	require.Equal(t, 2, s.DroppedCount())

	s.HandleEvent(Event{Kind: EventCapabilityChanged, Capable: true}, now)
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync, Seq: 3, SyncMessage: &protocol.Sync{
		Header:   protocol.Header{SequenceID: 3},
		SyncBody: protocol.SyncBody{OriginTimestamp: protocol.NewTimestamp(now)},
	}}, now)
	require.Len(t, got, 1, "capability regained must allow Syncs to resolve again")
}

func TestSiteSyncSyncClearsPendingOnRoleChange(t *testing.T) {
	var got []OffsetSample
	s := NewSiteSyncSync(testPortIdentity(), noDelay, func(o OffsetSample) { got = append(got, o) })
	now := time.Unix(4000, 0)
	s.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleSlave}, now)
	sync := &protocol.Sync{
		Header:   protocol.Header{FlagField: protocol.FlagTwoStep, SequenceID: 1},
		SyncBody: protocol.SyncBody{OriginTimestamp: protocol.NewTimestamp(now)},
	}
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageSync, Seq: 1, SyncMessage: sync}, now)

	s.HandleEvent(Event{Kind: EventRoleChanged, Role: bmca.RoleMaster}, now)
	require.Equal(t, SiteSyncSyncInitializing, s.State())

	// A stray Follow_Up for the abandoned Sync must not resolve anything
	// once the pending map has been cleared.
	fu := &protocol.FollowUp{
		Header:       protocol.Header{SequenceID: 1},
		FollowUpBody: protocol.FollowUpBody{PreciseOriginTimestamp: protocol.NewTimestamp(now)},
	}
	s.HandleEvent(Event{Kind: EventMessageReceived, MsgType: protocol.MessageFollowUp, Seq: 1, FollowUpMessage: fu}, now)
	require.Empty(t, got)
}
