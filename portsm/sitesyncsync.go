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

	"github.com/gptp-go/gptpd/bmca"
	"github.com/gptp-go/gptpd/protocol"
)

// SiteSyncSyncState is the slave-side Sync/Follow_Up consumption state.
type SiteSyncSyncState int

// SiteSyncSync states.
const (
	SiteSyncSyncInitializing SiteSyncSyncState = iota
	SiteSyncSyncReceiving
)

func (s SiteSyncSyncState) String() string {
	if s == SiteSyncSyncReceiving {
		return "RECEIVING"
	}
	return "INITIALIZING"
}

// OffsetSample is one synchronized (master-to-local) offset observation,
// ready to feed a servo.
type OffsetSample struct {
	Seq          uint16
	OffsetFromMaster time.Duration
	SyncInterval time.Duration
	ReceiveTime  time.Time
}

// pendingSync buffers a one-step or two-step Sync's origin info while it
// waits for its Follow_Up (two-step) or is consumed immediately (one-step).
type pendingSync struct {
	originTimestamp protocol.Timestamp
	correction      protocol.Correction
	syncInterval    time.Duration
	localRx         time.Time
	twoStep         bool
}

const defaultPendingSyncExpiry = 100 * time.Millisecond

// SiteSyncSync is the slave-side SM: it pairs each Sync with its
// Follow_Up (or consumes a one-step Sync directly), computes the offset
// from master using the port's current mean path delay, and hands the
// result to a servo via onOffset.
type SiteSyncSync struct {
	mu sync.Mutex

	portIdentity protocol.PortIdentity
	state        SiteSyncSyncState
	role         bmca.PortRole
	capable      bool
	expiry       time.Duration

	pending map[uint16]pendingSync
	dropped int

	pathDelay func() time.Duration
	onOffset  func(OffsetSample)
}

// NewSiteSyncSync creates a SiteSyncSync SM. pathDelay returns the
// port's current filtered mean link delay (from pathdelay.Engine);
// onOffset is called with each resolved offset sample.
func NewSiteSyncSync(portIdentity protocol.PortIdentity, pathDelay func() time.Duration, onOffset func(OffsetSample)) *SiteSyncSync {
	return &SiteSyncSync{
		portIdentity: portIdentity,
		state:        SiteSyncSyncInitializing,
		role:         bmca.RoleListening,
		capable:      true,
		expiry:       defaultPendingSyncExpiry,
		pending:      make(map[uint16]pendingSync),
		pathDelay:    pathDelay,
		onOffset:     onOffset,
	}
}

// State returns the current state.
func (s *SiteSyncSync) State() SiteSyncSyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DroppedCount returns how many pending Syncs expired before their
// Follow_Up arrived.
func (s *SiteSyncSync) DroppedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// SetExpiry overrides the default pending-Sync expiry (100ms).
func (s *SiteSyncSync) SetExpiry(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = d
}

// HandleEvent applies ev to the state machine.
func (s *SiteSyncSync) HandleEvent(ev Event, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventRoleChanged:
		s.role = ev.Role
		if ev.Role == bmca.RoleSlave {
			s.transitionLocked(SiteSyncSyncReceiving)
		} else {
			s.transitionLocked(SiteSyncSyncInitializing)
			s.pending = make(map[uint16]pendingSync)
		}

	case EventPortDisabled, EventLinkDown:
		s.transitionLocked(SiteSyncSyncInitializing)
		s.pending = make(map[uint16]pendingSync)

	case EventMessageReceived:
		if s.state != SiteSyncSyncReceiving {
			return
		}
		switch ev.MsgType {
		case protocol.MessageSync:
			s.handleSyncLocked(ev, now)
		case protocol.MessageFollowUp:
			s.handleFollowUpLocked(ev, now)
		}

	case EventIntervalTimer:
		if ev.Timer != "pending_sync_sweep" {
			return
		}
		s.sweepLocked(now)

	case EventCapabilityChanged:
		s.capable = ev.Capable
		if !s.capable {
			// The port's mean link delay is no longer trustworthy; any
			// Sync in flight can't be resolved to a sound offset.
			s.pending = make(map[uint16]pendingSync)
		}
	}
}

func (s *SiteSyncSync) handleSyncLocked(ev Event, now time.Time) {
	if ev.SyncMessage == nil {
		return
	}
	twoStep := ev.SyncMessage.Header.FlagField&protocol.FlagTwoStep != 0
	p := pendingSync{
		originTimestamp: ev.SyncMessage.OriginTimestamp,
		correction:      ev.SyncMessage.CorrectionField,
		syncInterval:    ev.SyncMessage.LogMessageInterval.Duration(),
		localRx:         now,
		twoStep:         twoStep,
	}
	if !twoStep {
		s.resolveLocked(ev.Seq, p)
		return
	}
	s.pending[ev.Seq] = p
}

func (s *SiteSyncSync) handleFollowUpLocked(ev Event, now time.Time) {
	if ev.FollowUpMessage == nil {
		return
	}
	p, ok := s.pending[ev.Seq]
	if !ok {
		s.dropped++
		logrus.Warningf("portsm: port %s dropped Follow_Up seq %d, no matching Sync pending", s.portIdentity, ev.Seq)
		return
	}
	delete(s.pending, ev.Seq)
	p.originTimestamp = ev.FollowUpMessage.PreciseOriginTimestamp
	p.correction += ev.FollowUpMessage.CorrectionField
	s.resolveLocked(ev.Seq, p)
}

// resolveLocked computes the offset from master for a fully-assembled
// Sync (originTimestamp + correctionField) and reports it.
func (s *SiteSyncSync) resolveLocked(seq uint16, p pendingSync) {
	if !s.capable {
		s.dropped++
		logrus.Warningf("portsm: port %s dropped Sync seq %d, port is not asCapable", s.portIdentity, seq)
		return
	}
	delay := time.Duration(0)
	if s.pathDelay != nil {
		delay = s.pathDelay()
	}
	masterTime := p.originTimestamp.Time().Add(time.Duration(p.correction.Nanoseconds()))
	offset := p.localRx.Sub(masterTime) - delay
	if s.onOffset != nil {
		s.onOffset(OffsetSample{
			Seq:              seq,
			OffsetFromMaster: offset,
			SyncInterval:     p.syncInterval,
			ReceiveTime:      p.localRx,
		})
	}
}

func (s *SiteSyncSync) sweepLocked(now time.Time) {
	if s.expiry <= 0 {
		return
	}
	for seq, p := range s.pending {
		if now.Sub(p.localRx) > s.expiry {
			delete(s.pending, seq)
			s.dropped++
			logrus.Warningf("portsm: port %s dropped Sync seq %d, Follow_Up never arrived", s.portIdentity, seq)
		}
	}
}

func (s *SiteSyncSync) transitionLocked(next SiteSyncSyncState) {
	if s.state == next {
		return
	}
	logrus.Debugf("portsm: port %s SiteSyncSync %s -> %s", s.portIdentity, s.state, next)
	s.state = next
}
