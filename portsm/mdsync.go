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

	"github.com/sirupsen/logrus"

	"github.com/gptp-go/gptpd/bmca"
	"github.com/gptp-go/gptpd/protocol"
)

// MDSyncState is the master-side Sync/Follow_Up emission state.
type MDSyncState int

// MDSync states.
const (
	MDSyncInitializing MDSyncState = iota
	MDSyncSendSync
	MDSyncWaitFollowUpTx
)

func (s MDSyncState) String() string {
	switch s {
	case MDSyncSendSync:
		return "SEND_SYNC"
	case MDSyncWaitFollowUpTx:
		return "WAIT_FOLLOW_UP_TX"
	default:
		return "INITIALIZING"
	}
}

// SyncSender is the callback surface MDSync uses to actually put bytes on
// the wire; the node manager supplies the implementation.
type SyncSender interface {
	// SendSync transmits a Sync with the given sequence ID. The precise
	// origin timestamp is not yet known; it arrives later as a
	// TxTimestampReady event.
	SendSync(seq uint16)
	// SendFollowUp transmits a Follow_Up carrying preciseOriginTimestamp
	// for the Sync of the same sequence ID.
	SendFollowUp(seq uint16, preciseOriginTimestamp protocol.Timestamp)
}

// MDSync drives two-step master-side Sync emission: on every sync
// interval tick it sends a Sync, then waits for the transmit timestamp
// before emitting the matching Follow_Up.
type MDSync struct {
	mu sync.Mutex

	portIdentity protocol.PortIdentity
	state        MDSyncState
	pool         *protocol.SequencePool
	sender       SyncSender
	role         bmca.PortRole
	capable      bool

	pendingSeq   uint16
	droppedCount int
}

// NewMDSync creates an MDSync SM for one port, starting Initializing.
func NewMDSync(portIdentity protocol.PortIdentity, pool *protocol.SequencePool, sender SyncSender) *MDSync {
	return &MDSync{
		portIdentity: portIdentity,
		state:        MDSyncInitializing,
		pool:         pool,
		sender:       sender,
		capable:      true,
	}
}

// State returns the current state.
func (m *MDSync) State() MDSyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// DroppedCount returns how many Follow_Ups were dropped because the tx
// timestamp for the matching Sync never arrived before the next tick.
func (m *MDSync) DroppedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.droppedCount
}

// HandleEvent applies ev to the state machine. The mutex is never held
// while calling into m.sender: a SyncSender is free to deliver the
// resulting TxTimestampReady event back into HandleEvent synchronously
// (as a software-timestamping transport does), which would deadlock on
// a non-reentrant lock if it were still held.
func (m *MDSync) HandleEvent(ev Event) {
	m.mu.Lock()

	switch ev.Kind {
	case EventRoleChanged:
		m.role = ev.Role
		m.applyRoleOrCapabilityLocked()
		m.mu.Unlock()

	case EventPortDisabled, EventLinkDown:
		m.transitionLocked(MDSyncInitializing)
		m.mu.Unlock()

	case EventCapabilityChanged:
		m.capable = ev.Capable
		m.applyRoleOrCapabilityLocked()
		m.mu.Unlock()

	case EventIntervalTimer:
		if ev.Timer != "sync" {
			m.mu.Unlock()
			return
		}
		if m.state == MDSyncWaitFollowUpTx {
			// Previous Sync's tx timestamp never arrived in time.
			m.droppedCount++
			logrus.Warningf("portsm: port %s dropped Follow_Up for seq %d, tx timestamp never arrived", m.portIdentity, m.pendingSeq)
		}
		sendSeq, shouldSend := uint16(0), false
		if m.state == MDSyncSendSync || m.state == MDSyncWaitFollowUpTx {
			sendSeq = m.pool.Next(int(m.portIdentity.PortNumber), protocol.MessageSync)
			m.pendingSeq = sendSeq
			m.transitionLocked(MDSyncWaitFollowUpTx)
			shouldSend = true
		}
		m.mu.Unlock()
		if shouldSend {
			m.sender.SendSync(sendSeq)
		}

	case EventTxTimestampReady:
		if m.state != MDSyncWaitFollowUpTx || ev.MsgType != protocol.MessageSync || ev.Seq != m.pendingSeq {
			m.mu.Unlock()
			return
		}
		seq := ev.Seq
		ts := ev.TxTimestamp
		m.transitionLocked(MDSyncSendSync)
		m.mu.Unlock()
		m.sender.SendFollowUp(seq, protocol.NewTimestamp(ts))

	default:
		m.mu.Unlock()
	}
}

// applyRoleOrCapabilityLocked (re-)arms Sync emission when this port is
// Master and asCapable, and parks it (back to Initializing) otherwise —
// an asCapable loss always collapses emission regardless of role.
func (m *MDSync) applyRoleOrCapabilityLocked() {
	if m.role == bmca.RoleMaster && m.capable {
		if m.state == MDSyncInitializing {
			m.transitionLocked(MDSyncSendSync)
		}
		return
	}
	m.transitionLocked(MDSyncInitializing)
}

func (m *MDSync) transitionLocked(next MDSyncState) {
	if m.state == next {
		return
	}
	logrus.Debugf("portsm: port %s MDSync %s -> %s", m.portIdentity, m.state, next)
	m.state = next
}
