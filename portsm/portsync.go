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

// PortSyncState is the Discard/Transmit predicate that gates whether a
// port is allowed to forward time information.
type PortSyncState int

// PortSync states.
const (
	PortSyncDiscard PortSyncState = iota
	PortSyncTransmit
)

func (s PortSyncState) String() string {
	if s == PortSyncTransmit {
		return "TRANSMIT"
	}
	return "DISCARD"
}

// PortSync is the per-port SM that decides whether this port currently
// forwards Sync information. A Master port transmits whenever it is
// asCapable; a Slave port transmits only once it has received at least one
// valid Sync, and reverts to Discard if none arrives within 3x the sync
// interval. Losing asCapable sends either role to Discard.
type PortSync struct {
	mu sync.Mutex

	portIdentity  protocol.PortIdentity
	state         PortSyncState
	role          bmca.PortRole
	syncInterval  time.Duration
	lastValidSync time.Time
	capable       bool
}

// NewPortSync creates a PortSync gate for a port, initially Discard and
// Listening.
func NewPortSync(portIdentity protocol.PortIdentity, syncInterval time.Duration) *PortSync {
	return &PortSync{
		portIdentity: portIdentity,
		state:        PortSyncDiscard,
		role:         bmca.RoleListening,
		syncInterval: syncInterval,
		capable:      true,
	}
}

// State returns the current Discard/Transmit state.
func (p *PortSync) State() PortSyncState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Forwarding reports whether this port currently forwards sync information.
func (p *PortSync) Forwarding() bool {
	return p.State() == PortSyncTransmit
}

// SetSyncInterval updates the interval used for the receipt-timeout check.
func (p *PortSync) SetSyncInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncInterval = d
}

// HandleEvent applies ev to the state machine. Events this SM has no
// transition for are ignored.
func (p *PortSync) HandleEvent(ev Event, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case EventRoleChanged:
		p.role = ev.Role
		p.applyRoleLocked()

	case EventMessageReceived:
		if p.role != bmca.RoleSlave {
			return
		}
		if ev.MsgType != protocol.MessageSync && ev.MsgType != protocol.MessageFollowUp {
			return
		}
		p.lastValidSync = now
		if p.state == PortSyncDiscard && p.capable {
			p.transitionLocked(PortSyncTransmit)
		}

	case EventIntervalTimer:
		if p.role != bmca.RoleSlave || p.state != PortSyncTransmit || p.syncInterval <= 0 {
			return
		}
		if now.Sub(p.lastValidSync) > 3*p.syncInterval {
			p.transitionLocked(PortSyncDiscard)
		}

	case EventPortDisabled, EventLinkDown:
		p.transitionLocked(PortSyncDiscard)

	case EventCapabilityChanged:
		p.capable = ev.Capable
		if !p.capable {
			// A port that loses asCapable is no longer forwarding-eligible
			// regardless of its BMCA role; it collapses to Discard until
			// the peer-delay engine reestablishes it.
			p.transitionLocked(PortSyncDiscard)
		} else {
			p.applyRoleLocked()
		}
	}
}

// applyRoleLocked re-derives the Discard/Transmit state from the port's
// current role and capability, e.g. after a role change or after
// capability is regained.
func (p *PortSync) applyRoleLocked() {
	if !p.capable {
		p.transitionLocked(PortSyncDiscard)
		return
	}
	switch p.role {
	case bmca.RoleMaster:
		p.transitionLocked(PortSyncTransmit)
	case bmca.RoleSlave:
		if !p.lastValidSync.IsZero() {
			p.transitionLocked(PortSyncTransmit)
		} else {
			p.transitionLocked(PortSyncDiscard)
		}
	default:
		p.transitionLocked(PortSyncDiscard)
	}
}

func (p *PortSync) transitionLocked(next PortSyncState) {
	if p.state == next {
		return
	}
	logrus.Debugf("portsm: port %s PortSync %s -> %s", p.portIdentity, p.state, next)
	p.state = next
}
