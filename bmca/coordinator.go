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

package bmca

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gptp-go/gptpd/protocol"
)

// PortRole is a port's externally visible BMCA-assigned role.
type PortRole int

// Port roles.
const (
	RoleListening PortRole = iota
	RoleMaster
	RoleSlave
	RolePassive
)

func (r PortRole) String() string {
	switch r {
	case RoleMaster:
		return "MASTER"
	case RoleSlave:
		return "SLAVE"
	case RolePassive:
		return "PASSIVE"
	}
	return "LISTENING"
}

// Coordinator is the per-domain BMCA instance: it owns one
// ForeignMasterTable per port and recomputes every port's role whenever an
// Announce arrives or the tick scheduler sweeps timeouts.
type Coordinator struct {
	mu sync.Mutex

	domain int
	ports  map[protocol.PortIdentity]*ForeignMasterTable
	roles  map[protocol.PortIdentity]PortRole
}

// NewCoordinator constructs a Coordinator for one domain with no ports
// registered yet.
func NewCoordinator(domain int) *Coordinator {
	return &Coordinator{
		domain: domain,
		ports:  make(map[protocol.PortIdentity]*ForeignMasterTable),
		roles:  make(map[protocol.PortIdentity]PortRole),
	}
}

// AddPort registers a port with its own foreign-master table and an
// initial Listening role.
func (c *Coordinator) AddPort(portID protocol.PortIdentity, receiptTimeoutMultiplier int) *ForeignMasterTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	tbl := NewForeignMasterTable(receiptTimeoutMultiplier)
	c.ports[portID] = tbl
	c.roles[portID] = RoleListening
	return tbl
}

// RemovePort drops a port from this domain's coordination entirely.
func (c *Coordinator) RemovePort(portID protocol.PortIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ports, portID)
	delete(c.roles, portID)
}

// Table returns the registered port's foreign-master table, or nil.
func (c *Coordinator) Table(portID protocol.PortIdentity) *ForeignMasterTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ports[portID]
}

// Role returns the port's current role (RoleListening if unknown).
func (c *Coordinator) Role(portID protocol.PortIdentity) PortRole {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roles[portID]
}

// Recompute implements §4.5's role-selection steps 1-5: sweep timeouts,
// compute each port's best foreign master, compute the domain best across
// all ports and the local vector, then assign Master/Slave/Passive so that
// exactly one Slave exists when the domain best is not local.
//
// It returns the set of ports whose role changed since the previous call.
func (c *Coordinator) Recompute(now time.Time, local PriorityVector) map[protocol.PortIdentity]PortRole {
	c.mu.Lock()
	defer c.mu.Unlock()

	for portID, tbl := range c.ports {
		for _, removed := range tbl.SweepTimeouts(now) {
			log.Debugf("bmca: domain %d port %s: foreign master %s timed out", c.domain, portID, removed)
		}
	}

	portBests := make(map[protocol.PortIdentity]PriorityVector, len(c.ports))
	for portID, tbl := range c.ports {
		if v, ok := tbl.Best(); ok {
			portBests[portID] = v
		}
	}

	domainBest := local
	domainBestIsLocal := true
	for _, v := range portBests {
		if better(v, domainBest) {
			domainBest = v
			domainBestIsLocal = false
		}
	}

	newRoles := make(map[protocol.PortIdentity]PortRole, len(c.ports))
	if domainBestIsLocal {
		for portID := range c.ports {
			newRoles[portID] = RoleMaster
		}
	} else {
		var slaveCandidates []protocol.PortIdentity
		for portID, v := range portBests {
			if v.SenderPortIdentity == domainBest.SenderPortIdentity {
				slaveCandidates = append(slaveCandidates, portID)
			}
		}
		slavePort, haveSlave := smallestSenderWins(slaveCandidates, portBests)

		for portID := range c.ports {
			switch {
			case haveSlave && portID == slavePort:
				newRoles[portID] = RoleSlave
			default:
				if v, ok := portBests[portID]; ok && v.GrandmasterIdentity == domainBest.GrandmasterIdentity {
					newRoles[portID] = RolePassive
				} else {
					newRoles[portID] = RoleMaster
				}
			}
		}
	}

	changed := make(map[protocol.PortIdentity]PortRole)
	for portID, role := range newRoles {
		if c.roles[portID] != role {
			changed[portID] = role
			log.Infof("bmca: domain %d port %s role %s -> %s", c.domain, portID, c.roles[portID], role)
		}
	}
	c.roles = newRoles
	return changed
}

// smallestSenderWins resolves a tie among multiple local ports that all
// selected the identical domain-best sender: the candidate whose OWN
// receiving portID sorts lexicographically smallest wins the Slave role,
// per §4.5's exactly-one-Slave invariant.
func smallestSenderWins(candidates []protocol.PortIdentity, _ map[protocol.PortIdentity]PriorityVector) (protocol.PortIdentity, bool) {
	if len(candidates) == 0 {
		return protocol.PortIdentity{}, false
	}
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if c.Less(winner) {
			winner = c
		}
	}
	return winner, true
}
