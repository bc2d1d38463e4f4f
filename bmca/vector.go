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

// Package bmca implements the Best Master Clock Algorithm: priority-vector
// comparison, per-port foreign-master tracking, and the per-domain role
// assignment that drives each port's Master/Slave/Passive state.
package bmca

import "github.com/gptp-go/gptpd/protocol"

// PriorityVector is the comparable tuple IEEE 802.1AS §10.3.4 reduces an
// Announce (or the local clock) to: grandmaster priority1, clock quality,
// priority2 and identity, plus the path-dependent stepsRemoved and the
// identity of the port the record was heard on.
type PriorityVector struct {
	Priority1           uint8
	ClockQuality        protocol.ClockQuality
	Priority2           uint8
	GrandmasterIdentity protocol.ClockIdentity
	StepsRemoved        uint16
	SenderPortIdentity  protocol.PortIdentity
}

// FromAnnounce builds the PriorityVector an Announce message advertises.
func FromAnnounce(a *protocol.Announce) PriorityVector {
	return PriorityVector{
		Priority1:           a.GrandmasterPriority1,
		ClockQuality:        a.GrandmasterClockQuality,
		Priority2:           a.GrandmasterPriority2,
		GrandmasterIdentity: a.GrandmasterIdentity,
		StepsRemoved:        a.StepsRemoved,
		SenderPortIdentity:  a.Header.SourcePortIdentity,
	}
}

// Local builds the priority vector a node compares its foreign-master
// records against: itself as grandmaster, zero steps removed.
func Local(id protocol.ClockIdentity, localPortIdentity protocol.PortIdentity, priority1, priority2 uint8, quality protocol.ClockQuality) PriorityVector {
	return PriorityVector{
		Priority1:           priority1,
		ClockQuality:        quality,
		Priority2:           priority2,
		GrandmasterIdentity: id,
		StepsRemoved:        0,
		SenderPortIdentity:  localPortIdentity,
	}
}
