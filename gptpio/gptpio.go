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

// Package gptpio defines the external collaborator interfaces the gPTP
// core drives but never implements itself: the Ethernet transport, the
// disciplined hardware clock, and the free-running monotonic clock used
// for all internal deadlines. Concrete implementations (raw sockets and
// PHC ioctls, or the in-memory simtransport pair used in tests and the
// two-node demo) live outside this package.
package gptpio

import (
	"time"

	"github.com/gptp-go/gptpd/protocol"
)

// EtherTypeGPTP is the Ethernet EtherType gPTP frames are sent under.
const EtherTypeGPTP = 0x88F7

// MulticastDestMAC is the gPTP reserved multicast destination address
// (IEEE 802.1AS §10.5).
var MulticastDestMAC = [6]byte{0x01, 0x80, 0xC2, 0x00, 0x00, 0x0E}

// Transport sends and receives raw gPTP frames on a numbered local port.
// Port numbers match protocol.PortIdentity.PortNumber.
type Transport interface {
	// Send transmits payload on port and returns a time that node.Manager
	// takes as the frame's tx timestamp: for a Sync it feeds that time back
	// as the TxTimestampReady event itself. Transport has no separate path
	// for delivering a tx timestamp later.
	Send(port uint16, payload []byte) (deadline time.Time, err error)
	// OnReceive registers the callback invoked for every inbound frame on
	// any port. Only one callback is active at a time; registering again
	// replaces it.
	OnReceive(callback func(port uint16, payload []byte, rxTimestamp time.Time))
	// InterfaceMAC returns the MAC address of the interface backing port,
	// used to build this node's ClockIdentity.
	InterfaceMAC(port uint16) (net6 [6]byte, err error)
}

// HardwareClock is the node's disciplined time source.
type HardwareClock interface {
	// Now returns the current disciplined time.
	Now() time.Time
	// AdjustFrequency requests a frequency adjustment in parts-per-billion
	// and returns the actually-applied ppb (which may be clamped by the
	// underlying clock).
	AdjustFrequency(ppb float64) (actualPpb float64, err error)
	// AdjustPhase steps the clock by delta immediately.
	AdjustPhase(delta time.Duration) error
}

// MonotonicClock is a free-running nanosecond source unaffected by
// HardwareClock phase steps, used for state-machine deadlines.
type MonotonicClock interface {
	Now() time.Time
}

// Timestamp converts a protocol.Timestamp carried on the wire to the
// time.Time representation gptpio's interfaces use.
func Timestamp(t protocol.Timestamp) time.Time {
	return t.Time()
}
