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

// Package portsm implements the per-port state machines that sit above
// the wire codec and the path-delay engine: PortSync (the sync-forwarding
// gate), MDSync (master-side Sync/Follow_Up emission), SiteSyncSync
// (slave-side Sync/Follow_Up consumption) and LinkDelay (the Event-driven
// adapter around a pathdelay.Engine).
package portsm

import (
	"time"

	"github.com/gptp-go/gptpd/bmca"
	"github.com/gptp-go/gptpd/protocol"
)

// EventKind identifies one of the common events every port state machine
// accepts. A state machine that has no transition for a given (state,
// EventKind) pair simply ignores it.
type EventKind int

// Event kinds.
const (
	EventPortEnabled EventKind = iota
	EventPortDisabled
	EventLinkUp
	EventLinkDown
	EventRoleChanged
	EventIntervalTimer
	EventMessageReceived
	EventTxTimestampReady
	EventCapabilityChanged
)

// Event is the common event shape accepted by PortSync, MDSync,
// SiteSyncSync and LinkDelay. Which fields are meaningful depends on Kind.
type Event struct {
	Kind EventKind

	Role bmca.PortRole // EventRoleChanged

	Timer string // EventIntervalTimer: "sync", "pdelay", "announce", ...

	MsgType protocol.MessageType // EventMessageReceived, EventTxTimestampReady
	Seq     uint16                // EventMessageReceived, EventTxTimestampReady

	SyncMessage               *protocol.Sync
	FollowUpMessage           *protocol.FollowUp
	PdelayRespMessage         *protocol.PDelayResp
	PdelayRespFollowUpMessage *protocol.PDelayRespFollowUp

	TxTimestamp time.Time // EventTxTimestampReady

	Capable bool // EventCapabilityChanged: the port's new asCapable value
}
