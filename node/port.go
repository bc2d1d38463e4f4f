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

package node

import (
	"time"

	"github.com/gptp-go/gptpd/bmca"
	"github.com/gptp-go/gptpd/pathdelay"
	"github.com/gptp-go/gptpd/portsm"
	"github.com/gptp-go/gptpd/protocol"
)

// port bundles one physical port's full state-machine stack plus the
// per-interval deadlines Manager.Tick advances.
type port struct {
	cfg    PortConfig
	portID protocol.PortIdentity

	linkDelay *portsm.LinkDelay
	portSync  *portsm.PortSync
	mdSync    *portsm.MDSync
	siteSync  *portsm.SiteSyncSync

	role bmca.PortRole

	nextSyncTick     time.Time
	nextAnnounceTick time.Time
	nextPdelayTick   time.Time
	nextPendingSweep time.Time

	seq *protocol.SequencePool
}

func newPort(n *Manager, cfg PortConfig, startupStagger time.Duration, now time.Time) *port {
	portID := protocol.PortIdentity{ClockIdentity: n.clockIdentity, PortNumber: cfg.PortNumber}

	calcProfile := pathdelay.NewConfigForProfile(cfg.PathDelayProfile)
	calcProfile.RateRatioWindow = cfg.RateRatioWindowN
	calc := pathdelay.NewStandardP2P(cfg.RateRatioWindowN, calcProfile.MaxLinkDelay)
	engine := pathdelay.NewEngine(calc, calcProfile)

	p := &port{
		cfg:    cfg,
		portID: portID,
		seq:    n.seqPool,
	}
	p.linkDelay = portsm.NewLinkDelay(portID, engine, &transportPdelaySender{n: n, port: cfg.PortNumber})
	p.portSync = portsm.NewPortSync(portID, cfg.syncInterval())
	p.mdSync = portsm.NewMDSync(portID, n.seqPool, &transportSyncSender{n: n, port: cfg.PortNumber})
	p.siteSync = portsm.NewSiteSyncSync(portID, p.linkDelay.MeanLinkDelay, n.offsetSampleHandler(cfg.PortNumber))
	p.linkDelay.OnCapabilityChange(func(capable bool) {
		p.portSync.HandleEvent(portsm.Event{Kind: portsm.EventCapabilityChanged, Capable: capable}, n.mono.Now())
		p.mdSync.HandleEvent(portsm.Event{Kind: portsm.EventCapabilityChanged, Capable: capable})
		p.siteSync.HandleEvent(portsm.Event{Kind: portsm.EventCapabilityChanged, Capable: capable}, n.mono.Now())
	})

	p.nextSyncTick = now.Add(startupStagger)
	p.nextAnnounceTick = now.Add(startupStagger)
	p.nextPdelayTick = now.Add(startupStagger)
	p.nextPendingSweep = now.Add(100 * time.Millisecond)
	return p
}

func (p *port) dispatchEvent(ev portsm.Event, now time.Time) {
	p.portSync.HandleEvent(ev, now)
	p.mdSync.HandleEvent(ev)
	p.siteSync.HandleEvent(ev, now)
	p.linkDelay.HandleEvent(ev, now)
}
