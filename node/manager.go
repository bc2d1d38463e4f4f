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

// Package node owns the ports and per-domain BMCA/servo pairs that make a
// gPTP node: inbound message dispatch, BMCA feeding, and the outbound
// transmission schedule (Sync/Follow_Up, Pdelay_Req, Announce), driven by
// a single Manager.Tick call per time step.
package node

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/gptp-go/gptpd/bmca"
	"github.com/gptp-go/gptpd/clockquality"
	"github.com/gptp-go/gptpd/discipline"
	"github.com/gptp-go/gptpd/gptpio"
	"github.com/gptp-go/gptpd/portsm"
	"github.com/gptp-go/gptpd/protocol"
	"github.com/gptp-go/gptpd/servo"
)

// Manager owns every port of one gPTP node and the per-domain BMCA
// coordinators and clock servos that drive them.
type Manager struct {
	mu sync.Mutex

	clockIdentity protocol.ClockIdentity
	cfg           Config
	cq            *clockquality.Manager
	transport     gptpio.Transport
	mono          gptpio.MonotonicClock
	hwClock       gptpio.HardwareClock
	metrics       *prometheus.Registry

	seqPool *protocol.SequencePool

	ports        map[uint16]*port
	coords       map[int]*bmca.Coordinator
	servos       map[int]*servo.PiServo
	disciplines  map[int]*discipline.Adapter
	outlierDrops map[int]int
}

// NewManager constructs a Manager for clockIdentity with one port per
// entry of cfg.Ports, their first ticks staggered across one sync interval.
// hwClock may be nil, in which case servo output is computed but never
// applied (useful for offset-only observation); metrics may be nil to
// skip Prometheus registration.
func NewManager(clockIdentity protocol.ClockIdentity, cfg Config, cq *clockquality.Manager, transport gptpio.Transport, mono gptpio.MonotonicClock, hwClock gptpio.HardwareClock, metrics *prometheus.Registry) *Manager {
	m := &Manager{
		clockIdentity: clockIdentity,
		cfg:           cfg,
		cq:            cq,
		transport:     transport,
		mono:          mono,
		hwClock:       hwClock,
		metrics:       metrics,
		seqPool:       protocol.NewSequencePool(),
		ports:         make(map[uint16]*port),
		coords:        make(map[int]*bmca.Coordinator),
		servos:        make(map[int]*servo.PiServo),
		disciplines:   make(map[int]*discipline.Adapter),
		outlierDrops:  make(map[int]int),
	}
	transport.OnReceive(m.handleFrame)

	now := mono.Now()
	n := len(cfg.Ports)
	for i, pc := range cfg.Ports {
		stagger := time.Duration(i) * pc.syncInterval() / time.Duration(max1(n))
		m.addPortLocked(pc, stagger, now)
	}
	return m
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func (m *Manager) addPortLocked(cfg PortConfig, stagger time.Duration, now time.Time) {
	p := newPort(m, cfg, stagger, now)
	m.ports[cfg.PortNumber] = p
	coord, ok := m.coords[cfg.Domain]
	if !ok {
		coord = bmca.NewCoordinator(cfg.Domain)
		m.coords[cfg.Domain] = coord
		m.servos[cfg.Domain] = servo.NewPiServo(m.cfg.ServoConfig)
		if m.hwClock != nil {
			m.disciplines[cfg.Domain] = discipline.NewAdapter(m.hwClock, fmt.Sprintf("domain%d", cfg.Domain), m.metrics)
		}
	}
	coord.AddPort(p.portID, cfg.AnnounceReceiptTimeoutMultiplier)
}

// AddPort registers a new port at runtime, staggering its first ticks by
// half its sync interval so it doesn't burst in lockstep with existing
// ports.
func (m *Manager) AddPort(cfg PortConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addPortLocked(cfg, cfg.syncInterval()/2, m.mono.Now())
}

// localVector builds the priority vector this node advertises for domain,
// using receivingPort as the vector's SenderPortIdentity placeholder (BMCA
// only compares the GM tuple for the local vector; the sender identity
// field is irrelevant when it's always "us").
func (m *Manager) localVector(domain int, receivingPort protocol.PortIdentity) bmca.PriorityVector {
	return bmca.Local(m.clockIdentity, receivingPort, m.cq.Priority1(), m.cq.Priority2(), m.cq.ClockQuality())
}

func (m *Manager) offsetSampleHandler(portNumber uint16) func(portsm.OffsetSample) {
	return func(sample portsm.OffsetSample) {
		m.mu.Lock()
		p, ok := m.ports[portNumber]
		if !ok {
			m.mu.Unlock()
			return
		}
		domain := p.cfg.Domain
		sv := m.servos[domain]
		disc := m.disciplines[domain]
		mono := m.mono
		m.mu.Unlock()
		if sv == nil {
			return
		}
		offsetNs := float64(sample.OffsetFromMaster.Nanoseconds())
		if sv.IsOutlier(offsetNs) {
			m.mu.Lock()
			m.outlierDrops[domain]++
			m.mu.Unlock()
			log.Warningf("node: port %d domain %d discarded outlier offset sample %.0fns, servo state unchanged", portNumber, domain, offsetNs)
			return
		}
		out := sv.Sample(offsetNs, sample.SyncInterval)
		log.Debugf("node: port %d domain %d offset sample: freqAdj=%.2fppb phaseAdj=%.2fns locked=%v", portNumber, domain, out.FrequencyAdjustmentPPB, out.PhaseAdjustmentNs, out.Locked)
		if disc != nil {
			disc.Apply(out, mono.Now())
		}
	}
}

// handleFrame is the single inbound entry point: probe the message type,
// decode, and route to BMCA and/or the owning port's state machines.
func (m *Manager) handleFrame(portNumber uint16, payload []byte, rxTimestamp time.Time) {
	pkt, err := protocol.DecodePacket(payload)
	if err != nil {
		log.Debugf("node: port %d failed to decode frame: %v", portNumber, err)
		return
	}

	m.mu.Lock()
	p, ok := m.ports[portNumber]
	m.mu.Unlock()
	if !ok {
		log.Warningf("node: frame on unknown port %d", portNumber)
		return
	}

	switch msg := pkt.(type) {
	case *protocol.Announce:
		m.handleAnnounce(p, msg, rxTimestamp)
	case *protocol.Sync:
		p.dispatchEvent(portsm.Event{Kind: portsm.EventMessageReceived, MsgType: protocol.MessageSync, Seq: msg.SequenceID, SyncMessage: msg}, rxTimestamp)
	case *protocol.FollowUp:
		p.dispatchEvent(portsm.Event{Kind: portsm.EventMessageReceived, MsgType: protocol.MessageFollowUp, Seq: msg.SequenceID, FollowUpMessage: msg}, rxTimestamp)
	case *protocol.PDelayResp:
		p.linkDelay.HandleEvent(portsm.Event{Kind: portsm.EventMessageReceived, MsgType: protocol.MessagePDelayResp, Seq: msg.SequenceID, PdelayRespMessage: msg}, rxTimestamp)
	case *protocol.PDelayRespFollowUp:
		p.linkDelay.HandleEvent(portsm.Event{Kind: portsm.EventMessageReceived, MsgType: protocol.MessagePDelayRespFollowUp, Seq: msg.SequenceID, PdelayRespFollowUpMessage: msg}, rxTimestamp)
	case *protocol.PDelayReq:
		m.handlePdelayReq(p, msg, rxTimestamp)
	case *protocol.Signaling:
		log.Debugf("node: port %d received Signaling, decoded and ignored", portNumber)
	default:
		log.Debugf("node: port %d received unhandled message type", portNumber)
	}
}

func (m *Manager) handleAnnounce(p *port, a *protocol.Announce, now time.Time) {
	m.mu.Lock()
	coord := m.coords[p.cfg.Domain]
	m.mu.Unlock()
	if coord == nil {
		return
	}
	tbl := coord.Table(p.portID)
	if tbl == nil {
		return
	}
	vec := bmca.FromAnnounce(a)
	tbl.Update(vec, a.LogMessageInterval.Duration(), now)
	m.recomputeDomain(p.cfg.Domain, now)
}

func (m *Manager) handlePdelayReq(p *port, req *protocol.PDelayReq, rx time.Time) {
	if m.transport == nil {
		return
	}
	resp := &protocol.PDelayResp{
		Header: protocol.Header{
			TransportSpecificAndMsgType: protocol.NewTransportSpecificAndMsgType(protocol.MessagePDelayResp, protocol.TransportSpecificGPTP),
			VersionPTP:                  protocol.VersionPTP,
			DomainNumber:                uint8(p.cfg.Domain),
			SourcePortIdentity:          p.portID,
			SequenceID:                  req.SequenceID,
		},
		PDelayRespBody: protocol.PDelayRespBody{
			RequestReceiptTimestamp: protocol.NewTimestamp(rx),
			RequestingPortIdentity:  req.SourcePortIdentity,
		},
	}
	buf, err := resp.MarshalBinary()
	if err != nil {
		log.Warningf("node: failed to marshal Pdelay_Resp: %v", err)
		return
	}
	if _, err := m.transport.Send(p.cfg.PortNumber, buf); err != nil {
		log.Warningf("node: failed to send Pdelay_Resp: %v", err)
	}
}

// recomputeDomain runs BMCA for domain and applies any resulting role
// changes to the affected ports' state machines before the next outbound
// tick.
func (m *Manager) recomputeDomain(domain int, now time.Time) {
	m.mu.Lock()
	coord := m.coords[domain]
	var affected []*port
	for _, p := range m.ports {
		if p.cfg.Domain == domain {
			affected = append(affected, p)
		}
	}
	m.mu.Unlock()
	if coord == nil || len(affected) == 0 {
		return
	}

	// local vector is identical regardless of which port receives it; use
	// the first affected port's identity as the placeholder sender.
	local := m.localVector(domain, affected[0].portID)
	changed := coord.Recompute(now, local)
	if len(changed) == 0 {
		return
	}
	for _, p := range affected {
		newRole, ok := changed[p.portID]
		if !ok {
			continue
		}
		p.role = newRole
		p.dispatchEvent(portsm.Event{Kind: portsm.EventRoleChanged, Role: newRole}, now)
	}
}

// Tick advances every port's interval timers, sweeps path-delay and
// pending-sync timeouts, and periodically re-runs BMCA's foreign-master
// timeout sweep. Callers should invoke it at a granularity no coarser
// than min(syncInterval, pdelayInterval)/4 (1ms is adequate for the
// defaults).
func (m *Manager) Tick(now time.Time) {
	m.mu.Lock()
	ports := make([]*port, 0, len(m.ports))
	for _, p := range m.ports {
		ports = append(ports, p)
	}
	domains := make([]int, 0, len(m.coords))
	for d := range m.coords {
		domains = append(domains, d)
	}
	m.mu.Unlock()

	for _, p := range ports {
		m.tickPort(p, now)
	}
	for _, d := range domains {
		m.recomputeDomain(d, now)
	}
}

func (m *Manager) tickPort(p *port, now time.Time) {
	if !now.Before(p.nextSyncTick) {
		p.dispatchEvent(portsm.Event{Kind: portsm.EventIntervalTimer, Timer: "sync"}, now)
		p.nextSyncTick = now.Add(p.cfg.syncInterval())
	}
	if !now.Before(p.nextPdelayTick) {
		p.dispatchEvent(portsm.Event{Kind: portsm.EventIntervalTimer, Timer: "pdelay"}, now)
		p.nextPdelayTick = now.Add(p.cfg.pdelayInterval())
	}
	if !now.Before(p.nextAnnounceTick) {
		if p.role == bmca.RoleMaster {
			m.sendAnnounce(p, now)
		}
		p.nextAnnounceTick = now.Add(p.cfg.announceInterval())
	}
	if !now.Before(p.nextPendingSweep) {
		p.dispatchEvent(portsm.Event{Kind: portsm.EventIntervalTimer, Timer: "pending_sync_sweep"}, now)
		p.nextPendingSweep = now.Add(100 * time.Millisecond)
	}
	p.linkDelay.Timeout(now)
}

func (m *Manager) sendAnnounce(p *port, now time.Time) {
	seq := m.seqPool.Next(int(p.cfg.PortNumber), protocol.MessageAnnounce)
	a := &protocol.Announce{
		Header: protocol.Header{
			TransportSpecificAndMsgType: protocol.NewTransportSpecificAndMsgType(protocol.MessageAnnounce, protocol.TransportSpecificGPTP),
			VersionPTP:                  protocol.VersionPTP,
			DomainNumber:                uint8(p.cfg.Domain),
			SourcePortIdentity:          p.portID,
			SequenceID:                  seq,
			LogMessageInterval:          p.cfg.LogAnnounceInterval,
		},
		AnnounceBody: protocol.AnnounceBody{
			OriginTimestamp:         protocol.NewTimestamp(now),
			GrandmasterPriority1:    m.cq.Priority1(),
			GrandmasterClockQuality: m.cq.ClockQuality(),
			GrandmasterPriority2:    m.cq.Priority2(),
			GrandmasterIdentity:     m.clockIdentity,
			StepsRemoved:            0,
			TimeSource:              m.cq.TimeSource(),
		},
	}
	buf, err := a.MarshalBinary()
	if err != nil {
		log.Warningf("node: failed to marshal Announce: %v", err)
		return
	}
	if _, err := m.transport.Send(p.cfg.PortNumber, buf); err != nil {
		log.Warningf("node: failed to send Announce: %v", err)
	}
}

type transportSyncSender struct {
	n    *Manager
	port uint16
}

func (s *transportSyncSender) SendSync(seq uint16) {
	p := s.n.portByNumber(s.port)
	if p == nil {
		return
	}
	sync := &protocol.Sync{
		Header: protocol.Header{
			TransportSpecificAndMsgType: protocol.NewTransportSpecificAndMsgType(protocol.MessageSync, protocol.TransportSpecificGPTP),
			VersionPTP:                  protocol.VersionPTP,
			FlagField:                   protocol.FlagTwoStep,
			DomainNumber:                uint8(p.cfg.Domain),
			SourcePortIdentity:          p.portID,
			SequenceID:                  seq,
			LogMessageInterval:          p.cfg.LogSyncInterval,
		},
	}
	buf, err := sync.MarshalBinary()
	if err != nil {
		log.Warningf("node: failed to marshal Sync: %v", err)
		return
	}
	deadline, err := s.n.transport.Send(s.port, buf)
	if err != nil {
		log.Warningf("node: failed to send Sync: %v", err)
		return
	}
	// Send's returned deadline is this node's tx timestamp for the frame
	// (software timestamping per §6.3); deliver it straight back into the
	// port's state machines so MDSync can emit the matching Follow_Up.
	p.dispatchEvent(portsm.Event{Kind: portsm.EventTxTimestampReady, MsgType: protocol.MessageSync, Seq: seq, TxTimestamp: deadline}, deadline)
}

func (s *transportSyncSender) SendFollowUp(seq uint16, preciseOrigin protocol.Timestamp) {
	p := s.n.portByNumber(s.port)
	if p == nil {
		return
	}
	fu := &protocol.FollowUp{
		Header: protocol.Header{
			TransportSpecificAndMsgType: protocol.NewTransportSpecificAndMsgType(protocol.MessageFollowUp, protocol.TransportSpecificGPTP),
			VersionPTP:                  protocol.VersionPTP,
			DomainNumber:                uint8(p.cfg.Domain),
			SourcePortIdentity:          p.portID,
			SequenceID:                  seq,
			LogMessageInterval:          p.cfg.LogSyncInterval,
		},
		FollowUpBody: protocol.FollowUpBody{PreciseOriginTimestamp: preciseOrigin},
	}
	buf, err := fu.MarshalBinary()
	if err != nil {
		log.Warningf("node: failed to marshal Follow_Up: %v", err)
		return
	}
	if _, err := s.n.transport.Send(s.port, buf); err != nil {
		log.Warningf("node: failed to send Follow_Up: %v", err)
	}
}

type transportPdelaySender struct {
	n    *Manager
	port uint16
}

func (s *transportPdelaySender) SendPdelayReq(seq uint16) {
	p := s.n.portByNumber(s.port)
	if p == nil {
		return
	}
	req := &protocol.PDelayReq{
		Header: protocol.Header{
			TransportSpecificAndMsgType: protocol.NewTransportSpecificAndMsgType(protocol.MessagePDelayReq, protocol.TransportSpecificGPTP),
			VersionPTP:                  protocol.VersionPTP,
			DomainNumber:                uint8(p.cfg.Domain),
			SourcePortIdentity:          p.portID,
			SequenceID:                  seq,
			LogMessageInterval:          p.cfg.LogPdelayInterval,
		},
	}
	buf, err := req.MarshalBinary()
	if err != nil {
		log.Warningf("node: failed to marshal Pdelay_Req: %v", err)
		return
	}
	if _, err := s.n.transport.Send(s.port, buf); err != nil {
		log.Warningf("node: failed to send Pdelay_Req: %v", err)
	}
}

func (m *Manager) portByNumber(portNumber uint16) *port {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports[portNumber]
}

// Role returns the current BMCA role of portNumber, or an error if no
// such port exists.
func (m *Manager) Role(portNumber uint16) (bmca.PortRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ports[portNumber]
	if !ok {
		return 0, fmt.Errorf("node: no such port %d", portNumber)
	}
	return p.role, nil
}

// OutlierDropCount returns how many offset samples domain's servo has
// discarded for exceeding the outlier threshold.
func (m *Manager) OutlierDropCount(domain int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outlierDrops[domain]
}
