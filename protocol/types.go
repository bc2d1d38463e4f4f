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

// Package protocol implements bit-exact encoding and decoding of IEEE
// 802.1AS (gPTP) messages: the common header, Sync/Follow_Up,
// Pdelay_Req/Resp/Resp_Follow_Up, Announce and Signaling, plus the
// identity, timestamp and clock-quality types the rest of the core shares.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"
)

// 2 ** 16
const twoPow16 = 65536

// MessageType is the low nibble of the first header octet (Table 36).
type MessageType uint8

// gPTP message types this core understands. DelayReq/DelayResp (end-to-end
// delay mechanism) are not part of the peer-to-peer-only gPTP profile but
// are kept so ProbeMsgType/DecodePacket never choke on a stray 1588 frame.
const (
	MessageSync               MessageType = 0x0
	MessageDelayReq           MessageType = 0x1
	MessagePDelayReq          MessageType = 0x2
	MessagePDelayResp         MessageType = 0x3
	MessageFollowUp           MessageType = 0x8
	MessageDelayResp          MessageType = 0x9
	MessagePDelayRespFollowUp MessageType = 0xA
	MessageAnnounce           MessageType = 0xB
	MessageSignaling          MessageType = 0xC
	MessageManagement         MessageType = 0xD
)

// MessageTypeToString maps MessageType to its wire-format name.
var MessageTypeToString = map[MessageType]string{
	MessageSync:               "SYNC",
	MessageDelayReq:           "DELAY_REQ",
	MessagePDelayReq:          "PDELAY_REQ",
	MessagePDelayResp:         "PDELAY_RESP",
	MessageFollowUp:           "FOLLOW_UP",
	MessageDelayResp:          "DELAY_RESP",
	MessagePDelayRespFollowUp: "PDELAY_RESP_FOLLOW_UP",
	MessageAnnounce:           "ANNOUNCE",
	MessageSignaling:          "SIGNALING",
	MessageManagement:         "MANAGEMENT",
}

func (m MessageType) String() string {
	return MessageTypeToString[m]
}

// TransportSpecificAndMsgType is the first header octet: high nibble is
// transportSpecific (1 for 802.1AS), low nibble is MessageType.
type TransportSpecificAndMsgType uint8

// MsgType extracts the MessageType.
func (m TransportSpecificAndMsgType) MsgType() MessageType {
	return MessageType(m & 0xf)
}

// TransportSpecific extracts the transportSpecific nibble.
func (m TransportSpecificAndMsgType) TransportSpecific() uint8 {
	return uint8(m >> 4)
}

// NewTransportSpecificAndMsgType builds the combined octet.
func NewTransportSpecificAndMsgType(msgType MessageType, transportSpecific uint8) TransportSpecificAndMsgType {
	return TransportSpecificAndMsgType(transportSpecific<<4 | uint8(msgType))
}

// TransportSpecificGPTP is the only transportSpecific value this profile allows.
const TransportSpecificGPTP uint8 = 1

// ProbeMsgType reads the first octet of data and returns its MessageType,
// without validating anything else about the frame.
func ProbeMsgType(data []byte) (MessageType, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("not enough data to probe MsgType")
	}
	return TransportSpecificAndMsgType(data[0]).MsgType(), nil
}

// TLVType identifies the type of a TLV carried in a Signaling message.
type TLVType uint16

// TLVTypeToString maps TLVType to its name, for the handful this core
// recognizes by name; all other values still round-trip as opaque TLVs.
var TLVTypeToString = map[TLVType]string{
	0x0003: "ORGANIZATION_EXTENSION",
	0x0008: "PATH_TRACE",
	0x0009: "ALTERNATE_TIME_OFFSET_INDICATOR",
}

func (t TLVType) String() string {
	if s, ok := TLVTypeToString[t]; ok {
		return s
	}
	return fmt.Sprintf("TLV(0x%04x)", uint16(t))
}

// IntFloat is a float64 stored as a fixed-point int64, scaled by 2**16.
type IntFloat int64

// Value decodes IntFloat to float64.
func (t IntFloat) Value() float64 {
	return float64(t) / twoPow16
}

// Correction is the correctionField: signed nanoseconds in Q48.16 fixed
// point, additive across relay hops.
type Correction IntFloat

// Nanoseconds decodes Correction to floating-point nanoseconds.
func (t Correction) Nanoseconds() float64 {
	if t.TooBig() {
		return math.Inf(1)
	}
	return IntFloat(t).Value()
}

// Duration converts Correction to time.Duration, dropping any fraction of
// a nanosecond and ignoring the "too big" sentinel (treated as zero).
func (t Correction) Duration() time.Duration {
	if !t.TooBig() {
		return time.Duration(t.Nanoseconds())
	}
	return 0
}

func (t Correction) String() string {
	if t.TooBig() {
		return "Correction(too big)"
	}
	return fmt.Sprintf("Correction(%.3fns)", t.Nanoseconds())
}

// TooBig reports the all-ones-but-MSB sentinel meaning "too big to represent".
func (t Correction) TooBig() bool {
	return t == 0x7fffffffffffffff
}

// NewCorrection builds a Correction from a nanosecond value, clamping to the
// "too big" sentinel on overflow.
func NewCorrection(ns float64) Correction {
	scaled := ns * twoPow16
	if scaled > 0x7ffffffffffffffe {
		return Correction(0x7fffffffffffffff)
	}
	return Correction(int64(scaled))
}

// ClockIdentity is an 8-byte opaque identifier, conventionally derived from
// an EUI-64. It orders and compares bytewise (as an unsigned integer).
type ClockIdentity uint64

// String formats ClockIdentity the way ptp4l's pmc client does.
func (c ClockIdentity) String() string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(c))
	return fmt.Sprintf("%02x%02x%02x.%02x%02x.%02x%02x%02x",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7])
}

// MAC recovers the EUI-48 MAC address a ClockIdentity was derived from.
func (c ClockIdentity) MAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	mac[0] = byte(c >> 56)
	mac[1] = byte(c >> 48)
	mac[2] = byte(c >> 40)
	mac[3] = byte(c >> 16)
	mac[4] = byte(c >> 8)
	mac[5] = byte(c)
	return mac
}

// NewClockIdentity derives a ClockIdentity from a MAC address (EUI-48 or EUI-64).
func NewClockIdentity(mac net.HardwareAddr) (ClockIdentity, error) {
	var b [8]byte
	switch len(mac) {
	case 6:
		b[0], b[1], b[2] = mac[0], mac[1], mac[2]
		b[3], b[4] = 0xFF, 0xFE
		b[5], b[6], b[7] = mac[3], mac[4], mac[5]
	case 8:
		copy(b[:], mac)
	default:
		return 0, fmt.Errorf("unsupported MAC %v, must be either EUI-48 or EUI-64", mac)
	}
	return ClockIdentity(binary.BigEndian.Uint64(b[:])), nil
}

// PortIdentity is (ClockIdentity, portNumber). portNumber is 1-based; 0 is reserved.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

// String formats PortIdentity the way ptp4l's pmc client does.
func (p PortIdentity) String() string {
	return fmt.Sprintf("%s-%d", p.ClockIdentity, p.PortNumber)
}

// Compare returns -1, 0 or +1 as p is less than, equal to, or greater than q.
func (p PortIdentity) Compare(q PortIdentity) int {
	switch {
	case p.ClockIdentity < q.ClockIdentity:
		return -1
	case p.ClockIdentity > q.ClockIdentity:
		return 1
	}
	switch {
	case p.PortNumber < q.PortNumber:
		return -1
	case p.PortNumber > q.PortNumber:
		return 1
	}
	return 0
}

// Less reports whether p sorts before q: first by ClockIdentity, then by PortNumber.
func (p PortIdentity) Less(q PortIdentity) bool { return p.Compare(q) == -1 }

// PTPSeconds is the 48-bit (6 byte) big-endian seconds field of a Timestamp.
type PTPSeconds [6]uint8

// Empty reports whether all 6 bytes are zero.
func (s PTPSeconds) Empty() bool {
	return s == [6]uint8{}
}

// Seconds returns the value as a uint64.
func (s PTPSeconds) Seconds() uint64 {
	return uint64(s[5]) | uint64(s[4])<<8 | uint64(s[3])<<16 | uint64(s[2])<<24 |
		uint64(s[1])<<32 | uint64(s[0])<<40
}

// NewPTPSeconds packs a uint64 second count into PTPSeconds.
func NewPTPSeconds(v uint64) PTPSeconds {
	var s PTPSeconds
	s[0] = byte(v >> 40)
	s[1] = byte(v >> 32)
	s[2] = byte(v >> 24)
	s[3] = byte(v >> 16)
	s[4] = byte(v >> 8)
	s[5] = byte(v)
	return s
}

// Timestamp is a 48-bit-seconds + 32-bit-nanoseconds wire timestamp.
// Nanoseconds must stay in [0, 10^9) — see Timestamp.Valid.
type Timestamp struct {
	Seconds     PTPSeconds
	Nanoseconds uint32
}

// Valid reports whether Nanoseconds is in the required [0, 10^9) range.
func (t Timestamp) Valid() bool {
	return t.Nanoseconds < 1_000_000_000
}

// Time converts Timestamp to time.Time (UTC, epoch-relative).
func (t Timestamp) Time() time.Time {
	if t.Empty() {
		return time.Time{}
	}
	return time.Unix(int64(t.Seconds.Seconds()), int64(t.Nanoseconds)).UTC()
}

// Empty reports whether the timestamp is the zero value.
func (t Timestamp) Empty() bool {
	return t.Nanoseconds == 0 && t.Seconds.Empty()
}

func (t Timestamp) String() string {
	if t.Empty() {
		return "Timestamp(empty)"
	}
	return fmt.Sprintf("Timestamp(%s)", t.Time())
}

// NewTimestamp builds a Timestamp from time.Time.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{
		Seconds:     NewPTPSeconds(uint64(t.Unix())),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}

// Sub returns t - u as a signed duration, at nanosecond resolution.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return t.Time().Sub(u.Time())
}

// ClockClass is the traceability class of a clock (IEEE 802.1AS §8.6.2.2).
// The BMCA treats it as an opaque ordered byte; semantics below are
// informational only.
type ClockClass uint8

// Well-known clock classes used by this core and its tests.
const (
	ClockClassPrimaryReference ClockClass = 6   // synchronized to a primary reference (e.g. GNSS)
	ClockClassHoldover         ClockClass = 7   // within holdover spec after losing a primary reference
	ClockClassDefault          ClockClass = 248 // gPTP default grandmaster-capable clock
	ClockClassSlaveOnly        ClockClass = 255 // never grandmaster-capable
)

// ClockAccuracy is a bounded-range accuracy estimate (IEEE 802.1AS §8.6.2.3).
// The BMCA treats it as an opaque ordered byte (lower is better/more accurate).
type ClockAccuracy uint8

// Clock accuracy enumeration, Table 6.
const (
	ClockAccuracyNanosecond25       ClockAccuracy = 0x20
	ClockAccuracyNanosecond100      ClockAccuracy = 0x21
	ClockAccuracyNanosecond250      ClockAccuracy = 0x22
	ClockAccuracyMicrosecond1       ClockAccuracy = 0x23
	ClockAccuracyMicrosecond2point5 ClockAccuracy = 0x24
	ClockAccuracyMicrosecond10      ClockAccuracy = 0x25
	ClockAccuracyMicrosecond25      ClockAccuracy = 0x26
	ClockAccuracyMicrosecond100     ClockAccuracy = 0x27
	ClockAccuracyMicrosecond250     ClockAccuracy = 0x28
	ClockAccuracyMillisecond1       ClockAccuracy = 0x29
	ClockAccuracyMillisecond2point5 ClockAccuracy = 0x2A
	ClockAccuracyMillisecond10      ClockAccuracy = 0x2B
	ClockAccuracyMillisecond25      ClockAccuracy = 0x2C
	ClockAccuracyMillisecond100     ClockAccuracy = 0x2D
	ClockAccuracyMillisecond250     ClockAccuracy = 0x2E
	ClockAccuracySecond1            ClockAccuracy = 0x2F
	ClockAccuracySecond10           ClockAccuracy = 0x30
	ClockAccuracySecondGreater10    ClockAccuracy = 0x31
	ClockAccuracyUnknown            ClockAccuracy = 0xFE
)

// ClockAccuracyFromOffset buckets a measured offset magnitude into the
// nearest ClockAccuracy enumeration value. This is a configuration-time
// convenience (see clockquality.Manager), never consulted by the BMCA
// itself, which only ever compares the opaque byte.
func ClockAccuracyFromOffset(offset time.Duration) ClockAccuracy {
	if offset < 0 {
		offset = -offset
	}
	switch {
	case offset <= 25*time.Nanosecond:
		return ClockAccuracyNanosecond25
	case offset <= 100*time.Nanosecond:
		return ClockAccuracyNanosecond100
	case offset <= 250*time.Nanosecond:
		return ClockAccuracyNanosecond250
	case offset <= time.Microsecond:
		return ClockAccuracyMicrosecond1
	case offset <= 2500*time.Nanosecond:
		return ClockAccuracyMicrosecond2point5
	case offset <= 10*time.Microsecond:
		return ClockAccuracyMicrosecond10
	case offset <= 25*time.Microsecond:
		return ClockAccuracyMicrosecond25
	case offset <= 100*time.Microsecond:
		return ClockAccuracyMicrosecond100
	case offset <= 250*time.Microsecond:
		return ClockAccuracyMicrosecond250
	case offset <= time.Millisecond:
		return ClockAccuracyMillisecond1
	case offset <= 2500*time.Microsecond:
		return ClockAccuracyMillisecond2point5
	case offset <= 10*time.Millisecond:
		return ClockAccuracyMillisecond10
	case offset <= 25*time.Millisecond:
		return ClockAccuracyMillisecond25
	case offset <= 100*time.Millisecond:
		return ClockAccuracyMillisecond100
	case offset <= 250*time.Millisecond:
		return ClockAccuracyMillisecond250
	case offset <= time.Second:
		return ClockAccuracySecond1
	case offset <= 10*time.Second:
		return ClockAccuracySecond10
	}
	return ClockAccuracySecondGreater10
}

// ClockQuality is (clockClass, clockAccuracy, offsetScaledLogVariance),
// compared in that order by the BMCA. The triple is opaque: the BMCA never
// interprets the bytes beyond ordering them.
type ClockQuality struct {
	ClockClass              ClockClass
	ClockAccuracy           ClockAccuracy
	OffsetScaledLogVariance uint16
}

// Compare orders two ClockQuality values: lower ClockClass first, then
// lower ClockAccuracy, then lower OffsetScaledLogVariance.
func (q ClockQuality) Compare(o ClockQuality) int {
	if q.ClockClass != o.ClockClass {
		if q.ClockClass < o.ClockClass {
			return -1
		}
		return 1
	}
	if q.ClockAccuracy != o.ClockAccuracy {
		if q.ClockAccuracy < o.ClockAccuracy {
			return -1
		}
		return 1
	}
	if q.OffsetScaledLogVariance != o.OffsetScaledLogVariance {
		if q.OffsetScaledLogVariance < o.OffsetScaledLogVariance {
			return -1
		}
		return 1
	}
	return 0
}

// TimeSource indicates the immediate source of time used by the grandmaster.
type TimeSource uint8

// TimeSource enumeration, Table 6.
const (
	TimeSourceAtomicClock        TimeSource = 0x10
	TimeSourceGNSS               TimeSource = 0x20
	TimeSourceTerrestrialRadio   TimeSource = 0x30
	TimeSourceSerialTimeCode     TimeSource = 0x39
	TimeSourcePTP                TimeSource = 0x40
	TimeSourceNTP                TimeSource = 0x50
	TimeSourceHandSet            TimeSource = 0x60
	TimeSourceOther              TimeSource = 0x90
	TimeSourceInternalOscillator TimeSource = 0xA0
)

var timeSourceToString = map[TimeSource]string{
	TimeSourceAtomicClock:        "ATOMIC_CLOCK",
	TimeSourceGNSS:               "GNSS",
	TimeSourceTerrestrialRadio:   "TERRESTRIAL_RADIO",
	TimeSourceSerialTimeCode:     "SERIAL_TIME_CODE",
	TimeSourcePTP:                "PTP",
	TimeSourceNTP:                "NTP",
	TimeSourceHandSet:            "HAND_SET",
	TimeSourceOther:              "OTHER",
	TimeSourceInternalOscillator: "INTERNAL_OSCILLATOR",
}

func (t TimeSource) String() string {
	return timeSourceToString[t]
}

// LogInterval is log2 of a period in seconds, e.g. -3 means 125ms.
type LogInterval int8

// Duration converts LogInterval to time.Duration.
func (i LogInterval) Duration() time.Duration {
	secs := math.Pow(2, float64(i))
	return time.Duration(secs * float64(time.Second))
}

// NewLogInterval derives the nearest LogInterval for a time.Duration.
func NewLogInterval(d time.Duration) (LogInterval, error) {
	li := int(math.Round(math.Log2(d.Seconds())))
	if li > 127 || li < -128 {
		return 0, fmt.Errorf("logInterval %d out of int8 range", li)
	}
	return LogInterval(li), nil
}

// PortState is the externally visible role of a port's state machines
// (Table 20).
type PortState uint8

// Port states.
const (
	PortStateInitializing PortState = iota + 1
	PortStateFaulty
	PortStateDisabled
	PortStateListening
	PortStatePreMaster
	PortStateMaster
	PortStatePassive
	PortStateUncalibrated
	PortStateSlave
)

var portStateToString = map[PortState]string{
	PortStateInitializing: "INITIALIZING",
	PortStateFaulty:       "FAULTY",
	PortStateDisabled:     "DISABLED",
	PortStateListening:    "LISTENING",
	PortStatePreMaster:    "PRE_MASTER",
	PortStateMaster:       "MASTER",
	PortStatePassive:      "PASSIVE",
	PortStateUncalibrated: "UNCALIBRATED",
	PortStateSlave:        "SLAVE",
}

func (ps PortState) String() string {
	return portStateToString[ps]
}
