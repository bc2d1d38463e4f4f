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

package protocol

// all references are given for IEEE 802.1AS-2021 (which incorporates the
// relevant subset of IEEE 1588-2019)

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
)

// VersionPTP is the only PTP version this profile speaks.
const VersionPTP uint8 = 2

// TransportSpecificMask isolates the transportSpecific nibble of the first header byte.
const TransportSpecificMask uint8 = 0xf0

// PortEvent/PortGeneral are the well-known Ethernet/UDP ports gPTP traffic
// is conventionally carried on when tunneled over UDP; the primary
// transport for 802.1AS is raw Ethernet (see gptpio.Transport), but keeping
// these around costs nothing and matches PTP tooling conventions.
var (
	PortEvent   = 319
	PortGeneral = 320
)

var twoZeros = []byte{0, 0}

// DefaultTargetPortIdentity is a port identity that means "any port".
var DefaultTargetPortIdentity = PortIdentity{
	ClockIdentity: 0xffffffffffffffff,
	PortNumber:    0xffff,
}

// DecodeError is a sum type describing why DecodePacket or an individual
// message's UnmarshalBinary failed, so callers can errors.Is a specific
// cause instead of matching on error strings.
type DecodeError struct {
	Kind DecodeErrorKind
	msg  string
}

// DecodeErrorKind enumerates the ways a frame can fail to decode.
type DecodeErrorKind int

// Decode error kinds.
const (
	ErrTruncated DecodeErrorKind = iota + 1
	ErrUnsupportedVersion
	ErrBadTransportSpecific
	ErrInconsistentLength
	ErrInvalidNanoseconds
	ErrUnsupportedMessageType
)

func (e *DecodeError) Error() string { return e.msg }

// Is lets callers write errors.Is(err, protocol.ErrTruncated) and friends by
// comparing Kind, since DecodeError values carry a formatted message that
// otherwise would never compare equal.
func (e *DecodeError) Is(target error) bool {
	var other *DecodeError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newDecodeError(kind DecodeErrorKind, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// sentinels for errors.Is comparisons against a bare kind
var (
	ErrTruncatedSentinel           = &DecodeError{Kind: ErrTruncated}
	ErrUnsupportedVersionSentinel  = &DecodeError{Kind: ErrUnsupportedVersion}
	ErrBadTransportSpecificSentinel = &DecodeError{Kind: ErrBadTransportSpecific}
	ErrInconsistentLengthSentinel  = &DecodeError{Kind: ErrInconsistentLength}
	ErrInvalidNanosecondsSentinel  = &DecodeError{Kind: ErrInvalidNanoseconds}
	ErrUnsupportedMessageTypeSentinel = &DecodeError{Kind: ErrUnsupportedMessageType}
)

// Header is Table 35, the common PTP message header shared by every gPTP message.
type Header struct {
	TransportSpecificAndMsgType TransportSpecificAndMsgType
	VersionPTP                  uint8 // high nibble reserved, low nibble must be 2
	MessageLength               uint16
	DomainNumber                uint8
	Reserved1                   uint8
	FlagField                   uint16
	CorrectionField             Correction
	Reserved2                   uint32
	SourcePortIdentity          PortIdentity
	SequenceID                  uint16
	ControlField                uint8 // legacy 1588 field, unused by 802.1AS
	LogMessageInterval          LogInterval
}

const headerSize = 34 // bytes

// unmarshalHeader is not a Header.UnmarshalBinary to prevent all packets
// from having a default (and incomplete) UnmarshalBinary implementation through embedding.
func unmarshalHeader(p *Header, b []byte) error {
	if len(b) < headerSize {
		return newDecodeError(ErrTruncated, "header needs %d bytes, got %d", headerSize, len(b))
	}
	p.TransportSpecificAndMsgType = TransportSpecificAndMsgType(b[0])
	p.VersionPTP = b[1] & 0x0f
	if p.VersionPTP != VersionPTP {
		return newDecodeError(ErrUnsupportedVersion, "unsupported versionPTP %d", p.VersionPTP)
	}
	if p.TransportSpecificAndMsgType.TransportSpecific() != TransportSpecificGPTP {
		return newDecodeError(ErrBadTransportSpecific, "unsupported transportSpecific %d", p.TransportSpecificAndMsgType.TransportSpecific())
	}
	p.MessageLength = binary.BigEndian.Uint16(b[2:])
	p.DomainNumber = b[4]
	p.Reserved1 = b[5]
	p.FlagField = binary.BigEndian.Uint16(b[6:])
	p.CorrectionField = Correction(binary.BigEndian.Uint64(b[8:]))
	p.Reserved2 = binary.BigEndian.Uint32(b[16:])
	p.SourcePortIdentity.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[20:]))
	p.SourcePortIdentity.PortNumber = binary.BigEndian.Uint16(b[28:])
	p.SequenceID = binary.BigEndian.Uint16(b[30:])
	p.ControlField = b[32]
	p.LogMessageInterval = LogInterval(b[33])
	return nil
}

// MessageType returns the message's MessageType.
func (p *Header) MessageType() MessageType {
	return p.TransportSpecificAndMsgType.MsgType()
}

// SetSequence populates the sequence field.
func (p *Header) SetSequence(sequence uint16) {
	p.SequenceID = sequence
}

func checkPacketLength(p *Header, wantExact, have int) error {
	if have < wantExact {
		return newDecodeError(ErrTruncated, "message needs %d bytes, got %d", wantExact, have)
	}
	if int(p.MessageLength) > have {
		return newDecodeError(ErrInconsistentLength, "messageLength %d exceeds %d available bytes", p.MessageLength, have)
	}
	return nil
}

// headerMarshalBinaryTo is not a Header.MarshalBinaryTo to prevent all packets
// from having a default (and incomplete) MarshalBinaryTo implementation through embedding.
func headerMarshalBinaryTo(p *Header, b []byte) int {
	b[0] = byte(p.TransportSpecificAndMsgType)
	b[1] = p.VersionPTP & 0x0f
	binary.BigEndian.PutUint16(b[2:], p.MessageLength)
	b[4] = p.DomainNumber
	b[5] = p.Reserved1
	binary.BigEndian.PutUint16(b[6:], p.FlagField)
	binary.BigEndian.PutUint64(b[8:], uint64(p.CorrectionField))
	binary.BigEndian.PutUint32(b[16:], p.Reserved2)
	binary.BigEndian.PutUint64(b[20:], uint64(p.SourcePortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[28:], p.SourcePortIdentity.PortNumber)
	binary.BigEndian.PutUint16(b[30:], p.SequenceID)
	b[32] = p.ControlField
	b[33] = byte(p.LogMessageInterval)
	return headerSize
}

// flags used in FlagField, Table 37 Values of flagField.
const (
	// first octet
	FlagAlternateMaster  uint16 = 1 << (8 + 0)
	FlagTwoStep          uint16 = 1 << (8 + 1)
	FlagUnicast          uint16 = 1 << (8 + 2)
	FlagProfileSpecific1 uint16 = 1 << (8 + 5)
	FlagProfileSpecific2 uint16 = 1 << (8 + 6)
	// second octet
	FlagLeap61                   uint16 = 1 << 0
	FlagLeap59                   uint16 = 1 << 1
	FlagCurrentUtcOffsetValid    uint16 = 1 << 2
	FlagPTPTimescale             uint16 = 1 << 3
	FlagTimeTraceable            uint16 = 1 << 4
	FlagFrequencyTraceable       uint16 = 1 << 5
	FlagSynchronizationUncertain uint16 = 1 << 6
)

// General gPTP messages.
//
// Every message is a Header followed by a body unique to its message type;
// only Signaling additionally carries a suffix of zero or more TLVs.

// AnnounceBody is Table 43, the Announce message fields.
type AnnounceBody struct {
	OriginTimestamp         Timestamp
	CurrentUTCOffset        int16
	Reserved                uint8
	GrandmasterPriority1    uint8
	GrandmasterClockQuality ClockQuality
	GrandmasterPriority2    uint8
	GrandmasterIdentity     ClockIdentity
	StepsRemoved            uint16
	TimeSource              TimeSource
}

// Announce is a full Announce message: header(34) + body(30) = 64 bytes, no TLVs.
type Announce struct {
	Header
	AnnounceBody
}

const announceBodySize = 30
const announceSize = headerSize + announceBodySize

// MarshalBinaryTo marshals Announce to b.
func (p *Announce) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < announceSize {
		return 0, fmt.Errorf("not enough buffer to write Announce")
	}
	p.MessageLength = announceSize
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.OriginTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.OriginTimestamp.Nanoseconds)
	binary.BigEndian.PutUint16(b[n+10:], uint16(p.CurrentUTCOffset))
	b[n+12] = p.Reserved
	b[n+13] = p.GrandmasterPriority1
	b[n+14] = byte(p.GrandmasterClockQuality.ClockClass)
	b[n+15] = byte(p.GrandmasterClockQuality.ClockAccuracy)
	binary.BigEndian.PutUint16(b[n+16:], p.GrandmasterClockQuality.OffsetScaledLogVariance)
	b[n+18] = p.GrandmasterPriority2
	binary.BigEndian.PutUint64(b[n+19:], uint64(p.GrandmasterIdentity))
	binary.BigEndian.PutUint16(b[n+27:], p.StepsRemoved)
	b[n+29] = byte(p.TimeSource)
	return announceSize, nil
}

// MarshalBinary converts Announce to []byte.
func (p *Announce) MarshalBinary() ([]byte, error) {
	buf := make([]byte, announceSize)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary unmarshals b into Announce.
func (p *Announce) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if err := checkPacketLength(&p.Header, announceSize, len(b)); err != nil {
		return err
	}
	n := headerSize
	copy(p.OriginTimestamp.Seconds[:], b[n:])
	p.OriginTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[n+6:])
	if !p.OriginTimestamp.Valid() {
		return newDecodeError(ErrInvalidNanoseconds, "originTimestamp.nanoseconds %d out of range", p.OriginTimestamp.Nanoseconds)
	}
	p.CurrentUTCOffset = int16(binary.BigEndian.Uint16(b[n+10:]))
	p.Reserved = b[n+12]
	p.GrandmasterPriority1 = b[n+13]
	p.GrandmasterClockQuality.ClockClass = ClockClass(b[n+14])
	p.GrandmasterClockQuality.ClockAccuracy = ClockAccuracy(b[n+15])
	p.GrandmasterClockQuality.OffsetScaledLogVariance = binary.BigEndian.Uint16(b[n+16:])
	p.GrandmasterPriority2 = b[n+18]
	p.GrandmasterIdentity = ClockIdentity(binary.BigEndian.Uint64(b[n+19:]))
	p.StepsRemoved = binary.BigEndian.Uint16(b[n+27:])
	p.TimeSource = TimeSource(b[n+29])
	return nil
}

// SyncBody is Table 44, the Sync message fields (the origin timestamp here
// is nominal/zero on a two-step port — the precise value rides Follow_Up).
type SyncBody struct {
	OriginTimestamp Timestamp
}

// Sync is a full Sync message: header(34) + body(10) = 44 bytes, no TLVs.
type Sync struct {
	Header
	SyncBody
}

const syncBodySize = 10
const syncSize = headerSize + syncBodySize

// MarshalBinaryTo marshals Sync to b.
func (p *Sync) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < syncSize {
		return 0, fmt.Errorf("not enough buffer to write Sync")
	}
	p.MessageLength = syncSize
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.OriginTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.OriginTimestamp.Nanoseconds)
	return syncSize, nil
}

// MarshalBinary converts Sync to []byte.
func (p *Sync) MarshalBinary() ([]byte, error) {
	buf := make([]byte, syncSize)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary unmarshals b into Sync.
func (p *Sync) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if err := checkPacketLength(&p.Header, syncSize, len(b)); err != nil {
		return err
	}
	copy(p.OriginTimestamp.Seconds[:], b[headerSize:])
	p.OriginTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[headerSize+6:])
	if !p.OriginTimestamp.Valid() {
		return newDecodeError(ErrInvalidNanoseconds, "originTimestamp.nanoseconds %d out of range", p.OriginTimestamp.Nanoseconds)
	}
	return nil
}

// FollowUpBody is Table 45, the Follow_Up message fields.
type FollowUpBody struct {
	PreciseOriginTimestamp Timestamp
}

// FollowUp is a full Follow_Up message: header(34) + body(10) = 44 bytes, no TLVs.
type FollowUp struct {
	Header
	FollowUpBody
}

const followUpSize = headerSize + 10

// MarshalBinaryTo marshals FollowUp to b.
func (p *FollowUp) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < followUpSize {
		return 0, fmt.Errorf("not enough buffer to write FollowUp")
	}
	p.MessageLength = followUpSize
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.PreciseOriginTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.PreciseOriginTimestamp.Nanoseconds)
	return followUpSize, nil
}

// MarshalBinary converts FollowUp to []byte.
func (p *FollowUp) MarshalBinary() ([]byte, error) {
	buf := make([]byte, followUpSize)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary unmarshals b into FollowUp.
func (p *FollowUp) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if err := checkPacketLength(&p.Header, followUpSize, len(b)); err != nil {
		return err
	}
	copy(p.PreciseOriginTimestamp.Seconds[:], b[headerSize:])
	p.PreciseOriginTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[headerSize+6:])
	if !p.PreciseOriginTimestamp.Valid() {
		return newDecodeError(ErrInvalidNanoseconds, "preciseOriginTimestamp.nanoseconds %d out of range", p.PreciseOriginTimestamp.Nanoseconds)
	}
	return nil
}

// PDelayReqBody is Table 47, the Pdelay_Req message fields.
type PDelayReqBody struct {
	OriginTimestamp Timestamp
	Reserved        [10]uint8
}

// PDelayReq is a full Pdelay_Req message: header(34) + body(20) = 54 bytes.
type PDelayReq struct {
	Header
	PDelayReqBody
}

const pDelayReqSize = headerSize + 20

// MarshalBinaryTo marshals PDelayReq to b.
func (p *PDelayReq) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < pDelayReqSize {
		return 0, fmt.Errorf("not enough buffer to write PDelayReq")
	}
	p.MessageLength = pDelayReqSize
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.OriginTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.OriginTimestamp.Nanoseconds)
	copy(b[n+10:], p.Reserved[:])
	return pDelayReqSize, nil
}

// MarshalBinary converts PDelayReq to []byte.
func (p *PDelayReq) MarshalBinary() ([]byte, error) {
	buf := make([]byte, pDelayReqSize)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary unmarshals b into PDelayReq.
func (p *PDelayReq) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if err := checkPacketLength(&p.Header, pDelayReqSize, len(b)); err != nil {
		return err
	}
	copy(p.OriginTimestamp.Seconds[:], b[headerSize:])
	p.OriginTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[headerSize+6:])
	if !p.OriginTimestamp.Valid() {
		return newDecodeError(ErrInvalidNanoseconds, "originTimestamp.nanoseconds %d out of range", p.OriginTimestamp.Nanoseconds)
	}
	copy(p.Reserved[:], b[headerSize+10:])
	return nil
}

// PDelayRespBody is Table 48, the Pdelay_Resp message fields.
type PDelayRespBody struct {
	RequestReceiptTimestamp Timestamp
	RequestingPortIdentity  PortIdentity
}

// PDelayResp is a full Pdelay_Resp message: header(34) + body(20) = 54 bytes.
type PDelayResp struct {
	Header
	PDelayRespBody
}

const pDelayRespSize = headerSize + 20

// MarshalBinaryTo marshals PDelayResp to b.
func (p *PDelayResp) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < pDelayRespSize {
		return 0, fmt.Errorf("not enough buffer to write PDelayResp")
	}
	p.MessageLength = pDelayRespSize
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.RequestReceiptTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.RequestReceiptTimestamp.Nanoseconds)
	binary.BigEndian.PutUint64(b[n+10:], uint64(p.RequestingPortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[n+18:], p.RequestingPortIdentity.PortNumber)
	return pDelayRespSize, nil
}

// MarshalBinary converts PDelayResp to []byte.
func (p *PDelayResp) MarshalBinary() ([]byte, error) {
	buf := make([]byte, pDelayRespSize)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary unmarshals b into PDelayResp.
func (p *PDelayResp) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if err := checkPacketLength(&p.Header, pDelayRespSize, len(b)); err != nil {
		return err
	}
	copy(p.RequestReceiptTimestamp.Seconds[:], b[headerSize:])
	p.RequestReceiptTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[headerSize+6:])
	if !p.RequestReceiptTimestamp.Valid() {
		return newDecodeError(ErrInvalidNanoseconds, "requestReceiptTimestamp.nanoseconds %d out of range", p.RequestReceiptTimestamp.Nanoseconds)
	}
	p.RequestingPortIdentity.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[headerSize+10:]))
	p.RequestingPortIdentity.PortNumber = binary.BigEndian.Uint16(b[headerSize+18:])
	return nil
}

// PDelayRespFollowUpBody is Table 49, the Pdelay_Resp_Follow_Up message fields.
type PDelayRespFollowUpBody struct {
	ResponseOriginTimestamp Timestamp
	RequestingPortIdentity  PortIdentity
}

// PDelayRespFollowUp is a full Pdelay_Resp_Follow_Up message: header(34) + body(20) = 54 bytes.
type PDelayRespFollowUp struct {
	Header
	PDelayRespFollowUpBody
}

const pDelayRespFollowUpSize = headerSize + 20

// MarshalBinaryTo marshals PDelayRespFollowUp to b.
func (p *PDelayRespFollowUp) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < pDelayRespFollowUpSize {
		return 0, fmt.Errorf("not enough buffer to write PDelayRespFollowUp")
	}
	p.MessageLength = pDelayRespFollowUpSize
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.ResponseOriginTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.ResponseOriginTimestamp.Nanoseconds)
	binary.BigEndian.PutUint64(b[n+10:], uint64(p.RequestingPortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[n+18:], p.RequestingPortIdentity.PortNumber)
	return pDelayRespFollowUpSize, nil
}

// MarshalBinary converts PDelayRespFollowUp to []byte.
func (p *PDelayRespFollowUp) MarshalBinary() ([]byte, error) {
	buf := make([]byte, pDelayRespFollowUpSize)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary unmarshals b into PDelayRespFollowUp.
func (p *PDelayRespFollowUp) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if err := checkPacketLength(&p.Header, pDelayRespFollowUpSize, len(b)); err != nil {
		return err
	}
	copy(p.ResponseOriginTimestamp.Seconds[:], b[headerSize:])
	p.ResponseOriginTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[headerSize+6:])
	if !p.ResponseOriginTimestamp.Valid() {
		return newDecodeError(ErrInvalidNanoseconds, "responseOriginTimestamp.nanoseconds %d out of range", p.ResponseOriginTimestamp.Nanoseconds)
	}
	p.RequestingPortIdentity.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[headerSize+10:]))
	p.RequestingPortIdentity.PortNumber = binary.BigEndian.Uint16(b[headerSize+18:])
	return nil
}

// Signaling carries a targetPortIdentity plus a suffix of zero or more
// TLVs. This core never originates Signaling messages; it decodes and
// re-serializes them unchanged so a relaying boundary clock could pass
// them through, without interpreting any TLV content (see GenericTLV).
type Signaling struct {
	Header
	TargetPortIdentity PortIdentity
	TLVs               []TLV
}

const signalingBodySize = 10 // targetPortIdentity only, TLVs follow

// MarshalBinaryTo marshals Signaling to b.
func (p *Signaling) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < headerSize+signalingBodySize {
		return 0, fmt.Errorf("not enough buffer to write Signaling")
	}
	n := headerMarshalBinaryTo(&p.Header, b)
	binary.BigEndian.PutUint64(b[n:], uint64(p.TargetPortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[n+8:], p.TargetPortIdentity.PortNumber)
	pos := n + signalingBodySize
	tlvLen, err := writeTLVs(p.TLVs, b[pos:])
	if err != nil {
		return 0, err
	}
	p.MessageLength = uint16(pos + tlvLen)
	binary.BigEndian.PutUint16(b[2:], p.MessageLength)
	return pos + tlvLen, nil
}

// MarshalBinary converts Signaling to []byte.
func (p *Signaling) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 512)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary unmarshals b into Signaling.
func (p *Signaling) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if err := checkPacketLength(&p.Header, headerSize+signalingBodySize, len(b)); err != nil {
		return err
	}
	n := headerSize
	p.TargetPortIdentity.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[n:]))
	p.TargetPortIdentity.PortNumber = binary.BigEndian.Uint16(b[n+8:])
	pos := n + signalingBodySize
	var err error
	p.TLVs, err = readTLVs(p.TLVs, int(p.MessageLength)-pos, b[pos:])
	return err
}

// Packet is an interface abstracting over all gPTP message types.
type Packet interface {
	MessageType() MessageType
	SetSequence(uint16)
}

// BinaryMarshalerTo is implemented by a message that can marshal itself
// into a caller-provided buffer, avoiding an allocation per packet.
type BinaryMarshalerTo interface {
	MarshalBinaryTo([]byte) (int, error)
}

// BytesTo marshals a message that supports optimized marshalling into buf,
// appending the two trailing bytes some transports expect after a PTP frame.
func BytesTo(p BinaryMarshalerTo, buf []byte) (int, error) {
	n, err := p.MarshalBinaryTo(buf)
	if err != nil {
		return 0, err
	}
	buf[n] = 0x0
	buf[n+1] = 0x0
	return n + 2, nil
}

// Bytes converts any Packet to []byte.
func Bytes(p Packet) ([]byte, error) {
	if pp, ok := p.(encoding.BinaryMarshaler); ok {
		b, err := pp.MarshalBinary()
		return append(b, twoZeros...), err
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, p); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, twoZeros); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes parses rawBytes into an already-allocated Packet.
func FromBytes(rawBytes []byte, p Packet) error {
	if pp, ok := p.(encoding.BinaryUnmarshaler); ok {
		return pp.UnmarshalBinary(rawBytes)
	}
	reader := bytes.NewReader(rawBytes)
	return binary.Read(reader, binary.BigEndian, p)
}

// DecodePacket is the single entry point to decode a []byte into a gPTP
// Packet, dispatching on the message type in the first header octet.
func DecodePacket(b []byte) (Packet, error) {
	msgType, err := ProbeMsgType(b)
	if err != nil {
		return nil, err
	}
	var p Packet
	switch msgType {
	case MessageSync:
		p = &Sync{}
	case MessagePDelayReq:
		p = &PDelayReq{}
	case MessagePDelayResp:
		p = &PDelayResp{}
	case MessageFollowUp:
		p = &FollowUp{}
	case MessagePDelayRespFollowUp:
		p = &PDelayRespFollowUp{}
	case MessageAnnounce:
		p = &Announce{}
	case MessageSignaling:
		p = &Signaling{}
	default:
		return nil, newDecodeError(ErrUnsupportedMessageType, "unsupported message type %s", msgType)
	}

	if err := FromBytes(b, p); err != nil {
		return nil, err
	}
	return p, nil
}
