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

import (
	"encoding/binary"
	"fmt"
)

// TLV abstracts away any TLV carried in a Signaling message.
type TLV interface {
	Type() TLVType
}

const tlvHeadSize = 4

// TLVHead is the common 4-byte tlvType+lengthField prefix of every TLV.
type TLVHead struct {
	TLVType     TLVType
	LengthField uint16 // length of the value that follows, always even
}

// Type implements TLV.
func (t TLVHead) Type() TLVType {
	return t.TLVType
}

func tlvHeadMarshalBinaryTo(t *TLVHead, b []byte) {
	binary.BigEndian.PutUint16(b, uint16(t.TLVType))
	binary.BigEndian.PutUint16(b[2:], t.LengthField)
}

func unmarshalTLVHeader(p *TLVHead, b []byte) error {
	if len(b) < tlvHeadSize {
		return fmt.Errorf("not enough data to decode TLV header")
	}
	p.TLVType = TLVType(binary.BigEndian.Uint16(b[0:]))
	p.LengthField = binary.BigEndian.Uint16(b[2:])
	return nil
}

// GenericTLV is an opaque, uninterpreted TLV: the codec preserves its type
// and raw value verbatim but never inspects the content. This is the only
// TLV representation this core produces or consumes — Signaling messages
// are a pass-through carrier, not a protocol extension point this node
// participates in.
type GenericTLV struct {
	TLVHead
	Value []byte
}

// MarshalBinaryTo marshals bytes to GenericTLV.
func (t *GenericTLV) MarshalBinaryTo(b []byte) (int, error) {
	t.LengthField = uint16(len(t.Value))
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	copy(b[tlvHeadSize:], t.Value)
	return tlvHeadSize + len(t.Value), nil
}

// UnmarshalBinary parses []byte and populates struct fields.
func (t *GenericTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	need := tlvHeadSize + int(t.LengthField)
	if len(b) < need {
		return fmt.Errorf("cannot decode TLV of length %d from %d bytes", need, len(b))
	}
	t.Value = make([]byte, t.LengthField)
	copy(t.Value, b[tlvHeadSize:need])
	return nil
}

func writeTLVs(tlvs []TLV, b []byte) (int, error) {
	pos := 0
	for _, tlv := range tlvs {
		ttlv, ok := tlv.(BinaryMarshalerTo)
		if !ok {
			return 0, fmt.Errorf("TLV of type %s does not support MarshalBinaryTo", tlv.Type())
		}
		nn, err := ttlv.MarshalBinaryTo(b[pos:])
		if err != nil {
			return 0, err
		}
		pos += nn
	}
	return pos, nil
}

// readTLVs decodes a sequence of TLVs from b[:maxLength] as GenericTLVs,
// stopping cleanly once fewer than a header's worth of bytes remain
// (trailing padding is common on Ethernet frames).
func readTLVs(tlvs []TLV, maxLength int, b []byte) ([]TLV, error) {
	pos := 0
	for {
		if pos+tlvHeadSize > maxLength {
			break
		}
		tlv := &GenericTLV{}
		if err := tlv.UnmarshalBinary(b[pos:maxLength]); err != nil {
			return tlvs, err
		}
		tlvs = append(tlvs, tlv)
		pos += tlvHeadSize + int(tlv.LengthField)
	}
	return tlvs, nil
}
