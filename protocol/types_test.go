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
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransportSpecificAndMsgType(t *testing.T) {
	m := NewTransportSpecificAndMsgType(MessageSignaling, TransportSpecificGPTP)
	require.Equal(t, MessageSignaling, m.MsgType())
	require.Equal(t, TransportSpecificGPTP, m.TransportSpecific())
}

func TestProbeMsgType(t *testing.T) {
	tests := []struct {
		in      []byte
		want    MessageType
		wantErr bool
	}{
		{in: []byte{}, wantErr: true},
		{in: []byte{0x0}, want: MessageSync},
		{in: []byte{0xC}, want: MessageSignaling},
		{in: []byte{0x1C}, want: MessageSignaling},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("ProbeMsgType in=%v", tt.in), func(t *testing.T) {
			got, err := ProbeMsgType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCorrection(t *testing.T) {
	c := NewCorrection(1500.5)
	require.InDelta(t, 1500.5, c.Nanoseconds(), 0.001)
	require.False(t, c.TooBig())

	tooBig := Correction(0x7fffffffffffffff)
	require.True(t, tooBig.TooBig())
	require.Equal(t, time.Duration(0), tooBig.Duration())
}

func TestClockIdentityFromMAC(t *testing.T) {
	mac, err := net.ParseMAC("00:11:22:33:44:55")
	require.NoError(t, err)
	ci, err := NewClockIdentity(mac)
	require.NoError(t, err)
	require.Equal(t, mac, ci.MAC())

	_, err = NewClockIdentity(net.HardwareAddr{0x01, 0x02})
	require.Error(t, err)
}

func TestPortIdentityCompare(t *testing.T) {
	a := PortIdentity{ClockIdentity: 1, PortNumber: 1}
	b := PortIdentity{ClockIdentity: 1, PortNumber: 2}
	c := PortIdentity{ClockIdentity: 2, PortNumber: 1}

	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, b.Compare(a))
	require.Equal(t, 0, a.Compare(a))
	require.True(t, a.Less(c))
	require.True(t, b.Less(c))
}

func TestPTPSecondsRoundTrip(t *testing.T) {
	want := uint64(0x0000_1234_5678)
	s := NewPTPSeconds(want)
	require.Equal(t, want, s.Seconds())
	require.False(t, s.Empty())
	require.True(t, PTPSeconds{}.Empty())
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123_000_000, time.UTC)
	ts := NewTimestamp(now)
	require.True(t, ts.Valid())
	require.False(t, ts.Empty())
	require.Equal(t, now, ts.Time())
	require.True(t, Timestamp{}.Empty())
}

func TestTimestampSub(t *testing.T) {
	t1 := NewTimestamp(time.Unix(100, 500))
	t2 := NewTimestamp(time.Unix(100, 100))
	require.Equal(t, 400*time.Nanosecond, t1.Sub(t2))
}

func TestClockAccuracyFromOffset(t *testing.T) {
	require.Equal(t, ClockAccuracyNanosecond25, ClockAccuracyFromOffset(10*time.Nanosecond))
	require.Equal(t, ClockAccuracyMicrosecond1, ClockAccuracyFromOffset(time.Microsecond))
	require.Equal(t, ClockAccuracySecondGreater10, ClockAccuracyFromOffset(time.Hour))
	require.Equal(t, ClockAccuracyFromOffset(250*time.Millisecond), ClockAccuracyFromOffset(-250*time.Millisecond))
}

func TestClockQualityCompare(t *testing.T) {
	better := ClockQuality{ClockClass: ClockClassPrimaryReference, ClockAccuracy: ClockAccuracyNanosecond25}
	worse := ClockQuality{ClockClass: ClockClassDefault, ClockAccuracy: ClockAccuracyNanosecond25}
	require.Equal(t, -1, better.Compare(worse))
	require.Equal(t, 1, worse.Compare(better))
	require.Equal(t, 0, better.Compare(better))
}

func TestLogIntervalDuration(t *testing.T) {
	li := LogInterval(-3)
	require.Equal(t, 125*time.Millisecond, li.Duration())

	got, err := NewLogInterval(125 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, li, got)
}

func TestPortStateString(t *testing.T) {
	require.Equal(t, "SLAVE", PortStateSlave.String())
	require.Equal(t, "MASTER", PortStateMaster.String())
}
