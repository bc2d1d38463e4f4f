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

package simtransport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEndpointDeliversAfterPropagationDelay(t *testing.T) {
	a, b := NewPair(10 * time.Millisecond)

	received := make(chan []byte, 1)
	b.OnReceive(func(port uint16, payload []byte, rx time.Time) {
		received <- payload
	})

	_, err := a.Send(1, []byte("hello"))
	require.NoError(t, err)

	select {
	case payload := <-received:
		require.Equal(t, []byte("hello"), payload)
	case <-time.After(time.Second):
		t.Fatal("frame never delivered")
	}
}

func TestEndpointDropAllSuppressesDelivery(t *testing.T) {
	a, b := NewPair(time.Millisecond)
	received := make(chan []byte, 1)
	b.OnReceive(func(port uint16, payload []byte, rx time.Time) { received <- payload })

	a.SetDropAll(true)
	_, err := a.Send(1, []byte("dropped"))
	require.NoError(t, err)

	select {
	case <-received:
		t.Fatal("frame should have been dropped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEndpointInterfaceMACIsDeterministicPerPort(t *testing.T) {
	a, _ := NewPair(time.Millisecond)
	mac1, err := a.InterfaceMAC(1)
	require.NoError(t, err)
	mac2, err := a.InterfaceMAC(1)
	require.NoError(t, err)
	require.Equal(t, mac1, mac2)

	mac3, _ := a.InterfaceMAC(2)
	require.NotEqual(t, mac1, mac3)
}

func TestClockAdjustFrequencyClampsToMax(t *testing.T) {
	c := NewClock(time.Unix(1000, 0), 1000)
	actual, err := c.AdjustFrequency(5000)
	require.NoError(t, err)
	require.Equal(t, 1000.0, actual)

	actual, err = c.AdjustFrequency(-5000)
	require.NoError(t, err)
	require.Equal(t, -1000.0, actual)
}

func TestClockAdjustPhaseStepsImmediately(t *testing.T) {
	c := NewClock(time.Unix(1000, 0), 0)
	before := c.Now()
	require.NoError(t, c.AdjustPhase(time.Hour))
	after := c.Now()
	require.WithinDuration(t, before.Add(time.Hour), after, 50*time.Millisecond)
}
