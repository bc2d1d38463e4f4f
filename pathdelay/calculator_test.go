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

package pathdelay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStandardP2PMeanLinkDelayBeforeRatioValid(t *testing.T) {
	c := NewStandardP2P(10, 0)
	base := time.Unix(1000, 0)
	t1 := base
	t2 := base.Add(500 * time.Microsecond)
	t3 := base.Add(550 * time.Microsecond)
	t4 := base.Add(1 * time.Millisecond)

	res, err := c.AddExchange(Exchange{T1: t1, T2: t2, T3: t3, T4: t4})
	require.NoError(t, err)
	require.False(t, res.RateRatioValid)
	require.Equal(t, 1.0, res.NeighborRateRatio)
	// delay = ((t4-t1)*1 - (t3-t2))/2 = (1ms - 50us)/2
	require.Equal(t, (time.Millisecond-50*time.Microsecond)/2, res.MeanLinkDelay)
}

func TestStandardP2PRejectsBadOrdering(t *testing.T) {
	c := NewStandardP2P(10, 0)
	base := time.Unix(1000, 0)
	_, err := c.AddExchange(Exchange{
		T1: base.Add(time.Millisecond), T2: base, T3: base, T4: base,
	})
	require.Error(t, err)

	_, err = c.AddExchange(Exchange{
		T1: base, T2: base.Add(time.Millisecond), T3: base, T4: base.Add(2 * time.Millisecond),
	})
	require.Error(t, err)
}

func TestStandardP2PClampsNegativeDelayToZero(t *testing.T) {
	c := NewStandardP2P(10, 0)
	base := time.Unix(1000, 0)
	// t3-t2 larger than t4-t1 drives the raw formula negative.
	res, err := c.AddExchange(Exchange{
		T1: base,
		T2: base.Add(5 * time.Microsecond),
		T3: base.Add(205 * time.Microsecond),
		T4: base.Add(100 * time.Microsecond),
	})
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), res.MeanLinkDelay)
}

func TestStandardP2PRateRatioBecomesValidAfterWindowFills(t *testing.T) {
	c := NewStandardP2P(2, 0) // window of 3 samples (indices 0..2)
	base := time.Unix(2000, 0)
	interval := 10 * time.Millisecond

	var lastRes Result
	for i := 0; i < 3; i++ {
		t1 := base.Add(time.Duration(i) * interval)
		t2 := t1.Add(100 * time.Microsecond)
		t3 := t2.Add(10 * time.Microsecond)
		t4 := t1.Add(200 * time.Microsecond)
		res, err := c.AddExchange(Exchange{T1: t1, T2: t2, T3: t3, T4: t4})
		require.NoError(t, err)
		lastRes = res
	}
	require.True(t, lastRes.RateRatioValid)
	require.InDelta(t, 1.0, lastRes.NeighborRateRatio, 0.0002)
}

func TestStandardP2PMaxDelayRejection(t *testing.T) {
	c := NewStandardP2P(10, 10*time.Microsecond)
	base := time.Unix(3000, 0)
	_, err := c.AddExchange(Exchange{
		T1: base,
		T2: base.Add(50 * time.Microsecond),
		T3: base.Add(51 * time.Microsecond),
		T4: base.Add(time.Millisecond),
	})
	require.Error(t, err)
}

func TestNativeCSNPassesThroughExternalValues(t *testing.T) {
	c := NewNativeCSN()
	res, err := c.AddExchange(Exchange{ExternalDelay: 42 * time.Microsecond, ExternalRatio: 1.00005})
	require.NoError(t, err)
	require.Equal(t, 42*time.Microsecond, res.MeanLinkDelay)
	require.Equal(t, 1.00005, res.NeighborRateRatio)
	require.True(t, res.RateRatioValid)
}

func TestIntrinsicCSNReportsResidenceTimeAndUnityRatio(t *testing.T) {
	c := NewIntrinsicCSN()
	res, err := c.AddExchange(Exchange{ResidenceTime: 3 * time.Microsecond})
	require.NoError(t, err)
	require.Equal(t, 3*time.Microsecond, res.MeanLinkDelay)
	require.Equal(t, 1.0, res.NeighborRateRatio)
}

func TestSlidingWindowMedian(t *testing.T) {
	w := newSlidingWindow(4)
	for _, v := range []float64{1, 2, 3, 4} {
		w.add(v)
	}
	require.Equal(t, 2.5, w.median())
	w.add(100) // evicts 1 -> {2,3,4,100}
	require.Equal(t, 3.5, w.median())
}
