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

func testConfig() Config {
	cfg := NewConfigForProfile(ProfileAutomotive)
	cfg.MinConsecutiveForCapable = 2
	cfg.MaxRejectedRatioStreak = 3
	return cfg
}

func runOneExchange(t *testing.T, e *Engine, base time.Time, seq uint16) Result {
	t.Helper()
	require.True(t, e.ReadyToSend())
	t1 := base
	e.OnRequestSent(seq, t1, base)
	require.NoError(t, e.OnPdelayResp(seq, t1.Add(100*time.Microsecond), t1.Add(900*time.Microsecond)))
	res, err := e.OnPdelayRespFollowUp(seq, t1.Add(150*time.Microsecond))
	require.NoError(t, err)
	return res
}

func TestEngineLifecycle(t *testing.T) {
	e := NewEngine(NewStandardP2P(10, 0), testConfig())
	require.Equal(t, StateNotEnabled, e.State())
	require.False(t, e.ReadyToSend())

	e.Enable()
	require.Equal(t, StateInitialSend, e.State())

	base := time.Unix(5000, 0)
	runOneExchange(t, e, base, 0)
	require.Equal(t, StateSend, e.State())
}

func TestEngineBecomesAsCapableAfterConsecutiveGoodExchanges(t *testing.T) {
	e := NewEngine(NewStandardP2P(10, 0), testConfig())
	e.Enable()
	require.False(t, e.AsCapable())

	base := time.Unix(6000, 0)
	runOneExchange(t, e, base, 0)
	require.False(t, e.AsCapable()) // only 1 consecutive, need 2
	runOneExchange(t, e, base.Add(time.Second), 1)
	require.True(t, e.AsCapable())
}

func TestEngineRejectsMismatchedSequence(t *testing.T) {
	e := NewEngine(NewStandardP2P(10, 0), testConfig())
	e.Enable()
	require.True(t, e.ReadyToSend())
	base := time.Unix(7000, 0)
	e.OnRequestSent(3, base, base)
	err := e.OnPdelayResp(4, base.Add(time.Microsecond), base.Add(2*time.Microsecond))
	require.Error(t, err)
}

func TestEngineTimeoutResetsAndClearsAsCapableAfterStreak(t *testing.T) {
	cfg := testConfig()
	cfg.ResponseTimeout = 10 * time.Millisecond
	cfg.MaxRejectedRatioStreak = 2
	e := NewEngine(NewStandardP2P(10, 0), cfg)
	e.Enable()

	base := time.Unix(8000, 0)
	require.True(t, e.ReadyToSend())
	e.OnRequestSent(0, base, base)

	require.False(t, e.Timeout(base.Add(5*time.Millisecond)))
	require.True(t, e.Timeout(base.Add(20*time.Millisecond)))
	require.Equal(t, StateReset, e.State())

	require.True(t, e.ReadyToSend())
	e.OnRequestSent(1, base, base.Add(time.Second))
	require.True(t, e.Timeout(base.Add(time.Second).Add(20*time.Millisecond)))
	require.False(t, e.AsCapable())
}

func TestEngineDisableClearsAsCapable(t *testing.T) {
	e := NewEngine(NewStandardP2P(10, 0), testConfig())
	e.Enable()
	base := time.Unix(9000, 0)
	runOneExchange(t, e, base, 0)
	runOneExchange(t, e, base.Add(time.Second), 1)
	require.True(t, e.AsCapable())

	e.Disable()
	require.Equal(t, StateNotEnabled, e.State())
	require.False(t, e.AsCapable())
}
