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

package bmca

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gptp-go/gptpd/protocol"
)

func localVec(priority1 uint8, id protocol.ClockIdentity) PriorityVector {
	return PriorityVector{
		Priority1:           priority1,
		ClockQuality:        protocol.ClockQuality{ClockClass: protocol.ClockClassDefault, ClockAccuracy: protocol.ClockAccuracyMicrosecond1},
		Priority2:           128,
		GrandmasterIdentity: id,
		StepsRemoved:        0,
		SenderPortIdentity:  protocol.PortIdentity{ClockIdentity: id, PortNumber: 1},
	}
}

func TestCoordinatorAllMasterWhenLocalIsBest(t *testing.T) {
	c := NewCoordinator(0)
	port1 := protocol.PortIdentity{ClockIdentity: 100, PortNumber: 1}
	port2 := protocol.PortIdentity{ClockIdentity: 100, PortNumber: 2}
	c.AddPort(port1, 3)
	c.AddPort(port2, 3)

	local := localVec(10, 100)
	changed := c.Recompute(time.Unix(1000, 0), local)
	require.Equal(t, RoleMaster, changed[port1])
	require.Equal(t, RoleMaster, changed[port2])
}

func TestCoordinatorSlaveWhenForeignMasterIsBetter(t *testing.T) {
	c := NewCoordinator(0)
	port1 := protocol.PortIdentity{ClockIdentity: 100, PortNumber: 1}
	tbl := c.AddPort(port1, 3)

	now := time.Unix(2000, 0)
	better := vec(1, 1, 0, protocol.PortIdentity{ClockIdentity: 1, PortNumber: 1})
	tbl.Update(better, time.Second, now)

	local := localVec(200, 100)
	changed := c.Recompute(now, local)
	require.Equal(t, RoleSlave, changed[port1])
}

func TestCoordinatorPassiveOnNonSelectedPortsToSameGrandmaster(t *testing.T) {
	c := NewCoordinator(0)
	port1 := protocol.PortIdentity{ClockIdentity: 100, PortNumber: 1}
	port2 := protocol.PortIdentity{ClockIdentity: 100, PortNumber: 2}
	tbl1 := c.AddPort(port1, 3)
	tbl2 := c.AddPort(port2, 3)

	now := time.Unix(3000, 0)
	gm := protocol.ClockIdentity(1)
	// port1 sees the master 2 hops away via relay 1, port2 sees the same
	// grandmaster 4 hops away via a different relay: port1 wins Slave.
	tbl1.Update(vec(gm, 1, 2, protocol.PortIdentity{ClockIdentity: 2, PortNumber: 1}), time.Second, now)
	tbl2.Update(vec(gm, 1, 4, protocol.PortIdentity{ClockIdentity: 3, PortNumber: 1}), time.Second, now)

	local := localVec(200, 100)
	changed := c.Recompute(now, local)
	require.Equal(t, RoleSlave, changed[port1])
	require.Equal(t, RolePassive, changed[port2])
}

func TestCoordinatorRecomputeIsIdempotentNoSpuriousChanges(t *testing.T) {
	c := NewCoordinator(0)
	port1 := protocol.PortIdentity{ClockIdentity: 100, PortNumber: 1}
	c.AddPort(port1, 3)

	now := time.Unix(4000, 0)
	local := localVec(10, 100)
	first := c.Recompute(now, local)
	require.Equal(t, RoleMaster, first[port1])

	second := c.Recompute(now.Add(time.Second), local)
	require.Empty(t, second) // role unchanged -> not in the changed set
	require.Equal(t, RoleMaster, c.Role(port1))
}

func TestCoordinatorRemovePort(t *testing.T) {
	c := NewCoordinator(0)
	port1 := protocol.PortIdentity{ClockIdentity: 100, PortNumber: 1}
	c.AddPort(port1, 3)
	c.RemovePort(port1)
	require.Nil(t, c.Table(port1))
	require.Equal(t, RoleListening, c.Role(port1))
}
