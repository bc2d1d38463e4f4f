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

// ComparisonResult is the outcome of comparing two PriorityVectors, per
// IEEE 802.1AS §10.3.4's dataset comparison algorithm.
type ComparisonResult int8

// Comparison outcomes.
const (
	ABetter         ComparisonResult = 1  // A wins on grandmaster priority/quality/identity
	BBetter         ComparisonResult = -1 // B wins on grandmaster priority/quality/identity
	ABetterTopology ComparisonResult = 2  // same grandmaster, A is topologically closer/preferred
	BBetterTopology ComparisonResult = -2 // same grandmaster, B is topologically closer/preferred
	SameMaster      ComparisonResult = 0  // identical grandmaster reached via the identical path (including a vector compared with itself)
	Error1          ComparisonResult = 3  // reserved error outcome; Compare does not return it
	Error2          ComparisonResult = 4  // degenerate input: same sender and grandmaster disagree on stepsRemoved
)

// compareGrandmasterTuple orders two vectors by (priority1, clockClass,
// clockAccuracy, offsetScaledLogVariance, priority2), returning <0, 0 or >0
// as a sorts before, equal to, or after b. GrandmasterIdentity is not part
// of this tuple; it is consulted separately by Compare.
func compareGrandmasterTuple(a, b PriorityVector) int {
	if a.Priority1 != b.Priority1 {
		if a.Priority1 < b.Priority1 {
			return -1
		}
		return 1
	}
	if c := a.ClockQuality.Compare(b.ClockQuality); c != 0 {
		return c
	}
	if a.Priority2 != b.Priority2 {
		if a.Priority2 < b.Priority2 {
			return -1
		}
		return 1
	}
	return 0
}

// Compare implements the §10.3.4 dataset comparison algorithm: first by
// the grandmaster priority/quality tuple and identity (ABetter/BBetter),
// then — if both vectors name the same grandmaster — by topology
// (stepsRemoved, then senderPortIdentity).
func Compare(a, b PriorityVector) ComparisonResult {
	if c := compareGrandmasterTuple(a, b); c != 0 {
		if c < 0 {
			return ABetter
		}
		return BBetter
	}
	if a.GrandmasterIdentity != b.GrandmasterIdentity {
		if a.GrandmasterIdentity < b.GrandmasterIdentity {
			return ABetter
		}
		return BBetter
	}

	// Same grandmaster priority/quality/identity: this is a topology
	// comparison between two paths to the same master.
	if a.SenderPortIdentity == b.SenderPortIdentity && a.StepsRemoved != b.StepsRemoved {
		return Error2
	}

	diff := int(a.StepsRemoved) - int(b.StepsRemoved)
	switch {
	case diff <= -2:
		return ABetterTopology
	case diff >= 2:
		return BBetterTopology
	}

	switch {
	case a.SenderPortIdentity.Less(b.SenderPortIdentity):
		return ABetterTopology
	case b.SenderPortIdentity.Less(a.SenderPortIdentity):
		return BBetterTopology
	}
	return SameMaster
}

// better reports whether a should be preferred over b, resolving any
// comparison outcome that isn't a clean win into a deterministic
// tie-break on senderPortIdentity so that reducing over a set (e.g. a
// map, whose iteration order is unspecified) always yields the same
// result.
func better(a, b PriorityVector) bool {
	switch Compare(a, b) {
	case ABetter, ABetterTopology:
		return true
	case BBetter, BBetterTopology:
		return false
	default:
		return a.SenderPortIdentity.Less(b.SenderPortIdentity)
	}
}

// best reduces a non-empty slice of PriorityVectors to the single best one.
func best(vectors []PriorityVector) (PriorityVector, bool) {
	if len(vectors) == 0 {
		return PriorityVector{}, false
	}
	winner := vectors[0]
	for _, v := range vectors[1:] {
		if better(v, winner) {
			winner = v
		}
	}
	return winner, true
}
