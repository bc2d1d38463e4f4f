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
	"sync"
	"time"

	"github.com/gptp-go/gptpd/protocol"
)

// ForeignMasterRecord is one (port, senderIdentity) entry: the last
// priority vector heard, when it was heard, and the announceInterval the
// sender advertised (used to derive this record's own timeout).
type ForeignMasterRecord struct {
	Vector           PriorityVector
	LastReceipt      time.Time
	AnnounceInterval time.Duration
}

func (r ForeignMasterRecord) expired(now time.Time, receiptTimeoutMultiplier int) bool {
	if receiptTimeoutMultiplier <= 0 {
		receiptTimeoutMultiplier = 3
	}
	timeout := time.Duration(receiptTimeoutMultiplier) * r.AnnounceInterval
	return now.Sub(r.LastReceipt) > timeout
}

// ForeignMasterTable holds one port's view of the masters it has heard
// Announce messages from, keyed by sender port identity.
type ForeignMasterTable struct {
	mu                       sync.Mutex
	records                  map[protocol.PortIdentity]*ForeignMasterRecord
	receiptTimeoutMultiplier int
}

// NewForeignMasterTable constructs an empty table. receiptTimeoutMultiplier
// is announceReceiptTimeout (default 3, per §6.5).
func NewForeignMasterTable(receiptTimeoutMultiplier int) *ForeignMasterTable {
	if receiptTimeoutMultiplier <= 0 {
		receiptTimeoutMultiplier = 3
	}
	return &ForeignMasterTable{
		records:                  make(map[protocol.PortIdentity]*ForeignMasterRecord),
		receiptTimeoutMultiplier: receiptTimeoutMultiplier,
	}
}

// Update records (or refreshes) the entry for vec.SenderPortIdentity.
func (t *ForeignMasterTable) Update(vec PriorityVector, announceInterval time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[vec.SenderPortIdentity] = &ForeignMasterRecord{
		Vector:           vec,
		LastReceipt:      now,
		AnnounceInterval: announceInterval,
	}
}

// SweepTimeouts removes every record whose age exceeds
// announceReceiptTimeout x its announceInterval, and returns the sender
// identities of the records removed.
func (t *ForeignMasterTable) SweepTimeouts(now time.Time) []protocol.PortIdentity {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []protocol.PortIdentity
	for id, rec := range t.records {
		if rec.expired(now, t.receiptTimeoutMultiplier) {
			delete(t.records, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Best reduces the table's surviving records to the single best
// PriorityVector, or (_, false) if the table is empty.
func (t *ForeignMasterTable) Best() (PriorityVector, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.records) == 0 {
		return PriorityVector{}, false
	}
	vectors := make([]PriorityVector, 0, len(t.records))
	for _, rec := range t.records {
		vectors = append(vectors, rec.Vector)
	}
	return best(vectors)
}

// Len reports the number of live records.
func (t *ForeignMasterTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
