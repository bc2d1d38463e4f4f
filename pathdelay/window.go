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

// Package pathdelay implements the peer-to-peer link-delay mechanism: the
// per-port request/response state machine, the neighbor rate ratio and mean
// link delay computations, and the sliding-window filters over their raw
// samples.
package pathdelay

import (
	"container/ring"
	"math"
	"sort"
)

// slidingWindow holds the last N float64 samples and answers median/mean
// queries in O(N) without retaining data beyond its capacity.
type slidingWindow struct {
	size        int
	currentSize int
	sum         float64
	samples     *ring.Ring
}

func newSlidingWindow(size int) *slidingWindow {
	if size < 1 {
		size = 1
	}
	w := &slidingWindow{
		size:    size,
		samples: ring.New(size),
	}
	for i := 0; i < w.size; i++ {
		w.samples.Value = math.NaN()
		w.samples = w.samples.Next()
	}
	return w
}

func (w *slidingWindow) add(sample float64) {
	w.samples = w.samples.Next()
	v := w.samples.Value.(float64)
	if !math.IsNaN(v) {
		w.sum -= v
	}
	if w.currentSize < w.size {
		w.currentSize++
	}
	w.samples.Value = sample
	w.sum += sample
}

func (w *slidingWindow) lastSample() float64 {
	return w.samples.Value.(float64)
}

func (w *slidingWindow) allSamples() []float64 {
	s := make([]float64, 0, w.size)
	r := w.samples
	for j := 0; j < w.size; j++ {
		v := r.Value.(float64)
		if !math.IsNaN(v) {
			s = append(s, v)
		}
		r = r.Prev()
	}
	return s
}

func (w *slidingWindow) median() float64 {
	c := w.allSamples()
	sort.Float64s(c)
	l := len(c)
	switch {
	case l == 0:
		return math.NaN()
	case l%2 == 0:
		return (c[l/2-1] + c[l/2]) / 2
	default:
		return c[l/2]
	}
}

func (w *slidingWindow) mean() float64 {
	if w.currentSize == 0 {
		return math.NaN()
	}
	return w.sum / float64(w.currentSize)
}
