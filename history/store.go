// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package history implements the in-memory metric history store: a
// fixed-capacity ring of samples per metric, appended once per
// sampling cycle and read back by feed consumers rendering charts.
package history

import (
	"iter"
	"slices"
	"sync"

	"github.com/gaugeworks/gauge/lib/schema"
)

// DefaultCapacity is the default number of samples retained per
// metric: 12 minutes of history at the default one-second interval.
const DefaultCapacity = 720

// series is a fixed-size circular buffer of samples for one metric.
// Samples arrive in timestamp order, so the ring is always sorted
// oldest to newest. Not safe for concurrent use; the Store's lock
// guards it.
type series struct {
	samples []schema.ResourceSample
	// start is the index of the oldest retained sample.
	start int
	// length is the number of retained samples (0 to capacity).
	length int
}

func newSeries(capacity int) *series {
	return &series{samples: make([]schema.ResourceSample, capacity)}
}

// append stores a sample, evicting the oldest when full. O(1).
func (s *series) append(sample schema.ResourceSample) {
	capacity := len(s.samples)
	if s.length < capacity {
		s.samples[(s.start+s.length)%capacity] = sample
		s.length++
		return
	}
	s.samples[s.start] = sample
	s.start = (s.start + 1) % capacity
}

// at returns the i-th retained sample, oldest first.
func (s *series) at(i int) schema.ResourceSample {
	return s.samples[(s.start+i)%len(s.samples)]
}

// collectRange copies the retained samples whose timestamps fall in
// [fromMillis, toMillis], oldest first.
func (s *series) collectRange(fromMillis, toMillis int64) []schema.ResourceSample {
	var result []schema.ResourceSample
	for i := 0; i < s.length; i++ {
		sample := s.at(i)
		if sample.TimestampMillis < fromMillis {
			continue
		}
		if sample.TimestampMillis > toMillis {
			break
		}
		result = append(result, sample)
	}
	return result
}

// Store retains recent samples for every metric the collector has
// ever published, each in its own fixed-capacity ring. All methods
// are safe for concurrent use: the scheduler appends from its cycle
// loop while feed handlers read.
type Store struct {
	mutex    sync.RWMutex
	capacity int
	series   map[schema.MetricID]*series
}

// NewStore creates a store retaining up to capacity samples per
// metric. Use DefaultCapacity for the standard depth.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		series:   map[schema.MetricID]*series{},
	}
}

// Append records one cycle's samples. A metric seen for the first
// time gets a fresh ring; a full ring evicts its oldest sample.
func (store *Store) Append(samples []schema.ResourceSample) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	for _, sample := range samples {
		s, ok := store.series[sample.MetricID]
		if !ok {
			s = newSeries(store.capacity)
			store.series[sample.MetricID] = s
		}
		s.append(sample)
	}
}

// ReadRange returns the retained samples for a metric whose
// timestamps fall in [fromMillis, toMillis], ascending by timestamp.
// The sequence is backed by a copy taken when ReadRange is called:
// iterating it multiple times yields identical results regardless of
// concurrent appends. An unknown metric yields an empty sequence.
func (store *Store) ReadRange(metric schema.MetricID, fromMillis, toMillis int64) iter.Seq[schema.ResourceSample] {
	store.mutex.RLock()
	var samples []schema.ResourceSample
	if s, ok := store.series[metric]; ok {
		samples = s.collectRange(fromMillis, toMillis)
	}
	store.mutex.RUnlock()

	return func(yield func(schema.ResourceSample) bool) {
		for _, sample := range samples {
			if !yield(sample) {
				return
			}
		}
	}
}

// Latest returns the newest retained sample for a metric, or false
// when the metric has never been recorded.
func (store *Store) Latest(metric schema.MetricID) (schema.ResourceSample, bool) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	s, ok := store.series[metric]
	if !ok || s.length == 0 {
		return schema.ResourceSample{}, false
	}
	return s.at(s.length - 1), true
}

// Len returns the number of retained samples for a metric.
func (store *Store) Len(metric schema.MetricID) int {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	if s, ok := store.series[metric]; ok {
		return s.length
	}
	return 0
}

// Metrics returns every metric the store has seen, sorted.
func (store *Store) Metrics() []schema.MetricID {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	metrics := make([]schema.MetricID, 0, len(store.series))
	for metric := range store.series {
		metrics = append(metrics, metric)
	}
	slices.Sort(metrics)
	return metrics
}

// Capacity returns the per-metric ring capacity.
func (store *Store) Capacity() int {
	return store.capacity
}
