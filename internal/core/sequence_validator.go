package core

import (
	"fmt"
)

// All command events share one ordered partition; the upstream relay assigns
// a single monotonic sequence.
const partitionGlobal = "global"

// feedPartition tracks the price relay's own sequence, where gaps are
// tolerated (the relay may drop ticks) but regressions are not.
const feedPartition = "feed"

// SequenceValidator validates source sequences per partition.
// Not thread-safe; only accessed from the single-threaded core.
type SequenceValidator struct {
	expectedNextSeq map[string]int64
	metrics         *SequenceMetrics
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         NewSequenceMetrics(),
	}
}

// ValidateSequence checks strict command ordering for a partition.
func (sv *SequenceValidator) ValidateSequence(partition string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		if isDuplicate {
			// Already processed; the caller skips it.
			return nil
		}
		sv.metrics.RecordOutOfOrder(partition)
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	sv.metrics.RecordGap(partition, expected, sourceSequence)
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// FeedSequenceStale reports whether a price update is at or behind the last
// accepted feed sequence. Stale prices are dropped silently, not errored.
func (sv *SequenceValidator) FeedSequenceStale(priceSequence int64) bool {
	last, seen := sv.expectedNextSeq[feedPartition], sv.hasFeedSeq()
	if !seen {
		return false
	}
	if priceSequence <= last {
		return true
	}
	if priceSequence > last+1 {
		sv.metrics.RecordFeedGap(last, priceSequence)
	}
	return false
}

// AdvanceFeedSequence records an accepted price update's sequence.
func (sv *SequenceValidator) AdvanceFeedSequence(priceSequence int64) {
	sv.expectedNextSeq[feedPartition] = priceSequence
}

func (sv *SequenceValidator) hasFeedSeq() bool {
	_, ok := sv.expectedNextSeq[feedPartition]
	return ok
}

// GetExpectedSequence returns the next expected sequence for a partition.
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// RestorePartition initializes a partition's expected sequence (recovery).
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// GetAllPartitions returns the full partition map for snapshotting.
func (sv *SequenceValidator) GetAllPartitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}

// SequenceMetrics tracks ordering anomalies.
// Not thread-safe; only accessed from the single-threaded core.
type SequenceMetrics struct {
	gaps       map[string]int64
	outOfOrder map[string]int64
	feedGaps   int64
}

func NewSequenceMetrics() *SequenceMetrics {
	return &SequenceMetrics{
		gaps:       make(map[string]int64),
		outOfOrder: make(map[string]int64),
	}
}

func (m *SequenceMetrics) RecordGap(partition string, expected, got int64) {
	m.gaps[partition]++
}

func (m *SequenceMetrics) RecordOutOfOrder(partition string) {
	m.outOfOrder[partition]++
}

func (m *SequenceMetrics) RecordFeedGap(expected, got int64) {
	m.feedGaps++
}

func (m *SequenceMetrics) GetGaps(partition string) int64 {
	return m.gaps[partition]
}

func (m *SequenceMetrics) GetOutOfOrder(partition string) int64 {
	return m.outOfOrder[partition]
}

func (m *SequenceMetrics) GetFeedGaps() int64 {
	return m.feedGaps
}
