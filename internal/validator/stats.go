package validator

import (
	"sort"
	"sync"

	"github.com/caxtonio/agentcore/internal/domain"
)

// statsRingCapacity bounds how many recent failure reasons feed the
// top-failure-reasons snapshot — an unbounded counter would let a reason
// that hasn't occurred in months still dominate the "top reasons" report.
const statsRingCapacity = 500

// emaAlpha weights the success-rate exponential moving average; the same
// value spec.md §4.4 uses for deployment health-check smoothing, reused
// here so both statistics respond to change at a comparable rate.
const emaAlpha = 0.1

// Statistics accumulates validator-wide counters (spec.md §4.4
// "ValidationStatistics"): total/valid/invalid/warning counts, a
// success-rate EMA, and a bounded ring of recent failure reasons.
type Statistics struct {
	mu sync.Mutex

	total, valid, invalid, warning uint64
	successRateEMA                 float64
	ring                           []domain.ValidationFailureReason
	ringPos                        int
}

func newStatistics() *Statistics {
	return &Statistics{ring: make([]domain.ValidationFailureReason, 0, statsRingCapacity)}
}

func (s *Statistics) recordSuccess(hadWarning bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if hadWarning {
		s.warning++
	} else {
		s.valid++
	}
	s.updateEMA(1.0)
}

func (s *Statistics) recordFailure(reason domain.ValidationFailureReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.invalid++
	s.updateEMA(0.0)
	s.pushReason(reason)
}

func (s *Statistics) updateEMA(sample float64) {
	if s.total == 1 {
		s.successRateEMA = sample
		return
	}
	s.successRateEMA = emaAlpha*sample + (1-emaAlpha)*s.successRateEMA
}

func (s *Statistics) pushReason(reason domain.ValidationFailureReason) {
	if len(s.ring) < statsRingCapacity {
		s.ring = append(s.ring, reason)
		return
	}
	s.ring[s.ringPos] = reason
	s.ringPos = (s.ringPos + 1) % statsRingCapacity
}

// StatisticsSnapshot is a point-in-time, immutable view of Statistics.
type StatisticsSnapshot struct {
	Total, Valid, Invalid, Warning uint64
	SuccessRateEMA                 float64
	TopFailureReasons              []FailureReasonCount
}

// FailureReasonCount pairs a reason with how often it appears in the
// recent-failure ring.
type FailureReasonCount struct {
	Reason domain.ValidationFailureReason
	Count  int
}

// Snapshot returns the current statistics, including the top 5 failure
// reasons observed within the bounded recent-failure window.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.ValidationFailureReason]int)
	for _, r := range s.ring {
		counts[r]++
	}
	top := make([]FailureReasonCount, 0, len(counts))
	for r, c := range counts {
		top = append(top, FailureReasonCount{Reason: r, Count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Reason < top[j].Reason
	})
	if len(top) > 5 {
		top = top[:5]
	}

	return StatisticsSnapshot{
		Total:             s.total,
		Valid:             s.valid,
		Invalid:           s.invalid,
		Warning:           s.warning,
		SuccessRateEMA:    s.successRateEMA,
		TopFailureReasons: top,
	}
}
