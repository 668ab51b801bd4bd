package compliance

import "errors"

// ErrWeightLimitExceeded marks evaluations that ran out of their work budget.
var ErrWeightLimitExceeded = errors.New("compliance: weight limit exceeded")

// Work unit costs. The absolute values only need to be proportionate; the
// budget bounds worst-case work per transfer.
const (
	weightStatRead    = 25
	weightStatWrite   = 50
	weightClaimFetch  = 100
	weightCondition   = 40
	weightExemptProbe = 30
)

// WeightMeter tracks the work an evaluation consumes against a caller-supplied
// budget. Exhausting the budget fails the call instead of silently truncating
// a loop.
type WeightMeter struct {
	limit uint64
	used  uint64
}

// NewWeightMeter creates a meter with the given budget.
func NewWeightMeter(limit uint64) *WeightMeter {
	return &WeightMeter{limit: limit}
}

// UnlimitedMeter returns a meter that never exhausts. Used by genesis and
// tests.
func UnlimitedMeter() *WeightMeter {
	return &WeightMeter{limit: ^uint64(0)}
}

// Consume charges n work units, failing once the budget is exceeded.
func (m *WeightMeter) Consume(n uint64) error {
	if m == nil {
		return nil
	}
	if m.used+n > m.limit {
		m.used = m.limit
		return ErrWeightLimitExceeded
	}
	m.used += n
	return nil
}

// Used reports the consumed work units.
func (m *WeightMeter) Used() uint64 {
	if m == nil {
		return 0
	}
	return m.used
}

// Remaining reports the unused budget.
func (m *WeightMeter) Remaining() uint64 {
	if m == nil {
		return 0
	}
	return m.limit - m.used
}
