package creature

import "time"

// DefaultRegenInterval is the time between regeneration pulses.
const DefaultRegenInterval = 5 * time.Second

// Regenerator converts elapsed simulation time into regeneration pulses so any
// scheduler (wall clock, simulation clock, test harness) can drive healing.
//
// A Regenerator belongs to one Vitality and shares its single-writer rule.
type Regenerator struct {
	interval time.Duration
	carry    time.Duration
}

// NewRegenerator returns a Regenerator firing every interval. Non-positive
// intervals fall back to DefaultRegenInterval.
func NewRegenerator(interval time.Duration) *Regenerator {
	if interval <= 0 {
		interval = DefaultRegenInterval
	}
	return &Regenerator{interval: interval}
}

// Interval returns the pulse interval.
func (r *Regenerator) Interval() time.Duration {
	return r.interval
}

// Advance applies one pulse to v for every whole interval contained in the
// accumulated elapsed time and keeps the remainder for the next call.
// Negative elapsed values are ignored.
//
// Postcondition: returns the number of pulses fired and v's resulting health.
func (r *Regenerator) Advance(v *Vitality, elapsed time.Duration) (int, float64) {
	if elapsed > 0 {
		r.carry += elapsed
	}
	pulses := int(r.carry / r.interval)
	r.carry -= time.Duration(pulses) * r.interval
	for i := 0; i < pulses; i++ {
		v.Regenerate()
	}
	return pulses, v.Health()
}
