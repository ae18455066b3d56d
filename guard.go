package lottery

import "time"

// GuardState is the emergency guard's sliding growth window
type GuardState struct {
	WindowStart  uint64 `json:"window_start"`
	WindowGrowth Amount `json:"window_growth"`
	TrippedAt    uint64 `json:"tripped_at,omitempty"`
}

// EmergencyGuard pauses the engine when the jackpot grows abnormally fast
type EmergencyGuard struct {
	threshold Amount
	window    uint64
}

// NewEmergencyGuard creates a guard; a zero threshold disables it
func NewEmergencyGuard(cfg GuardConfig) *EmergencyGuard {
	return &EmergencyGuard{
		threshold: cfg.GrowthThreshold,
		window:    uint64(cfg.Window / time.Second),
	}
}

// Enabled reports whether the guard can trip
func (g *EmergencyGuard) Enabled() bool {
	return g.threshold > 0
}

// CheckAndMaybeTrip accounts a jackpot change at time now and reports whether
// growth inside the current window reached the threshold.
func (g *EmergencyGuard) CheckAndMaybeTrip(st *GuardState, now uint64, jackpotBefore, jackpotAfter Amount) bool {
	if !g.Enabled() || jackpotAfter <= jackpotBefore {
		return false
	}

	if saturatingSub(now, st.WindowStart) >= g.window {
		st.WindowStart = now
		st.WindowGrowth = 0
	}

	delta := jackpotAfter - jackpotBefore
	growth, err := addAmount(st.WindowGrowth, delta)
	if err != nil {
		growth = ^Amount(0) // saturate, the guard trips either way
	}
	st.WindowGrowth = growth

	if st.WindowGrowth >= g.threshold {
		st.TrippedAt = now
		return true
	}
	return false
}

// Reset starts a fresh window, used when the owner unpauses
func (g *EmergencyGuard) Reset(st *GuardState, now uint64) {
	st.WindowStart = now
	st.WindowGrowth = 0
	st.TrippedAt = 0
}
