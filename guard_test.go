package lottery

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmergencyGuard(t *testing.T) {
	g := NewEmergencyGuard(GuardConfig{GrowthThreshold: 100, Window: time.Minute})
	assert.True(t, g.Enabled())

	var st GuardState
	assert.False(t, g.CheckAndMaybeTrip(&st, 1_000, 0, 50))
	assert.Equal(t, uint64(1_000), st.WindowStart)
	assert.Equal(t, Amount(50), st.WindowGrowth)

	// 奖池减少不计入增长
	assert.False(t, g.CheckAndMaybeTrip(&st, 1_010, 50, 20))
	assert.Equal(t, Amount(50), st.WindowGrowth)

	assert.True(t, g.CheckAndMaybeTrip(&st, 1_020, 20, 70))
	assert.Equal(t, uint64(1_020), st.TrippedAt)

	g.Reset(&st, 1_030)
	assert.Equal(t, GuardState{WindowStart: 1_030}, st)
}

func TestEmergencyGuard_WindowRolls(t *testing.T) {
	g := NewEmergencyGuard(GuardConfig{GrowthThreshold: 100, Window: time.Minute})

	var st GuardState
	assert.False(t, g.CheckAndMaybeTrip(&st, 1_000, 0, 90))
	// 新窗口重新计数
	assert.False(t, g.CheckAndMaybeTrip(&st, 1_060, 90, 180))
	assert.Equal(t, uint64(1_060), st.WindowStart)
	assert.Equal(t, Amount(90), st.WindowGrowth)
}

func TestEmergencyGuard_Disabled(t *testing.T) {
	g := NewEmergencyGuard(GuardConfig{Window: time.Minute})
	assert.False(t, g.Enabled())

	var st GuardState
	assert.False(t, g.CheckAndMaybeTrip(&st, 1_000, 0, math.MaxUint64))
	assert.Equal(t, GuardState{}, st)
}

func TestEmergencyGuard_Saturates(t *testing.T) {
	g := NewEmergencyGuard(GuardConfig{GrowthThreshold: math.MaxUint64, Window: time.Hour})

	st := GuardState{WindowStart: 1_000, WindowGrowth: math.MaxUint64 - 1}
	assert.True(t, g.CheckAndMaybeTrip(&st, 1_001, 0, 10))
	assert.Equal(t, Amount(math.MaxUint64), st.WindowGrowth)
}
