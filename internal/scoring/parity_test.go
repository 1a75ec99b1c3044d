package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// flipsBetween counts parity changes of Inverted over rounds [from, to]
func flipsBetween(r Rules, from, to int) int {
	flips := 0
	for n := from + 1; n <= to; n++ {
		if r.Inverted(n) != r.Inverted(n-1) {
			flips++
		}
	}
	return flips
}

func TestHalfFlipsRegulation(t *testing.T) {
	for _, limit := range []int{6, 16, 24, 30} {
		r := Rules{MaxRounds: limit, OvertimeRounds: 6}
		assert.Equal(t, 0, r.HalfFlips(1))
		assert.Equal(t, 0, r.HalfFlips(limit/2))
		assert.Equal(t, 1, r.HalfFlips(limit/2+1))
		assert.Equal(t, 1, r.HalfFlips(limit))
		assert.Equal(t, 2, r.HalfFlips(limit+1))

		// Inside regulation the team-to-side mapping changes exactly once,
		// at the midpoint, and the second boundary lands at R
		assert.Equal(t, 1, flipsBetween(r, 1, limit))
		assert.Equal(t, 0, r.OvertimeBlock(limit))
	}
}

func TestRegulationToOvertimeBoundary(t *testing.T) {
	r := Rules{MaxRounds: 6, OvertimeRounds: 6}

	// Round R is the last of the second half, R+1 opens overtime block 1
	assert.Equal(t, 1, r.HalfFlips(6))
	assert.Equal(t, 0, r.OvertimeBlock(6))
	assert.True(t, r.Inverted(6))

	assert.Equal(t, 2, r.HalfFlips(7))
	assert.Equal(t, 1, r.OvertimeBlock(7))
	// Both the second half boundary and the odd block invert, so teams
	// keep the sides they finished regulation on
	assert.True(t, r.Inverted(7))
}

func TestOvertimeBlocks(t *testing.T) {
	r := Rules{MaxRounds: 6, OvertimeRounds: 6}

	tests := []struct {
		round, block, flips int
		inverted            bool
	}{
		{7, 1, 2, true},
		{9, 1, 2, true},
		{10, 1, 3, false},
		{12, 1, 3, false},
		{13, 2, 4, false},
		{15, 2, 4, false},
		{16, 2, 5, true},
		{18, 2, 5, true},
		{19, 3, 6, true},
		{20, 3, 6, true},
		{22, 3, 7, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.block, r.OvertimeBlock(tt.round), "block at %d", tt.round)
		assert.Equal(t, tt.flips, r.HalfFlips(tt.round), "flips at %d", tt.round)
		assert.Equal(t, tt.inverted, r.Inverted(tt.round), "inverted at %d", tt.round)
	}
}

func TestOvertimeFlipsPerBlock(t *testing.T) {
	r := Rules{MaxRounds: 6, OvertimeRounds: 6}
	for block := 1; block <= 5; block++ {
		start := 6 + (block-1)*6 + 1
		end := start + 5
		// One half boundary is crossed inside every block
		assert.Equal(t, 1, r.HalfFlips(end)-r.HalfFlips(start), "block %d", block)
		assert.Equal(t, 1, flipsBetween(r, start, end), "block %d", block)
		// The extra inversion applies exactly on odd blocks
		extra := r.Inverted(start) != (r.HalfFlips(start)%2 == 1)
		assert.Equal(t, block%2 == 1, extra, "block %d", block)
	}
}

func TestSwapStartingSidesInvertsEveryRound(t *testing.T) {
	r := Rules{MaxRounds: 30, OvertimeRounds: 6}
	swapped := r
	swapped.SwapStartingSides = true
	for n := 1; n <= 60; n++ {
		assert.NotEqual(t, r.Inverted(n), swapped.Inverted(n), "round %d", n)
		for side := 0; side <= 1; side++ {
			assert.Equal(t, side, r.SideOf(n, r.LogicalTeam(n, side)))
		}
	}
}

func TestNoOvertimeBlockSize(t *testing.T) {
	r := Rules{MaxRounds: 6}
	assert.Equal(t, 0, r.OvertimeBlock(9))
	assert.Equal(t, 2, r.HalfFlips(9))
	assert.False(t, r.Inverted(9))
}
