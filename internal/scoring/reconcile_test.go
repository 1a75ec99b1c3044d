package scoring

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/scorebot"
)

func roundOver(winner int) scorebot.Event {
	return scorebot.Event{Type: scorebot.EventRoundOver, Data: scorebot.RoundOverData{Winner: winner}}
}

func gameOver(a, b int) scorebot.Event {
	return scorebot.Event{Type: scorebot.EventGameOver, Data: scorebot.GameOverData{Map: "de_dust2", Score: [2]int{a, b}}}
}

func rounds(winners ...int) []scorebot.Event {
	var events []scorebot.Event
	for _, w := range winners {
		events = append(events, roundOver(w))
	}
	return events
}

func config(maxRounds, overtime int) domain.MatchConfig {
	return domain.MatchConfig{Map: "de_dust2", MaxRounds: maxRounds, OvertimeRounds: overtime, Overtime: true}
}

func TestReconcileRegulationSweep(t *testing.T) {
	// Team A wins every round: CT in the first half, T in the second.
	// Sides are logical, so a side-alternating pattern is a sweep, not 3-3
	// (decision recorded in DESIGN.md).
	events := append(rounds(0, 0, 0, 1, 1, 1), gameOver(3, 3))
	result, err := Reconcile(Input{Config: config(6, 6), Events: events})
	require.NoError(t, err)
	assert.Equal(t, [2]int{6, 0}, result.Score)
	assert.Equal(t, domain.TeamA, result.Winner)
	assert.Equal(t, 6, result.Rounds)
}

func TestReconcileRegulationTie(t *testing.T) {
	events := append(rounds(0, 0, 0, 0, 0, 0), gameOver(6, 0))
	result, err := Reconcile(Input{Config: config(6, 6), Events: events})
	require.NoError(t, err)
	assert.Equal(t, [2]int{3, 3}, result.Score)
	assert.Equal(t, domain.TeamNone, result.Winner)
	assert.False(t, result.Won(domain.TeamA))
	assert.False(t, result.Won(domain.TeamB))

	// Swapping the starting sides swaps which team took which rounds,
	// and the tally stays 3-3
	cfg := config(6, 6)
	cfg.SwapStartingSides = true
	swapped, err := Reconcile(Input{Config: cfg, Events: events})
	require.NoError(t, err)
	assert.Equal(t, [2]int{3, 3}, swapped.Score)
	for i := range result.Events[:6] {
		assert.NotEqual(t, *result.Events[i].Winner, *swapped.Events[i].Winner)
	}
}

func TestReconcileTallySumsToRoundCount(t *testing.T) {
	for _, n := range []int{1, 5, 6, 7, 12, 13, 20, 31, 47} {
		winners := make([]int, n)
		for i := range winners {
			winners[i] = (i * 7 / 3) % 2
		}
		result, err := Reconcile(Input{Config: config(6, 6), Events: append(rounds(winners...), gameOver(0, 0))})
		require.NoError(t, err)
		assert.Equal(t, n, result.Score[0]+result.Score[1], "rounds %d", n)
		assert.Equal(t, n, result.Rounds)
	}
}

func TestReconcileReportedScoreAcrossOvertimeBlocks(t *testing.T) {
	cfg := config(6, 6)

	// 20 rounds: the third overtime block is odd, so the side totals swap.
	// This follows the block parity rule rather than a "no net swap" reading
	// (decision recorded in DESIGN.md).
	result, err := Reconcile(Input{Config: cfg, Events: append(rounds(make([]int, 20)...), gameOver(16, 4))})
	require.NoError(t, err)
	assert.Equal(t, [2]int{4, 16}, result.Reported)

	// 14 rounds: second block is even and the half flips are even
	result, err = Reconcile(Input{Config: cfg, Events: append(rounds(make([]int, 14)...), gameOver(10, 4))})
	require.NoError(t, err)
	assert.Equal(t, [2]int{10, 4}, result.Reported)

	// 7 rounds: first block is odd, teams stay on their second half sides
	result, err = Reconcile(Input{Config: cfg, Events: append(rounds(make([]int, 7)...), gameOver(4, 3))})
	require.NoError(t, err)
	assert.Equal(t, [2]int{3, 4}, result.Reported)
}

func TestReconcileSkipsMalformedWinners(t *testing.T) {
	events := []scorebot.Event{
		roundOver(0),
		roundOver(scorebot.WinnerUnknown),
		{Type: scorebot.EventRoundOver, Data: "garbage"},
		roundOver(7),
		roundOver(0),
		gameOver(2, 0),
	}
	result, err := Reconcile(Input{Config: config(6, 6), Events: events})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, [2]int{2, 0}, result.Score)
}

func TestReconcileSkipsMalformedPlayerEntered(t *testing.T) {
	teams := [2]domain.Team{
		{Name: "A", Players: []domain.PlayerRef{{ID: 1, Name: "alice", SteamID: "STEAM_1:0:1"}}},
		{Name: "B", Players: []domain.PlayerRef{{ID: 2, Name: "bob", SteamID: "STEAM_1:0:2"}}},
	}
	events := []scorebot.Event{
		{Type: scorebot.EventPlayerEntered, Data: "garbage"},
		{Type: scorebot.EventPlayerEntered},
		roundOver(0),
		gameOver(1, 0),
	}
	var result *domain.Result
	var err error
	require.NotPanics(t, func() {
		result, err = Reconcile(Input{Config: config(6, 6), Teams: teams, Events: events})
	})
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 0}, result.Score)
	assert.Len(t, result.Events, 2)
}

func TestReconcileRequiresGameOver(t *testing.T) {
	_, err := Reconcile(Input{Config: config(6, 6), Events: rounds(0, 1, 0)})
	assert.ErrorIs(t, err, ErrNoGameOver)
}

func TestReconcileIgnoresEventsAfterGameOver(t *testing.T) {
	events := append(rounds(0, 0), gameOver(2, 0), roundOver(1))
	result, err := Reconcile(Input{Config: config(6, 6), Events: events})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rounds)
	assert.Len(t, result.Events, 3)
}

func TestReconcileAttributesEvents(t *testing.T) {
	teams := [2]domain.Team{
		{Name: "A", Players: []domain.PlayerRef{{ID: 1, Name: "alice", SteamID: "STEAM_1:0:1"}}},
		{Name: "B", Players: []domain.PlayerRef{{ID: 2, Name: "bob"}}},
	}
	kill := scorebot.Event{Type: scorebot.EventPlayerKilled, Data: scorebot.KillData{
		Attacker: scorebot.Actor{Name: "alice-renamed", UserID: 3, SteamID: "STEAM_1:0:1"},
		Victim:   scorebot.Actor{Name: "stranger", UserID: 9, SteamID: "STEAM_1:0:9"},
		Weapon:   "awp",
		Headshot: true,
	}}
	events := []scorebot.Event{kill, roundOver(0), gameOver(1, 0)}

	result, err := Reconcile(Input{MatchID: "m1", Config: config(6, 6), Teams: teams, Events: events})
	require.NoError(t, err)
	require.Len(t, result.Events, 3)

	k := result.Events[0]
	require.NotNil(t, k.Actor)
	assert.Equal(t, int64(1), k.Actor.ID)
	assert.Nil(t, k.Target)
	assert.Equal(t, "stranger", k.TargetName)
	assert.Equal(t, "awp", k.Weapon)
	assert.True(t, k.Headshot)
	assert.Equal(t, 1, k.Round)

	assert.Equal(t, "m1", result.MatchID)
	assert.Equal(t, "de_dust2", result.Map)
}

func TestReconcileRatings(t *testing.T) {
	teams := [2]domain.Team{
		{Players: []domain.PlayerRef{{ID: 1, Name: "a1"}, {ID: 2, Name: "a2"}}},
		{Players: []domain.PlayerRef{{ID: 3, Name: "b1"}}},
	}
	cfg := config(6, 6)
	cfg.Rating = domain.RatingStake{Gain: 12, Loss: 20}

	result, err := Reconcile(Input{Config: cfg, Teams: teams, Events: append(rounds(1, 1, 1, 0, 0, 0), gameOver(3, 3))})
	require.NoError(t, err)
	assert.Equal(t, domain.TeamB, result.Winner)
	assert.Equal(t, [2]int{-20, 20}, result.TeamDeltas)
	require.Len(t, result.Ratings, 3)
	assert.Equal(t, -20, result.Ratings[0].Delta)
	assert.Equal(t, 20, result.Ratings[2].Delta)
}

func TestReconcileFromLogFile(t *testing.T) {
	var lines []string
	winners := []string{"CT", "CT", "TERRORIST", "TERRORIST", "TERRORIST", "CT", "CT"}
	for i, side := range winners {
		lines = append(lines, fmt.Sprintf(`L 10/15/2026 - 20:%02d:00: Team "%s" triggered "SFUI_Notice_Win" (CT "0") (T "0")`, i, side))
	}
	lines = append(lines, `L 10/15/2026 - 20:59:00: Game Over: competitive mg_active de_dust2 score 4:3 after 59 min`)

	events, err := scorebot.ReadAll(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)

	finished := time.Date(2026, 10, 15, 21, 0, 0, 0, time.UTC)
	result, err := Reconcile(Input{Config: config(6, 6), Events: events, FinishedAt: finished})
	require.NoError(t, err)
	assert.Equal(t, len(winners), result.Score[0]+result.Score[1])
	// A takes rounds 1 and 2 on CT, then 4 and 5 on T
	assert.Equal(t, [2]int{4, 3}, result.Score)
	assert.Equal(t, finished, result.FinishedAt)
}
