package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/scorebot"
)

func intPtr(v int) *int { return &v }

func roster() [2]domain.Team {
	return [2]domain.Team{
		{Name: "A", Players: []domain.PlayerRef{
			{ID: 1, Name: "alice", SteamID: "STEAM_1:0:1", ServerID: intPtr(11)},
			{ID: 2, Name: "bob", SteamID: "STEAM_1:0:2"},
		}},
		{Name: "B", Players: []domain.PlayerRef{
			{ID: 3, Name: "carol"},
			{ID: 4, Name: "dave", SteamID: "STEAM_1:0:4"},
		}},
	}
}

func TestChainFallsThroughToName(t *testing.T) {
	chain := NewChain(roster(), nil)
	// Durable id and server id are unknown, only the name matches
	player := chain.Resolve(Reference{Name: "carol", SteamID: "STEAM_1:0:999", ServerID: 99})
	require.NotNil(t, player)
	assert.Equal(t, int64(3), player.ID)
}

func TestChainPrefersDurableIDOverName(t *testing.T) {
	chain := NewChain(roster(), nil)
	// Steam id points at dave while the name points at alice
	player := chain.Resolve(Reference{Name: "alice", SteamID: "STEAM_1:0:4", ServerID: 99})
	require.NotNil(t, player)
	assert.Equal(t, int64(4), player.ID)
}

func TestChainPrefersServerIDOverName(t *testing.T) {
	chain := NewChain(roster(), nil)
	player := chain.Resolve(Reference{Name: "bob", ServerID: 11})
	require.NotNil(t, player)
	assert.Equal(t, int64(1), player.ID)
}

func TestChainIgnoresBotSteamID(t *testing.T) {
	teams := roster()
	teams[1].Players = append(teams[1].Players, domain.PlayerRef{ID: 5, Name: "Bot Joe", SteamID: "BOT"})
	chain := NewChain(teams, nil)

	assert.Nil(t, chain.Resolve(Reference{Name: "Bot Ann", SteamID: "BOT", ServerID: 50}))
	player := chain.Resolve(Reference{Name: "Bot Joe", SteamID: "BOT", ServerID: 51})
	require.NotNil(t, player)
	assert.Equal(t, int64(5), player.ID)
}

func TestChainLearnsServerIDsFromEnteredEvents(t *testing.T) {
	events := []scorebot.Event{
		{Type: scorebot.EventPlayerEntered, Data: scorebot.PlayerEnteredData{
			Player: scorebot.Actor{Name: "bob", UserID: 12, SteamID: "STEAM_1:0:2"},
		}},
		// userid 11 already belongs to alice in the roster
		{Type: scorebot.EventPlayerEntered, Data: scorebot.PlayerEnteredData{
			Player: scorebot.Actor{Name: "carol", UserID: 11},
		}},
	}
	chain := NewChain(roster(), events)

	// Renamed mid-match and no steam id in the reference
	player := chain.Resolve(Reference{Name: "bobby", ServerID: 12})
	require.NotNil(t, player)
	assert.Equal(t, int64(2), player.ID)

	player = chain.Resolve(Reference{Name: "someone", ServerID: 11})
	require.NotNil(t, player)
	assert.Equal(t, int64(1), player.ID)
}

func TestChainUnresolved(t *testing.T) {
	assert.Nil(t, NewChain(roster(), nil).Resolve(Reference{Name: "nobody", ServerID: 77}))
	assert.Nil(t, Chain{}.Resolve(Reference{Name: "alice"}))
}

func TestApplyRating(t *testing.T) {
	stake := domain.RatingStake{Gain: 15, Loss: 25}
	teams := roster()

	tests := []struct {
		winner int
		want   [2]int
	}{
		{domain.TeamA, [2]int{15, -15}},
		{domain.TeamB, [2]int{-25, 25}},
		{domain.TeamNone, [2]int{0, 0}},
	}
	for _, tt := range tests {
		teamDeltas, deltas := ApplyRating(stake, tt.winner, teams)
		assert.Equal(t, tt.want, teamDeltas)
		// Both sides move by the same magnitude
		assert.Equal(t, 0, teamDeltas[0]+teamDeltas[1])
		require.Len(t, deltas, 4)
		for _, d := range deltas {
			assert.Equal(t, tt.want[d.Team], d.Delta)
		}
	}
}
