package scoring

import "github.com/ernie/matchrunner/internal/domain"

// ApplyRating applies the precomputed stake for the given winner. The stake
// is from Team A's perspective: when A wins A gains Gain and B loses it,
// when B wins A loses Loss and B gains it, and a tie moves nothing.
func ApplyRating(stake domain.RatingStake, winner int, teams [2]domain.Team) ([2]int, []domain.RatingDelta) {
	var teamDeltas [2]int
	switch winner {
	case domain.TeamA:
		teamDeltas = [2]int{stake.Gain, -stake.Gain}
	case domain.TeamB:
		teamDeltas = [2]int{-stake.Loss, stake.Loss}
	}

	var deltas []domain.RatingDelta
	for team, t := range teams {
		for _, p := range t.Players {
			deltas = append(deltas, domain.RatingDelta{Player: p, Team: team, Delta: teamDeltas[team]})
		}
	}
	return teamDeltas, deltas
}
