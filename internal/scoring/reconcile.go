package scoring

import (
	"errors"
	"time"

	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/scorebot"
)

// ErrNoGameOver is returned when there is no terminal event to reconcile against
var ErrNoGameOver = errors.New("scoring: no game over event")

// Input is everything needed to finalize one match
type Input struct {
	MatchID    string
	Config     domain.MatchConfig
	Teams      [2]domain.Team
	Events     []scorebot.Event
	FinishedAt time.Time
}

// Reconcile computes the canonical result of a finished match. Only
// events up to the last GAME_OVER count; round overs with no usable
// winner are skipped without advancing the round counter.
func Reconcile(in Input) (*domain.Result, error) {
	last := -1
	for i, e := range in.Events {
		if e.Type == scorebot.EventGameOver {
			last = i
		}
	}
	if last < 0 {
		return nil, ErrNoGameOver
	}

	rules := RulesFor(in.Config)
	events := in.Events[:last+1]
	chain := NewChain(in.Teams, events)

	result := &domain.Result{
		MatchID:    in.MatchID,
		Map:        in.Config.SelectedMap(),
		Teams:      in.Teams,
		Winner:     domain.TeamNone,
		FinishedAt: in.FinishedAt,
		Events:     make([]domain.AttributedEvent, 0, len(events)),
	}
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now().UTC()
	}

	round := 0
	for _, e := range events {
		attributed := domain.AttributedEvent{
			Type:      e.Type,
			Timestamp: e.Timestamp,
			Round:     round + 1,
		}

		switch data := e.Data.(type) {
		case scorebot.KillData:
			attributed.Actor = chain.Resolve(ReferenceFrom(data.Attacker))
			attributed.ActorName = data.Attacker.Name
			attributed.Target = chain.Resolve(ReferenceFrom(data.Victim))
			attributed.TargetName = data.Victim.Name
			attributed.Weapon = data.Weapon
			attributed.Headshot = data.Headshot

		case scorebot.AssistData:
			attributed.Actor = chain.Resolve(ReferenceFrom(data.Assister))
			attributed.ActorName = data.Assister.Name
			attributed.Target = chain.Resolve(ReferenceFrom(data.Victim))
			attributed.TargetName = data.Victim.Name

		case scorebot.PlayerEnteredData:
			attributed.Actor = chain.Resolve(ReferenceFrom(data.Player))
			attributed.ActorName = data.Player.Name

		case scorebot.SayData:
			attributed.Actor = chain.Resolve(ReferenceFrom(data.Player))
			attributed.ActorName = data.Player.Name
			attributed.Message = data.Message

		case scorebot.RoundOverData:
			if data.Winner != scorebot.SideCT && data.Winner != scorebot.SideT {
				continue
			}
			round++
			team := rules.LogicalTeam(round, data.Winner)
			result.Score[team]++
			attributed.Round = round
			attributed.Winner = &team
			attributed.Message = data.Reason

		case scorebot.GameOverData:
			attributed.Round = round
			// The reported score is by side at the final round played
			result.Reported = data.Score
			if rules.Inverted(data.Score[0] + data.Score[1]) {
				result.Reported = [2]int{data.Score[1], data.Score[0]}
			}

		default:
			continue
		}

		result.Events = append(result.Events, attributed)
	}

	result.Rounds = round
	switch {
	case result.Score[domain.TeamA] > result.Score[domain.TeamB]:
		result.Winner = domain.TeamA
	case result.Score[domain.TeamB] > result.Score[domain.TeamA]:
		result.Winner = domain.TeamB
	}
	result.TeamDeltas, result.Ratings = ApplyRating(in.Config.Rating, result.Winner, in.Teams)

	return result, nil
}
