package scoring

import (
	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/scorebot"
)

// Reference is a participant as the log names them
type Reference struct {
	Name     string
	SteamID  string
	ServerID int
}

// ReferenceFrom converts a logged actor into a Reference
func ReferenceFrom(a scorebot.Actor) Reference {
	return Reference{Name: a.Name, SteamID: a.SteamID, ServerID: a.UserID}
}

// Resolver is one identity lookup strategy
type Resolver interface {
	Resolve(ref Reference) (domain.PlayerRef, bool)
}

// Chain tries each resolver in order and returns the first match
type Chain []Resolver

// Resolve returns the matched player, or nil when no strategy knows the reference
func (c Chain) Resolve(ref Reference) *domain.PlayerRef {
	for _, r := range c {
		if player, ok := r.Resolve(ref); ok {
			return &player
		}
	}
	return nil
}

// SteamIDResolver matches the durable identifier
type SteamIDResolver map[string]domain.PlayerRef

func (r SteamIDResolver) Resolve(ref Reference) (domain.PlayerRef, bool) {
	if !durable(ref.SteamID) {
		return domain.PlayerRef{}, false
	}
	player, ok := r[ref.SteamID]
	return player, ok
}

// ServerIDResolver matches the userid the server assigned at connect
type ServerIDResolver map[int]domain.PlayerRef

func (r ServerIDResolver) Resolve(ref Reference) (domain.PlayerRef, bool) {
	player, ok := r[ref.ServerID]
	return player, ok
}

// NameResolver matches the exact display name
type NameResolver map[string]domain.PlayerRef

func (r NameResolver) Resolve(ref Reference) (domain.PlayerRef, bool) {
	if ref.Name == "" {
		return domain.PlayerRef{}, false
	}
	player, ok := r[ref.Name]
	return player, ok
}

// NewChain builds the default resolution order: durable id, server id, name.
// Server ids come from the roster, and gaps are filled from players seen
// entering the game in events.
func NewChain(teams [2]domain.Team, events []scorebot.Event) Chain {
	bySteam := SteamIDResolver{}
	byServer := ServerIDResolver{}
	byName := NameResolver{}

	for _, team := range teams {
		for _, p := range team.Players {
			if durable(p.SteamID) {
				if _, dup := bySteam[p.SteamID]; !dup {
					bySteam[p.SteamID] = p
				}
			}
			if p.ServerID != nil {
				byServer[*p.ServerID] = p
			}
			if _, dup := byName[p.Name]; !dup && p.Name != "" {
				byName[p.Name] = p
			}
		}
	}

	// PLAYER_ENTERED binds a userid to a roster player for this session
	known := Chain{bySteam, byName}
	for _, e := range events {
		data, ok := e.Data.(scorebot.PlayerEnteredData)
		if !ok {
			continue
		}
		actor := data.Player
		if _, taken := byServer[actor.UserID]; taken {
			continue
		}
		if player := known.Resolve(ReferenceFrom(actor)); player != nil {
			byServer[actor.UserID] = *player
		}
	}

	return Chain{bySteam, byServer, byName}
}

func durable(steamID string) bool {
	return steamID != "" && steamID != "BOT"
}
