// Package storage persists finished match results in SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ernie/matchrunner/internal/domain"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when no match has the requested id
var ErrNotFound = errors.New("match not found")

// MatchSummary is one row of the match history
type MatchSummary struct {
	MatchID    string    `json:"match_id"`
	Map        string    `json:"map"`
	Teams      [2]string `json:"teams"`
	Score      [2]int    `json:"score"`
	Reported   [2]int    `json:"reported"`
	Winner     int       `json:"winner"`
	Rounds     int       `json:"rounds"`
	TeamDeltas [2]int    `json:"team_deltas"`
	FinishedAt time.Time `json:"finished_at"`
}

// PlayerRating is a player's accumulated rating change across matches
type PlayerRating struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Matches  int    `json:"matches"`
	Delta    int    `json:"delta"`
}

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult stores a finished match with its roster and events
func (s *Store) SaveResult(ctx context.Context, r *domain.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (id, map, team_a, team_b, score_a, score_b, reported_a, reported_b,
			winner, rounds, delta_a, delta_b, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.MatchID, r.Map, r.Teams[0].Name, r.Teams[1].Name, r.Score[0], r.Score[1],
		r.Reported[0], r.Reported[1], r.Winner, r.Rounds, r.TeamDeltas[0], r.TeamDeltas[1],
		formatTimestamp(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}

	deltas := make(map[int64]int)
	for _, d := range r.Ratings {
		deltas[d.Player.ID] = d.Delta
	}
	slot := 0
	for team, t := range r.Teams {
		for _, p := range t.Players {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO match_players (match_id, slot, player_id, name, steam_id, server_id, team, rating_delta)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, r.MatchID, slot, p.ID, p.Name, nullString(p.SteamID), nullIntPtr(p.ServerID), team, deltas[p.ID])
			if err != nil {
				return fmt.Errorf("inserting player %s: %w", p.Name, err)
			}
			slot++
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO match_events (match_id, seq, type, timestamp, round, actor_id, actor_name,
			target_id, target_name, weapon, headshot, message, winner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing event insert: %w", err)
	}
	defer stmt.Close()

	for seq, e := range r.Events {
		_, err := stmt.ExecContext(ctx, r.MatchID, seq, e.Type, formatTimestamp(e.Timestamp), e.Round,
			nullPlayerID(e.Actor), nullString(e.ActorName), nullPlayerID(e.Target), nullString(e.TargetName),
			nullString(e.Weapon), e.Headshot, nullString(e.Message), nullIntPtr(e.Winner))
		if err != nil {
			return fmt.Errorf("inserting event %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

// GetResult loads a stored match
func (s *Store) GetResult(ctx context.Context, matchID string) (*domain.Result, error) {
	summary, err := scanSummary(s.db.QueryRowContext(ctx, `
		SELECT id, map, team_a, team_b, score_a, score_b, reported_a, reported_b,
			winner, rounds, delta_a, delta_b, finished_at
		FROM matches WHERE id = ?
	`, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r := &domain.Result{
		MatchID:    summary.MatchID,
		Map:        summary.Map,
		Score:      summary.Score,
		Reported:   summary.Reported,
		Winner:     summary.Winner,
		Rounds:     summary.Rounds,
		TeamDeltas: summary.TeamDeltas,
		FinishedAt: summary.FinishedAt,
	}
	r.Teams[0].Name = summary.Teams[0]
	r.Teams[1].Name = summary.Teams[1]

	players, err := s.loadPlayers(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, r, players); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) loadPlayers(ctx context.Context, r *domain.Result) (map[int64]domain.PlayerRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, name, steam_id, server_id, team, rating_delta
		FROM match_players WHERE match_id = ? ORDER BY slot
	`, r.MatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := make(map[int64]domain.PlayerRef)
	for rows.Next() {
		var p domain.PlayerRef
		var steamID sql.NullString
		var serverID sql.NullInt64
		var team, delta int
		if err := rows.Scan(&p.ID, &p.Name, &steamID, &serverID, &team, &delta); err != nil {
			return nil, err
		}
		p.SteamID = scanNullStringValue(steamID)
		p.ServerID = scanNullInt64ToIntPtr(serverID)
		if team != domain.TeamA && team != domain.TeamB {
			continue
		}
		r.Teams[team].Players = append(r.Teams[team].Players, p)
		r.Ratings = append(r.Ratings, domain.RatingDelta{Player: p, Team: team, Delta: delta})
		players[p.ID] = p
	}
	return players, rows.Err()
}

func (s *Store) loadEvents(ctx context.Context, r *domain.Result, players map[int64]domain.PlayerRef) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, timestamp, round, actor_id, actor_name, target_id, target_name,
			weapon, headshot, message, winner
		FROM match_events WHERE match_id = ? ORDER BY seq
	`, r.MatchID)
	if err != nil {
		return err
	}
	defer rows.Close()

	resolve := func(id *int64) *domain.PlayerRef {
		if id == nil {
			return nil
		}
		p, ok := players[*id]
		if !ok {
			p = domain.PlayerRef{ID: *id}
		}
		return &p
	}

	r.Events = []domain.AttributedEvent{}
	for rows.Next() {
		var e domain.AttributedEvent
		var actorID, targetID, winner sql.NullInt64
		var actorName, targetName, weapon, message sql.NullString
		if err := rows.Scan(&e.Type, &e.Timestamp, &e.Round, &actorID, &actorName, &targetID, &targetName,
			&weapon, &e.Headshot, &message, &winner); err != nil {
			return err
		}
		e.Actor = resolve(scanNullInt64Ptr(actorID))
		e.ActorName = scanNullStringValue(actorName)
		e.Target = resolve(scanNullInt64Ptr(targetID))
		e.TargetName = scanNullStringValue(targetName)
		e.Weapon = scanNullStringValue(weapon)
		e.Message = scanNullStringValue(message)
		e.Winner = scanNullInt64ToIntPtr(winner)
		r.Events = append(r.Events, e)
	}
	return rows.Err()
}

// ListResults returns the most recent matches first
func (s *Store) ListResults(ctx context.Context, limit int) ([]MatchSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, map, team_a, team_b, score_a, score_b, reported_a, reported_b,
			winner, rounds, delta_a, delta_b, finished_at
		FROM matches ORDER BY finished_at DESC, created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []MatchSummary
	for rows.Next() {
		m, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// PlayerRatings sums rating changes per player over all stored matches
func (s *Store) PlayerRatings(ctx context.Context) ([]PlayerRating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, MAX(name), COUNT(*), SUM(rating_delta)
		FROM match_players GROUP BY player_id ORDER BY SUM(rating_delta) DESC, player_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []PlayerRating
	for rows.Next() {
		var pr PlayerRating
		if err := rows.Scan(&pr.PlayerID, &pr.Name, &pr.Matches, &pr.Delta); err != nil {
			return nil, err
		}
		ratings = append(ratings, pr)
	}
	return ratings, rows.Err()
}
