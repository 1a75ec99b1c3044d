package storage

import (
	"database/sql"
	"time"

	"github.com/ernie/matchrunner/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func scanNullInt64ToIntPtr(ni sql.NullInt64) *int {
	if ni.Valid {
		v := int(ni.Int64)
		return &v
	}
	return nil
}

func scanNullInt64Ptr(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// Value helpers for nullable columns

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIntPtr(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullPlayerID(p *domain.PlayerRef) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: p.ID, Valid: true}
}

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanSummary scans a matches row
func scanSummary(row scanner) (*MatchSummary, error) {
	var m MatchSummary
	err := row.Scan(&m.MatchID, &m.Map, &m.Teams[0], &m.Teams[1], &m.Score[0], &m.Score[1],
		&m.Reported[0], &m.Reported[1], &m.Winner, &m.Rounds, &m.TeamDeltas[0], &m.TeamDeltas[1], &m.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
