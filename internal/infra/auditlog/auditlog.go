// Package auditlog persists a forensic, non-authoritative record of
// consensus decisions (§12: supplemented feature) to a local SQLite
// database. It is never consulted to reconstruct live_peers on restart
// (§1 Non-goals: "no durable membership storage") — it exists purely so
// an operator can answer "when did peer X join or leave, which seed
// committed it, and with how many votes" after the fact. Individual votes
// and proposals are not recorded. Schema-as-migration-slice and upsert/query
// style are grounded on the teacher's internal/infra/sqlite/phase3.go.
package auditlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meshlink/overlay/internal/domain"
)

// DB wraps a SQLite connection holding the audit trail.
type DB struct {
	conn *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS membership_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT NOT NULL,
		peer_ip    TEXT NOT NULL,
		peer_port  INTEGER NOT NULL,
		reporter   TEXT NOT NULL,
		vote_count INTEGER NOT NULL,
		recorded_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_membership_events_peer ON membership_events(peer_ip, peer_port)`,
}

// Open creates (if needed) and migrates the audit database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db %s: %w", path, err)
	}
	for _, stmt := range migrations {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate audit db: %w", err)
		}
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordCommitAdd logs a committed ADD decision.
func (db *DB) RecordCommitAdd(peer domain.PeerID, committingSeed domain.SeedID, voteCount int) error {
	return db.insert("COMMIT_ADD", peer, committingSeed.String(), voteCount)
}

// RecordRemove logs a committed REMOVE decision.
func (db *DB) RecordRemove(peer domain.PeerID, committingSeed domain.SeedID, voteCount int) error {
	return db.insert("REMOVE", peer, committingSeed.String(), voteCount)
}

func (db *DB) insert(kind string, peer domain.PeerID, reporter string, voteCount int) error {
	_, err := db.conn.Exec(`
		INSERT INTO membership_events (kind, peer_ip, peer_port, reporter, vote_count)
		VALUES (?, ?, ?, ?, ?)
	`, kind, peer.IP, peer.Port, reporter, voteCount)
	return err
}

// Event is one row of the audit trail.
type Event struct {
	Kind       string
	Peer       domain.PeerID
	Reporter   string
	VoteCount  int
	RecordedAt time.Time
}

// RecentEvents returns the most recent audit events, newest first, up to
// limit rows. Used by the seed's /status endpoint to populate
// audit_history.
func (db *DB) RecentEvents(limit int) ([]Event, error) {
	rows, err := db.conn.Query(`
		SELECT kind, peer_ip, peer_port, reporter, vote_count, recorded_at
		FROM membership_events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var recordedStr string
		if err := rows.Scan(&e.Kind, &e.Peer.IP, &e.Peer.Port, &e.Reporter, &e.VoteCount, &recordedStr); err != nil {
			return nil, err
		}
		e.RecordedAt, _ = time.Parse("2006-01-02 15:04:05", recordedStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventsForPeer returns the full history of events recorded for one peer,
// oldest first. This is the package's per-peer query API — unlike
// RecentEvents, it is not wired into /status (which reports a single
// recent-activity feed, not a per-peer drilldown); an operator tool or a
// future CLI subcommand is the intended caller.
func (db *DB) EventsForPeer(peer domain.PeerID) ([]Event, error) {
	rows, err := db.conn.Query(`
		SELECT kind, peer_ip, peer_port, reporter, vote_count, recorded_at
		FROM membership_events WHERE peer_ip = ? AND peer_port = ? ORDER BY id ASC
	`, peer.IP, peer.Port)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var recordedStr string
		if err := rows.Scan(&e.Kind, &e.Peer.IP, &e.Peer.Port, &e.Reporter, &e.VoteCount, &recordedStr); err != nil {
			return nil, err
		}
		e.RecordedAt, _ = time.Parse("2006-01-02 15:04:05", recordedStr)
		out = append(out, e)
	}
	return out, rows.Err()
}
