package main

import (
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database holding durable player totals, match results
// and the statistics event log
type DB struct {
	conn *sql.DB
}

// PlayerTotals is the durable record of one identified player
type PlayerTotals struct {
	ExternalID string  `json:"id"`
	Name       string  `json:"name"`
	Matches    int     `json:"matches"`
	Shots      int     `json:"shots"`
	Hits       int     `json:"hits"`
	Kills      int     `json:"kills"`
	Deaths     int     `json:"deaths"`
	Damage     float64 `json:"damage"`
}

// StatRecord is one row of the statistics event log. Payload is a msgpack
// encoded StatsDelta or StatsEvent.
type StatRecord struct {
	Kind       string
	MatchID    string
	ExternalID string
	Payload    []byte
	At         time.Time
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "opening %s", path)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "enabling WAL")
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		external_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		matches INTEGER NOT NULL DEFAULT 0,
		shots INTEGER NOT NULL DEFAULT 0,
		hits INTEGER NOT NULL DEFAULT 0,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		damage REAL NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS match_results (
		match_id TEXT PRIMARY KEY,
		arena TEXT NOT NULL DEFAULT '',
		winner_team INTEGER NOT NULL DEFAULT 0,
		players INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stat_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		match_id TEXT,
		external_id TEXT,
		payload BLOB,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stat_events_match ON stat_events(match_id);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		log.Error().Err(err).Msg("database migration failed")
		return eris.Wrap(err, "migrating schema")
	}
	return nil
}

// GetSetting returns the value stored under key, "" when unset
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if eris.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "reading setting %s", key)
	}
	return value, nil
}

// SetSetting stores value under key
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return eris.Wrapf(err, "writing setting %s", key)
}

// ApplyDeltas folds match deltas into the durable totals. countMatch adds one
// played match per delta.
func (db *DB) ApplyDeltas(deltas []StatsDelta, countMatch bool) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO players (external_id, name, matches, shots, hits, kills, deaths, damage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(external_id) DO UPDATE SET
			name = excluded.name,
			matches = matches + excluded.matches,
			shots = shots + excluded.shots,
			hits = hits + excluded.hits,
			kills = kills + excluded.kills,
			deaths = deaths + excluded.deaths,
			damage = damage + excluded.damage,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return eris.Wrap(err, "prepare upsert")
	}
	defer stmt.Close()

	played := 0
	if countMatch {
		played = 1
	}
	for _, d := range deltas {
		if d.ExternalID == "" {
			continue
		}
		if _, err := stmt.Exec(d.ExternalID, d.Name, played, d.Shots, d.Hits, d.Kills, d.Deaths, d.Damage); err != nil {
			return eris.Wrapf(err, "upserting player %s", d.ExternalID)
		}
	}
	return eris.Wrap(tx.Commit(), "commit")
}

// RecordMatch stores the result of a finished match
func (db *DB) RecordMatch(matchID, arena string, winner Team, players int) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO match_results (match_id, arena, winner_team, players) VALUES (?, ?, ?, ?)",
		matchID, arena, int(winner), players,
	)
	return eris.Wrapf(err, "recording match %s", matchID)
}

// InsertRecords appends a batch to the statistics event log
func (db *DB) InsertRecords(records []StatRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO stat_events (kind, match_id, external_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for _, r := range records {
		mid := sql.NullString{String: r.MatchID, Valid: r.MatchID != ""}
		ext := sql.NullString{String: r.ExternalID, Valid: r.ExternalID != ""}
		if _, err := stmt.Exec(r.Kind, mid, ext, r.Payload, r.At.UTC().Format(time.RFC3339Nano)); err != nil {
			return eris.Wrapf(err, "inserting %s record", r.Kind)
		}
	}
	return eris.Wrap(tx.Commit(), "commit")
}

// GetPlayer returns the totals of one identified player
func (db *DB) GetPlayer(externalID string) (*PlayerTotals, error) {
	t := &PlayerTotals{}
	err := db.conn.QueryRow(
		"SELECT external_id, name, matches, shots, hits, kills, deaths, damage FROM players WHERE external_id = ?",
		externalID,
	).Scan(&t.ExternalID, &t.Name, &t.Matches, &t.Shots, &t.Hits, &t.Kills, &t.Deaths, &t.Damage)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrPlayerNotFound, "external id %s", externalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "reading player %s", externalID)
	}
	return t, nil
}

// Leaderboard returns the players with the most kills
func (db *DB) Leaderboard(limit int) ([]PlayerTotals, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := db.conn.Query(
		"SELECT external_id, name, matches, shots, hits, kills, deaths, damage FROM players ORDER BY kills DESC, deaths ASC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "querying leaderboard")
	}
	defer rows.Close()

	var out []PlayerTotals
	for rows.Next() {
		var t PlayerTotals
		if err := rows.Scan(&t.ExternalID, &t.Name, &t.Matches, &t.Shots, &t.Hits, &t.Kills, &t.Deaths, &t.Damage); err != nil {
			return nil, eris.Wrap(err, "scanning leaderboard row")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "iterating leaderboard")
}

// CountRecords returns the number of logged records of kind
func (db *DB) CountRecords(kind string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM stat_events WHERE kind = ?", kind).Scan(&n)
	return n, eris.Wrapf(err, "counting %s records", kind)
}

// RecordPayloads returns the raw payloads of kind in insertion order
func (db *DB) RecordPayloads(kind string) ([][]byte, error) {
	rows, err := db.conn.Query("SELECT payload FROM stat_events WHERE kind = ? ORDER BY id", kind)
	if err != nil {
		return nil, eris.Wrapf(err, "querying %s records", kind)
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, eris.Wrap(err, "scanning record")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "iterating records")
}
