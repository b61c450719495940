package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// PlayerRow is a claimed nickname
type PlayerRow struct {
	ID        int64
	Name      string
	PassHash  string
	CreatedAt time.Time
}

// ShiftRow is a finished shift
type ShiftRow struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Players   int       `json:"players"`
	TopScore  int       `json:"topScore"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
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

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS best_scores (
		name TEXT PRIMARY KEY,
		score INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shift_scores (
		shift_id TEXT NOT NULL REFERENCES shifts(id),
		rank INTEGER NOT NULL,
		name TEXT NOT NULL,
		score INTEGER NOT NULL,
		PRIMARY KEY (shift_id, rank)
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		player_name TEXT,
		shift_id TEXT,
		data TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_best_scores_score ON best_scores(score DESC);
	CREATE INDEX IF NOT EXISTS idx_analytics_created ON analytics_events(created_at);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// CreatePlayer claims a nickname (returns player ID)
func (db *DB) CreatePlayer(name, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO players (name, pass_hash) VALUES (?, ?)",
		name, passHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPlayerByName returns the claim on a nickname, or nil
func (db *DB) GetPlayerByName(name string) (*PlayerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, pass_hash, created_at FROM players WHERE name = ?",
		name,
	)
	p := &PlayerRow{}
	err := row.Scan(&p.ID, &p.Name, &p.PassHash, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// SaveBestScore keeps the highest score seen for name
func (db *DB) SaveBestScore(name string, score int) error {
	_, err := db.conn.Exec(`
		INSERT INTO best_scores (name, score, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			score = MAX(score, excluded.score),
			updated_at = CASE WHEN excluded.score > score THEN CURRENT_TIMESTAMP ELSE updated_at END`,
		name, score,
	)
	return err
}

// TopScores returns the best scores, highest first
func (db *DB) TopScores(limit int) ([]LeaderEntry, error) {
	rows, err := db.conn.Query(
		"SELECT name, score FROM best_scores ORDER BY score DESC, updated_at ASC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LeaderEntry
	for rows.Next() {
		var e LeaderEntry
		if err := rows.Scan(&e.Name, &e.Score); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// RecordShift stores a finished shift and its ranked scores
func (db *DB) RecordShift(rec ShiftRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO shifts (id, started_at, ended_at) VALUES (?, ?, ?)",
		rec.ID, rec.StartedAt.UTC().Format(time.RFC3339), rec.EndedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("insert shift: %w", err)
	}
	for i, e := range rec.Scores {
		if _, err := tx.Exec(
			"INSERT INTO shift_scores (shift_id, rank, name, score) VALUES (?, ?, ?, ?)",
			rec.ID, i+1, e.Name, e.Score,
		); err != nil {
			return fmt.Errorf("insert shift score: %w", err)
		}
	}
	return tx.Commit()
}

// RecentShifts returns the latest shifts with their player counts
func (db *DB) RecentShifts(limit int) ([]ShiftRow, error) {
	rows, err := db.conn.Query(`
		SELECT s.id, s.started_at, s.ended_at, COUNT(ss.name), COALESCE(MAX(ss.score), 0)
		FROM shifts s
		LEFT JOIN shift_scores ss ON ss.shift_id = s.id
		GROUP BY s.id
		ORDER BY s.ended_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ShiftRow
	for rows.Next() {
		var r ShiftRow
		var started, ended string
		if err := rows.Scan(&r.ID, &started, &ended, &r.Players, &r.TopScore); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.EndedAt, _ = time.Parse(time.RFC3339, ended)
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetSetting returns a stored setting, or "" if unset
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("get setting %s: %v", key, err)
		}
		return ""
	}
	return value
}

// SetSetting stores a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}
