package main

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"narrator/internal/engine"
)

// GameRecord is one dealt game. The engine holds the live state; this row
// only mirrors phase, round and winner for the history view.
type GameRecord struct {
	ID        string `db:"id" json:"id"`
	Phase     string `db:"phase" json:"phase"`
	Round     int    `db:"round" json:"round"`
	Winner    string `db:"winner" json:"winner"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// Seat is a player at the table in seating order.
type Seat struct {
	GameID   string `db:"game_id" json:"game_id"`
	Position int    `db:"position" json:"position"`
	Name     string `db:"name" json:"name"`
	Role     string `db:"role" json:"role"`
	IsAlive  bool   `db:"is_alive" json:"is_alive"`
}

// GameAction is one history entry of a game.
// Visibility determines who can see it:
//   - "public": read aloud to the table
//   - "narrator": only the moderator's screen (night choices, seer results)
type GameAction struct {
	ID          int64  `db:"id" json:"id"`
	GameID      string `db:"game_id" json:"game_id"`
	Round       int    `db:"round" json:"round"`
	Phase       string `db:"phase" json:"phase"`
	Actor       string `db:"actor" json:"actor"`
	ActionType  string `db:"action_type" json:"action_type"`
	Target      string `db:"target" json:"target"`
	Visibility  string `db:"visibility" json:"visibility"`
	Description string `db:"description" json:"description"` // human-readable history entry; empty = hidden
}

// Action types
const (
	ActionDeal      = "deal"
	ActionNight     = "night_action"
	ActionDeath     = "death"
	ActionSpared    = "spared"
	ActionDay       = "day_action"
	ActionBearGrowl = "bear_growl"
	ActionWinner    = "winner"
	ActionReset     = "reset"
	ActionStory     = "story"
)

// Visibility types
const (
	VisibilityPublic   = "public"
	VisibilityNarrator = "narrator"
)

// openDB connects with either registered SQLite driver: "sqlite3"
// (mattn/go-sqlite3, cgo) or "sqlite" (modernc.org/sqlite, pure Go).
func openDB(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case "sqlite3", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database must not be opened twice.
	db.SetMaxOpenConns(1)
	return db, nil
}

func initDB(db *sqlx.DB) error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS game (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL DEFAULT 'setup',
		round INTEGER NOT NULL DEFAULT 0,
		winner TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS seat (
		game_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		is_alive INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, position),
		UNIQUE(game_id, name)
	);
	CREATE TABLE IF NOT EXISTS game_action (
		game_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		action_type TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (game_id) REFERENCES game(id)
	);
	CREATE INDEX IF NOT EXISTS idx_game_action_lookup ON game_action(game_id, visibility);
	`
	_, err := db.Exec(schema)
	if err != nil {
		log.Printf("initDB error: %v", err)
		return err
	}
	log.Printf("Database initialized successfully")
	return nil
}

// createGame stores a freshly dealt table.
func createGame(db *sqlx.DB, id string, roster engine.Roster) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO game (id, phase, round) VALUES (?, ?, ?)`,
		id, engine.PhaseNight.String(), 1); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	for i, p := range roster {
		if _, err := tx.Exec(`INSERT INTO seat (game_id, position, name, role) VALUES (?, ?, ?, ?)`,
			id, i, p.Name, p.OriginalRole.String()); err != nil {
			return fmt.Errorf("insert seat %s: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

func updateGame(db *sqlx.DB, id string, phase engine.Phase, round int, winner engine.Winner) error {
	_, err := db.Exec(`UPDATE game SET phase = ?, round = ?, winner = ? WHERE id = ?`,
		phase.String(), round, winner.String(), id)
	return err
}

func markDead(db *sqlx.DB, gameID string, names []string) error {
	for _, name := range names {
		if _, err := db.Exec(`UPDATE seat SET is_alive = 0 WHERE game_id = ? AND name = ?`, gameID, name); err != nil {
			return err
		}
	}
	return nil
}

func recordAction(db *sqlx.DB, a GameAction) (int64, error) {
	result, err := db.NamedExec(`
		INSERT INTO game_action (game_id, round, phase, actor, action_type, target, visibility, description)
		VALUES (:game_id, :round, :phase, :actor, :action_type, :target, :visibility, :description)`, a)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func getGame(db *sqlx.DB, id string) (GameRecord, error) {
	var g GameRecord
	err := db.Get(&g, `SELECT id, phase, round, winner, created_at FROM game WHERE id = ?`, id)
	return g, err
}

func getSeats(db *sqlx.DB, gameID string) ([]Seat, error) {
	var seats []Seat
	err := db.Select(&seats, `
		SELECT game_id, position, name, role, is_alive
		FROM seat
		WHERE game_id = ?
		ORDER BY position`, gameID)
	return seats, err
}

// getHistory returns the non-empty actions of a game the given visibilities
// allow, oldest first.
func getHistory(db *sqlx.DB, gameID string, visibility ...string) ([]GameAction, error) {
	query, args, err := sqlx.In(`
		SELECT rowid as id, game_id, round, phase, actor, action_type, target, visibility, description
		FROM game_action
		WHERE game_id = ? AND description != '' AND visibility IN (?)
		ORDER BY rowid ASC`, gameID, visibility)
	if err != nil {
		return nil, err
	}
	actions := []GameAction{}
	err = db.Select(&actions, db.Rebind(query), args...)
	return actions, err
}
