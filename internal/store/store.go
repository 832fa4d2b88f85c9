// Package store persists estimate checkpoints, battle history, and
// session records in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gunmark-data/marks.report/internal/timeutil"
)

// Store wraps the tracker database.
type Store struct {
	*sql.DB
	clock timeutil.Clock
}

// Open creates the parent directory as needed and opens the database.
// Schema setup is a separate step; call MigrateUp before first use.
func Open(path string, clock timeutil.Clock) (*Store, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single connection so the per-connection pragmas below hold for
	// every statement.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &Store{DB: db, clock: clock}, nil
}

// now returns the clock time as unix seconds with fractional precision,
// the timestamp format every table uses.
func (s *Store) now() float64 {
	return float64(s.clock.Now().UnixNano()) / float64(time.Second)
}

// EmaState is the persisted estimate checkpoint for one vehicle.
type EmaState struct {
	TankID     int
	Ema        float64
	MoePercent float64
	UpdatedAt  float64
}

// SaveEma upserts the estimate checkpoint for a vehicle.
func (s *Store) SaveEma(tankID int, ema, moePercent float64) error {
	_, err := s.Exec(
		`INSERT INTO ema_state (tank_id, ema, moe_percent, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(tank_id)
		 DO UPDATE SET ema=excluded.ema, moe_percent=excluded.moe_percent,
		               updated_at=excluded.updated_at`,
		tankID, ema, moePercent, s.now(),
	)
	if err != nil {
		return fmt.Errorf("save ema for tank %d: %w", tankID, err)
	}
	return nil
}

// LoadEma returns the saved checkpoint for a vehicle. The second return
// is false when none exists.
func (s *Store) LoadEma(tankID int) (EmaState, bool, error) {
	var state EmaState
	err := s.QueryRow(
		`SELECT tank_id, ema, moe_percent, updated_at FROM ema_state WHERE tank_id = ?`,
		tankID,
	).Scan(&state.TankID, &state.Ema, &state.MoePercent, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return EmaState{}, false, nil
	}
	if err != nil {
		return EmaState{}, false, fmt.Errorf("load ema for tank %d: %w", tankID, err)
	}
	return state, true, nil
}

// BattleRecord is one battle's damage and the estimate movement it
// caused. SessionID zero means the battle was played outside a session.
// ID and PlayedAt are set when reading, ignored when logging.
type BattleRecord struct {
	ID             int64
	SessionID      int64
	TankID         int
	DirectDamage   int
	AssistedDamage int
	CombinedDamage int
	EmaBefore      float64
	EmaAfter       float64
	MoeBefore      float64
	MoeAfter       float64
	PlayedAt       float64
}

// LogBattle appends a battle to the log and returns its row id.
func (s *Store) LogBattle(rec BattleRecord) (int64, error) {
	var sessionID any
	if rec.SessionID != 0 {
		sessionID = rec.SessionID
	}
	res, err := s.Exec(
		`INSERT INTO battle_log
		 (session_id, tank_id, direct_damage, assisted_damage, combined_damage,
		  ema_before, ema_after, moe_before, moe_after, played_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.TankID, rec.DirectDamage, rec.AssistedDamage, rec.CombinedDamage,
		rec.EmaBefore, rec.EmaAfter, rec.MoeBefore, rec.MoeAfter, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("log battle for tank %d: %w", rec.TankID, err)
	}
	return res.LastInsertId()
}

// BattleHistory returns up to limit logged battles for a vehicle, oldest
// first, for charting estimate movement. Limit <= 0 means the last 100.
func (s *Store) BattleHistory(tankID, limit int) ([]BattleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Query(
		`SELECT id, COALESCE(session_id, 0), tank_id, direct_damage, assisted_damage,
		        combined_damage, ema_before, ema_after, moe_before, moe_after, played_at
		 FROM battle_log WHERE tank_id = ? ORDER BY id DESC LIMIT ?`,
		tankID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("battle history for tank %d: %w", tankID, err)
	}
	defer rows.Close()

	var battles []BattleRecord
	for rows.Next() {
		var rec BattleRecord
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.TankID, &rec.DirectDamage, &rec.AssistedDamage,
			&rec.CombinedDamage, &rec.EmaBefore, &rec.EmaAfter, &rec.MoeBefore, &rec.MoeAfter,
			&rec.PlayedAt,
		); err != nil {
			return nil, err
		}
		battles = append(battles, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest-N selected, oldest-first returned.
	for i, j := 0, len(battles)-1; i < j; i, j = i+1, j-1 {
		battles[i], battles[j] = battles[j], battles[i]
	}
	return battles, nil
}

// SessionRecord is one completed run of battles on a single vehicle.
type SessionRecord struct {
	ID        int64
	TankID    int
	TankName  string
	StartMoe  float64
	EndMoe    float64
	Battles   int
	StartEma  float64
	EndEma    float64
	StartedAt float64
	EndedAt   float64
}

// Delta is the session's percent movement.
func (r SessionRecord) Delta() float64 { return r.EndMoe - r.StartMoe }

// StartSession creates a session opened at the current estimate and
// returns its id. End state starts equal to the start state.
func (s *Store) StartSession(tankID int, tankName string, startMoe, startEma float64) (int64, error) {
	now := s.now()
	res, err := s.Exec(
		`INSERT INTO sessions
		 (tank_id, tank_name, start_moe, end_moe, battles, start_ema, end_ema,
		  started_at, ended_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		tankID, tankName, startMoe, startMoe, startEma, startEma, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("start session for tank %d: %w", tankID, err)
	}
	return res.LastInsertId()
}

// UpdateSession rolls a session's end state forward.
func (s *Store) UpdateSession(sessionID int64, endMoe, endEma float64, battles int) error {
	_, err := s.Exec(
		`UPDATE sessions
		 SET end_moe = ?, end_ema = ?, battles = ?, ended_at = ?
		 WHERE id = ?`,
		endMoe, endEma, battles, s.now(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session %d: %w", sessionID, err)
	}
	return nil
}

const sessionColumns = `id, tank_id, tank_name, start_moe, end_moe, battles,
	start_ema, end_ema, started_at, ended_at`

// RecentSessions returns the latest sessions across all vehicles, newest
// first. Limit <= 0 means 20.
func (s *Store) RecentSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.querySessions(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY ended_at DESC LIMIT ?`,
		limit,
	)
}

// TankSessions returns the latest sessions for one vehicle, newest
// first. Limit <= 0 means 50.
func (s *Store) TankSessions(tankID, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.querySessions(
		`SELECT `+sessionColumns+` FROM sessions WHERE tank_id = ? ORDER BY ended_at DESC LIMIT ?`,
		tankID, limit,
	)
}

func (s *Store) querySessions(query string, args ...any) ([]SessionRecord, error) {
	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(
			&rec.ID, &rec.TankID, &rec.TankName, &rec.StartMoe, &rec.EndMoe,
			&rec.Battles, &rec.StartEma, &rec.EndEma, &rec.StartedAt, &rec.EndedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}
