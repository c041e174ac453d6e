package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i1dus/listing-rater/models"
)

// SQLiteStore is the local operational store: queued commands, batch locks
// and the run log. Domain data lives in Postgres; this file is what keeps a
// single daemon coordinated across restarts.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS batch_state (
		name TEXT PRIMARY KEY,
		running BOOLEAN DEFAULT FALSE,
		started_at DATETIME,
		finished_at DATETIME,
		last_result JSON
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_run_logs_time ON run_logs(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) EnqueueCommand(command string, params json.RawMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO commands (command, params) VALUES (?, ?)`,
		command, nullableJSON(params))
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// TryStartBatch claims the named batch. It returns false when the batch is
// already running, which is how overlapping rematch sweeps are refused.
func (s *SQLiteStore) TryStartBatch(name string) (bool, error) {
	result, err := s.db.Exec(`
		INSERT INTO batch_state (name, running, started_at)
		VALUES (?, TRUE, ?)
		ON CONFLICT(name) DO UPDATE SET
			running = TRUE,
			started_at = excluded.started_at,
			finished_at = NULL
		WHERE batch_state.running = FALSE`,
		name, time.Now())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FinishBatch releases the named batch and records its outcome.
func (s *SQLiteStore) FinishBatch(name string, result json.RawMessage) error {
	_, err := s.db.Exec(`
		UPDATE batch_state SET running = FALSE, finished_at = ?, last_result = ?
		WHERE name = ?`,
		time.Now(), nullableJSON(result), name)
	return err
}

// IsBatchRunning reports the current state of the named batch.
func (s *SQLiteStore) IsBatchRunning(name string) (bool, error) {
	var running bool
	err := s.db.QueryRow(`SELECT running FROM batch_state WHERE name = ?`, name).Scan(&running)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return running, err
}

func (s *SQLiteStore) Log(level models.LogLevel, message, source string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (timestamp, level, message, source)
		VALUES (?, ?, ?, ?)`,
		time.Now(), level, message, source)
	return err
}

// PruneLogs drops log rows older than the cutoff.
func (s *SQLiteStore) PruneLogs(olderThan time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM run_logs WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
