package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/hass-dash/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func RecordCycleStart(db *sql.DB, id string, startedAt time.Time) error {
	_, err := db.Exec(`INSERT INTO cycles (id, started_at, status) VALUES (?, ?, ?)`,
		id, startedAt.UTC().Format(time.RFC3339Nano), string(model.CycleRunning))
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

func RecordSectionWithTx(tx *sql.Tx, cycleID string, s model.CycleSection) error {
	_, err := tx.Exec(`INSERT OR REPLACE INTO cycle_sections (cycle_id, name, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?)`,
		cycleID, s.Name, string(s.Status), nullString(s.Error), s.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record section %s: %w", s.Name, err)
	}
	return nil
}

// FinishCycle writes the outcome of a cycle and its sections in one
// transaction.
func FinishCycle(db *sql.DB, c model.Cycle) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE cycles SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		c.FinishedAt.UTC().Format(time.RFC3339Nano), string(c.Status), nullString(c.Error), c.ID)
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("update cycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		RollbackTransaction(tx)
		return fmt.Errorf("cycle %s not found", c.ID)
	}
	for _, s := range c.Sections {
		if err := RecordSectionWithTx(tx, c.ID, s); err != nil {
			RollbackTransaction(tx)
			return err
		}
	}
	return CommitTransaction(tx)
}

// PruneCycles deletes cycles that started before the cutoff.
func PruneCycles(db *sql.DB, before time.Time) (int64, error) {
	tx, err := StartTransaction(db)
	if err != nil {
		return 0, err
	}
	cutoff := before.UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`DELETE FROM cycle_sections WHERE cycle_id IN
		(SELECT id FROM cycles WHERE started_at < ?)`, cutoff); err != nil {
		RollbackTransaction(tx)
		return 0, fmt.Errorf("prune sections: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM cycles WHERE started_at < ?`, cutoff)
	if err != nil {
		RollbackTransaction(tx)
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, CommitTransaction(tx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
