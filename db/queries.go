package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/hass-dash/internal/model"
)

var ErrNoCycles = errors.New("no cycles recorded")

// GetRecentCycles returns up to limit cycles, newest first, with their
// sections.
func GetRecentCycles(db *sql.DB, limit int) ([]model.Cycle, error) {
	rows, err := db.Query(`SELECT id, started_at, finished_at, status, error
		FROM cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var cycles []model.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cycles {
		sections, err := getSections(db, cycles[i].ID)
		if err != nil {
			return nil, err
		}
		cycles[i].Sections = sections
	}
	return cycles, nil
}

func GetLastCycle(db *sql.DB) (model.Cycle, error) {
	cycles, err := GetRecentCycles(db, 1)
	if err != nil {
		return model.Cycle{}, err
	}
	if len(cycles) == 0 {
		return model.Cycle{}, ErrNoCycles
	}
	return cycles[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(row scanner) (model.Cycle, error) {
	var c model.Cycle
	var started, status string
	var finished, errText sql.NullString
	if err := row.Scan(&c.ID, &started, &finished, &status, &errText); err != nil {
		return c, fmt.Errorf("scan cycle: %w", err)
	}
	c.Status = model.CycleStatus(status)
	c.Error = errText.String

	var err error
	c.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return c, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		c.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return c, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return c, nil
}

func getSections(db *sql.DB, cycleID string) ([]model.CycleSection, error) {
	rows, err := db.Query(`SELECT name, status, error, duration_ms
		FROM cycle_sections WHERE cycle_id = ? ORDER BY rowid`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	var sections []model.CycleSection
	for rows.Next() {
		var s model.CycleSection
		var status string
		var errText sql.NullString
		var ms int64
		if err := rows.Scan(&s.Name, &status, &errText, &ms); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		s.Status = model.CycleStatus(status)
		s.Error = errText.String
		s.Duration = time.Duration(ms) * time.Millisecond
		sections = append(sections, s)
	}
	return sections, rows.Err()
}
