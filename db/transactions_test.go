package db

import (
	"bytes"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/hass-dash/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, ApplyMigrations(db))
	require.NoError(t, ApplyMigrations(db))
}

func TestCycleRoundTrip(t *testing.T) {
	db := openTestDB(t)

	start := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, RecordCycleStart(db, "c1", start))

	last, err := GetLastCycle(db)
	require.NoError(t, err)
	assert.Equal(t, model.CycleRunning, last.Status)
	assert.True(t, last.FinishedAt.IsZero())

	err = FinishCycle(db, model.Cycle{
		ID:         "c1",
		FinishedAt: start.Add(3 * time.Second),
		Status:     model.CyclePartial,
		Error:      "rooms: upstream",
		Sections: []model.CycleSection{
			{Name: "sun", Status: model.CycleOK, Duration: 120 * time.Millisecond},
			{Name: "rooms", Status: model.CycleFailed, Error: "upstream"},
		},
	})
	require.NoError(t, err)

	last, err = GetLastCycle(db)
	require.NoError(t, err)
	assert.Equal(t, "c1", last.ID)
	assert.Equal(t, model.CyclePartial, last.Status)
	assert.Equal(t, "rooms: upstream", last.Error)
	assert.True(t, start.Equal(last.StartedAt))
	assert.Equal(t, 3*time.Second, last.FinishedAt.Sub(last.StartedAt))
	require.Len(t, last.Sections, 2)
	assert.Equal(t, "sun", last.Sections[0].Name)
	assert.Equal(t, 120*time.Millisecond, last.Sections[0].Duration)
	assert.Equal(t, "upstream", last.Sections[1].Error)
}

func TestFinishUnknownCycle(t *testing.T) {
	db := openTestDB(t)
	err := FinishCycle(db, model.Cycle{ID: "missing", Status: model.CycleOK, FinishedAt: time.Now()})
	assert.Error(t, err)
}

func TestGetLastCycleEmpty(t *testing.T) {
	db := openTestDB(t)
	_, err := GetLastCycle(db)
	assert.ErrorIs(t, err, ErrNoCycles)
}

func TestRecentCyclesOrderAndPrune(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, RecordCycleStart(db, id, base.Add(time.Duration(i)*time.Hour)))
	}

	cycles, err := GetRecentCycles(db, 2)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, "c", cycles[0].ID)
	assert.Equal(t, "b", cycles[1].ID)

	n, err := PruneCycles(db, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cycles, err = GetRecentCycles(db, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, "c", cycles[0].ID)
}

func TestListCyclesCLI(t *testing.T) {
	path := t.TempDir() + "/journal.db"
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, RecordCycleStart(db, "abc", time.Now()))
	db.Close()

	var buf bytes.Buffer
	require.NoError(t, ListCyclesCLI(&buf, path, 5))
	assert.Contains(t, buf.String(), "abc")
	assert.Contains(t, buf.String(), "running")
}
