package model

import "time"

type CycleStatus string

const (
	CycleRunning CycleStatus = "running"
	CycleOK      CycleStatus = "ok"
	CyclePartial CycleStatus = "partial"
	CycleFailed  CycleStatus = "failed"
)

// Cycle is one render cycle as recorded in the journal.
type Cycle struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Status     CycleStatus    `json:"status"`
	Error      string         `json:"error,omitempty"`
	Sections   []CycleSection `json:"sections,omitempty"`
}

type CycleSection struct {
	Name     string        `json:"name"`
	Status   CycleStatus   `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}
