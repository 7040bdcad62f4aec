package db

import (
	"fmt"
	"io"
	"time"
)

func ListCyclesCLI(w io.Writer, dbPath string, limit int) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	cycles, err := GetRecentCycles(dbConn, limit)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Fprintln(w, "no cycles recorded")
		return nil
	}
	for _, c := range cycles {
		dur := "-"
		if !c.FinishedAt.IsZero() {
			dur = c.FinishedAt.Sub(c.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s  %s  %-8s %8s  %s\n",
			c.ID, c.StartedAt.Local().Format("2006-01-02 15:04:05"), c.Status, dur, c.Error)
		for _, s := range c.Sections {
			fmt.Fprintf(w, "    %-10s %-8s %s\n", s.Name, s.Status, s.Error)
		}
	}
	return nil
}

func PruneCyclesCLI(w io.Writer, dbPath string, keep time.Duration) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	n, err := PruneCycles(dbConn, time.Now().Add(-keep))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "pruned %d cycles\n", n)
	return nil
}
