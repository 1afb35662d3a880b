package storage

import (
	"time"
)

const runColumns = `id, target, actor_type, status, error, item_count, started_at, duration_ms`

// StartRun records a run in the running state.
func (s *Store) StartRun(r Run) error {
	_, err := s.db.Exec(`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, '', 0, ?, 0)`,
		r.ID, r.Target, r.ActorType, RunRunning, formatTime(r.StartedAt))
	return err
}

// FinishRun stores the outcome of a run. An empty errMsg marks it succeeded.
func (s *Store) FinishRun(id string, itemCount int, d time.Duration, errMsg string) error {
	status := RunSucceeded
	if errMsg != "" {
		status = RunFailed
	}
	res, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, item_count = ?, duration_ms = ? WHERE id = ?`,
		status, errMsg, itemCount, d.Milliseconds(), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// GetRun returns one run.
func (s *Store) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		return Run{}, notFound(err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r          Run
		startedAt  string
		durationMS int64
	)
	if err := sc.Scan(&r.ID, &r.Target, &r.ActorType, &r.Status, &r.Error, &r.ItemCount, &startedAt, &durationMS); err != nil {
		return Run{}, err
	}
	t, err := parseTime("started_at", startedAt)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = t
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return r, nil
}
