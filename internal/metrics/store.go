package metrics

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reasonloop/internal/loop"
	"reasonloop/pkg/models"
)

// Run is one persisted loop run.
type Run struct {
	ID             string        `json:"id"`
	Objective      string        `json:"objective"`
	Template       string        `json:"template"`
	State          string        `json:"state"`
	TaskCount      int           `json:"task_count"`
	Completed      int           `json:"completed"`
	Failed         int           `json:"failed"`
	PartialSuccess bool          `json:"partial_success"`
	Cycles         int           `json:"cycles"`
	Duration       time.Duration `json:"duration"`
	StartedAt      time.Time     `json:"started_at"`
}

// TaskResult is one persisted task outcome within a run.
type TaskResult struct {
	RunID       string        `json:"run_id"`
	TaskID      int           `json:"task_id"`
	Description string        `json:"description"`
	Ability     string        `json:"ability"`
	Status      string        `json:"status"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// AbilityStat aggregates outcomes per ability across all stored runs.
type AbilityStat struct {
	Ability     string        `json:"ability"`
	Invocations int           `json:"invocations"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// RecordReport persists a finished run and its per-task outcomes. It returns
// the assigned run id.
func (db *DB) RecordReport(report *loop.Report, template string, startedAt time.Time) (string, error) {
	runID := uuid.NewString()

	completed := 0
	failed := 0
	for _, task := range report.Tasks {
		switch task.Status {
		case models.TaskStatusComplete:
			completed++
		case models.TaskStatusFailed:
			failed++
		}
	}

	attempts := make(map[int]models.Result, len(report.Results))
	for _, r := range report.Results {
		attempts[r.TaskID] = r
	}

	err := db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, objective, template, state, task_count, completed, failed, partial_success, cycles, duration_ms, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, report.Objective, template, string(report.State), len(report.Tasks), completed, failed,
			boolToInt(report.PartialSuccess), report.Cycles, report.Duration.Milliseconds(), formatTime(startedAt))
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, task := range report.Tasks {
			result, executed := attempts[task.ID]
			var errText any
			if executed && !result.Success {
				errText = result.Err
			}
			_, err := tx.Exec(`
				INSERT INTO task_results (run_id, task_id, description, ability, status, attempts, duration_ms, error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, runID, task.ID, task.Description, task.Ability, string(task.Status),
				result.Attempts, result.Duration.Milliseconds(), errText)
			if err != nil {
				return fmt.Errorf("insert task result %d: %w", task.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// GetRun retrieves a run by id. Returns nil when no run matches.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, objective, template, state, task_count, completed, failed, partial_success, cycles, duration_ms, started_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns lists stored runs, most recent first, up to limit. limit <= 0
// means no limit.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, objective, template, state, task_count, completed, failed, partial_success, cycles, duration_ms, started_at
		FROM runs ORDER BY started_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// TaskResultsByRun lists the task outcomes of one run in task id order.
func (db *DB) TaskResultsByRun(runID string) ([]TaskResult, error) {
	rows, err := db.Query(`
		SELECT run_id, task_id, description, ability, status, attempts, duration_ms, error
		FROM task_results WHERE run_id = ? ORDER BY task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	var results []TaskResult
	for rows.Next() {
		var r TaskResult
		var durationMS int64
		var errText sql.NullString
		if err := rows.Scan(&r.RunID, &r.TaskID, &r.Description, &r.Ability, &r.Status, &r.Attempts, &durationMS, &errText); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if errText.Valid {
			r.Error = errText.String
		}
		results = append(results, r)
	}
	return results, nil
}

// AbilityStats aggregates stored task outcomes per ability.
func (db *DB) AbilityStats() ([]AbilityStat, error) {
	rows, err := db.Query(`
		SELECT ability,
			COUNT(*),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			COALESCE(AVG(duration_ms), 0)
		FROM task_results
		GROUP BY ability
		ORDER BY ability
	`)
	if err != nil {
		return nil, fmt.Errorf("ability stats: %w", err)
	}
	defer rows.Close()

	var stats []AbilityStat
	for rows.Next() {
		var s AbilityStat
		var avgMS float64
		if err := rows.Scan(&s.Ability, &s.Invocations, &s.Failures, &avgMS); err != nil {
			return nil, fmt.Errorf("scan ability stat: %w", err)
		}
		s.AvgDuration = time.Duration(avgMS) * time.Millisecond
		stats = append(stats, s)
	}
	return stats, nil
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var partial int
	var durationMS int64
	var startedAt string
	err := scan(&run.ID, &run.Objective, &run.Template, &run.State, &run.TaskCount,
		&run.Completed, &run.Failed, &partial, &run.Cycles, &durationMS, &startedAt)
	if err != nil {
		return nil, err
	}
	run.PartialSuccess = partial != 0
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.StartedAt, _ = parseTime(startedAt)
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
