// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package trace

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// AuditStore keeps the queryable history of delegations and tool
// executions across runs.
type AuditStore struct {
	db *sql.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS delegations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	task        TEXT NOT NULL,
	level       TEXT NOT NULL,
	success     INTEGER NOT NULL,
	truncated   INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_delegations_mode ON delegations(mode);

CREATE TABLE IF NOT EXISTS tool_executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	tool        TEXT NOT NULL,
	success     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tool_executions_run ON tool_executions(run_id);
`

// OpenAudit opens (creating if needed) the audit database at path.
func OpenAudit(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init audit schema: %w", err)
	}
	return &AuditStore{db: db}, nil
}

// Close releases the database handle.
func (a *AuditStore) Close() error { return a.db.Close() }

// RecordDelegation appends one delegation outcome.
func (a *AuditStore) RecordDelegation(runID, mode, task, level string, success, truncated bool, duration time.Duration) error {
	_, err := a.db.Exec(
		`INSERT INTO delegations (run_id, mode, task, level, success, truncated, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, mode, task, level, boolInt(success), boolInt(truncated), duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record delegation: %w", err)
	}
	return nil
}

// RecordToolExecution appends one tool execution.
func (a *AuditStore) RecordToolExecution(runID, tool string, success bool, duration time.Duration) error {
	_, err := a.db.Exec(
		`INSERT INTO tool_executions (run_id, tool, success, duration_ms)
		 VALUES (?, ?, ?, ?)`,
		runID, tool, boolInt(success), duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record tool execution: %w", err)
	}
	return nil
}

// ModeSummary is the aggregate outcome for one delegation mode.
type ModeSummary struct {
	Mode          string
	Total         int
	Successes     int
	AvgDurationMs float64
}

// SummarizeByMode aggregates delegation outcomes per mode.
func (a *AuditStore) SummarizeByMode() ([]ModeSummary, error) {
	rows, err := a.db.Query(
		`SELECT mode, COUNT(*), SUM(success), AVG(duration_ms)
		 FROM delegations GROUP BY mode ORDER BY mode`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegations: %w", err)
	}
	defer rows.Close()

	var out []ModeSummary
	for rows.Next() {
		var s ModeSummary
		if err := rows.Scan(&s.Mode, &s.Total, &s.Successes, &s.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan delegation summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
