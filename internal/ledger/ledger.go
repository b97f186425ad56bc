package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome records how a streamed response ended.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeFailedPreCommit  Outcome = "failed_precommit"
	OutcomeFailedPostCommit Outcome = "failed_postcommit"
	OutcomeCancelled        Outcome = "cancelled"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomeFailedPreCommit, OutcomeFailedPostCommit, OutcomeCancelled:
		return true
	}
	return false
}

// Entry represents a single response written to the local ledger.
type Entry struct {
	ID              int64     `json:"id"`
	RequestID       string    `json:"request_id"`
	Endpoint        string    `json:"endpoint"`
	Model           string    `json:"model,omitempty"`
	PromptChars     int64     `json:"prompt_chars"`
	CompletionChars int64     `json:"completion_chars"`
	Outcome         Outcome   `json:"outcome"`
	DurationMS      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks the fields every backend requires.
func (e Entry) Validate() error {
	if e.Endpoint == "" {
		return errors.New("ledger record requires endpoint")
	}
	if !e.Outcome.Valid() {
		return fmt.Errorf("invalid outcome %q", e.Outcome)
	}
	return nil
}

// Summary aggregates responses for one endpoint.
type Summary struct {
	Requests         int64 `json:"requests"`
	Completed        int64 `json:"completed"`
	FailedPreCommit  int64 `json:"failed_precommit"`
	FailedPostCommit int64 `json:"failed_postcommit"`
	Cancelled        int64 `json:"cancelled"`
	PromptChars      int64 `json:"prompt_chars"`
	CompletionChars  int64 `json:"completion_chars"`
}

// Pinger is implemented by stores backed by a database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store defines persistence behaviour for the ledger.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Summary(ctx context.Context, endpoint string) (Summary, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// SummaryQuery is shared by the SQL backends; the placeholder differs per
// driver and must be reusable ("$1", "?1"). An empty endpoint matches all.
func SummaryQuery(placeholder string) string {
	return `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN outcome='completed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome='failed_precommit' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome='failed_postcommit' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome='cancelled' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(prompt_chars), 0),
	COALESCE(SUM(completion_chars), 0)
FROM stream_entries
WHERE (` + placeholder + ` = '' OR endpoint = ` + placeholder + `)`
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanSummary reads a row produced by SummaryQuery.
func ScanSummary(row Scanner) (Summary, error) {
	var s Summary
	err := row.Scan(&s.Requests, &s.Completed, &s.FailedPreCommit, &s.FailedPostCommit, &s.Cancelled, &s.PromptChars, &s.CompletionChars)
	return s, err
}

// ScanEntry reads one row of id, request_id, endpoint, model, prompt_chars,
// completion_chars, outcome, duration_ms, created_at.
func ScanEntry(row Scanner) (Entry, error) {
	var e Entry
	var outcome string
	if err := row.Scan(&e.ID, &e.RequestID, &e.Endpoint, &e.Model, &e.PromptChars, &e.CompletionChars, &outcome, &e.DurationMS, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.Outcome = Outcome(outcome)
	return e, nil
}
