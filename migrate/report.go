package migrate

import "time"

// LedgerEntry records one applied migration in a schema's ledger.
type LedgerEntry struct {
	// ID is the migration ID.
	ID string

	// AppliedAt is when the migration's transaction committed.
	AppliedAt time.Time
}

// SchemaResult is the outcome of applying pending migrations to a single
// schema.
type SchemaResult struct {
	// Schema is the schema the run targeted.
	Schema string

	// Applied lists the migration IDs applied during this run, in the
	// order they were applied. Already-applied migrations are not listed.
	Applied []string

	// Duration is how long the schema run took.
	Duration time.Duration

	// Err is the error that stopped the run, if any. Migrations applied
	// before the failure remain applied and recorded in the ledger.
	Err error
}

// OK reports whether the schema was brought fully up to date.
func (r SchemaResult) OK() bool {
	return r.Err == nil
}

// Report is the outcome of a bulk run across multiple schemas.
type Report struct {
	// RunID correlates log lines and results from one bulk run.
	RunID string

	// StartedAt and FinishedAt bound the whole run.
	StartedAt  time.Time
	FinishedAt time.Time

	// Results holds one entry per requested schema, in request order.
	Results []SchemaResult
}

// OK reports whether every schema was brought fully up to date.
func (r Report) OK() bool {
	for _, result := range r.Results {
		if result.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the results of schemas that did not complete.
func (r Report) Failed() []SchemaResult {
	var failed []SchemaResult
	for _, result := range r.Results {
		if result.Err != nil {
			failed = append(failed, result)
		}
	}
	return failed
}

// TotalApplied returns the number of migrations applied across all
// schemas during this run.
func (r Report) TotalApplied() int {
	total := 0
	for _, result := range r.Results {
		total += len(result.Applied)
	}
	return total
}

// Duration returns the wall-clock duration of the whole run.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
