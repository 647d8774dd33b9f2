package contracts

import "time"

// Stage defines the per-grouping processing steps (SSOT).
// Logs, run records and metrics use these constants.
//
// Flow per grouping:
//
//	RESOLVE → BUILD → COMPUTE → STORE → SUCCESS | SKIPPED | FAILED
type Stage string

const (
	// StageResolve S1: constituent symbols of a grouping (internal/s1_constituents)
	StageResolve Stage = "S1_RESOLVE"

	// StageBuild S2: aligned price matrix (internal/s2_matrix)
	StageBuild Stage = "S2_BUILD"

	// StageCompute S3: equiweighted index series (internal/s3_index)
	StageCompute Stage = "S3_COMPUTE"

	// StageStore S3: transactional upsert of the series (internal/s3_index)
	StageStore Stage = "S3_STORE"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S1")
func (s Stage) ShortName() string {
	switch s {
	case StageResolve:
		return "S1"
	case StageBuild:
		return "S2"
	case StageCompute, StageStore:
		return "S3"
	default:
		return "UNKNOWN"
	}
}

// AllStages returns the stages in processing order
func AllStages() []Stage {
	return []Stage{StageResolve, StageBuild, StageCompute, StageStore}
}

// OutcomeStatus is the terminal state of one grouping
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomeSkipped OutcomeStatus = "SKIPPED"
	OutcomeFailed  OutcomeStatus = "FAILED"
)

// SkipReason explains a SKIPPED grouping. Skips are expected results, not errors.
type SkipReason string

const (
	SkipNone               SkipReason = ""
	SkipTooFewConstituents SkipReason = "too_few_constituents"
	SkipFetchFailed        SkipReason = "fetch_failed"
	SkipNoPriceData        SkipReason = "no_price_data"
	SkipInsufficientData   SkipReason = "insufficient_data"
	SkipEmptySeries        SkipReason = "empty_series"
)

// GroupingOutcome records what happened to one grouping in a run
type GroupingOutcome struct {
	IndexName    string        `json:"index_name"`
	Sector       string        `json:"sector"`
	Industry     string        `json:"industry"`
	Status       OutcomeStatus `json:"status"`
	Stage        Stage         `json:"stage"` // last stage reached
	SkipReason   SkipReason    `json:"skip_reason,omitempty"`
	Error        string        `json:"error,omitempty"`
	Constituents int           `json:"constituents"`
	Retained     int           `json:"retained"`
	Points       int           `json:"points"`
	Attempts     int           `json:"attempts,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
}

// RunStatus is the state of a whole generation run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// RunTally counts grouping outcomes
type RunTally struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Total returns the number of processed groupings
func (t RunTally) Total() int {
	return t.Success + t.Skipped + t.Failed
}

// RunSummary is the status record of one generation run
// ⭐ SSOT: run-level report shared by CLI, API and scheduler
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Status     RunStatus         `json:"status"`
	StartDay   time.Time         `json:"start_date"`
	EndDay     time.Time         `json:"end_date"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Tally      RunTally          `json:"tally"`
	Error      string            `json:"error,omitempty"`
	Outcomes   []GroupingOutcome `json:"outcomes"`
}

// Record adds an outcome and updates the tally
func (r *RunSummary) Record(o GroupingOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeSuccess:
		r.Tally.Success++
	case OutcomeSkipped:
		r.Tally.Skipped++
	case OutcomeFailed:
		r.Tally.Failed++
	}
}

// FailedErrors returns the errors of FAILED groupings keyed by index name
func (r *RunSummary) FailedErrors() map[string]string {
	out := make(map[string]string)
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			out[o.IndexName] = o.Error
		}
	}
	return out
}
