// Package report aggregates per-query outcomes into the run summary that decides
// the process exit code.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/yetii/yetii/core/logger"
	"github.com/yetii/yetii/core/shared/errors"
)

// Status is the outcome of one attempted query.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunWarning RunStatus = "warning"
	RunFailure RunStatus = "failure"
)

// Exit codes of the run command.
const (
	ExitOK              = 0
	ExitInvalid         = 1
	ExitExecutionFailed = 2
)

// ExecutionResult is the record of one attempted query. It is created once and
// never modified.
type ExecutionResult struct {
	QueryName    string
	ConnectionID string
	Status       Status
	// Rows is the number of rows affected or returned.
	Rows       int64
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Err        error
	// SkippedBecause names the query whose failure caused this one to be skipped.
	// Empty for a skip caused by run cancellation.
	SkippedBecause string
}

// Succeeded records a query that ran to completion.
func Succeeded(query, connectionID string, rows int64, started, finished time.Time) ExecutionResult {
	return ExecutionResult{
		QueryName:    query,
		ConnectionID: connectionID,
		Status:       StatusSucceeded,
		Rows:         rows,
		StartedAt:    started,
		FinishedAt:   finished,
		Duration:     finished.Sub(started),
	}
}

// Failed records a query that was attempted and failed.
func Failed(query, connectionID string, err error, started, finished time.Time) ExecutionResult {
	return ExecutionResult{
		QueryName:    query,
		ConnectionID: connectionID,
		Status:       StatusFailed,
		StartedAt:    started,
		FinishedAt:   finished,
		Duration:     finished.Sub(started),
		Err:          err,
	}
}

// Skipped records a query that never ran. because is the failing query it was
// skipped for, or empty when the run was canceled.
func Skipped(query, connectionID, because string, err error) ExecutionResult {
	return ExecutionResult{
		QueryName:      query,
		ConnectionID:   connectionID,
		Status:         StatusSkipped,
		Err:            err,
		SkippedBecause: because,
	}
}

// Code returns the error code of a failed or skipped result.
func (r ExecutionResult) Code() errors.ErrorCode {
	return errors.Code(r.Err)
}

// Report is the ordered outcome of one run.
type Report struct {
	RunID   string
	Results []ExecutionResult
	// Forced is the query explicitly named and forced for this run, if any.
	Forced    string
	StartedAt time.Time
	Duration  time.Duration
}

// Summary counts results per status.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Rows      int64
}

// Summary counts the results.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded:
			s.Succeeded++
			s.Rows += res.Rows
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// Status derives the overall run status. Nothing-to-run is a success. Failures
// confined to the forced query downgrade the run to a warning; any other failed or
// skipped query makes it a failure.
func (r *Report) Status() RunStatus {
	status := RunSuccess
	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded:
			continue
		case StatusFailed:
			if r.Forced != "" && res.QueryName == r.Forced {
				status = RunWarning
				continue
			}
		}
		return RunFailure
	}
	return status
}

// ExitCode maps the run status to the process exit code.
func (r *Report) ExitCode() int {
	if r.Status() == RunFailure {
		return ExitExecutionFailed
	}
	return ExitOK
}

// Print renders the report as a table followed by a one-line verdict.
func (r *Report) Print(c *logger.Console) {
	if len(r.Results) == 0 {
		c.Warning("No queries to run")
		return
	}

	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		rows = append(rows, []string{
			res.QueryName,
			res.ConnectionID,
			string(res.Status),
			rowsColumn(res),
			durationColumn(res),
			detailColumn(res),
		})
	}
	c.Table([]string{"QUERY", "CONNECTION", "STATUS", "ROWS", "DURATION", "DETAIL"}, rows)
	c.Line("")

	s := r.Summary()
	verdict := fmt.Sprintf("%d succeeded, %d failed, %d skipped in %s", s.Succeeded, s.Failed, s.Skipped, r.Duration.Round(time.Millisecond))
	switch r.Status() {
	case RunSuccess:
		c.Success("Run %s", verdict)
	case RunWarning:
		c.Warning("Run finished with warnings: %s (forced query '%s' failed)", verdict, r.Forced)
	default:
		c.Failure("Run failed: %s", verdict)
	}
}

func rowsColumn(res ExecutionResult) string {
	if res.Status != StatusSucceeded {
		return "-"
	}
	return strconv.FormatInt(res.Rows, 10)
}

func durationColumn(res ExecutionResult) string {
	if res.Status == StatusSkipped {
		return "-"
	}
	return res.Duration.Round(time.Millisecond).String()
}

func detailColumn(res ExecutionResult) string {
	switch {
	case res.Status == StatusSkipped && res.SkippedBecause != "":
		return fmt.Sprintf("skipped after '%s' failed", res.SkippedBecause)
	case res.Status == StatusSkipped:
		return "skipped: run canceled"
	case res.Err != nil:
		return res.Err.Error()
	}
	return ""
}
