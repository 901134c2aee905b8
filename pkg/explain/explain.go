// Package explain renders a human-readable account of a pipeline outcome
// from its attempt trail. It is a pure presentation layer consumed by the
// CLI; nothing in the pipeline depends on it.
package explain

import (
	"fmt"
	"strings"
	"time"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Render describes what the pipeline did for one request: the SQL it tried,
// corrections it applied, and how it ended.
func Render(outcome *models.Outcome) string {
	if outcome == nil {
		return ""
	}

	var b strings.Builder

	if outcome.FromCache {
		b.WriteString("Answered from cache; no planning or execution was needed.\n")
	}

	executed := 0
	rejected := 0
	for i, attempt := range outcome.Trail {
		switch attempt.Stage {
		case models.StagePlanning:
			if attempt.Err != "" {
				fmt.Fprintf(&b, "Attempt %d: planning produced no usable query (%s).\n", i+1, attempt.Err)
			}
		case models.StageValidating:
			rejected++
			fmt.Fprintf(&b, "Attempt %d: rejected before execution: %s\n", i+1, describeCandidate(attempt.Candidate))
			if attempt.Verdict != nil {
				for _, v := range attempt.Verdict.Violations {
					fmt.Fprintf(&b, "  - %s: %s\n", v.Kind, v.Detail)
				}
			}
		case models.StageExecuting:
			executed++
			if attempt.Err != "" {
				fmt.Fprintf(&b, "Attempt %d: execution failed: %s\n  %s\n", i+1, describeCandidate(attempt.Candidate), attempt.Err)
			} else {
				fmt.Fprintf(&b, "Attempt %d: executed: %s\n", i+1, describeCandidate(attempt.Candidate))
			}
		}
	}

	switch outcome.Status {
	case models.StatusSucceeded:
		if outcome.Result != nil {
			fmt.Fprintf(&b, "Returned %d row(s) from backend %q in %s.",
				outcome.Result.RowCount, outcome.Result.BackendID, outcome.Elapsed.Round(time.Millisecond))
			if outcome.Result.Truncated {
				b.WriteString(" The result was truncated at the row cap.")
			}
			b.WriteString("\n")
		}
	case models.StatusSemanticMiss:
		b.WriteString("The question could not be grounded in the available schema; no query was executed.\n")
	case models.StatusClarificationNeeded:
		b.WriteString("The question was too ambiguous to answer safely. Please rephrase with a table or column name.\n")
	case models.StatusFailed:
		fmt.Fprintf(&b, "The request failed (%s)", outcome.ErrCode)
		if outcome.ErrDetail != "" {
			fmt.Fprintf(&b, ": %s", outcome.ErrDetail)
		}
		b.WriteString("\n")
		if rejected > 0 || executed > 1 {
			fmt.Fprintf(&b, "Tried %d attempt(s) before giving up.\n", len(outcome.Trail))
		}
	}

	return b.String()
}

func describeCandidate(c *models.SQLCandidate) string {
	if c == nil {
		return "(no candidate)"
	}
	if c.Derivation.RuleID != "" {
		return fmt.Sprintf("%s  [%s]", c.Text, c.Derivation.RuleID)
	}
	return c.Text
}
