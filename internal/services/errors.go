package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chainlance/backend/internal/models"
)

// addressEqual compares hex addresses case-insensitively; checksummed and
// lowercased forms of the same address must match.
func addressEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ErrNotFound is returned when a job, application or escrow unit does not
// exist on the chain or in the projection.
var ErrNotFound = errors.New("not found")

// CollaboratorError wraps a transient ledger/store/oracle failure with enough
// context to retry. It is never swallowed: the caller decides whether to pay
// for another attempt.
type CollaboratorError struct {
	Op    string
	JobID uint64
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s failed for job %d: %v", e.Op, e.JobID, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// StepError reports which approval saga step failed so a retry can resume
// there instead of starting over.
type StepError struct {
	JobID uint64
	Step  int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("approval step %d (%s) failed for job %d: %v",
		e.Step, models.SagaStepName(e.Step), e.JobID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
