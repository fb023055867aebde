package cert

import (
	"errors"
	"fmt"
)

// Issuance errors
var (
	ErrSubmissionFailed = errors.New("certificate submission failed")
	ErrAttachFailed     = errors.New("signature attach failed")
	ErrChainRejected    = errors.New("on-chain transaction rejected by user")
	ErrChainError       = errors.New("on-chain transaction failed")
	ErrReconcileFailed  = errors.New("transaction reconciliation failed")
)

// Verification errors
var (
	ErrStorageUnreachable = errors.New("certificate payload unreachable")
	ErrHashMismatch       = errors.New("certificate hash mismatch")
)

// Step identifies one of the five sequential issuance steps.
type Step string

const (
	StepSubmit    Step = "submit"
	StepSign      Step = "sign"
	StepAttach    Step = "attach"
	StepChain     Step = "chain"
	StepReconcile Step = "reconcile"
)

// StepError reports exactly which issuance step failed so callers can
// resume without repeating already-completed work.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("issuance step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
