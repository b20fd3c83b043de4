package application

import "errors"

// Input errors. The request is rejected before any state is touched.
var (
	ErrInvalidEmail        = errors.New("invalid email")
	ErrInvalidDateOfBirth  = errors.New("invalid date of birth")
	ErrInvalidPasswordHash = errors.New("invalid password hash")
	ErrInvalidCode         = errors.New("invalid code")
)

// Business negatives. Callers outside this package must not tell them apart
// from a missing account.
var (
	ErrAuthFailed      = errors.New("authentication failed")
	ErrTooManyAttempts = errors.New("too many failed attempts")
	ErrNotActivated    = errors.New("account not activated")
	ErrCapacityReached = errors.New("account capacity reached")
)

// Outcome is the closed set of results an authentication flow may report.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNotActivated
	OutcomeFailed
	OutcomeTooManyAttempts
	OutcomeCapacityReached
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotActivated:
		return "not_activated"
	case OutcomeTooManyAttempts:
		return "too_many_attempts"
	case OutcomeCapacityReached:
		return "capacity_reached"
	default:
		return "failed"
	}
}

// OutcomeOf maps an operation error onto the outcome set.
// Anything unrecognised is a failure.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotActivated):
		return OutcomeNotActivated
	case errors.Is(err, ErrTooManyAttempts):
		return OutcomeTooManyAttempts
	case errors.Is(err, ErrCapacityReached):
		return OutcomeCapacityReached
	default:
		return OutcomeFailed
	}
}

// IsInputError reports whether err is a caller error rather than an outcome.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidDateOfBirth) ||
		errors.Is(err, ErrInvalidPasswordHash) ||
		errors.Is(err, ErrInvalidCode)
}
