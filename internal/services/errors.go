package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrDenied        = errors.New("denied")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Outcome classifies a pipeline failure for retry policy.
type Outcome string

const (
	// OutcomeRetry covers transient failures and content mismatches. Both are
	// retried up to the attempt ceiling since a later attempt may succeed.
	OutcomeRetry Outcome = "retry"
	// OutcomeDenied covers budget and cap rejections. Never retried
	// automatically; the caller or operator must act.
	OutcomeDenied Outcome = "denied"
	// OutcomeFatal covers programmer errors such as missing configuration.
	OutcomeFatal Outcome = "fatal"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps a pipeline error to its retry outcome.
func Classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrDenied):
		return OutcomeDenied
	case errors.Is(err, ErrConfiguration):
		return OutcomeFatal
	default:
		return OutcomeRetry
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
