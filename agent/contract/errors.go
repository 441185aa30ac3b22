package contract

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the machine-readable error category that travels over the wire
// alongside the human-readable message.
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindValidation Kind = "VALIDATION_ERROR"
	KindTimeout    Kind = "TIMEOUT"
	KindStepLimit  Kind = "STEP_LIMIT_EXCEEDED"
	KindUnroutable Kind = "UNROUTABLE_REQUEST"
	KindUpstream   Kind = "UPSTREAM_FAILURE"
	KindInternal   Kind = "INTERNAL"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrTimeout    = errors.New("deadline exceeded")
	ErrStepLimit  = errors.New("step limit exceeded")
	ErrUnroutable = errors.New("request could not be routed")
	ErrUpstream   = errors.New("upstream failure")
)

var kindSentinels = map[Kind]error{
	KindNotFound:   ErrNotFound,
	KindValidation: ErrValidation,
	KindTimeout:    ErrTimeout,
	KindStepLimit:  ErrStepLimit,
	KindUnroutable: ErrUnroutable,
	KindUpstream:   ErrUpstream,
}

// Fault is a structured error: a Kind for machines plus a message for
// humans. It is the JSON error payload of every component boundary.
type Fault struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func NewFault(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap maps the fault back to its sentinel so errors.Is works across the
// wire boundary.
func (f *Fault) Unwrap() error {
	if s, ok := kindSentinels[f.Kind]; ok {
		return s
	}
	return nil
}

// FaultFrom normalizes an arbitrary error into a Fault, preserving an
// existing Fault and classifying sentinel-wrapped and context errors.
func FaultFrom(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: KindOf(err), Message: err.Error()}
}

// KindOf classifies an error into a Kind, defaulting to KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrStepLimit):
		return KindStepLimit
	case errors.Is(err, ErrUnroutable):
		return KindUnroutable
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}
