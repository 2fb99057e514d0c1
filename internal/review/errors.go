package review

import (
	"errors"
	"fmt"
)

var (
	ErrIncomplete       = errors.New("review: score sheet incomplete")
	ErrInvalid          = errors.New("review: invalid request")
	ErrUpstreamRejected = errors.New("review: upstream rejected scores")
)

type Kind int

const (
	KindIncomplete Kind = iota + 1
	KindInvalid
	KindUpstreamRejected
)

func (k Kind) String() string {
	switch k {
	case KindIncomplete:
		return "incomplete"
	case KindInvalid:
		return "invalid"
	case KindUpstreamRejected:
		return "upstream_rejected"
	}
	return "unknown"
}

// SubmitError explains why scores were not submitted. Missing lists the
// criteria still lacking a score or a required comment.
type SubmitError struct {
	Kind    Kind
	Missing []string
	Err     error
}

func (e *SubmitError) Error() string {
	switch e.Kind {
	case KindIncomplete:
		return fmt.Sprintf("%v (%d criteria pending)", ErrIncomplete, len(e.Missing))
	case KindUpstreamRejected:
		return fmt.Sprintf("%v: %v", ErrUpstreamRejected, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrInvalid, e.Err)
	}
	return ErrInvalid.Error()
}

func (e *SubmitError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindIncomplete:
		sentinel = ErrIncomplete
	case KindUpstreamRejected:
		sentinel = ErrUpstreamRejected
	default:
		sentinel = ErrInvalid
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}
