package normalizer

import (
	"errors"
	"fmt"
)

// Input validation errors.
var (
	ErrDuplicateRequestedDate = errors.New("requested date listed twice")
	ErrUnrequestedDate        = errors.New("schedule for a date that was not requested")
	ErrScheduleDateMismatch   = errors.New("schedule date does not match its key")
	ErrDateBothOutcomes       = errors.New("date is both fetched and failed")
)

// Validator checks that aggregation input is self-consistent.
type Validator struct{}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the aggregation input.
func (v *Validator) Validate(in Input) error {
	requested := make(map[string]bool, len(in.RequestedDates))

	for _, d := range in.RequestedDates {
		if requested[d] {
			return fmt.Errorf("%w: %s", ErrDuplicateRequestedDate, d)
		}

		requested[d] = true
	}

	for date, schedule := range in.Schedules {
		if !requested[date] {
			return fmt.Errorf("%w: %s", ErrUnrequestedDate, date)
		}

		if schedule.Date != date {
			return fmt.Errorf("%w: key %s, schedule %s", ErrScheduleDateMismatch, date, schedule.Date)
		}
	}

	for _, date := range in.FailedDates {
		if !requested[date] {
			return fmt.Errorf("%w: %s", ErrUnrequestedDate, date)
		}

		if _, ok := in.Schedules[date]; ok {
			return fmt.Errorf("%w: %s", ErrDateBothOutcomes, date)
		}
	}

	return nil
}
