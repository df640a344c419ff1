package model

import (
	"errors"
	"fmt"
)

// Status is the lifecycle position of a process. It is stored as text.
type Status string

// Process status constants
const (
	StatusCreated            Status = "CREATED"
	StatusTermoGenerated     Status = "TERMO_GENERATED"
	StatusExceptionsRecorded Status = "EXCEPTIONS_RECORDED"
	StatusFinalized          Status = "FINALIZED"
)

// ErrIllegalTransition is returned when a status change skips or reverses a step.
var ErrIllegalTransition = errors.New("illegal status transition")

var transitions = map[Status][]Status{
	StatusCreated:            {StatusTermoGenerated},
	StatusTermoGenerated:     {StatusExceptionsRecorded},
	StatusExceptionsRecorded: {StatusExceptionsRecorded, StatusFinalized},
}

// ParseStatus converts a stored status string, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusCreated, StatusTermoGenerated, StatusExceptionsRecorded, StatusFinalized:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status value %q", s)}
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}
