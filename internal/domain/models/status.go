package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state shared by submissions, carrier allocations,
// processing receipts and stock consumptions.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// ParseStatus normalizes free-form status strings ("Pending", " COMPLETED ") into a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusAccepted:
		return StatusAccepted, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
}

// UnmarshalText lets JSON payloads carry statuses in any casing.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Transition validates moving a record from s to target. success is the terminal
// success state of the record kind (accepted, completed or approved).
func (s Status) Transition(target, success Status) error {
	if s.Terminal() {
		return fmt.Errorf("%w: record is %s", ErrAlreadyResolved, s)
	}
	if target != success && target != StatusRejected {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, s, target)
	}
	return nil
}

// Decision is the collector's verdict on a submission.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// ParseDecision accepts verbs and past participles in any casing.
func ParseDecision(raw string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accept", "accepted", "approve", "approved":
		return DecisionAccept, nil
	case "reject", "rejected":
		return DecisionReject, nil
	}
	return "", fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, raw)
}

// Status maps the decision to the submission status it produces.
func (d Decision) Status() Status {
	if d == DecisionAccept {
		return StatusAccepted
	}
	return StatusRejected
}
