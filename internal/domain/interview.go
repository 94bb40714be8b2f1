// Package domain contains core domain types for the interview hub.
package domain

import (
	"time"
)

// Status is the authoritative lifecycle state of an interview.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions is the only legal status graph. Terminal states have no exits.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// InterviewType selects the analysis prompt emphasis and the fallback
// question bank.
type InterviewType string

const (
	TypeTechnical  InterviewType = "technical"
	TypeHR         InterviewType = "hr"
	TypeBehavioral InterviewType = "behavioral"
)

// ValidInterviewType reports whether t is a recognized interview type.
func ValidInterviewType(t InterviewType) bool {
	switch t {
	case TypeTechnical, TypeHR, TypeBehavioral:
		return true
	}
	return false
}

// Interview is the durable interview record. Status past "ongoing" is only
// ever written by the control state machine.
type Interview struct {
	ID             string            `json:"id"`
	CandidateName  string            `json:"candidate_name"`
	CandidateEmail string            `json:"candidate_email"`
	InterviewType  InterviewType     `json:"interview_type"`
	ScheduledAt    time.Time         `json:"scheduled_at"`
	Status         Status            `json:"status"`
	Notes          string            `json:"notes,omitempty"`
	CreatedBy      string            `json:"created_by"`
	Transcript     string            `json:"transcript,omitempty"`
	Analysis       *AnalysisSnapshot `json:"analysis,omitempty"`
	Feedback       string            `json:"feedback,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
