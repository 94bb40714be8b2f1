package domain

import "testing"

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusScheduled, StatusOngoing, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusOngoing, StatusCompleted, true},
		{StatusOngoing, StatusCancelled, true},
		{StatusOngoing, StatusScheduled, false},
		{StatusCompleted, StatusOngoing, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusOngoing, false},
		{StatusCancelled, StatusCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusScheduled.Terminal() || StatusOngoing.Terminal() {
		t.Error("Expected scheduled and ongoing to be non-terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Error("Expected completed and cancelled to be terminal")
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusScheduled, StatusOngoing, StatusCompleted, StatusCancelled} {
		if !s.Valid() {
			t.Errorf("Expected %s to be valid", s)
		}
	}
	if Status("archived").Valid() {
		t.Error("Expected unknown status to be invalid")
	}
}

func TestValidInterviewType(t *testing.T) {
	for _, ty := range []InterviewType{TypeTechnical, TypeHR, TypeBehavioral} {
		if !ValidInterviewType(ty) {
			t.Errorf("Expected %s to be valid", ty)
		}
	}
	if ValidInterviewType(InterviewType("panel")) {
		t.Error("Expected unknown type to be invalid")
	}
}

func TestScoreReportOverall(t *testing.T) {
	r := &ScoreReport{CompetencyScores: CompetencyScores{
		Technical:      0.8,
		Communication:  0.6,
		ProblemSolving: 0.7,
		CulturalFit:    0.5,
	}}
	if got := r.Overall(); got != 0.65 {
		t.Errorf("Overall() = %v, want 0.65", got)
	}
}

func TestRoleCapabilities(t *testing.T) {
	if !RoleInterviewer.CanSubmitTranscript() || !RoleCandidate.CanSubmitTranscript() {
		t.Error("Expected interviewer and candidate to submit transcripts")
	}
	if RoleAdmin.CanSubmitTranscript() {
		t.Error("Expected admin not to submit transcripts")
	}
	if !RoleInterviewer.CanControlInterview() {
		t.Error("Expected interviewer to control the interview")
	}
	if RoleCandidate.CanControlInterview() || RoleAdmin.CanControlInterview() {
		t.Error("Expected only interviewers to control the interview")
	}
}
