package domain

import "time"

// CompetencyScores are 0-1 assessments across evaluation axes.
type CompetencyScores struct {
	Technical      float64 `json:"technical"`
	Communication  float64 `json:"communication"`
	ProblemSolving float64 `json:"problem_solving"`
	CulturalFit    float64 `json:"cultural_fit"`
}

// Observation is a single noteworthy moment pulled from the transcript.
type Observation struct {
	Type        string `json:"type"` // strength|weakness|neutral
	Observation string `json:"observation"`
	Impact      string `json:"impact"` // high|medium|low
	Context     string `json:"context,omitempty"`
}

// RedFlag is a concern surfaced during analysis.
type RedFlag struct {
	Severity    string `json:"severity"` // high|medium|low
	Description string `json:"description"`
	Context     string `json:"context,omitempty"`
}

// Recommendations are interviewer-facing next actions.
type Recommendations struct {
	NextSteps         []string `json:"next_steps,omitempty"`
	AreasToProbe      []string `json:"areas_to_probe,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
}

// SentimentAnalysis holds 0-1 soft-signal estimates.
type SentimentAnalysis struct {
	Confidence   float64 `json:"confidence"`
	Enthusiasm   float64 `json:"enthusiasm"`
	Authenticity float64 `json:"authenticity"`
}

// ScoreReport is one structured result from the analysis gateway.
type ScoreReport struct {
	CompetencyScores  CompetencyScores  `json:"competency_scores"`
	KeyObservations   []Observation     `json:"key_observations,omitempty"`
	RedFlags          []RedFlag         `json:"red_flags,omitempty"`
	Recommendations   Recommendations   `json:"recommendations"`
	SentimentAnalysis SentimentAnalysis `json:"sentiment_analysis"`
}

// Overall returns the mean competency score, used as the response quality
// signal for follow-up question generation.
func (r *ScoreReport) Overall() float64 {
	s := r.CompetencyScores
	return (s.Technical + s.Communication + s.ProblemSolving + s.CulturalFit) / 4
}

// Question is a generated (or fallback) follow-up question for the interviewer.
type Question struct {
	Question  string   `json:"question"`
	Intent    string   `json:"intent,omitempty"`
	FollowUps []string `json:"follow_ups,omitempty"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// AnalysisSnapshot is the most recent structured analysis result for an
// interview. It is overwritten on every pass and persisted into the interview
// record at control boundaries, best-effort during live updates.
type AnalysisSnapshot struct {
	Report            *ScoreReport `json:"report,omitempty"`
	ResponseAnalysis  *ScoreReport `json:"response_analysis,omitempty"`
	FollowUpQuestions []Question   `json:"follow_up_questions,omitempty"`
	// Degraded marks a completion whose final analysis pass failed.
	Degraded  bool      `json:"degraded,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionMetrics summarizes a live session's transcript bookkeeping.
type SessionMetrics struct {
	TotalWords            int           `json:"total_words"`
	Responses             int           `json:"responses"`
	AverageResponseLength float64       `json:"average_response_length"`
	Duration              time.Duration `json:"duration"`
	Flags                 int           `json:"flags"`
}

// FinalAnalysis is the comprehensive result produced when a session ends.
type FinalAnalysis struct {
	Analysis   *AnalysisSnapshot `json:"analysis"`
	Feedback   string            `json:"feedback"`
	Metrics    SessionMetrics    `json:"metrics"`
	Transcript string            `json:"transcript"`
}
