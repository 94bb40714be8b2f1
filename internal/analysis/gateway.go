// Package analysis implements the client for the interview analysis gateway.
package analysis

import (
	"context"

	"github.com/hirelens/hirelens/internal/domain"
)

// Gateway is the capability the session core consumes: given text, return
// structured scores, questions, or feedback. Calls are bounded in time and
// may fail; GenerateQuestions is the exception and always returns something.
type Gateway interface {
	// Analyze scores the full transcript. Comprehensive passes are used at
	// session end and may take longer prompts.
	Analyze(ctx context.Context, transcript string, ivType domain.InterviewType, comprehensive bool) (*domain.ScoreReport, error)

	// AnalyzeResponse independently scores a single candidate response.
	AnalyzeResponse(ctx context.Context, response string, ivType domain.InterviewType) (*domain.ScoreReport, error)

	// GenerateQuestions produces up to n follow-up questions for the
	// interviewer. Falls back to a static bank on failure, never errors.
	GenerateQuestions(ctx context.Context, transcript string, ivType domain.InterviewType, n int) []domain.Question

	// GenerateFeedback renders an interviewer-facing report from a score
	// report.
	GenerateFeedback(ctx context.Context, report *domain.ScoreReport, ivType domain.InterviewType) (string, error)
}
