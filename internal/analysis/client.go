package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hirelens/hirelens/internal/config"
	"github.com/hirelens/hirelens/internal/domain"
	"github.com/hirelens/hirelens/internal/shared"
)

// Client talks to an OpenAI-compatible chat-completions API and parses the
// model's JSON output into domain score reports.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg config.AnalysisConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// complete performs one chat-completion request and returns the raw content.
func (c *Client) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrExternalService, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", shared.ErrExternalService, err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: status %d: %s", shared.ErrExternalService, resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", shared.ErrExternalService, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", shared.ErrExternalService, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", shared.ErrExternalService)
	}

	return parsed.Choices[0].Message.Content, nil
}

// Analyze scores the full transcript.
func (c *Client) Analyze(ctx context.Context, transcript string, ivType domain.InterviewType, comprehensive bool) (*domain.ScoreReport, error) {
	prompt := transcriptPrompt(ivType, comprehensive)

	content, err := c.complete(ctx, prompt, transcript, 0.4, 2000)
	if err != nil {
		return nil, fmt.Errorf("analyze transcript: %w", err)
	}

	var report domain.ScoreReport
	if err := json.Unmarshal([]byte(stripFences(content)), &report); err != nil {
		return nil, fmt.Errorf("%w: malformed analysis: %v", shared.ErrExternalService, err)
	}
	return &report, nil
}

// AnalyzeResponse independently scores a single candidate response.
func (c *Client) AnalyzeResponse(ctx context.Context, response string, ivType domain.InterviewType) (*domain.ScoreReport, error) {
	content, err := c.complete(ctx, responsePrompt(ivType), response, 0.3, 500)
	if err != nil {
		return nil, fmt.Errorf("analyze response: %w", err)
	}

	var report domain.ScoreReport
	if err := json.Unmarshal([]byte(stripFences(content)), &report); err != nil {
		return nil, fmt.Errorf("%w: malformed response analysis: %v", shared.ErrExternalService, err)
	}
	return &report, nil
}

// GenerateQuestions produces follow-up questions, falling back to the static
// bank when the gateway fails.
func (c *Client) GenerateQuestions(ctx context.Context, transcript string, ivType domain.InterviewType, n int) []domain.Question {
	system := fmt.Sprintf(`Generate %d relevant follow-up questions for a %s interview based on the context.
Probe deeper into areas mentioned, address gaps or inconsistencies, and encourage detailed responses.
Return a JSON array of objects: {"question", "intent", "follow_ups", "key_points"}.`, n, ivType)

	content, err := c.complete(ctx, system, transcript, 0.7, 1000)
	if err != nil {
		c.logger.Warn("question generation failed, using fallback bank", "type", ivType, "error", err)
		return FallbackQuestions(ivType, n)
	}

	var questions []domain.Question
	if err := json.Unmarshal([]byte(stripFences(content)), &questions); err != nil {
		c.logger.Warn("question generation returned malformed JSON, using fallback bank", "type", ivType, "error", err)
		return FallbackQuestions(ivType, n)
	}
	if len(questions) > n {
		questions = questions[:n]
	}
	return questions
}

// GenerateFeedback renders an interviewer-facing report from a score report.
func (c *Client) GenerateFeedback(ctx context.Context, report *domain.ScoreReport, ivType domain.InterviewType) (string, error) {
	encoded, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	system := fmt.Sprintf(`Generate comprehensive %s interview feedback based on the analysis.
Include strengths and areas for improvement, specific examples, actionable
recommendations, and an overall assessment. Format as a structured report
suitable for both the interviewer and the hiring manager.`, ivType)

	content, err := c.complete(ctx, system, string(encoded), 0.4, 1000)
	if err != nil {
		return "", fmt.Errorf("generate feedback: %w", err)
	}
	return content, nil
}

func transcriptPrompt(ivType domain.InterviewType, comprehensive bool) string {
	depth := "Analyze this interview transcript"
	if comprehensive {
		depth = "Analyze this interview transcript comprehensively"
	}
	return fmt.Sprintf(`You are an expert %s interview assessor. %s.
Focus on technical competency, communication skills, problem-solving approach,
cultural fit, and red flags or concerns.
Respond with JSON only, in this structure:
{"competency_scores":{"technical":0,"communication":0,"problem_solving":0,"cultural_fit":0},
"key_observations":[{"type":"strength|weakness|neutral","observation":"","impact":"high|medium|low","context":""}],
"red_flags":[{"severity":"high|medium|low","description":"","context":""}],
"recommendations":{"next_steps":[],"areas_to_probe":[],"follow_up_questions":[]},
"sentiment_analysis":{"confidence":0,"enthusiasm":0,"authenticity":0}}
All scores are between 0 and 1.`, ivType, depth)
}

func responsePrompt(ivType domain.InterviewType) string {
	var focus string
	switch ivType {
	case domain.TypeTechnical:
		focus = "technical accuracy, problem-solving approach, code quality if applicable, and understanding of concepts"
	case domain.TypeHR:
		focus = "communication clarity, cultural fit, professional attitude, and career alignment"
	default:
		focus = "situation handling, decision-making process, leadership qualities, and team collaboration"
	}
	return fmt.Sprintf(`Analyze this single interview response for %s.
Respond with JSON only, using the same structure as a full transcript analysis:
competency_scores, key_observations, red_flags, recommendations, sentiment_analysis.
All scores are between 0 and 1.`, focus)
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Gateway = (*Client)(nil)
