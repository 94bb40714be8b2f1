package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hirelens/hirelens/internal/analysis"
	"github.com/hirelens/hirelens/internal/config"
	"github.com/hirelens/hirelens/internal/domain"
	"github.com/hirelens/hirelens/internal/shared"
)

// Clock abstracts wall time so trigger evaluation is testable.
type Clock func() time.Time

// transcriptBuffer is the per-interview aggregation state. At most one exists
// per interview id, created on "start" and discarded on "end" or teardown.
type transcriptBuffer struct {
	mu sync.Mutex

	ivType         domain.InterviewType
	transcript     strings.Builder
	responses      []string
	wordsSincePass int
	lastPass       time.Time
	startedAt      time.Time

	// analyzing enforces at most one in-flight analysis pass for this
	// interview. Updates during a pass accumulate but never start a second.
	analyzing bool

	snapshot *domain.AnalysisSnapshot
}

// Aggregator buffers transcript fragments per interview and decides when to
// spend an analysis call. It decides when, not how: scoring belongs to the
// analysis gateway.
type Aggregator struct {
	mu      sync.Mutex
	buffers map[string]*transcriptBuffer

	gateway analysis.Gateway
	cfg     config.SessionConfig
	clock   Clock
}

// NewAggregator creates an aggregator with the given trigger configuration.
// A nil clock defaults to time.Now.
func NewAggregator(gateway analysis.Gateway, cfg config.SessionConfig, clock Clock) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{
		buffers: make(map[string]*transcriptBuffer),
		gateway: gateway,
		cfg:     cfg,
		clock:   clock,
	}
}

// Start initializes the transcript buffer for an interview. An existing
// buffer is replaced, matching a restarted session.
func (a *Aggregator) Start(id string, ivType domain.InterviewType) {
	now := a.clock()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffers[id] = &transcriptBuffer{
		ivType:    ivType,
		lastPass:  now,
		startedAt: now,
	}
	slog.Info("transcript buffer initialized", "interview_id", id, "type", ivType)
}

// Active reports whether a buffer exists for id.
func (a *Aggregator) Active(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.buffers[id]
	return ok
}

func (a *Aggregator) buffer(id string) (*transcriptBuffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("no active session for interview %s: %w", id, shared.ErrNotFound)
	}
	return buf, nil
}

// PassResult carries the outcome of a triggered analysis pass.
type PassResult struct {
	Analysis *domain.AnalysisSnapshot
	Metrics  domain.SessionMetrics
}

// Update appends a transcript fragment and evaluates the trigger policy.
// Returns (nil, nil) when no pass fired, the pass outcome when one did, and
// an error wrapping shared.ErrExternalService when a fired pass failed (the
// buffer stays intact either way).
func (a *Aggregator) Update(ctx context.Context, id, text string, isResponse bool) (*PassResult, error) {
	buf, err := a.buffer(id)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	if buf.transcript.Len() > 0 {
		buf.transcript.WriteByte(' ')
	}
	buf.transcript.WriteString(text)
	buf.wordsSincePass += len(strings.Fields(text))
	if isResponse {
		buf.responses = append(buf.responses, text)
	}

	now := a.clock()
	shouldAnalyze := buf.wordsSincePass >= a.cfg.BufferThreshold ||
		now.Sub(buf.lastPass) >= a.cfg.AnalysisInterval

	if !shouldAnalyze || buf.analyzing {
		buf.mu.Unlock()
		return nil, nil
	}

	// Claim the pass and copy inputs so the gateway call runs unlocked;
	// concurrent updates keep accumulating meanwhile.
	buf.analyzing = true
	transcript := buf.transcript.String()
	var latestResponse string
	if len(buf.responses) > 0 {
		latestResponse = buf.responses[len(buf.responses)-1]
	}
	ivType := buf.ivType
	buf.mu.Unlock()

	snapshot, passErr := a.performPass(ctx, transcript, latestResponse, ivType)

	buf.mu.Lock()
	// Counter and timestamp reset regardless of outcome; a failed pass is
	// retried by the next natural trigger with more context.
	buf.wordsSincePass = 0
	buf.lastPass = a.clock()
	buf.analyzing = false
	if snapshot != nil {
		buf.snapshot = snapshot
	}
	metrics := a.metricsLocked(buf)
	buf.mu.Unlock()

	if passErr != nil {
		slog.Warn("analysis pass failed", "interview_id", id, "error", passErr)
		return nil, fmt.Errorf("analysis pass: %w", passErr)
	}

	return &PassResult{Analysis: snapshot, Metrics: metrics}, nil
}

// performPass runs one full analysis cycle: transcript scoring, optional
// latest-response scoring, and follow-up questions when the response scores
// below the quality threshold.
func (a *Aggregator) performPass(ctx context.Context, transcript, latestResponse string, ivType domain.InterviewType) (*domain.AnalysisSnapshot, error) {
	report, err := a.gateway.Analyze(ctx, transcript, ivType, false)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.AnalysisSnapshot{
		Report:    report,
		Timestamp: a.clock(),
	}

	if latestResponse != "" {
		responseReport, err := a.gateway.AnalyzeResponse(ctx, latestResponse, ivType)
		if err != nil {
			return nil, err
		}
		snapshot.ResponseAnalysis = responseReport

		if responseReport.Overall() < a.cfg.QualityThreshold {
			snapshot.FollowUpQuestions = a.gateway.GenerateQuestions(ctx, transcript, ivType, a.cfg.FollowUpCount)
		}
	}

	return snapshot, nil
}

// Snapshot returns the most recent analysis snapshot for id, or nil when no
// buffer or no pass exists yet.
func (a *Aggregator) Snapshot(id string) *domain.AnalysisSnapshot {
	buf, err := a.buffer(id)
	if err != nil {
		return nil
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.snapshot
}

// Transcript returns the cumulative transcript text for id.
func (a *Aggregator) Transcript(id string) string {
	buf, err := a.buffer(id)
	if err != nil {
		return ""
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.transcript.String()
}

// Metrics returns current summary metrics for id.
func (a *Aggregator) Metrics(id string) (domain.SessionMetrics, error) {
	buf, err := a.buffer(id)
	if err != nil {
		return domain.SessionMetrics{}, err
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return a.metricsLocked(buf), nil
}

func (a *Aggregator) metricsLocked(buf *transcriptBuffer) domain.SessionMetrics {
	totalWords := len(strings.Fields(buf.transcript.String()))

	var avgResponse float64
	if len(buf.responses) > 0 {
		var sum int
		for _, r := range buf.responses {
			sum += len(strings.Fields(r))
		}
		avgResponse = float64(sum) / float64(len(buf.responses))
	}

	var flags int
	if buf.snapshot != nil && buf.snapshot.Report != nil {
		flags = len(buf.snapshot.Report.RedFlags)
	}

	return domain.SessionMetrics{
		TotalWords:            totalWords,
		Responses:             len(buf.responses),
		AverageResponseLength: avgResponse,
		Duration:              a.clock().Sub(buf.startedAt),
		Flags:                 flags,
	}
}

// Finalize runs one comprehensive analysis plus a feedback report over the
// full transcript, then discards all state for id. Gateway errors propagate
// to the caller (completion requires a determinate outcome) and leave the
// buffer for the caller to discard.
func (a *Aggregator) Finalize(ctx context.Context, id string) (*domain.FinalAnalysis, error) {
	buf, err := a.buffer(id)
	if err != nil {
		return nil, err
	}

	buf.mu.Lock()
	transcript := buf.transcript.String()
	ivType := buf.ivType
	metrics := a.metricsLocked(buf)
	buf.mu.Unlock()

	report, err := a.gateway.Analyze(ctx, transcript, ivType, true)
	if err != nil {
		return nil, fmt.Errorf("final analysis: %w", err)
	}

	feedback, err := a.gateway.GenerateFeedback(ctx, report, ivType)
	if err != nil {
		return nil, fmt.Errorf("final feedback: %w", err)
	}

	final := &domain.FinalAnalysis{
		Analysis: &domain.AnalysisSnapshot{
			Report:    report,
			Timestamp: a.clock(),
		},
		Feedback:   feedback,
		Metrics:    metrics,
		Transcript: transcript,
	}

	a.Discard(id)
	return final, nil
}

// Discard drops all aggregation state for id. Safe when no buffer exists.
func (a *Aggregator) Discard(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.buffers[id]; ok {
		delete(a.buffers, id)
		slog.Info("transcript buffer discarded", "interview_id", id)
	}
}
