package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hirelens/hirelens/internal/domain"
	"github.com/hirelens/hirelens/internal/shared"
	"github.com/hirelens/hirelens/internal/store"
)

// Control actions an interviewer may issue.
const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionEnd    = "end"
	ActionCancel = "cancel"
)

// ControlResult is the committed outcome of a control action, broadcast to
// the session only after the status write has been persisted.
type ControlResult struct {
	Action   string
	Status   domain.Status
	Analysis *domain.AnalysisSnapshot
	Feedback string
	Metrics  *domain.SessionMetrics
}

// Controller drives interview status through its legal transitions and
// coordinates the aggregator's lifecycle. It is the only writer of statuses
// past "ongoing".
type Controller struct {
	repo store.Repository
	agg  *Aggregator
}

// NewController creates a controller over the given store and aggregator.
func NewController(repo store.Repository, agg *Aggregator) *Controller {
	return &Controller{repo: repo, agg: agg}
}

// Apply executes one control action against an interview. The returned
// result reflects state that has already been persisted; callers broadcast
// it afterwards so a broadcast never announces an uncommitted write.
func (c *Controller) Apply(ctx context.Context, interviewID, action string) (*ControlResult, error) {
	iv, err := c.repo.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("load interview: %w", err)
	}
	if iv == nil {
		return nil, fmt.Errorf("interview %s: %w", interviewID, shared.ErrNotFound)
	}

	switch action {
	case ActionStart:
		return c.start(ctx, iv)
	case ActionPause:
		return c.pause(ctx, iv)
	case ActionEnd:
		return c.end(ctx, iv)
	case ActionCancel:
		return c.cancel(ctx, iv)
	default:
		return nil, fmt.Errorf("unknown control action %q: %w", action, shared.ErrValidation)
	}
}

func (c *Controller) start(ctx context.Context, iv *domain.Interview) (*ControlResult, error) {
	if !iv.Status.CanTransition(domain.StatusOngoing) {
		return nil, transitionError(iv.Status, domain.StatusOngoing)
	}

	c.agg.Start(iv.ID, iv.InterviewType)

	if err := c.repo.UpdateStatus(ctx, iv.ID, domain.StatusOngoing); err != nil {
		// Roll the buffer back so a later retry starts clean.
		c.agg.Discard(iv.ID)
		return nil, fmt.Errorf("persist status: %w", err)
	}

	slog.Info("interview started", "interview_id", iv.ID)
	return &ControlResult{Action: ActionStart, Status: domain.StatusOngoing}, nil
}

// pause snapshots the current analysis into the durable record without
// touching status or tearing down the buffer. Only meaningful while a live
// buffer exists; pausing a finished session would overwrite the persisted
// record with empty state.
func (c *Controller) pause(ctx context.Context, iv *domain.Interview) (*ControlResult, error) {
	if !c.agg.Active(iv.ID) {
		return nil, fmt.Errorf("no active session for interview %s: %w", iv.ID, shared.ErrValidation)
	}

	snapshot := c.agg.Snapshot(iv.ID)
	transcript := c.agg.Transcript(iv.ID)

	if err := c.repo.SaveAnalysis(ctx, iv.ID, transcript, snapshot); err != nil {
		return nil, fmt.Errorf("persist analysis snapshot: %w", err)
	}

	slog.Info("interview paused", "interview_id", iv.ID)
	return &ControlResult{Action: ActionPause, Status: iv.Status, Analysis: snapshot}, nil
}

func (c *Controller) end(ctx context.Context, iv *domain.Interview) (*ControlResult, error) {
	if !iv.Status.CanTransition(domain.StatusCompleted) {
		return nil, transitionError(iv.Status, domain.StatusCompleted)
	}

	result := &ControlResult{Action: ActionEnd, Status: domain.StatusCompleted}

	final, err := c.agg.Finalize(ctx, iv.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		// The interview still completes: a hung or failed gateway must not
		// wedge the session. The record carries a degraded marker instead of
		// a final analysis.
		slog.Error("finalize failed, completing with degraded analysis",
			"interview_id", iv.ID,
			"error", err)
		iv.Transcript = c.agg.Transcript(iv.ID)
		iv.Analysis = &domain.AnalysisSnapshot{Degraded: true, Timestamp: time.Now()}
		c.agg.Discard(iv.ID)
	} else if final != nil {
		iv.Transcript = final.Transcript
		iv.Analysis = final.Analysis
		iv.Feedback = final.Feedback
		result.Metrics = &final.Metrics
	}

	iv.Status = domain.StatusCompleted
	if err := c.repo.UpdateInterview(ctx, iv); err != nil {
		return nil, fmt.Errorf("persist completion: %w", err)
	}

	result.Analysis = iv.Analysis
	result.Feedback = iv.Feedback

	slog.Info("interview completed",
		"interview_id", iv.ID,
		"degraded", iv.Analysis != nil && iv.Analysis.Degraded)
	return result, nil
}

func (c *Controller) cancel(ctx context.Context, iv *domain.Interview) (*ControlResult, error) {
	if !iv.Status.CanTransition(domain.StatusCancelled) {
		return nil, transitionError(iv.Status, domain.StatusCancelled)
	}

	if err := c.repo.UpdateStatus(ctx, iv.ID, domain.StatusCancelled); err != nil {
		return nil, fmt.Errorf("persist status: %w", err)
	}

	// No finalize on cancel; just drop any buffered state.
	c.agg.Discard(iv.ID)

	slog.Info("interview cancelled", "interview_id", iv.ID)
	return &ControlResult{Action: ActionCancel, Status: domain.StatusCancelled}, nil
}

func transitionError(from, to domain.Status) error {
	return fmt.Errorf("illegal transition %s -> %s: %w", from, to, shared.ErrValidation)
}
