package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/hirelens/hirelens/internal/auth"
	"github.com/hirelens/hirelens/internal/config"
	"github.com/hirelens/hirelens/internal/domain"
	"github.com/hirelens/hirelens/internal/shared"
	"github.com/hirelens/hirelens/internal/store"
)

// TokenVerifier resolves a bearer credential presented for a specific
// interview into a participant identity.
type TokenVerifier interface {
	VerifyForInterview(ctx context.Context, credential, interviewID string) (*domain.Identity, error)
}

// Gateway accepts WebSocket connections, authenticates them, registers them
// with the session registry, dispatches inbound events, and evicts dead
// peers. One instance serves all interviews in the process.
type Gateway struct {
	registry *Registry
	agg      *Aggregator
	control  *Controller
	verifier TokenVerifier
	repo     store.Repository
	cfg      config.SessionConfig

	shuttingDown atomic.Bool
}

// NewGateway creates a connection gateway.
func NewGateway(registry *Registry, agg *Aggregator, control *Controller, verifier TokenVerifier, repo store.Repository, cfg config.SessionConfig) *Gateway {
	return &Gateway{
		registry: registry,
		agg:      agg,
		control:  control,
		verifier: verifier,
		repo:     repo,
		cfg:      cfg,
	}
}

// ServeHTTP upgrades a session connection request. The URI carries the
// bearer credential and the target interview id; both are required and are
// checked before any session side effect.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.shuttingDown.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get("token")
	interviewID := r.URL.Query().Get("interviewId")
	if token == "" || interviewID == "" {
		http.Error(w, "missing required connection parameters", http.StatusBadRequest)
		return
	}

	identity, err := g.verifier.VerifyForInterview(r.Context(), token, interviewID)
	if err != nil {
		if !auth.IsAuthError(err) {
			slog.Error("credential resolution failed",
				"interview_id", interviewID,
				"error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		slog.Warn("session connection rejected",
			"interview_id", interviewID,
			"ip", r.RemoteAddr,
			"error", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "interview_id", interviewID)
		return
	}

	conn := newConn(uuid.NewString(), *identity, interviewID, ws)
	slog.Info("session connection established",
		"interview_id", interviewID,
		"participant_id", identity.ID,
		"role", identity.Role,
		"ip", r.RemoteAddr)

	g.serve(r.Context(), conn)
}

// serve runs one connection to completion: join, read loop, heartbeat, leave.
func (g *Gateway) serve(parent context.Context, conn *Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g.registry.Join(conn.InterviewID, conn)
	defer g.disconnect(conn)

	// The joiner gets the current participant list; everyone else learns
	// about the joiner.
	if err := conn.Send(ctx, Event{
		Type: eventSessionInfo,
		Data: sessionInfoData{Participants: g.registry.Snapshot(conn.InterviewID)},
	}); err != nil {
		slog.Debug("failed to send session_info", "error", err, "participant_id", conn.Identity.ID)
	}
	g.registry.Broadcast(ctx, conn.InterviewID, Event{
		Type: eventParticipantJoined,
		Data: presenceData{
			ID:        conn.Identity.ID,
			Name:      conn.Identity.DisplayName,
			Role:      conn.Identity.Role,
			Timestamp: time.Now(),
		},
	}, conn)

	go g.heartbeat(ctx, cancel, conn)

	g.readLoop(ctx, conn)
}

// disconnect removes the connection from its session and announces the
// departure to remaining members.
func (g *Gateway) disconnect(conn *Conn) {
	if !g.registry.Leave(conn.InterviewID, conn) {
		return
	}
	conn.close(websocket.StatusNormalClosure, "session ended")
	g.registry.Broadcast(context.Background(), conn.InterviewID, Event{
		Type: eventParticipantLeft,
		Data: presenceData{
			ID:        conn.Identity.ID,
			Name:      conn.Identity.DisplayName,
			Timestamp: time.Now(),
		},
	}, conn)
}

// heartbeat pings the peer on a fixed interval. A peer that does not
// acknowledge within one interval is forcibly terminated and treated as a
// disconnect.
func (g *Gateway) heartbeat(ctx context.Context, cancel context.CancelFunc, conn *Conn) {
	ticker := time.NewTicker(g.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, g.cfg.HeartbeatInterval)
			err := conn.sock.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("heartbeat failed, terminating connection",
					"interview_id", conn.InterviewID,
					"participant_id", conn.Identity.ID,
					"error", err)
				// The peer already missed a ping, so a handshake close would
				// stall on its echo timeout.
				conn.closeNow()
				cancel()
				return
			}
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *Conn) {
	for {
		_, data, err := conn.sock.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("connection closed", "participant_id", conn.Identity.ID)
			} else {
				slog.Warn("websocket read error", "error", err, "participant_id", conn.Identity.ID)
			}
			return
		}

		g.dispatch(ctx, conn, data)
	}
}

// dispatch decodes one inbound message and routes it by type. A handler
// fault becomes a local "error" event to the sender; the connection stays
// open and no fault escapes to other sessions.
func (g *Gateway) dispatch(ctx context.Context, conn *Conn, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		g.sendError(ctx, conn, fmt.Errorf("malformed message: %w", shared.ErrValidation))
		return
	}

	var err error
	switch msg.Type {
	case inboundChat:
		err = g.handleChat(ctx, conn, msg.Data)
	case inboundTranscriptUpdate:
		err = g.handleTranscriptUpdate(ctx, conn, msg.Data)
	case inboundAnalysisUpdate:
		err = g.handleAnalysisUpdate(ctx, conn, msg.Data)
	case inboundInterviewControl:
		err = g.handleInterviewControl(ctx, conn, msg.Data)
	case inboundStatusUpdate:
		err = g.handleStatusUpdate(ctx, conn, msg.Data)
	default:
		slog.Warn("unknown message type, ignoring",
			"type", msg.Type,
			"participant_id", conn.Identity.ID)
		return
	}

	if err != nil {
		g.sendError(ctx, conn, err)
	}
}

func (g *Gateway) sendError(ctx context.Context, conn *Conn, err error) {
	slog.Warn("message handling error",
		"interview_id", conn.InterviewID,
		"participant_id", conn.Identity.ID,
		"error", err)
	if sendErr := conn.Send(ctx, Event{Type: eventError, Error: err.Error()}); sendErr != nil {
		slog.Debug("failed to deliver error event", "error", sendErr)
	}
}

// handleChat relays a chat message to the whole session, sender included.
func (g *Gateway) handleChat(ctx context.Context, conn *Conn, data json.RawMessage) error {
	g.registry.Broadcast(ctx, conn.InterviewID, Event{
		Type: inboundChat,
		Data: chatData{
			Sender:    conn.Participant(),
			Message:   data,
			Timestamp: time.Now(),
		},
	}, nil)
	return nil
}

func (g *Gateway) handleTranscriptUpdate(ctx context.Context, conn *Conn, data json.RawMessage) error {
	if !conn.Identity.Role.CanSubmitTranscript() {
		return fmt.Errorf("role %s may not submit transcripts: %w", conn.Identity.Role, shared.ErrAuthorization)
	}

	var payload transcriptPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("malformed transcript payload: %w", shared.ErrValidation)
	}
	if payload.Transcript == "" {
		return nil
	}

	result, err := g.agg.Update(ctx, conn.InterviewID, payload.Transcript, payload.IsResponse)
	if errors.Is(err, shared.ErrNotFound) {
		return err
	}

	// The fragment is broadcast even when a triggered pass failed; peers
	// still need the transcript.
	g.registry.Broadcast(ctx, conn.InterviewID, Event{
		Type: eventTranscriptUpdated,
		Data: transcriptUpdatedData{
			Transcript: payload.Transcript,
			Source:     conn.Identity.Role,
			Timestamp:  time.Now(),
		},
	}, nil)

	switch {
	case errors.Is(err, shared.ErrExternalService):
		g.registry.Broadcast(ctx, conn.InterviewID, Event{
			Type:  eventAnalysisError,
			Error: "analysis temporarily unavailable",
		}, nil)
	case err != nil:
		return err
	case result != nil:
		g.registry.Broadcast(ctx, conn.InterviewID, Event{
			Type: eventAnalysisUpdated,
			Data: analysisUpdatedData{Analysis: result.Analysis, Metrics: &result.Metrics},
		}, nil)
	}

	// Best-effort live persistence; last-write-wins with control writes.
	g.persistLiveState(conn.InterviewID)
	return nil
}

// persistLiveState writes the current transcript and analysis snapshot to
// the durable record without failing the update on store errors.
func (g *Gateway) persistLiveState(interviewID string) {
	if !g.agg.Active(interviewID) {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.repo.SaveAnalysis(saveCtx, interviewID, g.agg.Transcript(interviewID), g.agg.Snapshot(interviewID)); err != nil {
		slog.Warn("failed to persist live session state", "interview_id", interviewID, "error", err)
	}
}

// handleAnalysisUpdate lets the interviewer overwrite the analysis snapshot
// manually; the write is persisted before peers hear about it.
func (g *Gateway) handleAnalysisUpdate(ctx context.Context, conn *Conn, data json.RawMessage) error {
	if !conn.Identity.Role.CanControlInterview() {
		return fmt.Errorf("only interviewers may update analysis: %w", shared.ErrAuthorization)
	}

	var payload analysisPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("malformed analysis payload: %w", shared.ErrValidation)
	}
	if payload.Analysis == nil {
		return nil
	}

	if err := g.repo.SaveAnalysis(ctx, conn.InterviewID, g.agg.Transcript(conn.InterviewID), payload.Analysis); err != nil {
		return fmt.Errorf("persist analysis: %w", err)
	}

	g.registry.Broadcast(ctx, conn.InterviewID, Event{
		Type: eventAnalysisUpdated,
		Data: analysisUpdatedData{Analysis: payload.Analysis},
	}, nil)
	return nil
}

func (g *Gateway) handleInterviewControl(ctx context.Context, conn *Conn, data json.RawMessage) error {
	if !conn.Identity.Role.CanControlInterview() {
		return fmt.Errorf("only interviewers may control the interview: %w", shared.ErrAuthorization)
	}

	var payload controlPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("malformed control payload: %w", shared.ErrValidation)
	}

	result, err := g.control.Apply(ctx, conn.InterviewID, payload.Action)
	if err != nil {
		return err
	}

	g.registry.Broadcast(ctx, conn.InterviewID, Event{
		Type: eventInterviewControl,
		Data: controlData{
			Action:   result.Action,
			Status:   result.Status,
			Analysis: result.Analysis,
			Feedback: result.Feedback,
			Metrics:  result.Metrics,
		},
	}, nil)
	return nil
}

// handleStatusUpdate relays a participant's presence status to its peers.
func (g *Gateway) handleStatusUpdate(ctx context.Context, conn *Conn, data json.RawMessage) error {
	var payload statusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("malformed status payload: %w", shared.ErrValidation)
	}

	g.registry.Broadcast(ctx, conn.InterviewID, Event{
		Type: eventStatusUpdate,
		Data: statusUpdateData{
			UserID:    conn.Identity.ID,
			Status:    payload.Status,
			Timestamp: time.Now(),
		},
	}, conn)
	return nil
}

// Shutdown stops accepting new connections and closes every open one with a
// distinct status so clients can tell a restart from an eviction.
func (g *Gateway) Shutdown() {
	g.shuttingDown.Store(true)
	g.registry.CloseAll(websocket.StatusServiceRestart, "server shutting down")
	slog.Info("session gateway shut down")
}
