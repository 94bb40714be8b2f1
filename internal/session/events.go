// Package session implements the live interview session hub: connection
// handling, presence, transcript aggregation, and interview control.
package session

import (
	"encoding/json"
	"time"

	"github.com/hirelens/hirelens/internal/domain"
)

// Recognized inbound event types. Anything else is logged and ignored.
const (
	inboundChat             = "chat"
	inboundTranscriptUpdate = "transcript_update"
	inboundAnalysisUpdate   = "analysis_update"
	inboundInterviewControl = "interview_control"
	inboundStatusUpdate     = "status_update"
)

// Outbound event types.
const (
	eventSessionInfo       = "session_info"
	eventParticipantJoined = "participant_joined"
	eventParticipantLeft   = "participant_left"
	eventTranscriptUpdated = "transcript_updated"
	eventAnalysisUpdated   = "analysis_updated"
	eventAnalysisError     = "analysis_error"
	eventInterviewControl  = "interview_control"
	eventStatusUpdate      = "status_update"
	eventError             = "error"
)

// inbound is the wire envelope for client messages. Data stays raw until the
// type-specific handler decodes it.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is the wire envelope for server-to-client messages.
type Event struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Participant is the presence view of a connection.
type Participant struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

// Inbound payloads.

type transcriptPayload struct {
	Transcript string `json:"transcript"`
	IsResponse bool   `json:"isResponse"`
}

type analysisPayload struct {
	Analysis *domain.AnalysisSnapshot `json:"analysis"`
}

type controlPayload struct {
	Action string `json:"action"`
}

type statusPayload struct {
	Status string `json:"status"`
}

// Outbound payloads.

type sessionInfoData struct {
	Participants []Participant `json:"participants"`
}

type presenceData struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type chatData struct {
	Sender    Participant     `json:"sender"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

type transcriptUpdatedData struct {
	Transcript string      `json:"transcript"`
	Source     domain.Role `json:"source"`
	Timestamp  time.Time   `json:"timestamp"`
}

type analysisUpdatedData struct {
	Analysis *domain.AnalysisSnapshot `json:"analysis"`
	Metrics  *domain.SessionMetrics   `json:"metrics,omitempty"`
}

type controlData struct {
	Action   string                   `json:"action"`
	Status   domain.Status            `json:"status"`
	Analysis *domain.AnalysisSnapshot `json:"analysis,omitempty"`
	Feedback string                   `json:"feedback,omitempty"`
	Metrics  *domain.SessionMetrics   `json:"metrics,omitempty"`
}

type statusUpdateData struct {
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
