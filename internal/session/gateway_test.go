package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/hirelens/hirelens/internal/config"
	"github.com/hirelens/hirelens/internal/domain"
	"github.com/hirelens/hirelens/internal/shared"
)

type fakeVerifier struct {
	identities map[string]*domain.Identity
	errs       map[string]error
}

func (v *fakeVerifier) VerifyForInterview(_ context.Context, credential, _ string) (*domain.Identity, error) {
	if err, ok := v.errs[credential]; ok {
		return nil, err
	}
	identity, ok := v.identities[credential]
	if !ok {
		return nil, fmt.Errorf("%w: unknown credential", shared.ErrAuthentication)
	}
	return identity, nil
}

type hubFixture struct {
	hub  *Gateway
	repo *mockRepository
	agg  *Aggregator
	srv  *httptest.Server
}

func newHubFixture(t *testing.T, gw *fakeGateway, cfg config.SessionConfig) *hubFixture {
	t.Helper()

	iv := scheduledInterview("iv1")
	repo := newMockRepository(iv)
	registry := NewRegistry()
	agg := NewAggregator(gw, cfg, nil)
	ctrl := NewController(repo, agg)
	verifier := &fakeVerifier{
		identities: map[string]*domain.Identity{
			"tok-interviewer": {ID: "u1", DisplayName: "Iris", Role: domain.RoleInterviewer},
			"tok-candidate":   {ID: "u2", DisplayName: "Ada", Role: domain.RoleCandidate},
		},
		errs: map[string]error{
			"tok-broken": fmt.Errorf("interview lookup failed"),
		},
	}

	hub := NewGateway(registry, agg, ctrl, verifier, repo, cfg)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	return &hubFixture{hub: hub, repo: repo, agg: agg, srv: srv}
}

func (f *hubFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, f.srv.URL+"/?token="+token+"&interviewId=iv1", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

type wireEvent struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func readEvent(t *testing.T, c *websocket.Conn) wireEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Malformed event %q: %v", data, err)
	}
	return ev
}

func expectEvent(t *testing.T, c *websocket.Conn, eventType string) wireEvent {
	t.Helper()
	ev := readEvent(t, c)
	if ev.Type != eventType {
		t.Fatalf("Expected event %q, got %q (error=%q)", eventType, ev.Type, ev.Error)
	}
	return ev
}

func sendEvent(t *testing.T, c *websocket.Conn, eventType string, payload any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}
	envelope, err := json.Marshal(map[string]json.RawMessage{
		"type": json.RawMessage(`"` + eventType + `"`),
		"data": data,
	})
	if err != nil {
		t.Fatalf("Marshal envelope: %v", err)
	}
	if err := c.Write(ctx, websocket.MessageText, envelope); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestGatewayRejectsBadRequests(t *testing.T) {
	f := newHubFixture(t, &fakeGateway{responseScore: 0.9}, testSessionConfig())

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing token", f.srv.URL + "/?interviewId=iv1", http.StatusBadRequest},
		{"missing interview", f.srv.URL + "/?token=tok-interviewer", http.StatusBadRequest},
		{"bad token", f.srv.URL + "/?token=garbage&interviewId=iv1", http.StatusUnauthorized},
		{"resolution failure", f.srv.URL + "/?token=tok-broken&interviewId=iv1", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(tt.url)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}

	// No session side effects from rejected requests.
	if f.hub.registry.Size("iv1") != 0 {
		t.Error("Rejected connection leaked into the registry")
	}
}

func TestGatewaySessionFlow(t *testing.T) {
	gw := &fakeGateway{responseScore: 0.9, feedback: "strong candidate"}
	f := newHubFixture(t, gw, testSessionConfig())

	interviewer := f.dial(t, "tok-interviewer")
	info := expectEvent(t, interviewer, eventSessionInfo)

	var infoData struct {
		Participants []Participant `json:"participants"`
	}
	if err := json.Unmarshal(info.Data, &infoData); err != nil {
		t.Fatalf("Malformed session_info: %v", err)
	}
	if len(infoData.Participants) != 1 {
		t.Fatalf("Expected 1 participant in first session_info, got %d", len(infoData.Participants))
	}

	candidate := f.dial(t, "tok-candidate")
	candidateInfo := expectEvent(t, candidate, eventSessionInfo)
	if err := json.Unmarshal(candidateInfo.Data, &infoData); err != nil {
		t.Fatalf("Malformed session_info: %v", err)
	}
	if len(infoData.Participants) != 2 {
		t.Fatalf("Expected 2 participants in second session_info, got %d", len(infoData.Participants))
	}

	joined := expectEvent(t, interviewer, eventParticipantJoined)
	var presence presenceData
	if err := json.Unmarshal(joined.Data, &presence); err != nil {
		t.Fatalf("Malformed participant_joined: %v", err)
	}
	if presence.ID != "u2" {
		t.Errorf("Expected joiner u2, got %q", presence.ID)
	}

	// Start the interview.
	sendEvent(t, interviewer, inboundInterviewControl, controlPayload{Action: ActionStart})
	for _, c := range []*websocket.Conn{interviewer, candidate} {
		ev := expectEvent(t, c, eventInterviewControl)
		var ctrl controlData
		if err := json.Unmarshal(ev.Data, &ctrl); err != nil {
			t.Fatalf("Malformed control event: %v", err)
		}
		if ctrl.Action != ActionStart || ctrl.Status != domain.StatusOngoing {
			t.Errorf("Expected start/ongoing, got %s/%s", ctrl.Action, ctrl.Status)
		}
	}

	// A fragment crossing the word threshold reaches both peers, then the
	// triggered analysis result reaches both peers.
	sendEvent(t, candidate, inboundTranscriptUpdate, transcriptPayload{
		Transcript: words(210),
		IsResponse: true,
	})
	for _, c := range []*websocket.Conn{interviewer, candidate} {
		ev := expectEvent(t, c, eventTranscriptUpdated)
		var tu transcriptUpdatedData
		if err := json.Unmarshal(ev.Data, &tu); err != nil {
			t.Fatalf("Malformed transcript event: %v", err)
		}
		if tu.Source != domain.RoleCandidate {
			t.Errorf("Expected candidate source, got %s", tu.Source)
		}
		if got := len(strings.Fields(tu.Transcript)); got != 210 {
			t.Errorf("Expected 210-word fragment, got %d", got)
		}

		ev = expectEvent(t, c, eventAnalysisUpdated)
		var au analysisUpdatedData
		if err := json.Unmarshal(ev.Data, &au); err != nil {
			t.Fatalf("Malformed analysis event: %v", err)
		}
		if au.Analysis == nil || au.Analysis.Report == nil {
			t.Fatal("Expected an analysis snapshot")
		}
		if au.Metrics == nil || au.Metrics.TotalWords != 210 {
			t.Errorf("Expected metrics with 210 words, got %+v", au.Metrics)
		}
	}
	if got := gw.analyzeCalls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 analysis pass, got %d", got)
	}

	// End the interview: both peers receive the committed completion.
	sendEvent(t, interviewer, inboundInterviewControl, controlPayload{Action: ActionEnd})
	for _, c := range []*websocket.Conn{interviewer, candidate} {
		ev := expectEvent(t, c, eventInterviewControl)
		var ctrl controlData
		if err := json.Unmarshal(ev.Data, &ctrl); err != nil {
			t.Fatalf("Malformed control event: %v", err)
		}
		if ctrl.Status != domain.StatusCompleted {
			t.Errorf("Expected completed status, got %s", ctrl.Status)
		}
		if ctrl.Feedback != "strong candidate" {
			t.Errorf("Expected final feedback, got %q", ctrl.Feedback)
		}
	}

	if f.repo.status("iv1") != domain.StatusCompleted {
		t.Error("Expected completion persisted")
	}
	if f.agg.Active("iv1") {
		t.Error("Expected aggregation state discarded after end")
	}

	// Departure announcement.
	candidate.Close(websocket.StatusNormalClosure, "done")
	left := expectEvent(t, interviewer, eventParticipantLeft)
	if err := json.Unmarshal(left.Data, &presence); err != nil {
		t.Fatalf("Malformed participant_left: %v", err)
	}
	if presence.ID != "u2" {
		t.Errorf("Expected u2 to leave, got %q", presence.ID)
	}
}

func TestGatewayChatRelay(t *testing.T) {
	f := newHubFixture(t, &fakeGateway{responseScore: 0.9}, testSessionConfig())

	interviewer := f.dial(t, "tok-interviewer")
	expectEvent(t, interviewer, eventSessionInfo)
	candidate := f.dial(t, "tok-candidate")
	expectEvent(t, candidate, eventSessionInfo)
	expectEvent(t, interviewer, eventParticipantJoined)

	sendEvent(t, candidate, inboundChat, map[string]string{"text": "hello"})

	// Chat goes to the whole session, sender included.
	for _, c := range []*websocket.Conn{interviewer, candidate} {
		ev := expectEvent(t, c, inboundChat)
		var chat chatData
		if err := json.Unmarshal(ev.Data, &chat); err != nil {
			t.Fatalf("Malformed chat event: %v", err)
		}
		if chat.Sender.ID != "u2" {
			t.Errorf("Expected sender u2, got %q", chat.Sender.ID)
		}
	}
}

func TestGatewayCandidateCannotControl(t *testing.T) {
	f := newHubFixture(t, &fakeGateway{responseScore: 0.9}, testSessionConfig())

	candidate := f.dial(t, "tok-candidate")
	expectEvent(t, candidate, eventSessionInfo)

	sendEvent(t, candidate, inboundInterviewControl, controlPayload{Action: ActionStart})

	ev := expectEvent(t, candidate, eventError)
	if ev.Error == "" {
		t.Error("Expected an error message on the error event")
	}
	if f.repo.status("iv1") != domain.StatusScheduled {
		t.Error("Unauthorized control action mutated interview status")
	}
	if f.agg.Active("iv1") {
		t.Error("Unauthorized control action started a buffer")
	}
}

func TestGatewayTranscriptBeforeStart(t *testing.T) {
	f := newHubFixture(t, &fakeGateway{responseScore: 0.9}, testSessionConfig())

	candidate := f.dial(t, "tok-candidate")
	expectEvent(t, candidate, eventSessionInfo)

	// No buffer exists yet, so the update faults locally and nothing is
	// broadcast as a transcript.
	sendEvent(t, candidate, inboundTranscriptUpdate, transcriptPayload{Transcript: "hello", IsResponse: false})

	ev := expectEvent(t, candidate, eventError)
	if ev.Error == "" {
		t.Error("Expected an error message for an inactive session")
	}
}

func TestGatewayAnalysisErrorDoesNotDropConnection(t *testing.T) {
	gw := &fakeGateway{responseScore: 0.9}
	gw.setAnalyzeErr(fmt.Errorf("%w: gateway down", shared.ErrExternalService))
	f := newHubFixture(t, gw, testSessionConfig())

	interviewer := f.dial(t, "tok-interviewer")
	expectEvent(t, interviewer, eventSessionInfo)

	sendEvent(t, interviewer, inboundInterviewControl, controlPayload{Action: ActionStart})
	expectEvent(t, interviewer, eventInterviewControl)

	sendEvent(t, interviewer, inboundTranscriptUpdate, transcriptPayload{Transcript: words(210), IsResponse: false})

	// The fragment is still relayed, followed by an analysis_error instead
	// of an analysis result.
	expectEvent(t, interviewer, eventTranscriptUpdated)
	ev := expectEvent(t, interviewer, eventAnalysisError)
	if ev.Error == "" {
		t.Error("Expected an analysis_error message")
	}

	// The connection survives and later updates still work.
	gw.setAnalyzeErr(nil)
	sendEvent(t, interviewer, inboundTranscriptUpdate, transcriptPayload{Transcript: words(210), IsResponse: false})
	expectEvent(t, interviewer, eventTranscriptUpdated)
	expectEvent(t, interviewer, eventAnalysisUpdated)
}

func TestGatewayStatusUpdateExcludesSender(t *testing.T) {
	f := newHubFixture(t, &fakeGateway{responseScore: 0.9}, testSessionConfig())

	interviewer := f.dial(t, "tok-interviewer")
	expectEvent(t, interviewer, eventSessionInfo)
	candidate := f.dial(t, "tok-candidate")
	expectEvent(t, candidate, eventSessionInfo)
	expectEvent(t, interviewer, eventParticipantJoined)

	sendEvent(t, candidate, inboundStatusUpdate, statusPayload{Status: "away"})

	ev := expectEvent(t, interviewer, eventStatusUpdate)
	var status statusUpdateData
	if err := json.Unmarshal(ev.Data, &status); err != nil {
		t.Fatalf("Malformed status event: %v", err)
	}
	if status.UserID != "u2" || status.Status != "away" {
		t.Errorf("Expected away status from u2, got %+v", status)
	}

	// The sender must not see its own status echoed back. Send a chat next
	// and verify it is the candidate's next event.
	sendEvent(t, candidate, inboundChat, map[string]string{"text": "ping"})
	if ev := readEvent(t, candidate); ev.Type != inboundChat {
		t.Errorf("Expected chat as next candidate event, got %q", ev.Type)
	}
}

func TestGatewayHeartbeatEvictsUnresponsivePeer(t *testing.T) {
	cfg := testSessionConfig()
	cfg.HeartbeatInterval = 50 * time.Millisecond
	f := newHubFixture(t, &fakeGateway{responseScore: 0.9}, cfg)

	watcher := f.dial(t, "tok-interviewer")
	expectEvent(t, watcher, eventSessionInfo)

	// The silent peer never reads, so it never acknowledges pings.
	silent := f.dial(t, "tok-candidate")
	_ = silent

	expectEvent(t, watcher, eventParticipantJoined)

	// Eviction shows up as a departure to the surviving peer, promptly: the
	// teardown must not wait out a close handshake the dead peer will never
	// answer.
	start := time.Now()
	left := expectEvent(t, watcher, eventParticipantLeft)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Eviction took %v, expected prompt teardown", elapsed)
	}
	var presence presenceData
	if err := json.Unmarshal(left.Data, &presence); err != nil {
		t.Fatalf("Malformed participant_left: %v", err)
	}
	if presence.ID != "u2" {
		t.Errorf("Expected silent peer u2 evicted, got %q", presence.ID)
	}
}

func TestGatewayShutdown(t *testing.T) {
	f := newHubFixture(t, &fakeGateway{responseScore: 0.9}, testSessionConfig())

	c := f.dial(t, "tok-interviewer")
	expectEvent(t, c, eventSessionInfo)

	f.hub.Shutdown()

	// The open connection is closed with a restart status.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := c.Read(ctx); err != nil {
			if got := websocket.CloseStatus(err); got != websocket.StatusServiceRestart {
				t.Errorf("Expected close status %d, got %d (%v)", websocket.StatusServiceRestart, got, err)
			}
			break
		}
	}

	// New connections are refused outright.
	resp, err := http.Get(f.srv.URL + "/?token=tok-interviewer&interviewId=iv1")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 during shutdown, got %d", resp.StatusCode)
	}
}
