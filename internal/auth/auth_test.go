package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hirelens/hirelens/internal/domain"
	"github.com/hirelens/hirelens/internal/shared"
)

type stubRepo struct {
	interviews map[string]*domain.Interview
}

func (s *stubRepo) GetInterview(_ context.Context, id string) (*domain.Interview, error) {
	return s.interviews[id], nil
}

func (s *stubRepo) CreateInterview(context.Context, *domain.Interview) error { return nil }
func (s *stubRepo) UpdateInterview(context.Context, *domain.Interview) error { return nil }
func (s *stubRepo) UpdateStatus(context.Context, string, domain.Status) error {
	return nil
}
func (s *stubRepo) SaveAnalysis(context.Context, string, string, *domain.AnalysisSnapshot) error {
	return nil
}
func (s *stubRepo) ListInterviews(context.Context, string) ([]*domain.Interview, error) {
	return nil, nil
}
func (s *stubRepo) Ping(context.Context) error { return nil }
func (s *stubRepo) Close() error               { return nil }

func newTestVerifier() *Verifier {
	repo := &stubRepo{interviews: map[string]*domain.Interview{
		"iv1": {ID: "iv1", CandidateName: "Ada Lovelace", Status: domain.StatusScheduled},
	}}
	return NewVerifier("test-secret", repo)
}

func TestVerifyIdentityToken(t *testing.T) {
	v := newTestVerifier()

	token, err := v.IssueIdentityToken(&domain.Identity{
		ID:          "u1",
		DisplayName: "Iris",
		Role:        domain.RoleInterviewer,
	}, time.Hour)
	if err != nil {
		t.Fatalf("IssueIdentityToken failed: %v", err)
	}

	identity, err := v.VerifyForInterview(context.Background(), token, "iv1")
	if err != nil {
		t.Fatalf("VerifyForInterview failed: %v", err)
	}
	if identity.ID != "u1" || identity.DisplayName != "Iris" || identity.Role != domain.RoleInterviewer {
		t.Errorf("Unexpected identity: %+v", identity)
	}
}

func TestVerifyCandidateToken(t *testing.T) {
	v := newTestVerifier()

	token, err := v.IssueCandidateToken("iv1", "Ada Lovelace", time.Hour)
	if err != nil {
		t.Fatalf("IssueCandidateToken failed: %v", err)
	}

	identity, err := v.VerifyForInterview(context.Background(), token, "iv1")
	if err != nil {
		t.Fatalf("VerifyForInterview failed: %v", err)
	}

	// Candidate identity comes from the interview record, not the claims.
	if identity.ID != "candidate-iv1" {
		t.Errorf("Expected derived id candidate-iv1, got %q", identity.ID)
	}
	if identity.DisplayName != "Ada Lovelace" {
		t.Errorf("Expected display name from the record, got %q", identity.DisplayName)
	}
	if identity.Role != domain.RoleCandidate {
		t.Errorf("Expected candidate role, got %q", identity.Role)
	}
}

func TestVerifyCandidateTokenWrongInterview(t *testing.T) {
	v := newTestVerifier()

	token, err := v.IssueCandidateToken("iv2", "Ada Lovelace", time.Hour)
	if err != nil {
		t.Fatalf("IssueCandidateToken failed: %v", err)
	}

	if _, err := v.VerifyForInterview(context.Background(), token, "iv1"); !errors.Is(err, shared.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication for interview mismatch, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v := newTestVerifier()

	token, err := v.IssueCandidateToken("iv1", "Ada Lovelace", -time.Minute)
	if err != nil {
		t.Fatalf("IssueCandidateToken failed: %v", err)
	}

	if _, err := v.VerifyForInterview(context.Background(), token, "iv1"); !errors.Is(err, shared.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication for expired token, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	other := NewVerifier("different-secret", &stubRepo{})
	token, err := other.IssueIdentityToken(&domain.Identity{
		ID:   "u1",
		Role: domain.RoleInterviewer,
	}, time.Hour)
	if err != nil {
		t.Fatalf("IssueIdentityToken failed: %v", err)
	}

	v := newTestVerifier()
	if _, err := v.VerifyForInterview(context.Background(), token, "iv1"); !errors.Is(err, shared.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication for wrong secret, got %v", err)
	}
}

func TestVerifyUnknownRole(t *testing.T) {
	v := newTestVerifier()

	token, err := v.IssueIdentityToken(&domain.Identity{
		ID:   "u1",
		Role: domain.Role("superuser"),
	}, time.Hour)
	if err != nil {
		t.Fatalf("IssueIdentityToken failed: %v", err)
	}

	if _, err := v.VerifyForInterview(context.Background(), token, "iv1"); !errors.Is(err, shared.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication for unknown role, got %v", err)
	}
}

func TestVerifyGarbageCredential(t *testing.T) {
	v := newTestVerifier()
	if _, err := v.VerifyForInterview(context.Background(), "not-a-token", "iv1"); !errors.Is(err, shared.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication for garbage input, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	v := newTestVerifier()

	var seen *domain.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := v.Middleware()(next)

	identityToken, err := v.IssueIdentityToken(&domain.Identity{
		ID:          "u1",
		DisplayName: "Iris",
		Role:        domain.RoleInterviewer,
	}, time.Hour)
	if err != nil {
		t.Fatalf("IssueIdentityToken failed: %v", err)
	}
	candidateToken, err := v.IssueCandidateToken("iv1", "Ada Lovelace", time.Hour)
	if err != nil {
		t.Fatalf("IssueCandidateToken failed: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid identity token", "Bearer " + identityToken, http.StatusOK},
		{"candidate token rejected", "Bearer " + candidateToken, http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", identityToken, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/interviews", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK {
				if seen == nil || seen.ID != "u1" {
					t.Errorf("Expected identity u1 in context, got %+v", seen)
				}
			} else if seen != nil {
				t.Error("Rejected request should not reach the handler")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireRole(domain.RoleInterviewer, domain.RoleAdmin)(next)

	tests := []struct {
		name     string
		identity *domain.Identity
		want     int
	}{
		{"interviewer allowed", &domain.Identity{ID: "u1", Role: domain.RoleInterviewer}, http.StatusOK},
		{"admin allowed", &domain.Identity{ID: "u2", Role: domain.RoleAdmin}, http.StatusOK},
		{"candidate forbidden", &domain.Identity{ID: "u3", Role: domain.RoleCandidate}, http.StatusForbidden},
		{"no identity", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/interviews", nil)
			if tt.identity != nil {
				req = req.WithContext(context.WithValue(req.Context(), identityKey, tt.identity))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
