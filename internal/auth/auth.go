// Package auth verifies and issues the bearer credentials used by the hub.
//
// Two credential shapes exist: a general identity token carrying the user's
// own id, name, and role, and a short-lived interview-scoped candidate token
// whose identity is derived from the interview record it names.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hirelens/hirelens/internal/domain"
	"github.com/hirelens/hirelens/internal/shared"
	"github.com/hirelens/hirelens/internal/store"
)

const candidateTokenType = "candidate"

type claims struct {
	jwt.RegisteredClaims
	TokenType     string `json:"token_type,omitempty"`
	InterviewID   string `json:"interview_id,omitempty"`
	CandidateName string `json:"candidate_name,omitempty"`
	DisplayName   string `json:"name,omitempty"`
	Role          string `json:"role,omitempty"`
}

// Verifier resolves bearer credentials into participant identities.
type Verifier struct {
	secret []byte
	repo   store.Repository
}

// NewVerifier creates a Verifier backed by the given signing secret.
func NewVerifier(secret string, repo store.Repository) *Verifier {
	return &Verifier{secret: []byte(secret), repo: repo}
}

func (v *Verifier) parse(credential string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(credential, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthentication, err)
	}
	return &c, nil
}

// VerifyForInterview resolves a credential presented on a connection request
// targeting the given interview. Candidate tokens must name that interview;
// their identity is derived from the interview record and the role is always
// candidate. General tokens carry role and identity in their own claims.
func (v *Verifier) VerifyForInterview(ctx context.Context, credential, interviewID string) (*domain.Identity, error) {
	c, err := v.parse(credential)
	if err != nil {
		return nil, err
	}

	if c.TokenType == candidateTokenType {
		if c.InterviewID != interviewID {
			return nil, fmt.Errorf("%w: credential not valid for this interview", shared.ErrAuthentication)
		}
		iv, err := v.repo.GetInterview(ctx, c.InterviewID)
		if err != nil {
			return nil, fmt.Errorf("resolve candidate interview: %w", err)
		}
		if iv == nil {
			return nil, fmt.Errorf("%w: unknown interview", shared.ErrAuthentication)
		}
		return &domain.Identity{
			ID:          "candidate-" + iv.ID,
			DisplayName: iv.CandidateName,
			Role:        domain.RoleCandidate,
		}, nil
	}

	role := domain.Role(c.Role)
	switch role {
	case domain.RoleInterviewer, domain.RoleAdmin, domain.RoleCandidate:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrAuthentication, c.Role)
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", shared.ErrAuthentication)
	}

	return &domain.Identity{
		ID:          c.Subject,
		DisplayName: c.DisplayName,
		Role:        role,
	}, nil
}

// IssueIdentityToken signs a general identity credential.
func (v *Verifier) IssueIdentityToken(id *domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		DisplayName: id.DisplayName,
		Role:        string(id.Role),
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign identity token: %w", err)
	}
	return signed, nil
}

// IssueCandidateToken signs a short-lived credential scoped to one interview.
func (v *Verifier) IssueCandidateToken(interviewID, candidateName string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType:     candidateTokenType,
		InterviewID:   interviewID,
		CandidateName: candidateName,
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign candidate token: %w", err)
	}
	return signed, nil
}

type contextKey int

const identityKey contextKey = iota

// IdentityFromContext extracts the verified identity from the request context.
func IdentityFromContext(ctx context.Context) *domain.Identity {
	if v, ok := ctx.Value(identityKey).(*domain.Identity); ok {
		return v
	}
	return nil
}

// Middleware authenticates REST requests from an Authorization bearer header.
// Candidate tokens are not accepted here; they are only valid on the session
// WebSocket endpoint.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			credential, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || credential == "" {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			c, err := v.parse(credential)
			if err != nil || c.TokenType == candidateTokenType || c.Subject == "" {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			identity := &domain.Identity{
				ID:          c.Subject,
				DisplayName: c.DisplayName,
				Role:        domain.Role(c.Role),
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole wraps a handler and rejects identities outside the given roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if identity.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"insufficient privileges"}`, http.StatusForbidden)
		})
	}
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, shared.ErrAuthentication)
}
