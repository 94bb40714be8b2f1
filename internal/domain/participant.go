package domain

// Role describes what a session participant is allowed to do.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
	RoleAdmin       Role = "admin"
)

// Identity is a verified participant identity resolved from a bearer credential.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Role        Role   `json:"role"`
}

// CanSubmitTranscript reports whether the role may push transcript fragments.
func (r Role) CanSubmitTranscript() bool {
	return r == RoleInterviewer || r == RoleCandidate
}

// CanControlInterview reports whether the role may issue control actions and
// analysis overrides.
func (r Role) CanControlInterview() bool {
	return r == RoleInterviewer
}
