package models

// Role is a single membership in the clinic's role registry.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleReceptionist Role = "receptionist"
	RoleNurse        Role = "nurse"
	RoleDoctor       Role = "doctor"
	RolePatient      Role = "patient"
)

// RolePriority is the fixed order used to pick a primary role when an
// account holds several memberships. Administrative roles outrank clinical
// roles, which outrank the patient role.
var RolePriority = []Role{RoleAdmin, RoleReceptionist, RoleNurse, RoleDoctor, RolePatient}

// RoleSet is the raw membership map returned by the backend's check-role
// endpoint.
type RoleSet map[Role]bool

// SessionStatus tracks where the session is in its lifecycle.
type SessionStatus string

const (
	StatusLoggedOut      SessionStatus = "logged_out"
	StatusRestoring      SessionStatus = "restoring"
	StatusAuthenticating SessionStatus = "authenticating"
	StatusAuthenticated  SessionStatus = "authenticated"
	StatusFailed         SessionStatus = "failed"
)

// Session is the authenticated identity owned by the session manager.
// Token is non-empty exactly when Status is StatusAuthenticated.
type Session struct {
	Address             string        `json:"address,omitempty"`
	Token               string        `json:"token,omitempty"`
	Roles               RoleSet       `json:"roles,omitempty"`
	PrimaryRole         Role          `json:"primary_role,omitempty"`
	IsRegisteredPatient bool          `json:"is_registered_patient"`
	Status              SessionStatus `json:"status"`
}

// Authenticated reports whether the session holds a usable token.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != ""
}

// Challenge is a one-time login challenge. The nonce is opaque and
// server-issued; the message is derived deterministically from it and must
// match byte for byte what the backend recomputes during verification.
type Challenge struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// AuthProof is the signed challenge exchanged for a token. It is ephemeral
// and submitted exactly once.
type AuthProof struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

// NonceRequest is the body for POST /api/generate-nonce.
type NonceRequest struct {
	Address string `json:"address" validate:"required"`
}

// NonceResponse carries the server-issued one-time nonce.
type NonceResponse struct {
	Nonce string `json:"nonce"`
}

// VerifySignatureRequest is the body for POST /api/verify-signature.
type VerifySignatureRequest struct {
	Address   string `json:"address" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	Nonce     string `json:"nonce" validate:"required"`
}

// TokenResponse carries the bearer token minted after signature
// verification.
type TokenResponse struct {
	Token string `json:"token"`
}

// RoleCheckResponse is the body returned by GET /api/check-role.
type RoleCheckResponse struct {
	Roles RoleSet `json:"roles"`
}

// PatientVerifyResponse is the body returned by GET /api/patient/verify.
type PatientVerifyResponse struct {
	IsRegistered bool `json:"isRegistered"`
}

// RoleGrantRequest is the body for POST /api/admin/roles.
type RoleGrantRequest struct {
	Address string `json:"address" validate:"required"`
	Role    Role   `json:"role" validate:"required"`
}

// PatientRegisterRequest is the body for POST /api/patients.
type PatientRegisterRequest struct {
	Address  string `json:"address" validate:"required"`
	FullName string `json:"fullName,omitempty"`
	MyKadNo  string `json:"myKadNo,omitempty"`
}
