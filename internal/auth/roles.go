package auth

import (
	"context"
	"fmt"

	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

// Resolution is the outcome of mapping a raw role-membership set onto a
// single primary role. RegistrationCheckErr carries a failed patient
// registration check; the failure is treated as "not registered" rather
// than propagated as fatal, but is reported so callers can surface it.
type Resolution struct {
	Roles                models.RoleSet
	PrimaryRole          models.Role
	IsRegisteredPatient  bool
	RegistrationCheckErr error
}

// RoleResolver maps role memberships to a primary role using the fixed
// priority order and validates patient registration.
type RoleResolver struct {
	api *client.Client
}

// NewRoleResolver creates a resolver over the given API client. The client
// must carry the session's bearer token.
func NewRoleResolver(api *client.Client) *RoleResolver {
	return &RoleResolver{api: api}
}

// Resolve fetches the membership set and selects the primary role: the
// first role in priority order for which membership is true. An account
// holding multiple roles is therefore never ambiguous. A patient-role
// holder without a patient record is demoted to no usable role.
func (r *RoleResolver) Resolve(ctx context.Context) (*Resolution, error) {
	roleResp, err := r.api.CheckRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching role memberships: %w", err)
	}

	res := &Resolution{
		Roles:       roleResp.Roles,
		PrimaryRole: PrimaryRole(roleResp.Roles),
	}

	if res.PrimaryRole != models.RolePatient {
		return res, nil
	}

	patientResp, err := r.api.VerifyPatient(ctx)
	if err != nil {
		// Fail closed: an unverifiable patient is treated as unregistered.
		log.Warnw("patient registration check failed", "error", err)
		res.PrimaryRole = ""
		res.IsRegisteredPatient = false
		res.RegistrationCheckErr = fmt.Errorf("%w: %v", ErrRegistrationCheckFailed, err)
		return res, nil
	}

	res.IsRegisteredPatient = patientResp.IsRegistered
	if !patientResp.IsRegistered {
		res.PrimaryRole = ""
	}

	return res, nil
}

// PrimaryRole picks the highest-priority held role, or "" when none is
// held.
func PrimaryRole(roles models.RoleSet) models.Role {
	for _, role := range models.RolePriority {
		if roles[role] {
			return role
		}
	}
	return ""
}
