package handlers

import (
	"context"
	"net/http"

	"github.com/elmam/edge-gateway/internal/domain"
	"github.com/elmam/edge-gateway/internal/provision"
)

const adminCreateEmployeeQuery = `mutation CreateEmployee($account_id: uuid!, $user_uid: uuid!, $email: String!) {
  admin_create_employee_full(args: {p_account_id: $account_id, p_user_uid: $user_uid, p_email: $email}) {
    ok
    error
    account_id
    user_uid
    role
  }
}`

const adminCreateOwnerQuery = `mutation CreateOwner($clinic_name: String!, $owner_uid: uuid!, $owner_email: String!) {
  admin_create_owner_full(args: {p_clinic_name: $clinic_name, p_owner_uid: $owner_uid, p_owner_email: $owner_email}) {
    ok
    error
    account_id
    owner_uid
  }
}`

const ownerCreateEmployeeQuery = `mutation OwnerCreateEmployee($user_uid: uuid!, $email: String!) {
  owner_create_employee_within_limit(args: {p_user_uid: $user_uid, p_email: $email}) {
    ok
    error
    account_id
    user_uid
    role
  }
}`

const ownerRequestExtraQuery = `mutation OwnerRequestExtra($user_uid: uuid!, $email: String!) {
  owner_request_extra_employee(args: {p_user_uid: $user_uid, p_email: $email}) {
    ok
    error
    account_id
    user_uid
    role
  }
}`

// ProvisionRunner is the coordinator surface the handlers drive.
type ProvisionRunner interface {
	Run(ctx context.Context, email, password string, op provision.Op, vars map[string]interface{}, authCtx domain.AuthContext) (*domain.OperationResult, error)
}

// Authorizer resolves per-request role gates against the domain backend.
type Authorizer interface {
	RequireSuperAdmin(ctx context.Context, authCtx *domain.AuthContext) error
	RequireOwner(ctx context.Context, authCtx *domain.AuthContext) error
	RequirePaidPlan(ctx context.Context, authCtx *domain.AuthContext) error
}

type ProvisionHandler struct {
	runner ProvisionRunner
	authz  Authorizer
}

func NewProvisionHandler(runner ProvisionRunner, authz Authorizer) *ProvisionHandler {
	return &ProvisionHandler{runner: runner, authz: authz}
}

type createEmployeeRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

type createOwnerRequest struct {
	ClinicName    string `json:"clinic_name" validate:"required"`
	OwnerEmail    string `json:"owner_email" validate:"required,email"`
	OwnerPassword string `json:"owner_password" validate:"required,min=8"`
}

type ownerEmployeeRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// CreateEmployee provisions an employee into an arbitrary account. Platform
// operation: gated on super-admin, mutation runs with the admin secret.
func (h *ProvisionHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req createEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireSuperAdmin(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}

	op := provision.Op{
		Name:        "admin_create_employee_full",
		Query:       adminCreateEmployeeQuery,
		AsAdmin:     true,
		IdentityVar: "user_uid",
	}
	vars := map[string]interface{}{
		"account_id": req.AccountID,
		"email":      normalizeEmail(req.Email),
	}

	result, err := h.runner.Run(r.Context(), normalizeEmail(req.Email), req.Password, op, vars, authCtx)
	if err != nil {
		sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateOwner bootstraps a clinic with its owning user. Super-admin only.
func (h *ProvisionHandler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireSuperAdmin(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}

	op := provision.Op{
		Name:        "admin_create_owner_full",
		Query:       adminCreateOwnerQuery,
		AsAdmin:     true,
		IdentityVar: "owner_uid",
	}
	vars := map[string]interface{}{
		"clinic_name": req.ClinicName,
		"owner_email": normalizeEmail(req.OwnerEmail),
	}

	result, err := h.runner.Run(r.Context(), normalizeEmail(req.OwnerEmail), req.OwnerPassword, op, vars, authCtx)
	if err != nil {
		sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// OwnerCreateEmployee provisions an employee into the caller's own account.
// The mutation runs with the caller's credential so the backend enforces the
// seat limit against the right account; a transient authz rejection may be
// retried elevated since the gate already passed here.
func (h *ProvisionHandler) OwnerCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req ownerEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireOwner(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}
	if err := h.authz.RequirePaidPlan(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}

	op := provision.Op{
		Name:          "owner_create_employee_within_limit",
		Query:         ownerCreateEmployeeQuery,
		AdminFallback: true,
		IdentityVar:   "user_uid",
	}
	vars := map[string]interface{}{
		"email": normalizeEmail(req.Email),
	}

	result, err := h.runner.Run(r.Context(), normalizeEmail(req.Email), req.Password, op, vars, authCtx)
	if err != nil {
		sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// OwnerRequestExtraEmployee provisions an employee past the plan's included
// seats. Owner gate only, the backend records the extra-seat request.
func (h *ProvisionHandler) OwnerRequestExtraEmployee(w http.ResponseWriter, r *http.Request) {
	var req ownerEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireOwner(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}

	op := provision.Op{
		Name:          "owner_request_extra_employee",
		Query:         ownerRequestExtraQuery,
		AdminFallback: true,
		IdentityVar:   "user_uid",
	}
	vars := map[string]interface{}{
		"email": normalizeEmail(req.Email),
	}

	result, err := h.runner.Run(r.Context(), normalizeEmail(req.Email), req.Password, op, vars, authCtx)
	if err != nil {
		sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
