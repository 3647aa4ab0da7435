package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/elmam/edge-gateway/internal/domain"
	"github.com/elmam/edge-gateway/internal/downstream"
)

const listEmployeesQuery = `query ListEmployees($account_id: uuid!) {
  list_employees_with_email(args: {p_account_id: $account_id}) {
    user_uid
    email
    role
    disabled
    created_at
  }
}`

const deleteClinicQuery = `mutation DeleteClinic($account_id: uuid!) {
  delete_accounts_by_pk(id: $account_id) {
    id
  }
}`

// AdminGraphQL is the query surface the admin handlers need.
type AdminGraphQL interface {
	Execute(ctx context.Context, query string, vars map[string]interface{}, cred downstream.Credential) (map[string]json.RawMessage, error)
}

// UserAdmin is the auth-service admin surface for direct user management.
type UserAdmin interface {
	GetUser(ctx context.Context, id string) (*downstream.AuthUser, error)
	UpdateUserMetadata(ctx context.Context, id string, metadata map[string]interface{}) error
}

// AccountAuthorizer extends the role gates with account-membership checks.
type AccountAuthorizer interface {
	Authorizer
	RequireMemberOfAccount(ctx context.Context, authCtx *domain.AuthContext, accountID string) error
}

type AdminHandler struct {
	graphql AdminGraphQL
	users   UserAdmin
	authz   AccountAuthorizer
}

func NewAdminHandler(graphql AdminGraphQL, users UserAdmin, authz AccountAuthorizer) *AdminHandler {
	return &AdminHandler{graphql: graphql, users: users, authz: authz}
}

type listEmployeesRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

type setUserRoleRequest struct {
	UserUID   string `json:"user_uid" validate:"required,uuid"`
	AccountID string `json:"account_id" validate:"required,uuid"`
	Role      string `json:"role" validate:"required,oneof=owner admin employee"`
}

type deleteClinicRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

// ListEmployees returns the account's employee roster. A super-admin may
// list any account; an owner or admin only their own.
func (h *AdminHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	var req listEmployeesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireMemberOfAccount(r.Context(), &authCtx, req.AccountID); err != nil {
		sendError(w, r, err)
		return
	}

	data, err := h.graphql.Execute(r.Context(), listEmployeesQuery,
		map[string]interface{}{"account_id": req.AccountID},
		downstream.Credential{AsAdmin: true})
	if err != nil {
		sendError(w, r, err)
		return
	}

	var employees []domain.Employee
	if raw, ok := data["list_employees_with_email"]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &employees); err != nil {
			sendError(w, r, err)
			return
		}
	}
	sort.Slice(employees, func(i, j int) bool {
		return employees[i].Email < employees[j].Email
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"employees": employees,
	})
}

// SetUserRole rewrites a user's account binding and role in the auth
// service's metadata. Super-admin only; a missing user is a 404, not a 500.
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req setUserRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireSuperAdmin(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}

	if _, err := h.users.GetUser(r.Context(), req.UserUID); err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			sendFailure(w, http.StatusNotFound, "user not found")
			return
		}
		sendError(w, r, err)
		return
	}

	err := h.users.UpdateUserMetadata(r.Context(), req.UserUID, map[string]interface{}{
		"account_id": req.AccountID,
		"role":       req.Role,
	})
	if err != nil {
		sendError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// DeleteClinic removes an account row. Cascades are the backend's concern.
func (h *AdminHandler) DeleteClinic(w http.ResponseWriter, r *http.Request) {
	var req deleteClinicRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireSuperAdmin(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}

	data, err := h.graphql.Execute(r.Context(), deleteClinicQuery,
		map[string]interface{}{"account_id": req.AccountID},
		downstream.Credential{AsAdmin: true})
	if err != nil {
		sendError(w, r, err)
		return
	}
	if len(data["delete_accounts_by_pk"]) == 0 || string(data["delete_accounts_by_pk"]) == "null" {
		sendFailure(w, http.StatusNotFound, "clinic not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}
