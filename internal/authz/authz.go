// Package authz resolves what a caller is allowed to do. Role facts always
// come from the backend, queried under the caller's own credential; the
// verified token only tells us who is asking.
package authz

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/elmam/edge-gateway/internal/domain"
	"github.com/elmam/edge-gateway/internal/downstream"
)

const (
	superAdminQuery = `query { fn_is_super_admin_gql { user_uid is_super_admin } }`
	profileQuery    = `query { my_profile { role account_id } }`
	paidPlanQuery   = `query { fn_account_is_paid }`

	// uploaderQuery resolves both facts in one round trip; either grants.
	uploaderQuery = `query { fn_is_super_admin_gql { is_super_admin } my_profile { role account_id } }`
)

// GraphQLAPI is the slice of the GraphQL client the resolver needs.
type GraphQLAPI interface {
	Execute(ctx context.Context, query string, vars map[string]interface{}, cred downstream.Credential) (map[string]json.RawMessage, error)
}

type Resolver struct {
	graphql GraphQLAPI
}

func NewResolver(graphql GraphQLAPI) *Resolver {
	return &Resolver{graphql: graphql}
}

type superAdminRow struct {
	UserUID      string `json:"user_uid"`
	IsSuperAdmin *bool  `json:"is_super_admin"`
}

type profileRow struct {
	Role      string `json:"role"`
	AccountID string `json:"account_id"`
}

// RequireSuperAdmin fails with ErrForbidden unless the caller is listed as
// a platform super admin.
func (r *Resolver) RequireSuperAdmin(ctx context.Context, authCtx *domain.AuthContext) error {
	data, err := r.graphql.Execute(ctx, superAdminQuery, nil, downstream.Credential{Bearer: authCtx.Bearer})
	if err != nil {
		return err
	}
	if !decodeSuperAdmin(data["fn_is_super_admin_gql"]) {
		return domain.ErrForbidden
	}
	authCtx.IsSuperAdmin = true
	return nil
}

// RequireOwner fails with ErrForbidden unless the caller's profile role is
// owner. On success the caller's role and account id are filled in.
func (r *Resolver) RequireOwner(ctx context.Context, authCtx *domain.AuthContext) error {
	if err := r.resolveProfile(ctx, authCtx); err != nil {
		return err
	}
	if strings.ToLower(authCtx.Role) != "owner" {
		return domain.ErrForbidden
	}
	return nil
}

// RequireUploader grants super admins, and owners or admins of an account.
// For the latter the account id is attached to the context so uploads can
// be tagged with it.
func (r *Resolver) RequireUploader(ctx context.Context, authCtx *domain.AuthContext) error {
	data, err := r.graphql.Execute(ctx, uploaderQuery, nil, downstream.Credential{Bearer: authCtx.Bearer})
	if err != nil {
		return err
	}
	if decodeSuperAdmin(data["fn_is_super_admin_gql"]) {
		authCtx.IsSuperAdmin = true
		return nil
	}

	var profile profileRow
	found, err := downstream.DecodeRow(data["my_profile"], &profile)
	if err != nil {
		return err
	}
	role := strings.ToLower(profile.Role)
	if found && (role == "owner" || role == "admin") && strings.TrimSpace(profile.AccountID) != "" {
		authCtx.Role = role
		authCtx.AccountID = profile.AccountID
		return nil
	}
	return domain.ErrForbidden
}

// RequireMemberOfAccount grants super admins, and owners or admins whose
// profile belongs to accountID.
func (r *Resolver) RequireMemberOfAccount(ctx context.Context, authCtx *domain.AuthContext, accountID string) error {
	err := r.RequireUploader(ctx, authCtx)
	if err != nil {
		return err
	}
	if authCtx.IsSuperAdmin {
		return nil
	}
	if authCtx.AccountID != accountID {
		return domain.ErrForbidden
	}
	return nil
}

// RequirePaidPlan fails with ErrPlanRequired unless the caller's account is
// on a paid plan. Distinct from ErrForbidden so clients can route the user
// to billing instead of showing a permissions error.
func (r *Resolver) RequirePaidPlan(ctx context.Context, authCtx *domain.AuthContext) error {
	data, err := r.graphql.Execute(ctx, paidPlanQuery, nil, downstream.Credential{Bearer: authCtx.Bearer})
	if err != nil {
		return err
	}
	var paid bool
	if err := json.Unmarshal(data["fn_account_is_paid"], &paid); err != nil || !paid {
		return domain.ErrPlanRequired
	}
	return nil
}

func (r *Resolver) resolveProfile(ctx context.Context, authCtx *domain.AuthContext) error {
	data, err := r.graphql.Execute(ctx, profileQuery, nil, downstream.Credential{Bearer: authCtx.Bearer})
	if err != nil {
		return err
	}
	var profile profileRow
	found, err := downstream.DecodeRow(data["my_profile"], &profile)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrForbidden
	}
	authCtx.Role = strings.ToLower(profile.Role)
	authCtx.AccountID = profile.AccountID
	return nil
}

// decodeSuperAdmin accepts both shapes the backend has used: a row with an
// explicit is_super_admin flag, and a bare row whose presence grants.
func decodeSuperAdmin(raw json.RawMessage) bool {
	var row superAdminRow
	found, err := downstream.DecodeRow(raw, &row)
	if err != nil || !found {
		return false
	}
	if row.IsSuperAdmin != nil {
		return *row.IsSuperAdmin
	}
	return true
}
