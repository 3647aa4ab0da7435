package provision

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/elmam/edge-gateway/internal/domain"
	"github.com/elmam/edge-gateway/internal/downstream"
	"github.com/elmam/edge-gateway/internal/logger"
)

// transientFragment marks the one failure class worth an in-place retry:
// the domain database has not seen the freshly created auth user yet.
const transientFragment = "auth user not found"

// IdentityAPI is the slice of the auth admin client the coordinator needs.
type IdentityAPI interface {
	CreateUser(ctx context.Context, email, password string) (*domain.Identity, error)
	LookupByEmail(ctx context.Context, email string) (string, error)
	DeleteUser(ctx context.Context, id string) error
}

// GraphQLAPI executes one GraphQL document with an explicit credential.
type GraphQLAPI interface {
	Execute(ctx context.Context, query string, vars map[string]interface{}, cred downstream.Credential) (map[string]json.RawMessage, error)
}

// Op configures one provisioning call site: which mutation to run and how
// it authenticates. The coordinator itself is operation-agnostic.
type Op struct {
	// Name is the root selection the result row is read from.
	Name string
	// Query is the full mutation document.
	Query string
	// AsAdmin runs the mutation with the admin secret from the start
	// (platform-level operations).
	AsAdmin bool
	// AdminFallback allows one retry with the admin secret after the
	// caller's own credential failed for authorization reasons. Never the
	// first attempt.
	AdminFallback bool
	// IdentityVar names the variable the ensured identity's id is bound
	// to before the mutation runs.
	IdentityVar string
}

// Coordinator runs the create-or-get identity flow followed by a privileged
// domain mutation, rolling back an identity it created when the mutation
// fails. It holds no state between requests.
type Coordinator struct {
	identity    IdentityAPI
	graphql     GraphQLAPI
	lookupPoll  RetryPolicy
	domainRetry RetryPolicy
}

func NewCoordinator(identity IdentityAPI, graphql GraphQLAPI, lookupPoll, domainRetry RetryPolicy) *Coordinator {
	return &Coordinator{
		identity:    identity,
		graphql:     graphql,
		lookupPoll:  lookupPoll,
		domainRetry: domainRetry,
	}
}

// EnsureIdentity makes exactly one identity exist for email. A conflict is
// resolved by lookup; a creation the auth service accepted without echoing
// an id is resolved by polling lookup until the record becomes visible.
func (c *Coordinator) EnsureIdentity(ctx context.Context, email, password string) (*domain.Identity, error) {
	ident, err := c.identity.CreateUser(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if ident.ID == "" {
		id, err := c.pollLookup(ctx, email)
		if err != nil {
			return nil, err
		}
		ident.ID = id
	}
	return ident, nil
}

// pollLookup retries lookup-by-email on a fixed interval until the identity
// is visible or the policy is exhausted.
func (c *Coordinator) pollLookup(ctx context.Context, email string) (string, error) {
	attempts := c.lookupPoll.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := c.lookupPoll.sleep(ctx); err != nil {
				return "", err
			}
		}
		id, err := c.identity.LookupByEmail(ctx, email)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrIdentityNotFound) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// InvokeDomainOperation runs op's mutation. One retry after a fixed delay
// when the failure is the transient "identity not visible yet" class; one
// elevated retry with the admin secret when the caller's credential was
// rejected for authorization reasons and op allows it.
func (c *Coordinator) InvokeDomainOperation(ctx context.Context, op Op, vars map[string]interface{}, authCtx domain.AuthContext) (*domain.OperationResult, error) {
	cred := downstream.Credential{Bearer: authCtx.Bearer}
	if op.AsAdmin {
		cred = downstream.Credential{AsAdmin: true}
	}

	data, err := c.graphql.Execute(ctx, op.Query, vars, cred)

	var reqErr *downstream.RequestError
	if err != nil && errors.As(err, &reqErr) && reqErr.Contains(transientFragment) {
		if serr := c.domainRetry.sleep(ctx); serr != nil {
			return nil, err
		}
		logger.Ctx(ctx).Warn().Str("op", op.Name).Msg("retrying after transient identity visibility failure")
		data, err = c.graphql.Execute(ctx, op.Query, vars, cred)
	}

	if err != nil && !cred.AsAdmin && op.AdminFallback && errors.As(err, &reqErr) && reqErr.IsAuthz() {
		logger.Ctx(ctx).Warn().Str("op", op.Name).Str("caller", authCtx.UserID).
			Msg("caller credential rejected, retrying elevated")
		data, err = c.graphql.Execute(ctx, op.Query, vars, downstream.Credential{AsAdmin: true, Role: "admin"})
	}

	if err != nil {
		return nil, err
	}

	result := &domain.OperationResult{}
	found, err := downstream.DecodeRow(data[op.Name], result)
	if err != nil {
		return nil, err
	}
	if !found {
		result = &domain.OperationResult{Ok: false, Error: "no data"}
	}

	if !result.Ok {
		return result, &domain.DomainError{Message: result.Error}
	}
	return result, nil
}

// Run is the whole provisioning flow: ensure the identity, run the domain
// mutation, and when the mutation fails for an identity created in this
// request, delete it again. The delete is advisory cleanup, not a
// transaction: a crash between the two steps still leaks the identity.
func (c *Coordinator) Run(ctx context.Context, email, password string, op Op, vars map[string]interface{}, authCtx domain.AuthContext) (*domain.OperationResult, error) {
	ident, err := c.EnsureIdentity(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if op.IdentityVar != "" {
		if vars == nil {
			vars = map[string]interface{}{}
		}
		vars[op.IdentityVar] = ident.ID
	}

	result, err := c.InvokeDomainOperation(ctx, op, vars, authCtx)
	if err != nil {
		if ident.WasCreated {
			// Cleanup must survive a caller disconnect mid-flow.
			cleanupCtx := context.WithoutCancel(ctx)
			if derr := c.identity.DeleteUser(cleanupCtx, ident.ID); derr != nil {
				logger.Ctx(ctx).Warn().Err(derr).Str("identity", ident.ID).
					Msg("compensating delete failed")
			}
		}
		return nil, err
	}
	return result, nil
}
