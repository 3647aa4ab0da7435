package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/elmam/edge-gateway/internal/domain"
	"github.com/elmam/edge-gateway/internal/provision"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, email, password string, op provision.Op, vars map[string]interface{}, authCtx domain.AuthContext) (*domain.OperationResult, error) {
	args := m.Called(ctx, email, password, op, vars, authCtx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OperationResult), args.Error(1)
}

type mockAuthz struct {
	mock.Mock
}

func (m *mockAuthz) RequireSuperAdmin(ctx context.Context, authCtx *domain.AuthContext) error {
	return m.Called(ctx, authCtx).Error(0)
}

func (m *mockAuthz) RequireOwner(ctx context.Context, authCtx *domain.AuthContext) error {
	return m.Called(ctx, authCtx).Error(0)
}

func (m *mockAuthz) RequirePaidPlan(ctx context.Context, authCtx *domain.AuthContext) error {
	return m.Called(ctx, authCtx).Error(0)
}

func postJSON(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestCreateEmployeeSuccess(t *testing.T) {
	runner := &mockRunner{}
	authz := &mockAuthz{}
	authz.On("RequireSuperAdmin", mock.Anything, mock.Anything).Return(nil)
	runner.On("Run", mock.Anything, "new@x.com", "secret12", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.OperationResult{Ok: true, AccountID: "acc-1", UserUID: "uid-1"}, nil)

	h := NewProvisionHandler(runner, authz)
	rec := postJSON(h.CreateEmployee, `{
		"account_id": "b3f1a2c4-0000-4000-8000-000000000001",
		"email": "  NEW@x.com ",
		"password": "secret12"
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope["ok"])
	assert.Equal(t, "acc-1", envelope["account_id"])
	runner.AssertExpectations(t)
}

func TestCreateEmployeeForbiddenWithoutSuperAdmin(t *testing.T) {
	runner := &mockRunner{}
	authz := &mockAuthz{}
	authz.On("RequireSuperAdmin", mock.Anything, mock.Anything).Return(domain.ErrForbidden)

	h := NewProvisionHandler(runner, authz)
	rec := postJSON(h.CreateEmployee, `{
		"account_id": "b3f1a2c4-0000-4000-8000-000000000001",
		"email": "new@x.com",
		"password": "secret12"
	}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, false, envelope["ok"])
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateEmployeeRejectsMissingFields(t *testing.T) {
	runner := &mockRunner{}
	authz := &mockAuthz{}

	h := NewProvisionHandler(runner, authz)
	rec := postJSON(h.CreateEmployee, `{"email": "new@x.com"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, false, envelope["ok"])
	authz.AssertNotCalled(t, "RequireSuperAdmin", mock.Anything, mock.Anything)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateEmployeeDomainFailureIs400(t *testing.T) {
	runner := &mockRunner{}
	authz := &mockAuthz{}
	authz.On("RequireSuperAdmin", mock.Anything, mock.Anything).Return(nil)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &domain.DomainError{Message: "account not found"})

	h := NewProvisionHandler(runner, authz)
	rec := postJSON(h.CreateEmployee, `{
		"account_id": "b3f1a2c4-0000-4000-8000-000000000001",
		"email": "new@x.com",
		"password": "secret12"
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, false, envelope["ok"])
	assert.Equal(t, "account not found", envelope["error"])
}

func TestCreateOwnerRunsAsAdmin(t *testing.T) {
	runner := &mockRunner{}
	authz := &mockAuthz{}
	authz.On("RequireSuperAdmin", mock.Anything, mock.Anything).Return(nil)
	runner.On("Run", mock.Anything, "owner@x.com", "secret12",
		mock.MatchedBy(func(op provision.Op) bool {
			return op.AsAdmin && op.Name == "admin_create_owner_full" && op.IdentityVar == "owner_uid"
		}), mock.Anything, mock.Anything).
		Return(&domain.OperationResult{Ok: true, AccountID: "acc-new"}, nil)

	h := NewProvisionHandler(runner, authz)
	rec := postJSON(h.CreateOwner, `{
		"clinic_name": "North Clinic",
		"owner_email": "Owner@X.com",
		"owner_password": "secret12"
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	runner.AssertExpectations(t)
}

func TestOwnerCreateEmployeeRequiresPaidPlan(t *testing.T) {
	runner := &mockRunner{}
	authz := &mockAuthz{}
	authz.On("RequireOwner", mock.Anything, mock.Anything).Return(nil)
	authz.On("RequirePaidPlan", mock.Anything, mock.Anything).Return(domain.ErrPlanRequired)

	h := NewProvisionHandler(runner, authz)
	rec := postJSON(h.OwnerCreateEmployee, `{"email": "e@x.com", "password": "secret12"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOwnerCreateEmployeeUsesCallerCredential(t *testing.T) {
	runner := &mockRunner{}
	authz := &mockAuthz{}
	authz.On("RequireOwner", mock.Anything, mock.Anything).Return(nil)
	authz.On("RequirePaidPlan", mock.Anything, mock.Anything).Return(nil)
	runner.On("Run", mock.Anything, "e@x.com", "secret12",
		mock.MatchedBy(func(op provision.Op) bool {
			return !op.AsAdmin && op.AdminFallback && op.Name == "owner_create_employee_within_limit"
		}), mock.Anything, mock.Anything).
		Return(&domain.OperationResult{Ok: true}, nil)

	h := NewProvisionHandler(runner, authz)
	rec := postJSON(h.OwnerCreateEmployee, `{"email": "e@x.com", "password": "secret12"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	runner.AssertExpectations(t)
}

func TestOwnerRequestExtraSkipsPlanGate(t *testing.T) {
	runner := &mockRunner{}
	authz := &mockAuthz{}
	authz.On("RequireOwner", mock.Anything, mock.Anything).Return(nil)
	runner.On("Run", mock.Anything, "e@x.com", "secret12",
		mock.MatchedBy(func(op provision.Op) bool {
			return op.Name == "owner_request_extra_employee"
		}), mock.Anything, mock.Anything).
		Return(&domain.OperationResult{Ok: true}, nil)

	h := NewProvisionHandler(runner, authz)
	rec := postJSON(h.OwnerRequestExtraEmployee, `{"email": "e@x.com", "password": "secret12"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	authz.AssertNotCalled(t, "RequirePaidPlan", mock.Anything, mock.Anything)
}

func TestMalformedBodyIs400(t *testing.T) {
	h := NewProvisionHandler(&mockRunner{}, &mockAuthz{})
	rec := postJSON(h.CreateEmployee, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, false, envelope["ok"])
}
