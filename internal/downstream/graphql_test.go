package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elmam/edge-gateway/internal/domain"
)

func TestExecuteAdminCredentialSetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-hasura-admin-secret"))
		assert.Equal(t, "admin", r.Header.Get("x-hasura-role"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"rows":[]}}`))
	}))
	defer srv.Close()

	c := NewGraphQLClient(srv.URL, "secret")
	data, err := c.Execute(context.Background(), `query { rows }`, nil, Credential{AsAdmin: true, Role: "admin"})

	require.NoError(t, err)
	assert.Contains(t, data, "rows")
}

func TestExecuteBearerCredentialPassesHeaderThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer caller-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("x-hasura-admin-secret"))
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewGraphQLClient(srv.URL, "secret")
	_, err := c.Execute(context.Background(), `query { x }`, nil, Credential{Bearer: "Bearer caller-token"})

	assert.NoError(t, err)
}

func TestExecuteErrorsBecomeRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[
			{"message":"Auth user not found","extensions":{"code":"unexpected"}},
			{"message":"second failure","extensions":{"code":"permission-error"}}
		]}`))
	}))
	defer srv.Close()

	c := NewGraphQLClient(srv.URL, "secret")
	_, err := c.Execute(context.Background(), `mutation { m }`, nil, Credential{AsAdmin: true})

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.True(t, reqErr.Contains("auth user not found"))
	assert.True(t, reqErr.IsAuthz())
	assert.Contains(t, reqErr.Error(), "second failure")
}

func TestExecuteNon200IsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("gateway exploded"))
	}))
	defer srv.Close()

	c := NewGraphQLClient(srv.URL, "secret")
	_, err := c.Execute(context.Background(), `query { x }`, nil, Credential{AsAdmin: true})

	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusBadGateway, ue.Status)
}

func TestRequestErrorAuthzDetection(t *testing.T) {
	assert.True(t, (&RequestError{Codes: []string{"access-denied"}}).IsAuthz())
	assert.True(t, (&RequestError{Messages: []string{"field 'secret_table' not found in type: 'mutation_root'"}}).IsAuthz())
	assert.False(t, (&RequestError{Messages: []string{"constraint violation"}}).IsAuthz())
}

func TestDecodeRowShapes(t *testing.T) {
	type row struct {
		Ok bool `json:"ok"`
	}

	var r row
	found, err := DecodeRow(json.RawMessage(`[{"ok":true},{"ok":false}]`), &r)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, r.Ok)

	r = row{}
	found, err = DecodeRow(json.RawMessage(`{"ok":true}`), &r)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, r.Ok)

	found, err = DecodeRow(json.RawMessage(`[]`), &r)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = DecodeRow(json.RawMessage(`null`), &r)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = DecodeRow(nil, &r)
	require.NoError(t, err)
	assert.False(t, found)
}
