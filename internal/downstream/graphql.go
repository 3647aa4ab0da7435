package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GraphQLClient posts {query, variables} documents to the Hasura-shaped
// endpoint. Credential selection is per call: the caller's own bearer for
// tenant-scoped operations, the admin secret for service-level ones.
type GraphQLClient struct {
	Endpoint    string
	AdminSecret string
	HTTPClient  *Client
}

func NewGraphQLClient(endpoint, adminSecret string) *GraphQLClient {
	return &GraphQLClient{
		Endpoint:    endpoint,
		AdminSecret: adminSecret,
		HTTPClient:  NewClient(DefaultClientConfig()),
	}
}

// Credential selects how a GraphQL call authenticates.
type Credential struct {
	// Bearer is the caller's full Authorization header value.
	Bearer string
	// AsAdmin sends the admin secret instead of the bearer. When Role is
	// set it is forwarded as the effective Hasura role.
	AsAdmin bool
	Role    string
}

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
}

// RequestError is a GraphQL-level failure (the errors[] array), as opposed
// to a transport failure.
type RequestError struct {
	Messages []string
	Codes    []string
}

func (e *RequestError) Error() string {
	return strings.Join(e.Messages, " | ")
}

// IsAuthz reports whether the failure looks authorization-shaped: a
// permission error code, or Hasura hiding a field the role cannot see.
func (e *RequestError) IsAuthz() bool {
	for _, code := range e.Codes {
		switch code {
		case "permission-error", "access-denied", "permission-denied":
			return true
		}
	}
	for _, msg := range e.Messages {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "permission") ||
			(strings.Contains(lower, "field") && strings.Contains(lower, "not found in type")) {
			return true
		}
	}
	return false
}

// Contains reports whether any error message carries fragment.
func (e *RequestError) Contains(fragment string) bool {
	for _, msg := range e.Messages {
		if strings.Contains(strings.ToLower(msg), strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

// Execute runs one GraphQL document and returns the data fields keyed by
// root selection name. A non-empty errors[] array fails the call.
func (c *GraphQLClient) Execute(ctx context.Context, query string, vars map[string]interface{}, cred Credential) (map[string]json.RawMessage, error) {
	payload, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if cred.AsAdmin {
		headers["x-hasura-admin-secret"] = c.AdminSecret
		if cred.Role != "" {
			headers["x-hasura-role"] = cred.Role
		}
	} else if cred.Bearer != "" {
		headers["Authorization"] = cred.Bearer
	}

	resp, err := c.HTTPClient.DoWithBody(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload), headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError("graphql", resp)
	}

	var out gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("graphql: decode response: %w", err)
	}

	if len(out.Errors) > 0 {
		reqErr := &RequestError{}
		for _, e := range out.Errors {
			reqErr.Messages = append(reqErr.Messages, e.Message)
			reqErr.Codes = append(reqErr.Codes, e.Extensions.Code)
		}
		return nil, reqErr
	}

	return out.Data, nil
}

// DecodeRow normalizes a root field into out: the first element when the
// backend returns a set-returning function's array, the object itself when
// it returns a single row. Returns false when there is nothing to decode.
func DecodeRow(raw json.RawMessage, out interface{}) (bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}
	if trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return false, err
		}
		if len(rows) == 0 {
			return false, nil
		}
		return true, json.Unmarshal(rows[0], out)
	}
	return true, json.Unmarshal(trimmed, out)
}
