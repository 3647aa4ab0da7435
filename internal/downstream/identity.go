package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/elmam/edge-gateway/internal/domain"
)

// IdentityClient talks to the auth service's admin user API. The service is
// the system of record: users created here are not owned by the gateway
// beyond the compensating delete in a failed provisioning flow.
type IdentityClient struct {
	BaseURL     string
	AdminSecret string
	HTTPClient  *Client
}

func NewIdentityClient(baseURL, adminSecret string) *IdentityClient {
	return &IdentityClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AdminSecret: adminSecret,
		HTTPClient:  NewClient(DefaultClientConfig()),
	}
}

// AuthUser is the auth service's user record as we read it back.
type AuthUser struct {
	ID       string                 `json:"id"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"metadata"`
}

type userList struct {
	Users []AuthUser `json:"users"`
}

// adminEndpoints lists the plausible shapes of the admin users endpoint, in
// probe order. Hosted deployments differ on whether the base URL already
// carries /v1; a 404 on one shape falls through to the next.
func (c *IdentityClient) adminEndpoints() []string {
	raw := strings.TrimRight(c.BaseURL, "/")
	root := strings.TrimSuffix(raw, "/v1")
	seen := map[string]bool{}
	var out []string
	for _, e := range []string{
		raw + "/admin/users",
		root + "/admin/users",
		root + "/v1/admin/users",
	} {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

func (c *IdentityClient) adminHeaders() map[string]string {
	return map[string]string{
		"Content-Type":          "application/json",
		"x-hasura-admin-secret": c.AdminSecret,
		"Authorization":         "Bearer " + c.AdminSecret,
	}
}

// CreateUser attempts to create an identity for email. A 409 means the
// identity already exists and is resolved by lookup on the same endpoint.
// The returned Identity may carry an empty ID when the auth service accepted
// the creation without echoing the record; callers resolve that by lookup.
func (c *IdentityClient) CreateUser(ctx context.Context, email, password string) (*domain.Identity, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"email":         email,
		"password":      password,
		"emailVerified": true,
		"active":        true,
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, endpoint := range c.adminEndpoints() {
		resp, err := c.HTTPClient.DoWithBody(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), c.adminHeaders())
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			lastErr = upstreamError("auth create", resp)
			resp.Body.Close()
			continue

		case resp.StatusCode == http.StatusConflict:
			resp.Body.Close()
			id, err := c.lookupByEmail(ctx, endpoint, email)
			if err != nil {
				if isNotFoundUpstream(err) {
					lastErr = err
					continue
				}
				return nil, err
			}
			return &domain.Identity{ID: id, Email: email, WasCreated: false}, nil

		case resp.StatusCode >= 300:
			defer resp.Body.Close()
			return nil, upstreamError("auth create", resp)
		}

		var created AuthUser
		err = json.NewDecoder(resp.Body).Decode(&created)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("auth create: decode response: %w", err)
		}
		return &domain.Identity{ID: created.ID, Email: email, WasCreated: true}, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &domain.ConfigError{Missing: "auth admin endpoint"}
}

// LookupByEmail resolves an identity id across the candidate endpoints.
func (c *IdentityClient) LookupByEmail(ctx context.Context, email string) (string, error) {
	var lastErr error
	for _, endpoint := range c.adminEndpoints() {
		id, err := c.lookupByEmail(ctx, endpoint, email)
		if err != nil {
			if isNotFoundUpstream(err) {
				lastErr = err
				continue
			}
			return "", err
		}
		return id, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", domain.ErrIdentityNotFound
}

func (c *IdentityClient) lookupByEmail(ctx context.Context, endpoint, email string) (string, error) {
	resp, err := c.HTTPClient.Get(ctx, endpoint+"?email="+url.QueryEscape(email), c.adminHeaders())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", upstreamError("auth lookup", resp)
	}

	var list userList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("auth lookup: decode response: %w", err)
	}
	if len(list.Users) == 0 || list.Users[0].ID == "" {
		return "", domain.ErrIdentityNotFound
	}
	return list.Users[0].ID, nil
}

// DeleteUser removes an identity, probing endpoint shapes until one answers
// with anything but 404. Used only as a compensating action.
func (c *IdentityClient) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	var lastErr error
	for _, endpoint := range c.adminEndpoints() {
		resp, err := c.HTTPClient.DoWithBody(ctx, http.MethodDelete, endpoint+"/"+id, nil, c.adminHeaders())
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			lastErr = upstreamError("auth delete", resp)
			resp.Body.Close()
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return upstreamError("auth delete", resp)
		}
		return nil
	}
	return lastErr
}

// GetUser fetches an identity by id.
func (c *IdentityClient) GetUser(ctx context.Context, id string) (*AuthUser, error) {
	var lastErr error
	for _, endpoint := range c.adminEndpoints() {
		resp, err := c.HTTPClient.Get(ctx, endpoint+"/"+id, c.adminHeaders())
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			lastErr = domain.ErrIdentityNotFound
			continue
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, upstreamError("auth get user", resp)
		}

		var user AuthUser
		err = json.NewDecoder(resp.Body).Decode(&user)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("auth get user: decode response: %w", err)
		}
		return &user, nil
	}
	return nil, lastErr
}

// UpdateUserMetadata merges metadata into an identity's record. The read-
// modify-write is not atomic; role assignment is idempotent so a lost update
// is repaired by re-running the operation.
func (c *IdentityClient) UpdateUserMetadata(ctx context.Context, id string, metadata map[string]interface{}) error {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return err
	}

	merged := map[string]interface{}{}
	for k, v := range user.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}

	payload, err := json.Marshal(map[string]interface{}{"metadata": merged})
	if err != nil {
		return err
	}

	for _, endpoint := range c.adminEndpoints() {
		resp, err := c.HTTPClient.DoWithBody(ctx, http.MethodPut, endpoint+"/"+id, bytes.NewReader(payload), c.adminHeaders())
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return upstreamError("auth update user", resp)
		}
		return nil
	}
	return domain.ErrIdentityNotFound
}

// isNotFoundUpstream reports whether err is an UpstreamError with status 404.
func isNotFoundUpstream(err error) bool {
	var ue *domain.UpstreamError
	return errors.As(err, &ue) && ue.Status == http.StatusNotFound
}
