package downstream

import (
	"errors"
	"io"
	"net/http"

	"github.com/elmam/edge-gateway/internal/domain"
)

var (
	ErrTimeout     = errors.New("backend_timeout")
	ErrUnavailable = errors.New("backend_unavailable")
)

// upstreamError drains the response body into a domain.UpstreamError so the
// backend's status and message pass through to the caller unchanged.
func upstreamError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &domain.UpstreamError{
		Op:     op,
		Status: resp.StatusCode,
		Body:   string(body),
	}
}
