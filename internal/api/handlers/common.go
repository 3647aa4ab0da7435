package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/elmam/edge-gateway/internal/domain"
	"github.com/elmam/edge-gateway/internal/logger"
	"github.com/elmam/edge-gateway/middleware"
)

var validate = validator.New()

// writeJSON writes any payload with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendFailure writes the {ok:false, error} envelope.
func sendFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": message})
}

// sendError maps an error from the flow to the envelope. The mapping is the
// single source of truth for status codes; handlers only add per-route
// overrides (e.g. 404 for a missing user on the role route).
func sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var domainErr *domain.DomainError
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrPlanRequired):
		status = http.StatusForbidden
	case errors.As(err, &domainErr):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request_failed")
	}
	sendFailure(w, status, err.Error())
}

// decodeBody parses and validates a JSON request body into dst.
// Returns false after writing a 400 when the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		sendFailure(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		sendFailure(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "missing or invalid fields: " + strings.Join(fields, ", ")
}

// callerContext builds the per-request authorization context from what the
// auth middleware verified.
func callerContext(r *http.Request) domain.AuthContext {
	return domain.AuthContext{
		UserID: middleware.GetUserID(r.Context()).String(),
		Email:  middleware.GetUserEmail(r.Context()),
		Bearer: middleware.GetBearerToken(r.Context()),
	}
}

// normalizeEmail applies the natural-key normalization used everywhere an
// email identifies an identity.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
