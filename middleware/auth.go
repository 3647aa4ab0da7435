package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	UserEmailKey   contextKey = "user_email"
	BearerTokenKey contextKey = "bearer_token"
)

// Auth verifies the bearer token with the shared HS256 secret and stores the
// caller's id, email and raw header in the context. Every route behind it
// requires a credential: a missing or unverifiable token is rejected before
// any backend call happens. Claims are never trusted unverified.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthenticated(w, "missing authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				unauthenticated(w, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				unauthenticated(w, "invalid token")
				return
			}

			uidStr := hasuraUserID(claims)
			if uidStr == "" {
				uidStr, _ = claims["sub"].(string)
			}
			uid, err := uuid.Parse(uidStr)
			if err != nil {
				unauthenticated(w, "invalid token")
				return
			}
			email, _ := claims["email"].(string)

			ctx := context.WithValue(r.Context(), UserIDKey, uid)
			ctx = context.WithValue(ctx, UserEmailKey, strings.ToLower(email))
			ctx = context.WithValue(ctx, BearerTokenKey, authHeader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// hasuraUserID reads the user id from the Hasura claims namespace when present.
func hasuraUserID(claims jwt.MapClaims) string {
	ns, ok := claims["https://hasura.io/jwt/claims"].(map[string]interface{})
	if !ok {
		return ""
	}
	uid, _ := ns["x-hasura-user-id"].(string)
	return uid
}

func unauthenticated(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": msg})
}

func GetUserID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetUserEmail(ctx context.Context) string {
	email, ok := ctx.Value(UserEmailKey).(string)
	if !ok {
		return ""
	}
	return email
}

func GetBearerToken(ctx context.Context) string {
	token, ok := ctx.Value(BearerTokenKey).(string)
	if !ok {
		return ""
	}
	return token
}
