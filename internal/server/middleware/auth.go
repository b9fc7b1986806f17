// Package middleware provides HTTP middleware for admin authentication.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// actorIDKey is the context key for storing the authenticated actor ID.
const actorIDKey ContextKey = "actorID"

// TokenValidator is an interface for validating bearer tokens.
// This allows the middleware to work with any token service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (ActorIDGetter, error)
}

// ActorIDGetter is an interface for extracting the actor ID from token claims.
type ActorIDGetter interface {
	GetActorID() uuid.UUID
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the actor ID to the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Fields(r.Header.Get("Authorization"))
			// Handle case-insensitive "Bearer" prefix
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				unauthorized(w, "invalid bearer token")
				return
			}

			actorID := claims.GetActorID()
			if actorID == uuid.Nil {
				unauthorized(w, "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), actorIDKey, actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": message})
}

// GetActorID extracts the authenticated actor ID from the request context.
func GetActorID(r *http.Request) (uuid.UUID, error) {
	actorID, ok := r.Context().Value(actorIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("actor ID not found in request context")
	}
	return actorID, nil
}

// ActorIDKey returns the context key for the actor ID (for testing purposes).
func ActorIDKey() ContextKey {
	return actorIDKey
}
