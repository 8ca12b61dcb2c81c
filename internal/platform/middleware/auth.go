package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	UserID   int64
	Email    string
	LenderID *int64
}

type contextKeyUserID struct{}
type contextKeyLenderID struct{}

// Context keys exported for use in handlers.
var (
	ContextKeyUserID   = contextKeyUserID{}
	ContextKeyLenderID = contextKeyLenderID{}
)

// GetUserID retrieves the authenticated user id from the context.
func GetUserID(ctx context.Context) int64 {
	id, ok := ctx.Value(ContextKeyUserID).(int64)
	if !ok {
		return 0
	}
	return id
}

// GetLenderID retrieves the authenticated user's lender, nil for admins.
func GetLenderID(ctx context.Context) *int64 {
	id, ok := ctx.Value(ContextKeyLenderID).(*int64)
	if !ok {
		return nil
	}
	return id
}

// RequireAuth guards lender and admin routes with a bearer token.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, r, logger, "missing token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w, r, logger, "invalid token")
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ContextKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextKeyLenderID, claims.LenderID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"error":"unauthorized"}`)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write unauthorized response", "error", err, "reason", reason)
	}
}
