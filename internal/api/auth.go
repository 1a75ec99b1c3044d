package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ernie/matchrunner/internal/auth"
)

type claimsKey struct{}

// requireAdmin lets only admin tokens through and hands their claims to
// the handler through the request context
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		bearer, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
		claims := r.validate(bearer)
		switch {
		case !ok || claims == nil:
			writeError(w, http.StatusUnauthorized, "authentication required")
		case !claims.IsAdmin:
			writeError(w, http.StatusForbidden, "admin access required")
		default:
			next(w, req.WithContext(context.WithValue(req.Context(), claimsKey{}, claims)))
		}
	}
}

// operator names whoever the admin middleware let through
func operator(req *http.Request) string {
	if claims, ok := req.Context().Value(claimsKey{}).(*auth.Claims); ok {
		return claims.Operator
	}
	return ""
}

// validate returns nil for anything but a live token signed with our secret
func (r *Router) validate(token string) *auth.Claims {
	if r.auth == nil || token == "" {
		return nil
	}
	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		return nil
	}
	return claims
}
