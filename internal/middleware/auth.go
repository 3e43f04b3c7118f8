package middleware

import (
	"context"
	"net/http"
	"strings"

	"umbrella-admin/internal/model"
)

type subjectSource interface {
	ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error)
	Subject(ctx context.Context, id string) (*model.Subject, error)
}

type contextKey string

const (
	authClaimsContextKey contextKey = "auth_claims"
	subjectContextKey    contextKey = "subject"
)

type AuthMiddleware struct {
	source subjectSource
}

func NewAuthMiddleware(source subjectSource) *AuthMiddleware {
	return &AuthMiddleware{source: source}
}

// RequireAuth validates the bearer token and loads the subject it names,
// with its current grants, into the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeUnauthorized(w, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		token := strings.TrimSpace(header[7:])
		claims, err := m.source.ValidateToken(token, "access")
		if err != nil {
			writeUnauthorized(w, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		subject, err := m.source.Subject(r.Context(), claims.UserID)
		if err != nil {
			writeUnauthorized(w, "UNAUTHORIZED", "account no longer exists")
			return
		}

		noteUsername(r.Context(), subject.Username)

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		ctx = context.WithValue(ctx, subjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := SubjectFromContext(r.Context())
		if !ok {
			writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
			return
		}
		if !subject.Superuser {
			writeUnauthorized(w, "FORBIDDEN", "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

func SubjectFromContext(ctx context.Context) (*model.Subject, bool) {
	subject, ok := ctx.Value(subjectContextKey).(*model.Subject)
	return subject, ok && subject != nil
}

// WithSubject stores subject in ctx the way RequireAuth does.
func WithSubject(ctx context.Context, subject *model.Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

func writeUnauthorized(w http.ResponseWriter, code string, message string) {
	status := http.StatusUnauthorized
	if code == "FORBIDDEN" {
		status = http.StatusForbidden
	}
	writeFailure(w, status, code, message)
}
