package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/webitel/im-support-service/internal/domain/model"
)

// Identity headers set by the upstream gateway. Browsers cannot attach
// headers to a WebSocket handshake, so the same keys are accepted as query
// parameters there.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
	HeaderName   = "X-User-Name"

	QueryUserID = "user_id"
	QueryRole   = "role"
	QueryName   = "name"
)

var ErrMissing = errors.New("identity: missing user id or role")

type ctxKey struct{}

func WithIdentity(ctx context.Context, id model.UserIdentity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (model.UserIdentity, bool) {
	id, ok := ctx.Value(ctxKey{}).(model.UserIdentity)
	return id, ok
}

// Parse reads the caller identity from headers, then from the query string.
func Parse(r *http.Request) (model.UserIdentity, error) {
	rawID := r.Header.Get(HeaderUserID)
	rawRole := r.Header.Get(HeaderRole)
	name := r.Header.Get(HeaderName)

	if rawID == "" && rawRole == "" {
		q := r.URL.Query()
		rawID, rawRole, name = q.Get(QueryUserID), q.Get(QueryRole), q.Get(QueryName)
	}
	if rawID == "" || rawRole == "" {
		return model.UserIdentity{}, ErrMissing
	}

	id, err := model.ParseUserID(rawID)
	if err != nil {
		return model.UserIdentity{}, fmt.Errorf("identity: %w", err)
	}
	role, err := model.ParseRole(rawRole)
	if err != nil {
		return model.UserIdentity{}, fmt.Errorf("identity: %w", err)
	}

	return model.UserIdentity{ID: id, Role: role, DisplayName: strings.TrimSpace(name)}, nil
}

// Middleware rejects requests without a valid identity with 401.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := Parse(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRole lets only the listed roles through; others get 403.
// It must run after Middleware.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				http.Error(w, ErrMissing.Error(), http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, model.ErrRoleMismatch.Error(), http.StatusForbidden)
		})
	}
}
