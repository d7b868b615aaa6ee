package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"scrumdeck/internal/db/repository"
	"scrumdeck/internal/domain"
)

type actorKey struct{}

// WithActor stores the authenticated actor in the context.
func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}

// APIKeyLookup resolves an API key hash to a principal.
type APIKeyLookup interface {
	LookupPrincipalByAPIKeyHash(ctx context.Context, keyHash string) (*repository.APIKeyPrincipal, error)
}

// AuthConfig controls the Auth middleware.
type AuthConfig struct {
	JWTSecret    []byte
	NameClaim    string       // JWT claim carrying the principal name, default "sub"
	APIKeys      APIKeyLookup // nil disables API key auth
	APIKeyHeader string       // default "X-API-Key"
}

// Auth authenticates each request, trying a JWT bearer token first and an
// API key second, and stores the resulting actor in the context. Requests
// that satisfy neither get 401. Admin status comes from the "admin" claim
// for JWTs and from the key record for API keys.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	nameClaim := cfg.NameClaim
	if nameClaim == "" {
		nameClaim = "sub"
	}
	keyHeader := cfg.APIKeyHeader
	if keyHeader == "" {
		keyHeader = "X-API-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor, ok := actorFromBearer(r, cfg.JWTSecret, nameClaim); ok {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
				return
			}

			if key := r.Header.Get(keyHeader); key != "" && cfg.APIKeys != nil {
				sum := sha256.Sum256([]byte(key))
				p, err := cfg.APIKeys.LookupPrincipalByAPIKeyHash(r.Context(), hex.EncodeToString(sum[:]))
				if err == nil {
					actor := domain.Actor{Name: p.Name, Admin: p.IsAdmin}
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":    401,
				"message": "unauthorized: provide a valid JWT bearer token or API key",
			})
		})
	}
}

func actorFromBearer(r *http.Request, secret []byte, nameClaim string) (domain.Actor, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return domain.Actor{}, false
	}

	token, err := jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Actor{}, false
	}
	name, ok := claims[nameClaim].(string)
	if !ok || name == "" {
		return domain.Actor{}, false
	}

	admin, _ := claims["admin"].(bool)
	return domain.Actor{Name: name, Admin: admin}, true
}
