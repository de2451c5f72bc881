// Package middleware holds the HTTP middleware of the API server.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// AuthConfig configures SharedSecretAuth.
type AuthConfig struct {
	// Secret is the bearer token callers must present.  An empty secret
	// rejects every request.
	Secret string

	// SkipPaths bypass the check.
	SkipPaths []string
}

type authErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SharedSecretAuth guards the job endpoints that an external cron calls.
// The token is compared in constant time.
func SharedSecretAuth(cfg AuthConfig, logger logging.Logger) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	secret := []byte(cfg.Secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok || len(secret) == 0 || subtle.ConstantTimeCompare([]byte(token), secret) != 1 {
				logger.Warn("rejected unauthenticated job request",
					logging.String("path", r.URL.Path),
					logging.String("remote_addr", r.RemoteAddr),
					logging.Bool("token_present", ok),
				)
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="jobs"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(authErrorBody{
		Code:    string(errors.ErrCodeUnauthorized),
		Message: "unauthorized",
	})
}
