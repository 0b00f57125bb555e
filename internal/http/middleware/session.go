package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// LoginPath is where requests without a live session are sent.
const LoginPath = "/login"

// SessionChecker reports whether the operator is signed in.
type SessionChecker interface {
	CheckSession(ctx context.Context) bool
}

// RequireSession gates routes on a client credential issued by tokens and a
// live operator session. Browsers get a 303 to the login page; JSON clients
// get 401 with the redirect target.
func RequireSession(checker SessionChecker, tokens *ClientTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens != nil && checker != nil {
				claims, err := tokens.FromRequest(r)
				if err == nil && checker.CheckSession(r.Context()) {
					ctx := context.WithValue(r.Context(), clientClaimsKey{}, claims)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			if wantsJSON(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"redirect": LoginPath})
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		})
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
