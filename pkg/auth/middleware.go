package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Middleware requires "Authorization: Bearer <credential>" and stores the
// verified identity on the request context.
func Middleware(v Verifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			cred, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || cred == "" {
				unauthorized(w, "missing bearer credential")
				return
			}
			id, err := v.Verify(r.Context(), cred)
			if err != nil {
				unauthorized(w, "invalid credential")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
