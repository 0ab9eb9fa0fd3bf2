package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORS lets browser clients on allowOrigins call the inventory routes. A
// "*" anywhere in the list allows any origin; the caller's origin is
// reflected back.
// Preflight requests are answered here with 204.
func CORS(allowOrigins []string) func(http.Handler) http.Handler {
	allowAll := slices.ContainsFunc(allowOrigins, func(o string) bool {
		return strings.TrimSpace(o) == "*"
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			writeCORSHeaders(w, origin, allowOrigins, allowAll)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeCORSHeaders(w http.ResponseWriter, origin string, allowOrigins []string, allowAll bool) {
	if origin == "" {
		return
	}
	w.Header().Add("Vary", "Origin")
	if !allowAll && !originAllowed(origin, allowOrigins) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
	w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
}

func originAllowed(origin string, allow []string) bool {
	for _, a := range allow {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(origin)) {
			return true
		}
	}
	return false
}
