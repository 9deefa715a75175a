// Package middleware provides HTTP middleware for the OTC voice desk API.
package middleware

import "net/http"

// CORS returns middleware that handles CORS headers for the browser frontend.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin and non-browser requests carry no Origin header;
			// they need no CORS headers at all.
			allowed := false
			explicit := false
			if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						allowed = true
						explicit = true
						break
					}
					if o == "*" {
						allowed = true
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				// Only allow credentials for explicit origins, not wildcard
				// matches. Allow-Credentials on a wildcard-echoed origin
				// enables CSRF.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
