package api

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the bcrypt hash BasicAuth checks against.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// BasicAuth admits requests carrying the admin's HTTP Basic credentials.
func BasicAuth(username string, passwordHash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
				bcrypt.CompareHashAndPassword(passwordHash, []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="feedbackdesk"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
