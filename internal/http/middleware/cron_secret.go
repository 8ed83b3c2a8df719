package middleware

import (
	"crypto/subtle"
	"net/http"
)

// CronSecretHeader carries the shared secret of external cron triggers.
const CronSecretHeader = "X-Cron-Secret"

// CronSecret rejects requests whose X-Cron-Secret header does not match
// secret. An empty secret rejects everything.
func CronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(CronSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
