package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antonbillionaire/staffix/internal/messaging/telegram"
)

// TelegramSecret rejects webhook updates whose secret token header does not
// match the token derived for the {businessID} route parameter. An empty
// secret rejects everything.
func TelegramSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			want := telegram.WebhookSecretToken(secret, strings.TrimSpace(chi.URLParam(r, "businessID")))
			got := r.Header.Get(telegram.SecretTokenHeader)
			if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
