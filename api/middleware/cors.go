package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000",        // local dev
	"https://ketoplan.app",         // storefront
	"https://admin.ketoplan.app",   // resolution console
	"https://staging.ketoplan.app", // staging storefront
}

// CORS returns middleware that applies the API's allowed origin policy.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   defaultCORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Webhook-Signature", "X-Webhook-Timestamp"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
