package www

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// You can disable this when running unit tests
var EnableRateLimiting = true

// LimitByIP allows at most maxRequests from one client IP per window.
// Excess requests get a 429 Too Many Requests.
func LimitByIP(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	if !EnableRateLimiting {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(maxRequests, window, httprate.WithKeyFuncs(httprate.KeyByIP))
}
