package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	"slaledger/internal/platform/net/middleware"
)

// CommonStack returns the baseline middleware slice of the report server
func CommonStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		// tracing / correlation
		middleware.RequestID(),
		middleware.RealIP(),

		// safety
		middleware.RecoverJSON,

		// cache / freshness
		middleware.NoCache(),

		// observability
		middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 500 * time.Millisecond}),

		// read-only api
		middleware.CORS(middleware.CORSOptions{AllowedMethods: []string{"GET", "HEAD", "OPTIONS"}}),
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/health"),
		middleware.Throttle(64),
		middleware.StripSlashes(),
		middleware.Timeout(30 * time.Second),
	}
}
