package middleware

import (
	"net/http"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/google/uuid"
)

const TraceHeader = "X-Trace-ID"

// RequestID reuses an inbound X-Trace-ID or mints one, echoes it on the
// response and binds it to the request context and logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = uuid.NewString()
		}

		ctx := internal.ContextWithTraceID(r.Context(), traceID)
		ctx = logger.With(ctx, "traceID", traceID)

		w.Header().Set(TraceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
