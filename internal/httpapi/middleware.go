package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	logMsgRequestHandled = "http request handled"
	logAttrRequestID     = "request_id"
	logAttrMethod        = "method"
	logAttrPath          = "path"
	logAttrStatus        = "status"
	logAttrDurationMS    = "duration_ms"

	headerOrigin           = "Origin"
	headerAllowOrigin      = "Access-Control-Allow-Origin"
	headerAllowMethods     = "Access-Control-Allow-Methods"
	headerAllowHeaders     = "Access-Control-Allow-Headers"
	headerAllowCredentials = "Access-Control-Allow-Credentials"
	headerVary             = "Vary"

	allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders = "Content-Type, Authorization"
)

type requestIDContextKey struct{}

// RequestIDFromContext returns the id assigned to the request by the
// logging middleware, or the empty string outside of a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLog assigns every request an id, propagates it through the
// request context, and logs the handled request with it.
func (h *Handler) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, requestID))

		if h.logger == nil {
			next.ServeHTTP(w, r)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		h.logger.Info(logMsgRequestHandled,
			logAttrRequestID, requestID,
			logAttrMethod, r.Method,
			logAttrPath, r.URL.Path,
			logAttrStatus, recorder.status,
			logAttrDurationMS, float64(time.Since(start).Microseconds())/1000,
		)
	})
}

// withCORS reflects allowed origins and answers preflight requests. With an
// empty allowlist every origin is reflected, for development setups.
func (h *Handler) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get(headerOrigin)

		if origin != "" && h.originAllowed(origin) {
			w.Header().Set(headerAllowOrigin, origin)
			w.Header().Set(headerAllowCredentials, "true")
			w.Header().Add(headerVary, headerOrigin)
		}

		if r.Method == http.MethodOptions {
			w.Header().Set(headerAllowMethods, allowedMethods)
			w.Header().Set(headerAllowHeaders, allowedHeaders)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) originAllowed(origin string) bool {
	if len(h.cors) == 0 {
		return true
	}

	for _, allowed := range h.cors {
		if allowed == origin {
			return true
		}
	}

	return false
}
