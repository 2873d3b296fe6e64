package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/libraryops/circulation-go/circulation"
)

var jsonCodec = jsoniter.ConfigFastest

const (
	logMsgWriteResponseFailed = "failed to write http response"
	logMsgInternalError       = "request failed with store error"
	logAttrError              = "error"
)

type errorEnvelope struct {
	Error string `json:"error"`
}

type successEnvelope struct {
	Success bool `json:"success"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if encodeErr := jsonCodec.NewEncoder(w).Encode(payload); encodeErr != nil {
		h.logError(logMsgWriteResponseFailed, logAttrError, encodeErr.Error())
	}
}

// writeError maps the circulation error taxonomy onto HTTP status codes.
// Store failures surface as a generic 500 without leaking internal detail;
// the logged failure carries the request id for correlation.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, circulation.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: err.Error()})

	case errors.Is(err, circulation.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorEnvelope{Error: err.Error()})

	case errors.Is(err, circulation.ErrConflict):
		h.writeJSON(w, http.StatusConflict, errorEnvelope{Error: err.Error()})

	case errors.Is(err, circulation.ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: err.Error()})

	default:
		h.logError(logMsgInternalError,
			logAttrError, err.Error(),
			logAttrRequestID, RequestIDFromContext(r.Context()))
		h.writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: "internal server error"})
	}
}

func decodeJSON(r *http.Request, target any) error {
	if decodeErr := jsonCodec.NewDecoder(r.Body).Decode(target); decodeErr != nil {
		return fmt.Errorf("%w: malformed request body", circulation.ErrValidation)
	}

	return nil
}

// pathID parses the {id} path segment of the request route.
func pathID(r *http.Request) (int64, error) {
	id, parseErr := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("%w: invalid id in path", circulation.ErrValidation)
	}

	return id, nil
}

func (h *Handler) logError(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Error(msg, args...)
	}
}
