package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/avx-core/internal/controller"
	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/remote"
	"github.com/nerrad567/avx-core/internal/sequencer"
	"github.com/nerrad567/avx-core/internal/version"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes the error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, remote.ErrorResponse{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, remote.CodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, remote.CodeNotFound, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, remote.CodeUnavailable, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, remote.CodeInternal, message)
}

// statusFor maps a controller error onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, remote.ErrObjectNotFound):
		return http.StatusNotFound, remote.CodeNotFound
	case errors.Is(err, device.ErrDuplicateDeviceID), errors.Is(err, controller.ErrDuplicateSlave):
		return http.StatusConflict, remote.CodeConflict
	case errors.Is(err, version.ErrVersionMismatch):
		return http.StatusConflict, remote.CodeVersionMismatch
	case errors.Is(err, device.ErrUnknownDeviceType),
		errors.Is(err, device.ErrInvalidDescription),
		errors.Is(err, device.ErrMethodNotSupported),
		errors.Is(err, sequencer.ErrInvalidEvent),
		errors.Is(err, controller.ErrConfig):
		return http.StatusBadRequest, remote.CodeBadRequest
	case errors.Is(err, controller.ErrHTTPDisabled),
		errors.Is(err, controller.ErrSlaveUnreachable),
		errors.Is(err, device.ErrNotInitialised),
		errors.Is(err, sequencer.ErrNotRunning),
		errors.Is(err, sequencer.ErrQueueFull):
		return http.StatusServiceUnavailable, remote.CodeUnavailable
	default:
		return http.StatusInternalServerError, remote.CodeInternal
	}
}

// writeControllerError writes err with the status statusFor picks. Only
// internal errors are logged; not found and bad input are the caller's problem.
func (s *Server) writeControllerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeError(w, status, code, err.Error())
}
