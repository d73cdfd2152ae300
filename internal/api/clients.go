package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/avx-core/internal/remote"
	"github.com/nerrad567/avx-core/internal/sequencer"
)

func (s *Server) handleListClients(w http.ResponseWriter, _ *http.Request) {
	clients := s.ctrl.Broadcaster().Clients()
	writeJSON(w, http.StatusOK, map[string]any{
		"clients": clients,
		"count":   len(clients),
	})
}

func decodeClient(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req remote.ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return "", false
	}
	if req.URI == "" {
		writeBadRequest(w, "uri is required")
		return "", false
	}
	return req.URI, true
}

// handleRegisterClient adds a URI to the broadcast set. Registering a URI
// twice is not an error.
func (s *Server) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	uri, ok := decodeClient(w, r)
	if !ok {
		return
	}
	s.ctrl.RegisterClient(r.Context(), uri)
	writeJSON(w, http.StatusOK, map[string]any{"uri": uri, "registered": true})
}

// handleUnregisterClient removes a URI from the broadcast set. Removing an
// unknown URI succeeds with removed=false.
func (s *Server) handleUnregisterClient(w http.ResponseWriter, r *http.Request) {
	uri, ok := decodeClient(w, r)
	if !ok {
		return
	}
	removed := s.ctrl.UnregisterClient(r.Context(), uri)
	writeJSON(w, http.StatusOK, map[string]any{"uri": uri, "removed": removed})
}

// handlePowerDialog broadcasts one of the power dialog calls. The response
// is sent after every client has been called and failures pruned. A caller
// hanging up does not cancel the broadcast.
func (s *Server) handlePowerDialog(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	switch chi.URLParam(r, "dialog") {
	case "power-on":
		s.ctrl.ShowPowerOnDialogOnClients(ctx)
	case "power-off":
		s.ctrl.ShowPowerOffDialogOnClients(ctx)
	case "hide":
		s.ctrl.HidePowerDialogOnClients(ctx)
	default:
		writeNotFound(w, "unknown dialog "+chi.URLParam(r, "dialog"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOutputMappings broadcasts the request body, which must be JSON, to
// every client as updateOutputMappings.
func (s *Server) handleOutputMappings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "could not read body")
		return
	}
	if !json.Valid(body) {
		writeBadRequest(w, "body must be JSON")
		return
	}
	s.ctrl.UpdateOutputMappings(context.WithoutCancel(r.Context()), json.RawMessage(body))
	w.WriteHeader(http.StatusNoContent)
}

// handleSequence queues a batch of events. The body is a JSON array.
func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	var events []sequencer.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeBadRequest(w, "body must be a JSON array of events")
		return
	}
	if err := s.ctrl.Sequence(r.Context(), events...); err != nil {
		s.writeControllerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": len(events)})
}

// handleGetLog returns the log ring, oldest first.
func (s *Server) handleGetLog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.GetLog())
}
