package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/avx-core/internal/controller"
	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/remote"
)

// handleListDevices returns the IDs of local devices, sorted.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	ids := s.ctrl.Registry().IDs()
	slices.Sort(ids)
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": ids,
		"count":   len(ids),
	})
}

// handleAddDevice creates a device from a flat description body.
func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var desc device.Description
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		writeBadRequest(w, "invalid device description: "+err.Error())
		return
	}

	if err := s.ctrl.AddDevice(r.Context(), desc); err != nil {
		s.writeControllerError(w, r, err)
		return
	}

	h, err := s.ctrl.GetDevice(desc.DeviceID)
	if err != nil {
		s.writeControllerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

// handleGetDevice returns a handle for a local device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	h, err := s.ctrl.GetDevice(chi.URLParam(r, "id"))
	if err != nil {
		s.writeControllerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// handleHasDevice answers hasDevice. Only local devices count.
func (s *Server) handleHasDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, remote.ExistsResponse{Exists: s.ctrl.HasDevice(chi.URLParam(r, "id"))})
}

// handleProxyDevice resolves a device locally or through a slave.
func (s *Server) handleProxyDevice(w http.ResponseWriter, r *http.Request) {
	h, err := s.ctrl.ProxyDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeControllerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// handleInvokeDevice calls a method on a device by ID, wherever it lives.
// It is only served when the controller document sets options.http.
func (s *Server) handleInvokeDevice(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.HTTPEnabled() {
		s.writeControllerError(w, r, controller.ErrHTTPDisabled)
		return
	}

	req, ok := decodeInvoke(w, r)
	if !ok {
		return
	}
	result, err := s.ctrl.InvokeDevice(r.Context(), chi.URLParam(r, "id"), req.Method, req.Args)
	if err != nil {
		s.writeControllerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.InvokeResponse{Result: orNull(result)})
}

// handleInvokeObject calls a method on an exported object. This is the
// route remote.DeviceProxy targets.
func (s *Server) handleInvokeObject(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInvoke(w, r)
	if !ok {
		return
	}
	result, err := s.ctrl.Objects().Invoke(r.Context(), chi.URLParam(r, "objectID"), req.Method, req.Args)
	if err != nil {
		s.writeControllerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.InvokeResponse{Result: orNull(result)})
}

func decodeInvoke(w http.ResponseWriter, r *http.Request) (remote.InvokeRequest, bool) {
	var req remote.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return req, false
	}
	if req.Method == "" {
		writeBadRequest(w, "method is required")
		return req, false
	}
	return req, true
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// slaveRequest is the body of POST /slaves.
type slaveRequest struct {
	ControllerID string `json:"controller_id"`
}

func (s *Server) handleListSlaves(w http.ResponseWriter, _ *http.Request) {
	links := s.ctrl.Federation().Links()
	writeJSON(w, http.StatusOK, map[string]any{
		"slaves": links,
		"count":  len(links),
	})
}

// handleAddSlave federates with another controller. An empty controller_id
// means the unsuffixed avx.controller.
func (s *Server) handleAddSlave(w http.ResponseWriter, r *http.Request) {
	var req slaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.ctrl.AddSlave(r.Context(), req.ControllerID); err != nil {
		s.writeControllerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"controller_id": req.ControllerID})
}

func (s *Server) handleRemoveSlave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "controllerID")
	if !s.ctrl.RemoveSlave(r.Context(), id) {
		writeNotFound(w, "no slave "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

