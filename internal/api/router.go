package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/avx-core/internal/remote"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, remote.CodeBadRequest, "method not allowed")
	})

	r.Route(remote.APIPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/version", s.handleVersion)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleAddDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/exists", s.handleHasDevice)
				r.Post("/proxy", s.handleProxyDevice)
				r.Post("/invoke", s.handleInvokeDevice)
			})
		})

		r.Post("/objects/{objectID}/invoke", s.handleInvokeObject)

		r.Route("/slaves", func(r chi.Router) {
			r.Get("/", s.handleListSlaves)
			r.Post("/", s.handleAddSlave)
			r.Delete("/{controllerID}", s.handleRemoveSlave)
		})

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", s.handleListClients)
			r.Post("/", s.handleRegisterClient)
			r.Delete("/", s.handleUnregisterClient)
			r.Post("/dialogs/{dialog}", s.handlePowerDialog)
		})

		r.Post("/output-mappings", s.handleOutputMappings)
		r.Post("/sequence", s.handleSequence)
		r.Get("/log", s.handleGetLog)
		r.Get("/audit", s.handleListAuditLogs)

		r.Get(wsPath(s.wsCfg.Path), s.handleWebSocket)
	})

	return r
}

func wsPath(p string) string {
	if p == "" {
		return "/ws"
	}
	return p
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"name":    s.ctrl.Name(),
	})
}

// handleVersion answers getVersion.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, remote.VersionResponse{Version: s.ctrl.GetVersion()})
}
