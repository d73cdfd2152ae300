// Package remote carries controller calls between processes.
//
// It holds the wire types shared by the HTTP API and its callers (Handle,
// InvokeRequest, the error envelope), the object table that exports local
// devices under stable URIs, and the HTTP clients used to reach other
// controllers, exported devices and registered clients.
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// APIPrefix is the path prefix of every controller route.
const APIPrefix = "/api/v1"

// Handle is a reachable reference to a device, local or remote.
//
// URI addresses the exported object on the controller that owns the device;
// POSTing an InvokeRequest to URI + "/invoke" calls a method on it.
type Handle struct {
	URI      string `json:"uri"`
	DeviceID string `json:"device_id"`
	Owner    string `json:"owner"`
}

// ObjectID returns the last path segment of the handle's URI.
func (h *Handle) ObjectID() string {
	u, err := url.Parse(h.URI)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}

// InvokeRequest is the body of POST /objects/{objectID}/invoke.
type InvokeRequest struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// InvokeResponse is the reply to an InvokeRequest.
type InvokeResponse struct {
	Result json.RawMessage `json:"result"`
}

// VersionResponse is the reply to GET /version.
type VersionResponse struct {
	Version string `json:"version"`
}

// ExistsResponse is the reply to GET /devices/{id}/exists.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// ClientRequest is the body of POST and DELETE /clients.
type ClientRequest struct {
	URI string `json:"uri"`
}

// ErrorResponse is the error envelope returned by every route.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest      = "bad_request"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeVersionMismatch = "version_mismatch"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal_error"
)

// ErrRemote is wrapped by every error that came back in an ErrorResponse.
var ErrRemote = errors.New("remote: call failed")

// StatusError is a decoded ErrorResponse.
type StatusError struct {
	ErrorResponse
	cause error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap exposes ErrRemote and, for known codes, the matching local sentinel.
func (e *StatusError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrRemote, e.cause}
	}
	return []error{ErrRemote}
}
