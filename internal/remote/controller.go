package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/logring"
	"github.com/nerrad567/avx-core/internal/naming"
	"github.com/nerrad567/avx-core/internal/sequencer"
	"github.com/nerrad567/avx-core/internal/version"
)

// defaultHTTPTimeout applies when the caller supplies no *http.Client.
// Per-call deadlines come from ctx.
const defaultHTTPTimeout = 30 * time.Second

// maxResponseSize caps decoded response bodies.
const maxResponseSize = 4 << 20

// ControllerClient calls another controller's HTTP API.
type ControllerClient struct {
	name    string
	baseURL string
	http    *http.Client
}

// NewControllerClient creates a client for the controller serving at baseURL.
// name is informational (used in errors and as the handle owner fallback).
func NewControllerClient(name, baseURL string, httpClient *http.Client) *ControllerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &ControllerClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Name returns the name the client was created for.
func (c *ControllerClient) Name() string { return c.name }

// BaseURL returns the controller's base URI.
func (c *ControllerClient) BaseURL() string { return c.baseURL }

// Dial finds the controller registered as naming.ControllerName(controllerID),
// fetches its version and checks it against localVersion.
//
// Parameters:
//   - ctx: Bounds the lookup and the version call
//   - names: Naming service to resolve the controller name
//   - controllerID: Empty for the unsuffixed "avx.controller"
//   - localVersion: This side's version
//   - httpClient: Optional; nil uses a default client
//
// Returns:
//   - *ControllerClient: Ready to use
//   - string: The remote version
//   - error: naming.ErrNameNotFound, *version.MismatchError, or a transport error
func Dial(ctx context.Context, names naming.Service, controllerID, localVersion string, httpClient *http.Client) (*ControllerClient, string, error) {
	name := naming.ControllerName(controllerID)

	uri, err := names.Lookup(ctx, name)
	if err != nil {
		return nil, "", fmt.Errorf("looking up %s: %w", name, err)
	}

	client := NewControllerClient(name, uri, httpClient)
	remoteVersion, err := client.GetVersion(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("fetching version of %s: %w", name, err)
	}

	if err := version.Check(remoteVersion, localVersion); err != nil {
		return nil, remoteVersion, err
	}
	return client, remoteVersion, nil
}

// GetVersion returns the remote controller's version string.
func (c *ControllerClient) GetVersion(ctx context.Context) (string, error) {
	var out VersionResponse
	if err := c.do(ctx, http.MethodGet, "/version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// HasDevice reports whether the remote controller can resolve id.
func (c *ControllerClient) HasDevice(ctx context.Context, id string) (bool, error) {
	var out ExistsResponse
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id)+"/exists", nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// ProxyDevice asks the remote controller to resolve id.
// Returns device.ErrDeviceNotFound (wrapped) if it cannot.
func (c *ControllerClient) ProxyDevice(ctx context.Context, id string) (*Handle, error) {
	var out Handle
	if err := c.do(ctx, http.MethodPost, "/devices/"+url.PathEscape(id)+"/proxy", nil, &out); err != nil {
		return nil, err
	}
	if out.Owner == "" {
		out.Owner = c.name
	}
	return &out, nil
}

// GetDevice returns a handle for a device local to the remote controller.
func (c *ControllerClient) GetDevice(ctx context.Context, id string) (*Handle, error) {
	var out Handle
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddDevice creates a device on the remote controller.
func (c *ControllerClient) AddDevice(ctx context.Context, desc device.Description) error {
	return c.do(ctx, http.MethodPost, "/devices", desc, nil)
}

// RegisterClient adds uri to the remote controller's broadcast set.
func (c *ControllerClient) RegisterClient(ctx context.Context, uri string) error {
	return c.do(ctx, http.MethodPost, "/clients", ClientRequest{URI: uri}, nil)
}

// UnregisterClient removes uri from the remote controller's broadcast set.
func (c *ControllerClient) UnregisterClient(ctx context.Context, uri string) error {
	return c.do(ctx, http.MethodDelete, "/clients", ClientRequest{URI: uri}, nil)
}

// ShowPowerOnDialog asks the remote controller to broadcast showPowerOnDialog.
func (c *ControllerClient) ShowPowerOnDialog(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clients/dialogs/power-on", nil, nil)
}

// ShowPowerOffDialog asks the remote controller to broadcast showPowerOffDialog.
func (c *ControllerClient) ShowPowerOffDialog(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clients/dialogs/power-off", nil, nil)
}

// HidePowerDialog asks the remote controller to broadcast hidePowerDialog.
func (c *ControllerClient) HidePowerDialog(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clients/dialogs/hide", nil, nil)
}

// UpdateOutputMappings asks the remote controller to broadcast a mapping.
func (c *ControllerClient) UpdateOutputMappings(ctx context.Context, mapping json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/output-mappings", mapping, nil)
}

// Sequence queues events on the remote controller.
func (c *ControllerClient) Sequence(ctx context.Context, events ...sequencer.Event) error {
	return c.do(ctx, http.MethodPost, "/sequence", events, nil)
}

// GetLog returns the remote controller's recent log entries.
func (c *ControllerClient) GetLog(ctx context.Context) ([]logring.Entry, error) {
	var out []logring.Entry
	if err := c.do(ctx, http.MethodGet, "/log", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) do(ctx context.Context, method, path string, in, out any) error {
	return doJSON(ctx, c.http, method, c.baseURL+APIPrefix+path, in, out)
}

// doJSON sends in as JSON (when non-nil) and decodes a 2xx body into out
// (when non-nil). Non-2xx replies become *StatusError.
func doJSON(ctx context.Context, client *http.Client, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		var data []byte
		if raw, ok := in.(json.RawMessage); ok {
			data = raw
		} else {
			var err error
			if data, err = json.Marshal(in); err != nil {
				return fmt.Errorf("encoding request: %w", err)
			}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseSize)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, limited)
	}

	if out == nil {
		//nolint:errcheck // drain so the connection can be reused
		io.Copy(io.Discard, limited)
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", target, err)
	}
	return nil
}

func decodeError(status int, body io.Reader) error {
	se := &StatusError{ErrorResponse: ErrorResponse{Status: status}}
	if err := json.NewDecoder(body).Decode(&se.ErrorResponse); err != nil || se.Code == "" {
		se.Status = status
		se.Code = http.StatusText(status)
	}

	switch se.Code {
	case CodeNotFound:
		se.cause = device.ErrDeviceNotFound
	case CodeConflict:
		se.cause = device.ErrDuplicateDeviceID
	case CodeVersionMismatch:
		se.cause = version.ErrVersionMismatch
	}
	return se
}

// IsNotFound reports whether err means the remote side does not have the object.
func IsNotFound(err error) bool {
	return errors.Is(err, device.ErrDeviceNotFound) || errors.Is(err, ErrObjectNotFound)
}
