package remote

import (
	"context"
	"encoding/json"
	"net/http"
)

// DeviceProxy invokes methods on the device behind a Handle.
//
// It works the same whether the handle was exported locally or obtained from
// a slave: every call goes over HTTP to the owner's object route.
type DeviceProxy struct {
	handle *Handle
	http   *http.Client
}

// NewDeviceProxy creates a proxy for h. A nil httpClient uses a default client.
func NewDeviceProxy(h *Handle, httpClient *http.Client) *DeviceProxy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &DeviceProxy{handle: h, http: httpClient}
}

// Handle returns the proxied handle.
func (p *DeviceProxy) Handle() *Handle { return p.handle }

// Invoke calls method with args and returns the device's result.
func (p *DeviceProxy) Invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	var out InvokeResponse
	err := doJSON(ctx, p.http, http.MethodPost, p.handle.URI+"/invoke",
		InvokeRequest{Method: method, Args: args}, &out)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}
