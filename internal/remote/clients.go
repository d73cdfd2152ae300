package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client methods pushed by a controller to its registered clients.
const (
	MethodShowPowerOnDialog    = "showPowerOnDialog"
	MethodShowPowerOffDialog   = "showPowerOffDialog"
	MethodHidePowerDialog      = "hidePowerDialog"
	MethodUpdateOutputMappings = "updateOutputMappings"
)

// ErrUnsupportedScheme is returned when no dialer handles a client URI's scheme.
var ErrUnsupportedScheme = errors.New("remote: unsupported client scheme")

// ClientConn delivers one method call to a registered client.
type ClientConn interface {
	Call(ctx context.Context, method string, payload any) error
}

// ClientDialer turns a client URI into a connection.
type ClientDialer interface {
	DialClient(uri string) (ClientConn, error)
}

// ClientDialerFunc adapts a function to ClientDialer.
type ClientDialerFunc func(uri string) (ClientConn, error)

// DialClient calls f(uri).
func (f ClientDialerFunc) DialClient(uri string) (ClientConn, error) { return f(uri) }

// HTTPClientDialer reaches clients that expose POST <uri>/<method>.
type HTTPClientDialer struct {
	HTTP *http.Client
}

// DialClient validates uri and returns a connection. No request is sent.
func (d HTTPClientDialer) DialClient(uri string) (ClientConn, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing client uri %q: %w", uri, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	client := d.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &httpClientConn{base: strings.TrimRight(uri, "/"), http: client}, nil
}

type httpClientConn struct {
	base string
	http *http.Client
}

func (c *httpClientConn) Call(ctx context.Context, method string, payload any) error {
	return doJSON(ctx, c.http, http.MethodPost, c.base+"/"+method, payload, nil)
}

// SchemeDialer routes URIs to dialers by scheme.
type SchemeDialer map[string]ClientDialer

// DialClient dispatches on the URI scheme.
func (s SchemeDialer) DialClient(uri string) (ClientConn, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing client uri %q: %w", uri, err)
	}
	d, ok := s[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return d.DialClient(uri)
}
