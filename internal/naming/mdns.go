package naming

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	defaultMDNSService = "_avx._tcp"
	defaultMDNSDomain  = "local."
	txtURIPrefix       = "uri="
)

// MDNS advertises names as zeroconf service instances.
//
// The instance name is the controller name with dots replaced by dashes,
// and the full base URI travels in a "uri=" TXT record.
type MDNS struct {
	service string
	domain  string

	mu      sync.Mutex
	servers map[string]*zeroconf.Server
}

// NewMDNS creates an mDNS-backed naming service.
// Empty service or domain select "_avx._tcp" and "local.".
func NewMDNS(service, domain string) *MDNS {
	if service == "" {
		service = defaultMDNSService
	}
	if domain == "" {
		domain = defaultMDNSDomain
	}
	return &MDNS{
		service: service,
		domain:  domain,
		servers: make(map[string]*zeroconf.Server),
	}
}

// instanceName maps a dotted controller name to a DNS-SD instance label.
func instanceName(name string) string {
	return strings.ReplaceAll(name, ".", "-")
}

// Register announces name on every multicast interface.
func (m *MDNS) Register(_ context.Context, name, uri string) error {
	if err := validate(name, uri); err != nil {
		return err
	}

	port, err := portOf(uri)
	if err != nil {
		return fmt.Errorf("naming: registering %s: %w", name, err)
	}

	server, err := zeroconf.Register(instanceName(name), m.service, m.domain, port,
		[]string{txtURIPrefix + uri}, nil)
	if err != nil {
		return fmt.Errorf("naming: registering %s: %w", name, err)
	}

	m.mu.Lock()
	old := m.servers[name]
	m.servers[name] = server
	m.mu.Unlock()

	if old != nil {
		old.Shutdown()
	}
	return nil
}

// Lookup browses for the instance until ctx is done or it is found.
func (m *MDNS) Lookup(ctx context.Context, name string) (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("naming: creating resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Lookup(ctx, instanceName(name), m.service, m.domain, entries); err != nil {
		return "", fmt.Errorf("naming: looking up %s: %w", name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s", ErrNameNotFound, name)
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrNameNotFound, name)
			}
			if uri := uriFromEntry(entry); uri != "" {
				return uri, nil
			}
		}
	}
}

// Unregister stops announcing name.
func (m *MDNS) Unregister(_ context.Context, name string) error {
	m.mu.Lock()
	server := m.servers[name]
	delete(m.servers, name)
	m.mu.Unlock()

	if server != nil {
		server.Shutdown()
	}
	return nil
}

// uriFromEntry prefers the TXT record and falls back to the first address.
func uriFromEntry(e *zeroconf.ServiceEntry) string {
	if e == nil {
		return ""
	}
	for _, txt := range e.Text {
		if uri, ok := strings.CutPrefix(txt, txtURIPrefix); ok && uri != "" {
			return uri
		}
	}
	if len(e.AddrIPv4) > 0 {
		return "http://" + net.JoinHostPort(e.AddrIPv4[0].String(), strconv.Itoa(e.Port))
	}
	if len(e.AddrIPv6) > 0 {
		return "http://" + net.JoinHostPort(e.AddrIPv6[0].String(), strconv.Itoa(e.Port))
	}
	return ""
}

// portOf extracts the port from a base URI, defaulting by scheme.
func portOf(uri string) (int, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", uri, err)
	}
	if p := u.Port(); p != "" {
		return strconv.Atoi(p)
	}
	switch u.Scheme {
	case "https", "wss":
		return 443, nil
	case "http", "ws":
		return 80, nil
	default:
		return 0, fmt.Errorf("no port in %q", uri)
	}
}
