package broker_server

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultPort     = "8000"
	WildcardAddress = "*"
	wsScheme        = "ws"
)

// ListenAddress is one resolved ListenAddresses entry.
type ListenAddress struct {
	// Address is the host:port handed to the listener.
	Address string
	// Path is the upgrade path for websocket listeners, empty for plain TCP.
	Path      string
	WebSocket bool
}

// ParseListenAddress resolves a ListenAddresses entry: "*" listens on every interface on the
// default port, a bare host gets the default port, "host:port" is used as is and
// "ws://host:port/path" opens a websocket gateway.
func ParseListenAddress(pattern string) (ListenAddress, error) {
	pattern = strings.TrimSpace(pattern)
	switch {
	case pattern == "":
		return ListenAddress{}, errors.New("empty listen address")
	case pattern == WildcardAddress:
		return ListenAddress{Address: net.JoinHostPort("", DefaultPort)}, nil
	case strings.Contains(pattern, "://"):
		return parseWebSocketAddress(pattern)
	}
	return ListenAddress{Address: withDefaultPort(pattern)}, nil
}

func parseWebSocketAddress(pattern string) (ListenAddress, error) {
	u, err := url.Parse(pattern)
	if err != nil {
		return ListenAddress{}, errors.Wrapf(err, "invalid listen address %q", pattern)
	}
	if u.Scheme != wsScheme {
		return ListenAddress{}, errors.Errorf("unsupported scheme %q in listen address %q", u.Scheme, pattern)
	}
	hostname := u.Hostname()
	if hostname == WildcardAddress {
		hostname = ""
	}
	port := u.Port()
	if port == "" {
		port = DefaultPort
	}
	address := net.JoinHostPort(hostname, port)
	path := u.Path
	if path == "" {
		path = "/"
	}
	return ListenAddress{Address: address, Path: path, WebSocket: true}, nil
}

func withDefaultPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(strings.Trim(hostport, "[]"), DefaultPort)
}

func (a ListenAddress) String() string {
	if a.WebSocket {
		return wsScheme + "://" + a.Address + a.Path
	}
	return a.Address
}
