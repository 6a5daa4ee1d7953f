package entity

import (
	"fmt"
	"net/url"
	"strings"
)

// Scheme defines the transport scheme of an endpoint address.
type Scheme string

// Constants for known schemes.
const (
	SchemeHTTP    Scheme = "http"
	SchemeHTTPS   Scheme = "https"
	SchemeWS      Scheme = "ws"
	SchemeWSS     Scheme = "wss"
	SchemeUnknown Scheme = "unknown"
)

// Address represents an endpoint address as declared in the chain registry.
type Address string

// NewAddress creates a new Address instance.
// Scheme-less addresses (typical for gRPC, e.g. "host:9090") are accepted.
func NewAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("endpoint address cannot be empty")
	}

	if strings.Contains(trimmed, "://") {
		if _, err := url.ParseRequestURI(trimmed); err != nil {
			return "", fmt.Errorf("invalid endpoint address format '%s': %w", raw, err)
		}
	}

	return Address(trimmed), nil
}

// String returns the string representation of the Address.
func (a Address) String() string {
	return string(a)
}

// Scheme returns the lower-cased scheme of the address.
func (a Address) Scheme() Scheme {
	scheme, _, found := strings.Cut(string(a), "://")
	if !found {
		return SchemeUnknown
	}
	switch Scheme(strings.ToLower(scheme)) {
	case SchemeHTTP:
		return SchemeHTTP
	case SchemeHTTPS:
		return SchemeHTTPS
	case SchemeWS:
		return SchemeWS
	case SchemeWSS:
		return SchemeWSS
	default:
		return SchemeUnknown
	}
}

// IsSecure reports whether the address uses an encrypted transport.
func (a Address) IsSecure() bool {
	s := a.Scheme()
	return s == SchemeHTTPS || s == SchemeWSS
}

// IsWebsocket reports whether the address is a websocket URL.
func (a Address) IsWebsocket() bool {
	s := a.Scheme()
	return s == SchemeWS || s == SchemeWSS
}

// Hostname extracts the host part of the address without port.
func (a Address) Hostname() (string, error) {
	if a.Scheme() == SchemeUnknown {
		return "", fmt.Errorf("address '%s' has no supported scheme", a)
	}
	u, err := url.Parse(string(a))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint address '%s': %w", a, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("address '%s' has no host", a)
	}
	return u.Hostname(), nil
}

// Join appends path to the address, collapsing any trailing slashes of the address.
func (a Address) Join(path string) string {
	base := strings.TrimRight(string(a), "/")
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}
