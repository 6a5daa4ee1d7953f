package entity

import (
	"fmt"
	"strings"
)

// Kind identifies the protocol surface an endpoint offers.
type Kind string

// Constants for the endpoint kinds declared in the chain registry.
const (
	KindRPC  Kind = "rpc"
	KindREST Kind = "rest"
	KindGRPC Kind = "grpc"
	KindEVM  Kind = "evm-http-jsonrpc"
)

// Kinds lists every known kind in registry order.
var Kinds = []Kind{KindRPC, KindREST, KindGRPC, KindEVM}

// ParseKind converts a user supplied kind name into a Kind. "evm" is accepted as shorthand.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rpc":
		return KindRPC, nil
	case "rest":
		return KindREST, nil
	case "grpc":
		return KindGRPC, nil
	case "evm", "evm-http-jsonrpc":
		return KindEVM, nil
	default:
		return "", fmt.Errorf("unknown endpoint kind '%s'", raw)
	}
}

// UnknownLabel is what consumers show when no endpoint could be selected.
const UnknownLabel = "Unknown"

// Endpoint is a declared network address for one protocol surface of a chain.
// Identity is the address.
type Endpoint struct {
	Address  Address
	Provider string
	Kind     Kind
}

// Unknown is the sentinel returned when no candidate passed the health checks.
var Unknown = Endpoint{}

// IsUnknown reports whether e is the Unknown sentinel.
func (e Endpoint) IsUnknown() bool {
	return e.Address == ""
}

// String returns the address, or UnknownLabel for the sentinel.
func (e Endpoint) String() string {
	if e.IsUnknown() {
		return UnknownLabel
	}
	return e.Address.String()
}
