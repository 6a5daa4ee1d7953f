package entity

import "time"

// Chain represents the declared endpoint catalog of a blockchain network.
type Chain struct {
	// Name is the registry identifier, "osmosis" or "testnets/osmosistestnet".
	Name       string
	ChainID    string
	PrettyName string
	Testnet    bool
	APIs       map[Kind][]Endpoint
}

// Endpoints returns the declared candidates of the given kind in priority order.
func (c Chain) Endpoints(kind Kind) []Endpoint {
	if c.APIs == nil {
		return nil
	}
	return c.APIs[kind]
}

// ChainHealthEntry is the memoized selection for one chain. It is replaced whole, never patched.
type ChainHealthEntry struct {
	Chain string
	RPC   Endpoint
	REST  Endpoint
	// GRPC is the first declared gRPC endpoint. It is not health-gated.
	GRPC       Endpoint
	SelectedAt time.Time
}

// References reports whether a health-gated endpoint of the entry uses addr.
func (e ChainHealthEntry) References(addr Address) bool {
	return (!e.RPC.IsUnknown() && e.RPC.Address == addr) ||
		(!e.REST.IsUnknown() && e.REST.Address == addr)
}
