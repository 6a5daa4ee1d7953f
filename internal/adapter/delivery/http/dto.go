package http

import (
	"time"

	"chainhealth/internal/domain/entity"
)

// EndpointResponse renders an endpoint. The Unknown sentinel is rendered with address "Unknown".
type EndpointResponse struct {
	Address  string `json:"address"`
	Provider string `json:"provider,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Healthy  bool   `json:"healthy"`
}

// HealthResponse renders a chain health entry.
type HealthResponse struct {
	Chain      string           `json:"chain"`
	RPC        EndpointResponse `json:"rpc"`
	REST       EndpointResponse `json:"rest"`
	GRPC       EndpointResponse `json:"grpc"`
	SelectedAt time.Time        `json:"selected_at"`
}

// ChainsResponse renders the chain listing.
type ChainsResponse struct {
	Chains []string `json:"chains"`
	Count  int      `json:"count"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toEndpointResponse(e entity.Endpoint, kind entity.Kind) EndpointResponse {
	if e.IsUnknown() {
		return EndpointResponse{Address: entity.UnknownLabel, Kind: string(kind)}
	}
	return EndpointResponse{
		Address:  e.Address.String(),
		Provider: e.Provider,
		Kind:     string(e.Kind),
		Healthy:  true,
	}
}

func toHealthResponse(entry entity.ChainHealthEntry) HealthResponse {
	grpc := toEndpointResponse(entry.GRPC, entity.KindGRPC)
	// gRPC is reported as declared, without a health check.
	grpc.Healthy = false
	return HealthResponse{
		Chain:      entry.Chain,
		RPC:        toEndpointResponse(entry.RPC, entity.KindRPC),
		REST:       toEndpointResponse(entry.REST, entity.KindREST),
		GRPC:       grpc,
		SelectedAt: entry.SelectedAt,
	}
}
