package registry_dto

// ChainRaw represents the subset of a chain-registry chain.json document the catalog needs.
type ChainRaw struct {
	ChainName    string  `json:"chain_name"`
	ChainID      string  `json:"chain_id"`
	PrettyName   string  `json:"pretty_name,omitempty"`
	NetworkType  string  `json:"network_type,omitempty"`
	Status       string  `json:"status,omitempty"`
	Bech32Prefix string  `json:"bech32_prefix,omitempty"`
	Slip44       int64   `json:"slip44,omitempty"`
	APIs         APIsRaw `json:"apis"`
}

// APIsRaw groups the declared endpoints by kind, as in chain.json and the static overlay file.
type APIsRaw struct {
	RPC            []EndpointRaw `json:"rpc,omitempty" yaml:"rpc,omitempty"`
	REST           []EndpointRaw `json:"rest,omitempty" yaml:"rest,omitempty"`
	GRPC           []EndpointRaw `json:"grpc,omitempty" yaml:"grpc,omitempty"`
	EVMHTTPJSONRPC []EndpointRaw `json:"evm-http-jsonrpc,omitempty" yaml:"evm-http-jsonrpc,omitempty"`
}

// EndpointRaw is a single declared endpoint.
type EndpointRaw struct {
	Address  string `json:"address" yaml:"address"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Archive  bool   `json:"archive,omitempty" yaml:"archive,omitempty"`
}

// StaticCatalogRaw is the operator-maintained YAML overlay, keyed by chain identifier.
type StaticCatalogRaw struct {
	Chains map[string]APIsRaw `yaml:"chains"`
}
