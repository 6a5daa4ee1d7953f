package registry

import (
	dto "chainhealth/internal/adapter/storage/registry/dto"
	"chainhealth/internal/domain/entity"

	"go.uber.org/zap"
)

const testnetNetworkType = "testnet"

// rawByKind pairs each endpoint kind with its list in an APIsRaw.
func rawByKind(apis dto.APIsRaw) map[entity.Kind][]dto.EndpointRaw {
	return map[entity.Kind][]dto.EndpointRaw{
		entity.KindRPC:  apis.RPC,
		entity.KindREST: apis.REST,
		entity.KindGRPC: apis.GRPC,
		entity.KindEVM:  apis.EVMHTTPJSONRPC,
	}
}

// toDomainChain converts a chain.json document plus an optional overlay into a domain chain.
// Registry endpoints keep priority; overlay endpoints are appended unless already declared.
func toDomainChain(name string, raw dto.ChainRaw, overlay *dto.APIsRaw, logger *zap.Logger) entity.Chain {
	chain := entity.Chain{
		Name:       name,
		ChainID:    raw.ChainID,
		PrettyName: raw.PrettyName,
		Testnet:    raw.NetworkType == testnetNetworkType || isTestnetName(name),
		APIs:       make(map[entity.Kind][]entity.Endpoint, len(entity.Kinds)),
	}

	registryLists := rawByKind(raw.APIs)
	var overlayLists map[entity.Kind][]dto.EndpointRaw
	if overlay != nil {
		overlayLists = rawByKind(*overlay)
	}

	for _, kind := range entity.Kinds {
		seen := make(map[entity.Address]struct{})
		var endpoints []entity.Endpoint
		for _, list := range [][]dto.EndpointRaw{registryLists[kind], overlayLists[kind]} {
			for _, rawEndpoint := range list {
				address, err := entity.NewAddress(rawEndpoint.Address)
				if err != nil {
					logger.Warn("Skipping invalid endpoint address during mapping",
						zap.String("chain", name),
						zap.String("kind", string(kind)),
						zap.String("rawAddress", rawEndpoint.Address),
						zap.Error(err))
					continue
				}
				if _, dup := seen[address]; dup {
					continue
				}
				seen[address] = struct{}{}
				endpoints = append(endpoints, entity.Endpoint{
					Address:  address,
					Provider: rawEndpoint.Provider,
					Kind:     kind,
				})
			}
		}
		if len(endpoints) > 0 {
			chain.APIs[kind] = endpoints
		}
	}

	return chain
}
