package probe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"
)

// ErrMalformedResponse is returned when a body lacks a usable freshness field.
var ErrMalformedResponse = errors.New("malformed response")

// BlockTimeParser extracts a block time from a JSON document.
// Paths are tried in order and the first one present wins.
type BlockTimeParser struct {
	paths  []string
	decode func(raw string) (time.Time, error)
}

// Parsers for the supported wire contracts.
var (
	// CometBFT /status, either wrapped in a JSON-RPC envelope or bare.
	RPCStatusParser = BlockTimeParser{
		paths:  []string{"result.sync_info.latest_block_time", "sync_info.latest_block_time"},
		decode: decodeRFC3339,
	}
	// Cosmos REST latest block. Newer SDKs also expose sdk_block.
	RESTLatestBlockParser = BlockTimeParser{
		paths:  []string{"block.header.time", "sdk_block.header.time"},
		decode: decodeRFC3339,
	}
	// eth_getBlockByNumber result, bare or in its envelope.
	EVMBlockParser = BlockTimeParser{
		paths:  []string{"timestamp", "result.timestamp"},
		decode: decodeHexSeconds,
	}
)

// Parse returns the block time found in body.
func (p BlockTimeParser) Parse(body []byte) (time.Time, error) {
	if !gjson.ValidBytes(body) {
		return time.Time{}, fmt.Errorf("%w: body is not valid JSON", ErrMalformedResponse)
	}

	for _, path := range p.paths {
		res := gjson.GetBytes(body, path)
		if !res.Exists() || res.Type != gjson.String || res.String() == "" {
			continue
		}
		t, err := p.decode(res.String())
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: field %s: %v", ErrMalformedResponse, path, err)
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w: none of [%s] present",
		ErrMalformedResponse, strings.Join(p.paths, ", "),
	)
}

func decodeRFC3339(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func decodeHexSeconds(raw string) (time.Time, error) {
	secs, err := decodeHexQuantity(raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0), nil
}

// decodeHexQuantity accepts 0x-prefixed quantities, tolerating the leading zeros some nodes emit.
func decodeHexQuantity(raw string) (uint64, error) {
	v, err := hexutil.DecodeUint64(raw)
	if errors.Is(err, hexutil.ErrLeadingZero) {
		return strconv.ParseUint(strings.TrimPrefix(strings.ToLower(raw), "0x"), 16, 64)
	}
	return v, err
}
