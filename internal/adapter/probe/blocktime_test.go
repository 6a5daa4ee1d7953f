package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCStatusParser(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 30, 15, 123456789, time.UTC)

	wrapped := []byte(`{"jsonrpc":"2.0","id":-1,"result":{"node_info":{},"sync_info":{"latest_block_height":"100","latest_block_time":"2024-05-01T12:30:15.123456789Z","catching_up":false}}}`)
	got, err := RPCStatusParser.Parse(wrapped)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	bare := []byte(`{"sync_info":{"latest_block_time":"2024-05-01T12:30:15.123456789Z"}}`)
	got, err = RPCStatusParser.Parse(bare)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestRESTLatestBlockParser(t *testing.T) {
	got, err := RESTLatestBlockParser.Parse([]byte(`{"block_id":{},"block":{"header":{"height":"7","time":"2024-05-01T12:00:00Z"}}}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), got.UTC())

	// The first present path wins.
	got, err = RESTLatestBlockParser.Parse([]byte(`{"block":{"header":{"time":"2024-05-01T12:00:00Z"}},"sdk_block":{"header":{"time":"2020-01-01T00:00:00Z"}}}`))
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())

	got, err = RESTLatestBlockParser.Parse([]byte(`{"sdk_block":{"header":{"time":"2023-02-03T04:05:06Z"}}}`))
	require.NoError(t, err)
	assert.Equal(t, 2023, got.Year())
}

func TestEVMBlockParser(t *testing.T) {
	got, err := EVMBlockParser.Parse([]byte(`{"number":"0x10","timestamp":"0x6632345f"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(0x6632345f), got.Unix())

	got, err = EVMBlockParser.Parse([]byte(`{"result":{"timestamp":"0x0006632345f"}}`))
	require.NoError(t, err, "leading zeros are tolerated")
	assert.Equal(t, int64(0x6632345f), got.Unix())
}

func TestParserRejectsMalformed(t *testing.T) {
	tests := map[string]struct {
		parser BlockTimeParser
		body   string
	}{
		"not json":         {RPCStatusParser, `<html>502 Bad Gateway</html>`},
		"missing field":    {RPCStatusParser, `{"result":{"sync_info":{}}}`},
		"empty field":      {RESTLatestBlockParser, `{"block":{"header":{"time":""}}}`},
		"non-string field": {RESTLatestBlockParser, `{"block":{"header":{"time":12345}}}`},
		"bad timestamp":    {RPCStatusParser, `{"sync_info":{"latest_block_time":"yesterday"}}`},
		"bad hex":          {EVMBlockParser, `{"timestamp":"0xzz"}`},
		"hex without 0x":   {EVMBlockParser, `{"timestamp":"6632345f"}`},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tt.parser.Parse([]byte(tt.body))
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestDecodeHexQuantity(t *testing.T) {
	v, err := decodeHexQuantity("0x1b4")
	require.NoError(t, err)
	assert.EqualValues(t, 436, v)

	v, err = decodeHexQuantity("0x01b4")
	require.NoError(t, err)
	assert.EqualValues(t, 436, v)

	_, err = decodeHexQuantity("")
	assert.Error(t, err)
}
