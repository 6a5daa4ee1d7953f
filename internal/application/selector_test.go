package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chainhealth/internal/adapter/storage/memory"
	"chainhealth/internal/domain"
	"chainhealth/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type selectorFixture struct {
	catalog      *fakeCatalog
	unhealthy    *memory.UnhealthyCache
	reachability *fakeReachability
	liveness     *fakeLiveness
	observer     *countingObserver
	selector     *Selector
}

func newSelectorFixture(chains []entity.Chain, unreachable ...string) *selectorFixture {
	f := &selectorFixture{
		catalog:      newFakeCatalog(chains...),
		unhealthy:    memory.NewUnhealthyCache(time.Minute, zap.NewNop()),
		reachability: newFakeReachability(unreachable...),
		observer:     &countingObserver{},
	}
	f.liveness = newFakeLiveness(f.unhealthy)
	f.selector = NewSelector(f.catalog, f.unhealthy, f.reachability, f.liveness, f.observer, zap.NewNop())
	return f
}

func rpcChain(name string, addrs ...string) entity.Chain {
	return entity.Chain{Name: name, APIs: map[entity.Kind][]entity.Endpoint{entity.KindRPC: endpoints(entity.KindRPC, addrs...)}}
}

func TestSelectFindsSingleHealthyCandidateAtAnyPosition(t *testing.T) {
	for pos := 0; pos < 5; pos++ {
		t.Run(fmt.Sprintf("position %d", pos), func(t *testing.T) {
			addrs := make([]string, 5)
			for i := range addrs {
				addrs[i] = fmt.Sprintf("https://rpc%d.example", i)
			}
			f := newSelectorFixture([]entity.Chain{rpcChain("osmosis", addrs...)})
			for i, a := range addrs {
				if i != pos {
					f.liveness.set(entity.Address(a), entity.ReasonStale)
				}
			}

			got, err := f.selector.Select(context.Background(), "osmosis", entity.KindRPC)
			require.NoError(t, err)
			assert.Equal(t, entity.Address(addrs[pos]), got.Address)
			assert.Equal(t, fmt.Sprintf("p%d", pos), got.Provider)

			for i := pos + 1; i < len(addrs); i++ {
				assert.Zero(t, f.liveness.probeCount(entity.Address(addrs[i])), "candidates after the winner are not probed")
			}
		})
	}
}

func TestSelectFirstHealthyWinsInDeclaredOrder(t *testing.T) {
	f := newSelectorFixture([]entity.Chain{rpcChain("juno", "https://a.example", "https://b.example")})

	got, err := f.selector.Select(context.Background(), "juno", entity.KindRPC)
	require.NoError(t, err)
	assert.Equal(t, entity.Address("https://a.example"), got.Address)
	assert.Zero(t, f.liveness.probeCount("https://b.example"))
}

func TestSelectAllDeadReturnsUnknown(t *testing.T) {
	f := newSelectorFixture([]entity.Chain{rpcChain("akash", "https://a.example", "https://b.example", "https://c.example")})
	f.liveness.set("https://a.example", entity.ReasonTimeout)
	f.liveness.set("https://b.example", entity.ReasonMalformedResponse)
	f.liveness.set("https://c.example", entity.ReasonStale)

	got, err := f.selector.Select(context.Background(), "akash", entity.KindRPC)
	require.NoError(t, err)
	assert.True(t, got.IsUnknown())
	assert.Equal(t, entity.UnknownLabel, got.String())
	assert.Equal(t, 3, f.unhealthy.Size())
}

func TestSelectEmptyCandidatesReturnsUnknown(t *testing.T) {
	f := newSelectorFixture([]entity.Chain{{Name: "empty"}})

	got, err := f.selector.Select(context.Background(), "empty", entity.KindREST)
	require.NoError(t, err)
	assert.True(t, got.IsUnknown())
}

func TestSelectNeverProbesInsecureCandidates(t *testing.T) {
	f := newSelectorFixture([]entity.Chain{rpcChain("cosmoshub", "http://plain.example", "ws://plain-ws.example")})

	got, err := f.selector.Select(context.Background(), "cosmoshub", entity.KindRPC)
	require.NoError(t, err)
	assert.True(t, got.IsUnknown())
	assert.Zero(t, f.liveness.total())
	assert.Zero(t, f.reachability.total())
	assert.Zero(t, f.unhealthy.Size(), "policy rejections are not suppressed")
}

func TestSelectSkipsSuppressedUntilSweep(t *testing.T) {
	f := newSelectorFixture([]entity.Chain{rpcChain("osmosis", "https://a.example", "https://b.example")})
	f.unhealthy.Suppress("https://a.example")

	got, err := f.selector.Select(context.Background(), "osmosis", entity.KindRPC)
	require.NoError(t, err)
	assert.Equal(t, entity.Address("https://b.example"), got.Address)
	assert.Zero(t, f.liveness.probeCount("https://a.example"))
	assert.EqualValues(t, 1, f.observer.skips.Load())

	f.unhealthy.Sweep()

	got, err = f.selector.Select(context.Background(), "osmosis", entity.KindRPC)
	require.NoError(t, err)
	assert.Equal(t, entity.Address("https://a.example"), got.Address)
	assert.Equal(t, 1, f.liveness.probeCount("https://a.example"))
}

func TestSelectUnreachableThenStaleThenHealthy(t *testing.T) {
	f := newSelectorFixture(
		[]entity.Chain{rpcChain("stargaze", "https://a.example", "https://b.example", "https://c.example")},
		"a.example",
	)
	f.liveness.set("https://b.example", entity.ReasonStale)

	got, err := f.selector.Select(context.Background(), "stargaze", entity.KindRPC)
	require.NoError(t, err)
	assert.Equal(t, entity.Address("https://c.example"), got.Address)
	assert.True(t, f.unhealthy.IsSuppressed("https://a.example"))
	assert.True(t, f.unhealthy.IsSuppressed("https://b.example"))
	assert.False(t, f.unhealthy.IsSuppressed("https://c.example"))
	assert.Zero(t, f.liveness.probeCount("https://a.example"), "unreachable hosts are not probed")

	got, err = f.selector.Select(context.Background(), "stargaze", entity.KindRPC)
	require.NoError(t, err)
	assert.Equal(t, entity.Address("https://c.example"), got.Address)
	assert.Equal(t, 1, f.liveness.probeCount("https://b.example"))
	assert.Equal(t, 2, f.liveness.probeCount("https://c.example"))
	assert.Equal(t, 1, f.reachability.lookups["a.example"])
}

func TestSelectUnsupportedKindReturnsUnknown(t *testing.T) {
	chain := entity.Chain{Name: "osmosis", APIs: map[entity.Kind][]entity.Endpoint{
		entity.KindGRPC: endpoints(entity.KindGRPC, "grpc.example:9090"),
	}}
	f := newSelectorFixture([]entity.Chain{chain})

	got, err := f.selector.Select(context.Background(), "osmosis", entity.KindGRPC)
	require.NoError(t, err)
	assert.True(t, got.IsUnknown())
	assert.Zero(t, f.liveness.total())
}

func TestSelectUnknownChain(t *testing.T) {
	f := newSelectorFixture(nil)

	got, err := f.selector.Select(context.Background(), "nope", entity.KindRPC)
	assert.ErrorIs(t, err, domain.ErrChainNotFound)
	assert.True(t, got.IsUnknown())
}

func TestSelectCancelledCallerDoesNotSuppress(t *testing.T) {
	f := newSelectorFixture([]entity.Chain{rpcChain("osmosis", "https://a.example", "https://b.example")})
	release := f.liveness.block()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan entity.Endpoint, 1)
	go func() {
		got, _ := f.selector.Select(ctx, "osmosis", entity.KindRPC)
		done <- got
	}()

	<-f.liveness.started
	cancel()

	got := <-done
	assert.True(t, got.IsUnknown())
	assert.Zero(t, f.unhealthy.Size())
	assert.Zero(t, f.liveness.probeCount("https://b.example"), "the search stops once the caller is gone")
}

func TestSelectMalformedAddressIsSuppressed(t *testing.T) {
	f := newSelectorFixture([]entity.Chain{rpcChain("osmosis", "https://", "https://b.example")})

	got, err := f.selector.Select(context.Background(), "osmosis", entity.KindRPC)
	require.NoError(t, err)
	assert.Equal(t, entity.Address("https://b.example"), got.Address)
	assert.True(t, f.unhealthy.IsSuppressed("https://"))
}

func TestSelectLogsBlockAgeOfRejectedCandidates(t *testing.T) {
	f := newSelectorFixture([]entity.Chain{rpcChain("osmosis", "http://plain.example", "https://stale.example", "https://live.example")})
	f.liveness.set("https://stale.example", entity.ReasonStale)

	core, logs := observer.New(zapcore.DebugLevel)
	selector := NewSelector(f.catalog, f.unhealthy, f.reachability, f.liveness, f.observer, zap.New(core))

	got, err := selector.Select(context.Background(), "osmosis", entity.KindRPC)
	require.NoError(t, err)
	assert.Equal(t, entity.Address("https://live.example"), got.Address)

	rejected := logs.FilterMessage("Candidate rejected").All()
	require.Len(t, rejected, 2)

	insecure := rejected[0].ContextMap()
	assert.Equal(t, "http://plain.example", insecure["address"])
	assert.Equal(t, string(entity.ReasonInsecureScheme), insecure["reason"])
	assert.NotContains(t, insecure, "blockAge")

	stale := rejected[1].ContextMap()
	assert.Equal(t, string(entity.ReasonStale), stale["reason"])
	require.Contains(t, stale, "blockAge")
	assert.GreaterOrEqual(t, stale["blockAge"], time.Minute)
}
