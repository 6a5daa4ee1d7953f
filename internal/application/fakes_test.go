package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chainhealth/internal/domain"
	"chainhealth/internal/domain/entity"
	domainRepo "chainhealth/internal/domain/repository"
)

type fakeCatalog struct {
	chains map[string]entity.Chain
	gets   atomic.Int32
}

func newFakeCatalog(chains ...entity.Chain) *fakeCatalog {
	c := &fakeCatalog{chains: make(map[string]entity.Chain)}
	for _, chain := range chains {
		c.chains[chain.Name] = chain
	}
	return c
}

func (c *fakeCatalog) GetChain(_ context.Context, chain string) (entity.Chain, error) {
	c.gets.Add(1)
	found, ok := c.chains[chain]
	if !ok {
		return entity.Chain{}, fmt.Errorf("%w: %s", domain.ErrChainNotFound, chain)
	}
	return found, nil
}

func (c *fakeCatalog) ListChains(context.Context) ([]string, error) {
	names := make([]string, 0, len(c.chains))
	for name := range c.chains {
		names = append(names, name)
	}
	return names, nil
}

type fakeReachability struct {
	mu          sync.Mutex
	unreachable map[string]bool
	lookups     map[string]int
}

func newFakeReachability(unreachable ...string) *fakeReachability {
	r := &fakeReachability{unreachable: make(map[string]bool), lookups: make(map[string]int)}
	for _, host := range unreachable {
		r.unreachable[host] = true
	}
	return r
}

func (r *fakeReachability) Reachable(_ context.Context, hostname string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[hostname]++
	return !r.unreachable[hostname]
}

func (r *fakeReachability) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.lookups {
		n += c
	}
	return n
}

// fakeLiveness judges endpoints by a preset reason. It suppresses failures the way the real prober does.
type fakeLiveness struct {
	unhealthy domainRepo.UnhealthyRepository

	mu       sync.Mutex
	outcomes map[entity.Address]entity.Reason
	probes   map[entity.Address]int
	gate     chan struct{}
	started  chan struct{}
}

func newFakeLiveness(unhealthy domainRepo.UnhealthyRepository) *fakeLiveness {
	return &fakeLiveness{
		unhealthy: unhealthy,
		outcomes:  make(map[entity.Address]entity.Reason),
		probes:    make(map[entity.Address]int),
	}
}

func (l *fakeLiveness) set(addr entity.Address, reason entity.Reason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes[addr] = reason
}

// block makes probes wait until release is called. started receives one value per probe.
func (l *fakeLiveness) block() (release func()) {
	l.gate = make(chan struct{})
	l.started = make(chan struct{}, 64)
	return func() { close(l.gate) }
}

func (l *fakeLiveness) Supports(kind entity.Kind) bool {
	return kind == entity.KindRPC || kind == entity.KindREST || kind == entity.KindEVM
}

func (l *fakeLiveness) Probe(ctx context.Context, endpoint entity.Endpoint) entity.ProbeVerdict {
	l.mu.Lock()
	l.probes[endpoint.Address]++
	reason := l.outcomes[endpoint.Address]
	l.mu.Unlock()

	verdict := entity.ProbeVerdict{Address: endpoint.Address, Kind: endpoint.Kind, CheckedAt: time.Now()}

	if l.gate != nil {
		l.started <- struct{}{}
		select {
		case <-l.gate:
		case <-ctx.Done():
			verdict.Reason = entity.ReasonCancelled
			return verdict
		}
	}

	if reason == entity.ReasonNone {
		verdict.Healthy = true
		verdict.LatestBlockTime = time.Now()
		return verdict
	}
	verdict.Reason = reason
	if reason == entity.ReasonStale {
		verdict.LatestBlockTime = time.Now().Add(-2 * time.Minute)
	}
	if reason.Suppresses() {
		l.unhealthy.Suppress(endpoint.Address)
	}
	return verdict
}

func (l *fakeLiveness) probeCount(addr entity.Address) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.probes[addr]
}

func (l *fakeLiveness) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.probes {
		n += c
	}
	return n
}

type countingObserver struct {
	verdicts      atomic.Int32
	skips         atomic.Int32
	selections    atomic.Int32
	invalidations sync.Map
}

func (o *countingObserver) ObserveVerdict(entity.ProbeVerdict) { o.verdicts.Add(1) }
func (o *countingObserver) ObserveSuppressedSkip(entity.Kind) { o.skips.Add(1) }
func (o *countingObserver) ObserveSelection(entity.Kind, bool, time.Duration) { o.selections.Add(1) }
func (o *countingObserver) ObserveInvalidation(cause string) {
	n, _ := o.invalidations.LoadOrStore(cause, new(atomic.Int32))
	n.(*atomic.Int32).Add(1)
}

func (o *countingObserver) invalidationCount(cause string) int32 {
	n, ok := o.invalidations.Load(cause)
	if !ok {
		return 0
	}
	return n.(*atomic.Int32).Load()
}

func endpoints(kind entity.Kind, addrs ...string) []entity.Endpoint {
	out := make([]entity.Endpoint, 0, len(addrs))
	for i, a := range addrs {
		out = append(out, entity.Endpoint{Address: entity.Address(a), Provider: fmt.Sprintf("p%d", i), Kind: kind})
	}
	return out
}
