// Package uam implements the C4 mapper of spec.md §4.4: a process-wide
// registry of provider and consumer instances plus the per-cycle
// executor that runs them in the order the concurrency model (§5)
// requires — every provider before any consumer.
package uam

import (
	"context"

	"github.com/systerel/S2OPC-sub031/pkg/cache"
	"github.com/systerel/S2OPC-sub031/pkg/logx"
	"github.com/systerel/S2OPC-sub031/pkg/safety"
	"github.com/systerel/S2OPC-sub031/pkg/spdu"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// ProviderAppCycle is the application callback a provider instance is
// driven by each cycle (spec.md §4.4: "Application cycle callbacks per
// instance"). It receives the output SAPI the instance published last
// cycle (the zero value on the first cycle) and returns this cycle's
// input SAPI.
type ProviderAppCycle func(prev uas.ProviderOutputSAPI) uas.ProviderInputSAPI

// ConsumerAppCycle is the consumer-side equivalent of ProviderAppCycle.
type ConsumerAppCycle func(prev uas.ConsumerOutputSAPI) uas.ConsumerInputSAPI

type providerEntry struct {
	instance *safety.Provider
	appCycle ProviderAppCycle
	lastOut  uas.ProviderOutputSAPI
}

type consumerEntry struct {
	instance *safety.Consumer
	appCycle ConsumerAppCycle
	lastOut  uas.ConsumerOutputSAPI
}

// Option configures a Mapper at construction.
type Option func(*Mapper)

// WithLogger attaches a logger to a Mapper.
func WithLogger(l logx.Logger) Option {
	return func(m *Mapper) { m.logger = l }
}

// WithCapacity bounds the number of provider and consumer instances a
// Mapper will register, mirroring "bounded arrays... compile-time
// constants of the safety stack" (spec.md §4.4) translated to a
// configurable capacity a Go caller sets once at construction. Default
// is 32.
func WithCapacity(n int) Option {
	return func(m *Mapper) { m.capacity = n }
}

// Mapper is the C4 component: setup-phase registration of provider and
// consumer instances, followed by a running phase that only executes
// Cycle/Clear (spec.md §4.4, §5).
type Mapper struct {
	cache    *cache.Cache
	registry *spdu.Registry
	logger   logx.Logger
	capacity int

	locked bool

	providers []*providerEntry
	consumers []*consumerEntry
}

// NewMapper constructs an unlocked Mapper with its own Cache and SPDU
// Registry (spec.md §4.4's "initialise": zero arrays, unlock
// registry).
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{
		logger:   logx.Nop{},
		capacity: 32,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = cache.New()
	m.registry = spdu.NewRegistry(m.cache)
	return m
}

// Cache exposes the Mapper's backing cache, for a pub/sub scheduler to
// drive GetSource/SetTarget against (spec.md §4.1, §6).
func (m *Mapper) Cache() *cache.Cache { return m.cache }

// Registry exposes the Mapper's SPDU codec registry, for a bridge
// implementation to read/write raw wire bytes against (spec.md §4.5)
// or a test harness to inject transport faults directly at the codec
// layer.
func (m *Mapper) Registry() *spdu.Registry { return m.registry }

// ensureRequestSlot creates the request slot for numericId if it is
// not already registered, letting a provider and the consumer(s) it
// talks to share a slot by agreeing on numericId out-of-band (spec.md
// §6) rather than each minting their own.
func (m *Mapper) ensureRequestSlot(numericId uint32, node uas.NodeId) error {
	if m.registry.HasRequest(numericId) {
		return nil
	}
	return m.registry.CreateRequest(numericId, node)
}

func (m *Mapper) ensureResponseSlot(numericId uint32, node uas.NodeId, ns, nns int) error {
	if m.registry.HasResponse(numericId) {
		return nil
	}
	return m.registry.CreateResponse(numericId, node, ns, nns)
}

// InitSafetyProvider registers a SafetyProvider instance, seeding its
// RequestSPDU/ResponseSPDU codec slots at requestNode/responseNode
// under requestId/responseId. The companion InitSafetyConsumer call(s)
// pass the same ids to attach to the same slots. Fails with
// uas.ErrInvalidState once StartSafety has run, and with
// uas.ErrOutOfMemory once the Mapper's capacity is exhausted (spec.md
// §4.4).
func (m *Mapper) InitSafetyProvider(cfg uas.ProviderConfig, requestId, responseId uint32, requestNode, responseNode uas.NodeId, crc safety.CRC32Func, appCycle ProviderAppCycle, opts ...safety.ProviderOpt) (uas.ProviderHandle, error) {
	if m.locked {
		return uas.ProviderHandle(uas.NoHandle), uas.New(uas.KindInvalidState, "mapper already started")
	}
	if len(m.providers) >= m.capacity {
		return uas.ProviderHandle(uas.NoHandle), uas.ErrOutOfMemory
	}

	if err := m.ensureRequestSlot(requestId, requestNode); err != nil {
		return uas.ProviderHandle(uas.NoHandle), err
	}
	if err := m.ensureResponseSlot(responseId, responseNode, int(cfg.SafetyDataLength), int(cfg.NonSafetyDataLength)); err != nil {
		return uas.ProviderHandle(uas.NoHandle), err
	}

	p, err := safety.NewProvider(cfg, m.registry, requestId, responseId, crc, opts...)
	if err != nil {
		return uas.ProviderHandle(uas.NoHandle), err
	}
	if appCycle == nil {
		appCycle = func(uas.ProviderOutputSAPI) uas.ProviderInputSAPI { return uas.ProviderInputSAPI{} }
	}

	handle := uas.ProviderHandle(len(m.providers))
	m.providers = append(m.providers, &providerEntry{instance: p, appCycle: appCycle})
	return handle, nil
}

// InitSafetyConsumer registers a SafetyConsumer instance, the
// consumer-side equivalent of InitSafetyProvider.
func (m *Mapper) InitSafetyConsumer(cfg uas.ConsumerConfig, requestId, responseId uint32, requestNode, responseNode uas.NodeId, crc safety.CRC32Func, appCycle ConsumerAppCycle, opts ...safety.ConsumerOpt) (uas.ConsumerHandle, error) {
	if m.locked {
		return uas.ConsumerHandle(uas.NoHandle), uas.New(uas.KindInvalidState, "mapper already started")
	}
	if len(m.consumers) >= m.capacity {
		return uas.ConsumerHandle(uas.NoHandle), uas.ErrOutOfMemory
	}

	if err := m.ensureRequestSlot(requestId, requestNode); err != nil {
		return uas.ConsumerHandle(uas.NoHandle), err
	}
	if err := m.ensureResponseSlot(responseId, responseNode, int(cfg.SafetyDataLength), int(cfg.NonSafetyDataLength)); err != nil {
		return uas.ConsumerHandle(uas.NoHandle), err
	}

	c, err := safety.NewConsumer(cfg, m.registry, requestId, responseId, crc, opts...)
	if err != nil {
		return uas.ConsumerHandle(uas.NoHandle), err
	}
	if appCycle == nil {
		appCycle = func(uas.ConsumerOutputSAPI) uas.ConsumerInputSAPI { return uas.ConsumerInputSAPI{} }
	}

	handle := uas.ConsumerHandle(len(m.consumers))
	m.consumers = append(m.consumers, &consumerEntry{instance: c, appCycle: appCycle})
	return handle, nil
}

// StartSafety transitions the Mapper from setup to running: starts
// every registered provider and locks the registry against further
// registration (spec.md §4.4).
func (m *Mapper) StartSafety() error {
	if m.locked {
		return uas.New(uas.KindInvalidState, "mapper already started")
	}
	for _, p := range m.providers {
		p.instance.Start()
	}
	m.locked = true
	return nil
}

// Consumer returns the registered Consumer for handle, for a caller
// that needs its State()/Diag() between cycles.
func (m *Mapper) Consumer(h uas.ConsumerHandle) (*safety.Consumer, bool) {
	if int(h) < 0 || int(h) >= len(m.consumers) {
		return nil, false
	}
	return m.consumers[h].instance, true
}

// Provider returns the registered Provider for handle.
func (m *Mapper) Provider(h uas.ProviderHandle) (*safety.Provider, bool) {
	if int(h) < 0 || int(h) >= len(m.providers) {
		return nil, false
	}
	return m.providers[h].instance, true
}

// CycleReport is the aggregate status spec.md §7 describes ("the cycle
// returns a single aggregate status") instead of a bare error per
// instance.
type CycleReport struct {
	ProvidersRun int
	ConsumersRun int
	FirstError   error
}

// Cycle executes, in order, every provider then every consumer (spec.md
// §4.4, §5's ordering guarantee), driving each through its appCycle
// callback. appDone/commDone are the scheduler's sync flags for this
// tick, applied uniformly to every instance. A provider's
// safety.ErrNoData is expected behaviour (no publish this tick) and
// does not count as a report error; any other error is recorded as the
// report's first error but does not stop later instances from running.
func (m *Mapper) Cycle(ctx context.Context, appDone, commDone bool) CycleReport {
	var report CycleReport

	for _, p := range m.providers {
		if ctx.Err() != nil {
			report.FirstError = ctx.Err()
			return report
		}
		in := p.appCycle(p.lastOut)
		out, err := p.instance.Cycle(appDone, commDone, in)
		if err != nil && err != safety.ErrNoData {
			m.logger.Log(logx.LevelWarn, "provider cycle failed", "err", err)
			if report.FirstError == nil {
				report.FirstError = err
			}
		} else {
			p.lastOut = out
		}
		report.ProvidersRun++
	}

	for _, c := range m.consumers {
		if ctx.Err() != nil {
			if report.FirstError == nil {
				report.FirstError = ctx.Err()
			}
			return report
		}
		in := c.appCycle(c.lastOut)
		out, err := c.instance.Cycle(appDone, commDone, in)
		if err != nil {
			m.logger.Log(logx.LevelWarn, "consumer cycle failed", "err", err)
			if report.FirstError == nil {
				report.FirstError = err
			}
		}
		c.lastOut = out
		report.ConsumersRun++
	}

	return report
}

// Clear stops every instance, zeroes its buffers, and resets the SPDU
// registry, returning the Mapper to its setup phase (spec.md §4.4).
func (m *Mapper) Clear() {
	for _, p := range m.providers {
		p.instance.Clear()
		p.lastOut = uas.ProviderOutputSAPI{}
	}
	for _, c := range m.consumers {
		c.instance.Clear()
		c.lastOut = uas.ConsumerOutputSAPI{}
	}
	m.registry.Clear()
	m.locked = false
}
