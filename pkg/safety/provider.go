package safety

import (
	"github.com/systerel/S2OPC-sub031/pkg/logx"
	"github.com/systerel/S2OPC-sub031/pkg/spdu"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// ProviderState is the provider's two-state machine (spec.md §4.3.4).
type ProviderState uint8

const (
	ProviderInit ProviderState = iota
	ProviderRunning
)

// ProviderOpt configures a Provider at construction, mirroring the
// functional-options idiom the teacher module builds its clients with
// (a New(...Opt) constructor folding options into a cfg before use).
type ProviderOpt func(*Provider)

// WithProviderLogger attaches a logger to a Provider.
func WithProviderLogger(l logx.Logger) ProviderOpt {
	return func(p *Provider) { p.logger = l }
}

// Provider is the C3 SafetyProvider instance: monitoring-number echo,
// CRC build, and fail-safe-aware response composition, run once per
// cycle by the UAM mapper (C4).
type Provider struct {
	cfg      uas.ProviderConfig
	registry *spdu.Registry
	crc      CRC32Func
	logger   logx.Logger

	requestId  uint32 // numeric id this provider reads its RequestSPDU from
	responseId uint32 // numeric id this provider writes its ResponseSPDU to

	state ProviderState

	// buf holds the working safe/non-safe data snapshotted from the
	// application's input SAPI on the cycle it sets appDone (spec.md
	// §4.3.4 step 1) and the data last published in a response.
	buf         Buffers
	testMode    bool
	ackProvider bool
	activateFsv bool
	hasValid    bool

	lastEchoedMnr    uint32
	lastConsumerId   uint32
	lastRequestFlags uint8
}

// NewProvider constructs a Provider bound to registry, reading its
// RequestSPDU from requestId and writing its ResponseSPDU to
// responseId. Both ids must already be registered with registry via
// CreateRequest/CreateResponse (spec.md §4.2).
func NewProvider(cfg uas.ProviderConfig, registry *spdu.Registry, requestId, responseId uint32, crc CRC32Func, opts ...ProviderOpt) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		cfg:        cfg,
		registry:   registry,
		crc:        crc,
		logger:     logx.Nop{},
		requestId:  requestId,
		responseId: responseId,
		state:      ProviderInit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start transitions the provider from init to running (spec.md §4.4,
// "invokes each instance's start").
func (p *Provider) Start() {
	p.state = ProviderRunning
}

// Clear resets the provider's working buffers and echoed state,
// without releasing the underlying arrays (spec.md §4.4: buffers are
// owned by the instance, zeroed rather than freed at Clear).
func (p *Provider) Clear() {
	p.buf.Clear()
	p.lastEchoedMnr = 0
	p.lastConsumerId = 0
	p.lastRequestFlags = 0
	p.state = ProviderInit
}

// ErrNoData is returned by Cycle when appDone was false: "the state
// machine returns no-data; the mapper does not publish this cycle and
// the previous response remains in the cache" (spec.md §4.3.4).
var ErrNoData = uas.New(uas.KindInvalidState, "no-data")

// Cycle runs one execution of the provider state machine (spec.md
// §4.3.4 steps 1-5). appDone/commDone are the sync flags the UAM
// mapper (C4) computes for this cycle; input is read only when
// appDone is true.
func (p *Provider) Cycle(appDone, commDone bool, input uas.ProviderInputSAPI) (uas.ProviderOutputSAPI, error) {
	if !appDone {
		return uas.ProviderOutputSAPI{}, ErrNoData
	}

	// Step 1: snapshot input SAPI into internal working buffers.
	p.buf.InputSafe = append(p.buf.InputSafe[:0], input.SafeData...)
	p.buf.InputNonSafe = append(p.buf.InputNonSafe[:0], input.NonSafeData...)
	p.testMode = input.TestModeActivated
	p.ackProvider = input.OperatorAckProvider
	p.activateFsv = input.ActivateFSV
	p.hasValid = input.HasValidData

	// Step 2: if commDone, read the freshest RequestSPDU and extract
	// the fields to echo.
	if commDone {
		req, err := p.registry.GetRequest(p.requestId)
		if err != nil {
			p.logger.Log(logx.LevelWarn, "provider failed to read request", "err", err)
		} else {
			p.lastConsumerId = req.SafetyConsumerId
			p.lastEchoedMnr = req.MonitoringNumber
			p.lastRequestFlags = req.Flags
		}
	}

	// Step 3: compose the response. Its payloads have the configured
	// lengths: shorter input is zero-padded, longer input truncated.
	var flags uint8
	flags = Set(flags, FlagCommError, !p.hasValid)
	flags = Set(flags, FlagFsvActivated, !p.hasValid)
	flags = Set(flags, FlagActivateFsv, p.activateFsv)
	flags = Set(flags, FlagTestModeActivated, p.testMode)
	flags = Set(flags, FlagOperatorAckProvider, p.ackProvider)
	flags = Set(flags, FlagOperatorAckRequested, Has(p.lastRequestFlags, FlagOperatorAckRequested))

	resp := spdu.ResponseSPDU{
		SafeData:         make([]byte, p.cfg.SafetyDataLength),
		NonSafeData:      make([]byte, p.cfg.NonSafetyDataLength),
		Flags:            flags,
		SpduId:           p.cfg.SpduId,
		SafetyConsumerId: p.lastConsumerId,
		MonitoringNumber: p.lastEchoedMnr,
	}
	copy(resp.SafeData, p.buf.InputSafe)
	copy(resp.NonSafeData, p.buf.InputNonSafe)
	p.buf.OutputSafe = append(p.buf.OutputSafe[:0], resp.SafeData...)
	p.buf.OutputNonSafe = append(p.buf.OutputNonSafe[:0], resp.NonSafeData...)

	// Step 4: compute the CRC over the canonical concatenation.
	resp.CRC = p.crc(canonicalCRCInput(resp.SafeData, resp.NonSafeData, resp.SpduId, resp.SafetyConsumerId, resp.MonitoringNumber, resp.Flags, p.cfg.SafetyProviderLevel))

	// Step 5: write the response back to the codec.
	if err := p.registry.SetResponse(p.responseId, resp); err != nil {
		return uas.ProviderOutputSAPI{}, err
	}

	return uas.ProviderOutputSAPI{PublishedFlags: flags}, nil
}
