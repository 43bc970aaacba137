package safety

import (
	"github.com/systerel/S2OPC-sub031/pkg/logx"
	"github.com/systerel/S2OPC-sub031/pkg/spdu"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// ConsumerState is the consumer's five-state machine (spec.md §4.3.5).
type ConsumerState uint8

const (
	ConsumerInit ConsumerState = iota
	ConsumerActivating
	ConsumerValid
	ConsumerFault
	ConsumerClosed
)

func (s ConsumerState) String() string {
	switch s {
	case ConsumerInit:
		return "init"
	case ConsumerActivating:
		return "activating"
	case ConsumerValid:
		return "valid"
	case ConsumerFault:
		return "fault"
	case ConsumerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConsumerOpt configures a Consumer at construction.
type ConsumerOpt func(*Consumer)

// WithConsumerLogger attaches a logger to a Consumer.
func WithConsumerLogger(l logx.Logger) ConsumerOpt {
	return func(c *Consumer) { c.logger = l }
}

// WithConsumerClock overrides the clock a Consumer uses for timeout
// and error-interval bookkeeping. Tests substitute a uas.FakeClock;
// production callers leave this at uas.NewSystemClock().
func WithConsumerClock(clk uas.Clock) ConsumerOpt {
	return func(c *Consumer) { c.clock = clk }
}

// Consumer is the C3 SafetyConsumer instance: monitoring-number
// generation, response validation (length, spduId, consumerId, MNR,
// CRC, timeout), fail-safe output, and the fault/operator-ack latch.
type Consumer struct {
	cfg      uas.ConsumerConfig
	registry *spdu.Registry
	crc      CRC32Func
	logger   logx.Logger
	clock    uas.Clock

	requestId  uint32
	responseId uint32

	state ConsumerState

	// buf holds the safe/non-safe data extracted from the last
	// accepted response (spec.md §4.4's per-instance buffer
	// ownership). It is the value returned to the application on every
	// cycle the state stays valid, not just the cycle a fresh response
	// was accepted on (Design Note §9).
	buf Buffers

	// lastFsvActivated is the FSV_ACTIVATED flag of the last accepted
	// response. In practice this is always false once reachable: a
	// response with either FSV flag set fails validate() and never
	// reaches acceptance, so a valid cycle never republishes it true.
	lastFsvActivated bool

	// mnr is the monitoring number this consumer published on the
	// previous cycle. A response accepted this cycle must echo mnr,
	// not the value generated and written this cycle: the request is
	// always written before the response is read, so the freshest
	// response in the cache is still answering last cycle's request
	// (spec.md §4.3.5, the MNR tie-break).
	mnr uint32

	lastAcceptedMnr  uint32
	lastAcceptedTime int64
	// hasAccepted distinguishes "lastAcceptedTime is a real timestamp of
	// zero" from "never accepted anything yet" — a FakeClock in tests
	// legitimately reports 0 before the first Advance, so lastAcceptedTime
	// itself can't serve as its own sentinel.
	hasAccepted  bool
	faultCounter uint32
	lastError    uas.ErrorKind

	// errorTimes is a sliding window of recent validation-failure
	// timestamps, pruned to cfg.SafetyErrorIntervalLimit on every
	// failure. It is bookkeeping only: every failure that reaches fail()
	// while valid latches Fault immediately (spec.md §4.3.5's transition
	// table has no grace period), no transition reads the window, and
	// Diag() does not report it.
	errorTimes []int64

	pendingAck bool
}

// NewConsumer constructs a Consumer bound to registry, writing its
// RequestSPDU to requestId and reading its ResponseSPDU from
// responseId.
func NewConsumer(cfg uas.ConsumerConfig, registry *spdu.Registry, requestId, responseId uint32, crc CRC32Func, opts ...ConsumerOpt) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Consumer{
		cfg:        cfg,
		registry:   registry,
		crc:        crc,
		logger:     logx.Nop{},
		clock:      uas.NewSystemClock(),
		requestId:  requestId,
		responseId: responseId,
		state:      ConsumerInit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State reports the consumer's current state.
func (c *Consumer) State() ConsumerState { return c.state }

// Diag returns a snapshot of the consumer's diagnostic counters
// (spec.md §4.3.6).
func (c *Consumer) Diag() uas.DiagInfo {
	return uas.DiagInfo{
		FaultCounter:     c.faultCounter,
		LastAcceptedMnr:  c.lastAcceptedMnr,
		LastAcceptedTime: c.lastAcceptedTime,
		LastError:        c.lastError,
	}
}

// nextMnr advances the monitoring number, skipping zero on wraparound
// (spec.md §4.3.2: zero is reserved and never a valid MNR value).
func nextMnr(mnr uint32) uint32 {
	mnr++
	if mnr == 0 {
		mnr = 1
	}
	return mnr
}

// Close moves the consumer to its terminal state. A closed consumer
// no longer validates responses or publishes requests.
func (c *Consumer) Close() { c.state = ConsumerClosed }

// Clear resets the consumer's buffers and bookkeeping to their
// construction-time state, without releasing the error-window
// backing array (spec.md §4.4).
func (c *Consumer) Clear() {
	c.buf.Clear()
	c.lastFsvActivated = false
	c.state = ConsumerInit
	c.mnr = 0
	c.lastAcceptedMnr = 0
	c.lastAcceptedTime = 0
	c.hasAccepted = false
	c.faultCounter = 0
	c.lastError = uas.KindNone
	c.errorTimes = c.errorTimes[:0]
	c.pendingAck = false
}

// Cycle runs one execution of the consumer state machine. appDone
// gates whether the application's enable/ack inputs are consulted
// this cycle; commDone gates whether a response is read and
// validated. The returned output always reflects the current cycle's
// best-known safe state: the persisted last-accepted buffer while
// valid, or a forced fail-safe tuple otherwise (spec.md invariant 3).
func (c *Consumer) Cycle(appDone, commDone bool, input uas.ConsumerInputSAPI) (uas.ConsumerOutputSAPI, error) {
	if c.state == ConsumerClosed {
		return uas.ConsumerOutputSAPI{BFsvActivated: true}, uas.New(uas.KindInvalidState, "consumer closed")
	}

	ackedNow := false
	if appDone {
		if input.Enable && c.state == ConsumerInit {
			c.state = ConsumerActivating
		}
		if !input.Enable {
			c.state = ConsumerInit
		}
		if input.OperatorAckConsumer && c.state == ConsumerFault {
			c.pendingAck = true
			c.state = ConsumerActivating
			c.errorTimes = c.errorTimes[:0]
			// Restart the watchdog: its next baseline is the next
			// accepted response.
			c.hasAccepted = false
			ackedNow = true
		}
	}

	if c.state == ConsumerInit {
		return uas.ConsumerOutputSAPI{BFsvActivated: true}, nil
	}

	// The request is always written before the response is read, so
	// whatever response is freshest in the cache this cycle is still
	// answering the request published last cycle, not the one about to
	// be published now: the value to validate against is the MNR this
	// consumer published previously, captured here before it advances.
	expectedMnr := c.mnr

	c.mnr = nextMnr(c.mnr)
	reqFlags := Set(0, FlagOperatorAckRequested, input.OperatorAckRequested)
	req := spdu.RequestSPDU{SafetyConsumerId: c.cfg.SafetyConsumerId, MonitoringNumber: c.mnr, Flags: reqFlags}
	if err := c.registry.SetRequest(c.requestId, req); err != nil {
		return uas.ConsumerOutputSAPI{BFsvActivated: true}, err
	}

	// On the acknowledging cycle the response in the cache answers a
	// request published before the acknowledgement; recovery waits for
	// the round trip of a request published from this cycle on.
	if ackedNow {
		return c.currentOutput(), nil
	}

	// Watchdog: measured between the publication of a request and the
	// observation of a response echoing its MNR, not between physical
	// packet send and receive (spec.md §4.3.5). Evaluated unconditionally
	// every cycle, including cycles where commDone is false and no
	// response was even attempted, so genuine transport loss is caught
	// the same way a corrupted-but-present response is.
	if c.watchdogExpired(commDone) {
		c.fail(uas.KindTimeout)
		return c.currentOutput(), nil
	}

	if !commDone {
		return c.currentOutput(), nil
	}

	resp, err := c.registry.GetResponse(c.responseId)
	if err != nil {
		kind, ok := uas.KindOf(err)
		if !ok {
			kind = uas.KindNotFound
		}
		c.fail(kind)
		return c.currentOutput(), nil
	}

	kind, ok := c.validate(resp, expectedMnr)
	if !ok {
		if kind == uas.KindMNRStale {
			// A response echoing an MNR this consumer already retired
			// (a replay or a reordered duplicate) is silently dropped:
			// no counter, no lastError, no state change (spec.md §4.3.5,
			// "A response that arrives after its MNR has been retired is
			// silently dropped (no fault)"; §7's mnr-stale row).
			return c.currentOutput(), nil
		}
		c.fail(kind)
		return c.currentOutput(), nil
	}

	// Accepted: advance lastAccepted*, publish data, clear transient
	// pendingAck state, and settle activating -> valid.
	c.lastAcceptedMnr = resp.MonitoringNumber
	c.lastAcceptedTime = c.clock.NowMillis()
	c.hasAccepted = true
	c.lastError = uas.KindNone
	c.pendingAck = false
	if c.state == ConsumerActivating {
		c.state = ConsumerValid
	}

	c.buf.OutputSafe = append(c.buf.OutputSafe[:0], resp.SafeData...)
	c.buf.OutputNonSafe = append(c.buf.OutputNonSafe[:0], resp.NonSafeData...)
	c.lastFsvActivated = Has(resp.Flags, FlagFsvActivated)

	return c.currentOutput(), nil
}

// currentOutput returns the best-known output for this cycle. While
// valid it is the persisted safe/non-safe data from the last accepted
// response — Design Note §9: "output buffers must survive between the
// cycle that accepts a response and the cycle that clears them after
// fail-safe" — so a cycle that accepts nothing new (commDone false, or
// a silently-dropped stale MNR) keeps republishing the last known-good
// value instead of forcing a fail-safe tuple. In every other state it
// is the forced fail-safe tuple spec.md invariant 3 requires: all-zero
// safeData with bFsvActivated raised.
func (c *Consumer) currentOutput() uas.ConsumerOutputSAPI {
	if c.state != ConsumerValid {
		return uas.ConsumerOutputSAPI{BFsvActivated: true}
	}
	return uas.ConsumerOutputSAPI{
		SafeData:      append([]byte(nil), c.buf.OutputSafe...),
		NonSafeData:   append([]byte(nil), c.buf.OutputNonSafe...),
		BFsvActivated: c.lastFsvActivated,
	}
}

// watchdogExpired reports whether this cycle has gone stale relative
// to the last accepted response, per spec.md §4.3.5/§8. There is no
// baseline to measure against before the first acceptance, or before
// the first acceptance after an operator acknowledgement, so it never
// fires during initial activation or while recovering. With safetyConsumerTimeout == 0, a
// cycle with no response at all (commDone false) is itself a fault —
// the boundary behaviour spec.md §8 calls out explicitly — rather than
// the watchdog being a no-op.
func (c *Consumer) watchdogExpired(commDone bool) bool {
	if !c.hasAccepted {
		return false
	}
	limit := c.cfg.SafetyConsumerTimeout.Milliseconds()
	if limit <= 0 {
		return !commDone
	}
	elapsed := c.clock.NowMillis() - c.lastAcceptedTime
	return elapsed > limit
}

// validate runs the ordered checks spec.md §4.3.5 specifies: spduId,
// consumerId, MNR, then CRC. It returns the first failing kind, or
// KindNone with ok=true if resp passes every check. The timeout check
// (item f in §4.3.5's list) lives in watchdogExpired, evaluated once
// per cycle regardless of whether a response arrived, not here.
func (c *Consumer) validate(resp spdu.ResponseSPDU, expectedMnr uint32) (uas.ErrorKind, bool) {
	if resp.SpduId != c.cfg.SpduId {
		return uas.KindSpduIDMismatch, false
	}
	if resp.SafetyConsumerId != c.cfg.SafetyConsumerId {
		return uas.KindInvalidParameter, false
	}
	if resp.MonitoringNumber != expectedMnr {
		if mnrRetired(resp.MonitoringNumber, c.lastAcceptedMnr) {
			return uas.KindMNRStale, false
		}
		return uas.KindMNRMismatch, false
	}
	want := c.crc(canonicalCRCInput(resp.SafeData, resp.NonSafeData, resp.SpduId, resp.SafetyConsumerId, resp.MonitoringNumber, resp.Flags, c.cfg.SafetyProviderLevel))
	if want != resp.CRC {
		return uas.KindCRCError, false
	}
	if Has(resp.Flags, FlagActivateFsv) || Has(resp.Flags, FlagFsvActivated) {
		return uas.KindInvalidState, false
	}
	return uas.KindNone, true
}

// mnrRetired reports whether mnr is at or before the last MNR this
// consumer has already accepted — i.e. it echoes a freshness token
// that has already been consumed (spec.md invariant 2: "no MNR is
// accepted twice") rather than one this consumer never published at
// all. The former is a harmless replay; the latter is a genuine
// mismatch. Ignores 2^32 wraparound, which spec.md §8 treats as an MNR
// generation boundary, not a staleness-classification one.
func mnrRetired(mnr, lastAccepted uint32) bool {
	return lastAccepted != 0 && mnr <= lastAccepted
}

// fail records a validation failure and, if the consumer is currently
// valid, latches Fault immediately: spec.md §4.3.5's transition table
// defines only a valid -> fault edge for CRC/MNR/spduId mismatch,
// timeout, and ACTIVATE_FSV/FSV_ACTIVATED, with no multi-failure grace
// period. A failure reached while still activating (e.g. the transport
// hasn't echoed a real response yet) has no corresponding edge and
// leaves the consumer activating, awaiting the first clean response.
func (c *Consumer) fail(kind uas.ErrorKind) {
	now := c.clock.NowMillis()
	limit := c.cfg.SafetyErrorIntervalLimit.Milliseconds()
	kept := c.errorTimes[:0]
	for _, t := range c.errorTimes {
		if limit <= 0 || now-t <= limit {
			kept = append(kept, t)
		}
	}
	c.errorTimes = append(kept, now)
	c.faultCounter++
	c.lastError = kind

	if c.state == ConsumerValid {
		c.state = ConsumerFault
	}
}
