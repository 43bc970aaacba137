package safety

import (
	"testing"
	"time"

	"github.com/systerel/S2OPC-sub031/pkg/safety/crctest"
	"github.com/systerel/S2OPC-sub031/pkg/spdu"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// runCycle drives a provider then a consumer through one joint cycle,
// the same ordering the UAM mapper (C4) guarantees in production: all
// providers execute before any consumer (spec.md §4.4).
func runCycle(t *testing.T, p *Provider, c *Consumer, appDone bool, pin uas.ProviderInputSAPI, cin uas.ConsumerInputSAPI) uas.ConsumerOutputSAPI {
	t.Helper()
	if _, err := p.Cycle(appDone, appDone, pin); err != nil && err != ErrNoData {
		t.Fatalf("provider cycle: %v", err)
	}
	out, err := c.Cycle(appDone, appDone, cin)
	if err != nil {
		t.Fatalf("consumer cycle: %v", err)
	}
	return out
}

func TestConsumerStaysInitWithoutEnable(t *testing.T) {
	reg := newTestRegistry(t, 1, 2, 2, 0)
	c, err := NewConsumer(uas.ConsumerConfig{SafetyDataLength: 2}, reg, 1, 2, crctest.XOR4)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Cycle(true, false, uas.ConsumerInputSAPI{Enable: false})
	if err != nil {
		t.Fatal(err)
	}
	if c.State() != ConsumerInit || !out.BFsvActivated {
		t.Fatalf("want init+fsv, got state=%v fsv=%v", c.State(), out.BFsvActivated)
	}
}

func TestConsumerActivatesAfterSecondCycle(t *testing.T) {
	reg := newTestRegistry(t, 1, 2, 2, 0)
	pcfg := uas.ProviderConfig{SafetyDataLength: 2}
	ccfg := uas.ConsumerConfig{SafetyDataLength: 2, SafetyConsumerId: 7}
	p, err := NewProvider(pcfg, reg, 1, 2, crctest.XOR4)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewConsumer(ccfg, reg, 1, 2, crctest.XOR4)
	if err != nil {
		t.Fatal(err)
	}

	pin := uas.ProviderInputSAPI{SafeData: []byte{5, 6}, HasValidData: true}
	cin := uas.ConsumerInputSAPI{Enable: true}

	// cycle 1: the provider runs first and echoes the still-empty request
	// (consumerId 0, mnr 0); the consumer then publishes mnr=1 and
	// rejects that response on its consumerId, so it stays activating.
	out := runCycle(t, p, c, true, pin, cin)
	if c.State() != ConsumerActivating {
		t.Fatalf("want activating after cycle 1, got %v", c.State())
	}
	if !out.BFsvActivated {
		t.Fatalf("want fsv activated before first accepted response")
	}

	// cycle 2: the provider echoes the consumer's cycle-1 request
	// (mnr=1, which matches this cycle's expectedMnr), and the consumer
	// reads that response and transitions to valid.
	out = runCycle(t, p, c, true, pin, cin)
	if c.State() != ConsumerValid {
		t.Fatalf("want valid after cycle 2, got %v", c.State())
	}
	if out.BFsvActivated {
		t.Fatalf("want fsv cleared once valid")
	}
	if len(out.SafeData) != 2 || out.SafeData[0] != 5 || out.SafeData[1] != 6 {
		t.Fatalf("unexpected safe data: %v", out.SafeData)
	}
}

func TestConsumerDetectsCRCCorruption(t *testing.T) {
	reg := newTestRegistry(t, 1, 2, 2, 0)
	ccfg := uas.ConsumerConfig{SafetyDataLength: 2, SafetyConsumerId: 7}
	c, err := NewConsumer(ccfg, reg, 1, 2, crctest.XOR4)
	if err != nil {
		t.Fatal(err)
	}

	cin := uas.ConsumerInputSAPI{Enable: true}
	// cycle 1: publish mnr=1.
	if _, err := c.Cycle(true, false, cin); err != nil {
		t.Fatal(err)
	}
	// forge a response claiming to answer mnr=1 but with a bad CRC.
	if err := reg.SetResponse(2, spdu.ResponseSPDU{SafeData: []byte{1, 2}, MonitoringNumber: 1, SafetyConsumerId: 7, CRC: 0xBAD}); err != nil {
		t.Fatal(err)
	}
	// cycle 2: publish mnr=2, read and reject the forged response.
	out, err := c.Cycle(true, true, cin)
	if err != nil {
		t.Fatal(err)
	}
	if !out.BFsvActivated {
		t.Fatalf("want fail-safe output on CRC mismatch")
	}
	if c.Diag().LastError != uas.KindCRCError {
		t.Fatalf("want crc-error recorded, got %v", c.Diag().LastError)
	}
	// this fault lands while still activating (no response has ever been
	// accepted yet), and spec.md §4.3.5's transition table has no
	// activating -> fault edge, so it stays activating rather than
	// latching fault.
	if c.State() == ConsumerFault {
		t.Fatalf("a failure while activating has no fault edge to take")
	}
}

func TestConsumerLatchesFaultOnFirstErrorOnceValid(t *testing.T) {
	reg := newTestRegistry(t, 1, 2, 2, 0)
	ccfg := uas.ConsumerConfig{
		SafetyDataLength:         2,
		SafetyConsumerId:         7,
		SafetyErrorIntervalLimit: time.Second,
	}
	clk := uas.NewFakeClock()
	c, err := NewConsumer(ccfg, reg, 1, 2, crctest.XOR4, WithConsumerClock(clk))
	if err != nil {
		t.Fatal(err)
	}
	c.state = ConsumerValid // pretend we are already up and running

	cin := uas.ConsumerInputSAPI{Enable: true}
	if err := reg.SetResponse(2, spdu.ResponseSPDU{SafeData: []byte{0, 0}, SafetyConsumerId: 7, CRC: 0xBAD}); err != nil {
		t.Fatal(err)
	}
	// a single CRC mismatch while valid latches fault immediately:
	// spec.md §4.3.5's valid -> fault edge has no multi-failure grace
	// period, unlike the activating case above.
	if _, err := c.Cycle(true, true, cin); err != nil {
		t.Fatal(err)
	}
	if c.State() != ConsumerFault {
		t.Fatalf("want fault after a single error while valid, got %v", c.State())
	}

	// a second failure on an already-faulted consumer is a no-op, not a
	// re-trigger; faultCounter still advances for diagnostics.
	before := c.Diag().FaultCounter
	if _, err := c.Cycle(true, true, cin); err != nil {
		t.Fatal(err)
	}
	if c.State() != ConsumerFault {
		t.Fatalf("want still fault, got %v", c.State())
	}
	if c.Diag().FaultCounter != before+1 {
		t.Fatalf("want faultCounter to keep advancing, got %d -> %d", before, c.Diag().FaultCounter)
	}
}

func TestConsumerRecoversAfterOperatorAck(t *testing.T) {
	reg := newTestRegistry(t, 1, 2, 2, 0)
	pcfg := uas.ProviderConfig{SafetyDataLength: 2}
	ccfg := uas.ConsumerConfig{SafetyDataLength: 2, SafetyConsumerId: 7}
	p, err := NewProvider(pcfg, reg, 1, 2, crctest.XOR4)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewConsumer(ccfg, reg, 1, 2, crctest.XOR4)
	if err != nil {
		t.Fatal(err)
	}
	c.state = ConsumerFault
	c.errorTimes = []int64{0, 0}

	pin := uas.ProviderInputSAPI{SafeData: []byte{1, 1}, HasValidData: true}

	// operator ack clears the latch and restarts activation.
	runCycle(t, p, c, true, pin, uas.ConsumerInputSAPI{Enable: true, OperatorAckConsumer: true})
	if c.State() != ConsumerActivating {
		t.Fatalf("want activating right after ack, got %v", c.State())
	}
	runCycle(t, p, c, true, pin, uas.ConsumerInputSAPI{Enable: true})
	if c.State() != ConsumerValid {
		t.Fatalf("want valid after a clean round trip post-ack, got %v", c.State())
	}
}

func TestConsumerTimeoutBoundary(t *testing.T) {
	reg := newTestRegistry(t, 1, 2, 2, 0)
	ccfg := uas.ConsumerConfig{SafetyDataLength: 2, SafetyConsumerId: 7, SafetyConsumerTimeout: 100 * time.Millisecond}
	clk := uas.NewFakeClock()
	c, err := NewConsumer(ccfg, reg, 1, 2, crctest.XOR4, WithConsumerClock(clk))
	if err != nil {
		t.Fatal(err)
	}
	// simulate an already-running consumer that accepted its last
	// response at t=1ms, long before the timeout window checked below.
	c.state = ConsumerValid
	c.lastAcceptedTime = 1
	c.hasAccepted = true

	cin := uas.ConsumerInputSAPI{Enable: true}

	// this cycle's expectedMnr is c.mnr's current value (0, since no
	// prior cycle ran), so a response echoing mnr=0 passes every check
	// except the timeout, which fires because the clock has advanced
	// well past SafetyConsumerTimeout since lastAcceptedTime.
	resp := spdu.ResponseSPDU{SafeData: []byte{1, 1}, MonitoringNumber: 0, SafetyConsumerId: 7}
	resp.CRC = crctest.XOR4(canonicalCRCInput(resp.SafeData, resp.NonSafeData, resp.SpduId, resp.SafetyConsumerId, resp.MonitoringNumber, resp.Flags, ccfg.SafetyProviderLevel))
	if err := reg.SetResponse(2, resp); err != nil {
		t.Fatal(err)
	}

	clk.Advance(200 * time.Millisecond)
	if _, err := c.Cycle(true, true, cin); err != nil {
		t.Fatal(err)
	}
	if c.Diag().LastError != uas.KindTimeout {
		t.Fatalf("want timeout recorded, got %v", c.Diag().LastError)
	}
}
