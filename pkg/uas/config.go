package uas

import "time"

// RedundancyMode is the UAM_RedundancySetting_type of spec.md §4.3.6.
// Only Single is implemented; see DESIGN.md's Open Question decision.
type RedundancyMode uint8

const (
	RedundancySingle RedundancyMode = iota
	RedundancyDual
)

// SpduId is the 96-bit (three u32 words) identifier of a
// (provider, data-definition) pair, configured once and never changed
// at runtime (spec.md §3).
type SpduId struct {
	Part1, Part2, Part3 uint32
}

// ProviderHandle and ConsumerHandle are opaque instance handles
// returned by the UAM mapper's Init* operations.
type ProviderHandle uint32
type ConsumerHandle uint32

// NoHandle mirrors UAM_NoHandle from uam.h: the sentinel for "no
// instance".
const NoHandle = ^uint32(0)

// ProviderConfig carries the SPI configuration of a SafetyProvider
// instance, exactly the fields spec.md §6 names.
type ProviderConfig struct {
	SpduId              SpduId
	SafetyBaseId        GUID
	SafetyProviderId    uint32
	SafetyConsumerId    uint32
	SafetyProviderLevel uint8
	SafetyDataLength    uint16
	NonSafetyDataLength uint16
	Redundancy          RedundancyMode
}

// ConsumerConfig carries the SPI configuration of a SafetyConsumer
// instance, exactly the fields spec.md §6 names.
type ConsumerConfig struct {
	SpduId                   SpduId
	SafetyConsumerId         uint32
	SafetyProviderLevel      uint8
	SafetyDataLength         uint16
	NonSafetyDataLength      uint16
	SafetyConsumerTimeout    time.Duration
	SafetyErrorIntervalLimit time.Duration
	Redundancy               RedundancyMode
}

// Validate checks the parameter-error conditions a consumer/provider
// setup function must reject (spec.md §7, "invalid-parameter").
func (c ProviderConfig) Validate() error {
	if c.SafetyDataLength == 0 && c.NonSafetyDataLength == 0 {
		return New(KindInvalidParameter, "both safety and non-safety data lengths are zero")
	}
	if c.Redundancy == RedundancyDual {
		return New(KindNotSupported, "dual-channel redundancy is not implemented")
	}
	return nil
}

// Validate checks the parameter-error conditions for a consumer.
func (c ConsumerConfig) Validate() error {
	if c.SafetyDataLength == 0 && c.NonSafetyDataLength == 0 {
		return New(KindInvalidParameter, "both safety and non-safety data lengths are zero")
	}
	if c.SafetyConsumerTimeout < 0 {
		return New(KindInvalidParameter, "safetyConsumerTimeout must not be negative")
	}
	if c.Redundancy == RedundancyDual {
		return New(KindNotSupported, "dual-channel redundancy is not implemented")
	}
	return nil
}
