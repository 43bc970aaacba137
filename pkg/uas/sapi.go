package uas

// ProviderInputSAPI is the application-facing input of a
// SafetyProvider instance (spec.md §6, "Input SAPI"): flags the
// application sets plus the safe/non-safe payloads it populates each
// cycle.
type ProviderInputSAPI struct {
	Enable              bool
	TestModeActivated    bool
	OperatorAckProvider  bool
	ActivateFSV          bool
	SafeData             []byte
	NonSafeData          []byte
	HasValidData         bool // provider has produced data it trusts this cycle
}

// ProviderOutputSAPI is the application-facing output of a
// SafetyProvider instance.
type ProviderOutputSAPI struct {
	PublishedFlags uint8
}

// ConsumerInputSAPI is the application-facing input of a
// SafetyConsumer instance.
type ConsumerInputSAPI struct {
	Enable                bool
	OperatorAckConsumer   bool
	OperatorAckRequested  bool
}

// ConsumerOutputSAPI is the application-facing output of a
// SafetyConsumer instance: decoded payloads plus the fail-safe flag.
type ConsumerOutputSAPI struct {
	SafeData        []byte
	NonSafeData     []byte
	BFsvActivated   bool
}

// DiagInfo snapshots a SafetyConsumer's diagnostic information
// (UAS_SafetyConsumerDI_type in the original C sources): the part of
// the consumer the application can inspect without affecting its
// state machine.
type DiagInfo struct {
	FaultCounter     uint32
	LastAcceptedMnr  uint32
	LastAcceptedTime int64 // monotonic tick, see Clock in this package
	LastError        ErrorKind
}
