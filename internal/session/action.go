package session

import "github.com/epic1st/rtx/fixengine/internal/wire"

// ActionKind names one declared side effect the orchestrator must perform
// on the machine's behalf. The transition function never performs I/O
// itself; it only describes what should happen.
type ActionKind int

const (
	// ActionSend asks the orchestrator to stamp and transmit a message.
	ActionSend ActionKind = iota
	// ActionArmTimer (re)starts a named timer.
	ActionArmTimer
	// ActionCancelTimer stops a named timer.
	ActionCancelTimer
	// ActionCloseTransport tears down the connection.
	ActionCloseTransport
	// ActionPersistSequence asks the orchestrator to durably persist the
	// current next_in/next_out pair.
	ActionPersistSequence
	// ActionEmitResendRequest asks the orchestrator to build and send a
	// ResendRequest; the orchestrator sends BeginSeqNo=next_in and
	// EndSeqNo=0 and does not read the action's own range fields.
	ActionEmitResendRequest
	// ActionReplayRange asks the orchestrator to walk the store over
	// [BeginSeqNo, EndSeqNo] and replay it, coalescing admin messages into
	// SequenceReset-GapFill per the resend semantics.
	ActionReplayRange
	// ActionDispatchToApplication hands a decoded application message to
	// the registered ApplicationHandler.
	ActionDispatchToApplication
	// ActionAlertOperator surfaces a fatal condition through the observer
	// callback (e.g. sequence-lower-without-PossDup).
	ActionAlertOperator
)

// TimerName identifies one of the session's timers.
type TimerName int

const (
	TimerHeartbeat TimerName = iota
	TimerTestRequest
	TimerLogonTimeout
	TimerLogoutTimeout
)

// Action is one declared side effect returned by the transition function.
type Action struct {
	Kind  ActionKind
	Timer TimerName

	MsgType string
	Fields  wire.FieldList

	BeginSeqNo uint64
	EndSeqNo   uint64

	Reason string
}
