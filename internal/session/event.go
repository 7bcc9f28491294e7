package session

import "github.com/epic1st/rtx/fixengine/internal/wire"

// EventKind names the kind of event the transition function reacts to.
type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventMsgIn
	EventMsgOut
	EventTimerHeartbeat
	EventTimerTestRequest
	EventTimerLogonTimeout
	EventTimerLogoutTimeout
)

// Event is one input to the transition function. For EventMsgIn, MsgType
// and Fields carry the decoded message; SeqStatus carries what the
// Sequence Manager concluded about its MsgSeqNum before the event was
// constructed (the machine itself never inspects sequence numbers — that
// judgment belongs to the Sequence Manager). For EventMsgOut, Fields is the
// application-level field list the session should stamp and send.
type Event struct {
	Kind    EventKind
	MsgType string
	Fields  wire.FieldList

	PossDupFlag bool
	SeqStatus   SeqStatus

	// Graceful records whether a clean Disconnect was requested. Transition
	// returns the same actions for both values.
	Graceful bool
}

// SeqStatus mirrors sequence.ObservationKind without importing the package,
// keeping the transition function's input vocabulary self-contained.
type SeqStatus int

const (
	SeqExpected SeqStatus = iota
	SeqHigher
	SeqLower
)
