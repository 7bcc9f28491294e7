package session

import (
	"strconv"

	"github.com/epic1st/rtx/fixengine/internal/wire"
)

// Context carries the read-only facts the transition function needs beyond
// the event itself: session identity/config and which side of the
// handshake this session plays. The caller builds a fresh one for each
// call; Transition never mutates it.
type Context struct {
	SenderCompID string
	TargetCompID string
	HeartBtInt   int
	Acceptor     bool

	// IncomingSenderCompID/IncomingTargetCompID are read off the inbound
	// Logon/message for CompID validation; empty when not applicable to
	// the current event.
	IncomingSenderCompID string
	IncomingTargetCompID string

	ResetSeqNumFlag bool
}

// Transition computes the next state and the actions the orchestrator must
// perform, given the current state, an event, and context. It is a pure
// function: no I/O, no clock reads, no hidden state.
func Transition(state State, ev Event, ctx Context) (State, []Action) {
	// A sequence-lower-without-PossDup is fatal from any state, per the
	// "any | MsgIn(seq Lower, !PossDup) | Disconnected" row.
	if ev.Kind == EventMsgIn && ev.SeqStatus == SeqLower && !ev.PossDupFlag {
		return Disconnected, []Action{
			{Kind: ActionAlertOperator, Reason: "sequence lower than expected without PossDupFlag"},
			{Kind: ActionPersistSequence},
			{Kind: ActionCloseTransport},
		}
	}
	if ev.Kind == EventDisconnect {
		return Disconnected, []Action{
			{Kind: ActionCancelTimer, Timer: TimerHeartbeat},
			{Kind: ActionCancelTimer, Timer: TimerTestRequest},
			{Kind: ActionCancelTimer, Timer: TimerLogonTimeout},
			{Kind: ActionCancelTimer, Timer: TimerLogoutTimeout},
			{Kind: ActionPersistSequence},
			{Kind: ActionCloseTransport},
		}
	}

	switch state {
	case Disconnected:
		return transitionDisconnected(ev, ctx)
	case Connecting:
		return transitionConnecting(ev, ctx)
	case LogonReceived:
		return transitionLogonReceived(ev, ctx)
	case LogonSent:
		return transitionLogonSent(ev, ctx)
	case Active:
		return transitionActive(ev, ctx)
	case ResendRequested:
		return transitionResendRequested(ev, ctx)
	case LogoutSent:
		return transitionLogoutSent(ev, ctx)
	case LogoutReceived:
		return transitionLogoutReceived(ev, ctx)
	default:
		return state, nil
	}
}

func transitionDisconnected(ev Event, ctx Context) (State, []Action) {
	if ev.Kind == EventConnect {
		return Connecting, []Action{{Kind: ActionArmTimer, Timer: TimerLogonTimeout}}
	}
	return Disconnected, nil
}

func transitionConnecting(ev Event, ctx Context) (State, []Action) {
	switch ev.Kind {
	case EventMsgIn:
		if ev.MsgType != "A" {
			return Connecting, nil
		}
		actions := []Action{{Kind: ActionCancelTimer, Timer: TimerLogonTimeout}}
		if ctx.ResetSeqNumFlag {
			actions = append(actions, Action{Kind: ActionPersistSequence, Reason: "reset_on_logon"})
		}
		if ctx.IncomingSenderCompID != "" && ctx.IncomingSenderCompID != ctx.TargetCompID ||
			ctx.IncomingTargetCompID != "" && ctx.IncomingTargetCompID != ctx.SenderCompID {
			return Disconnected, []Action{
				{Kind: ActionSend, MsgType: "3", Reason: "CompID mismatch at logon"},
				{Kind: ActionCloseTransport},
			}
		}
		return LogonReceived, actions
	case EventTimerLogonTimeout:
		return Disconnected, []Action{{Kind: ActionCloseTransport}, {Kind: ActionAlertOperator, Reason: "logon timeout"}}
	default:
		return Connecting, nil
	}
}

// transitionLogonReceived immediately completes the acceptor handshake: the
// orchestrator sends the Logon reply and arms the steady-state timers in
// the same step, matching the spec's "(immediate) -> Active" row.
func transitionLogonReceived(ev Event, ctx Context) (State, []Action) {
	return Active, []Action{
		{Kind: ActionSend, MsgType: "A", Fields: wire.FieldList{{Tag: 108, Value: []byte(itoaHeartBtInt(ctx.HeartBtInt))}}},
		{Kind: ActionArmTimer, Timer: TimerHeartbeat},
		{Kind: ActionArmTimer, Timer: TimerTestRequest},
	}
}

// transitionLogonSent handles the initiator side: waiting for the
// acceptor's Logon reply before becoming Active.
func transitionLogonSent(ev Event, ctx Context) (State, []Action) {
	switch ev.Kind {
	case EventMsgIn:
		if ev.MsgType != "A" {
			return LogonSent, nil
		}
		return Active, []Action{
			{Kind: ActionCancelTimer, Timer: TimerLogonTimeout},
			{Kind: ActionArmTimer, Timer: TimerHeartbeat},
			{Kind: ActionArmTimer, Timer: TimerTestRequest},
		}
	case EventTimerLogonTimeout:
		return Disconnected, []Action{{Kind: ActionCloseTransport}, {Kind: ActionAlertOperator, Reason: "logon timeout"}}
	default:
		return LogonSent, nil
	}
}

func transitionActive(ev Event, ctx Context) (State, []Action) {
	switch ev.Kind {
	case EventMsgIn:
		switch ev.SeqStatus {
		case SeqHigher:
			return ResendRequested, []Action{
				{Kind: ActionEmitResendRequest, BeginSeqNo: 0, EndSeqNo: 0, Reason: "inbound gap detected"},
			}
		case SeqExpected:
			return activeOnExpected(ev, ctx)
		default: // SeqLower with PossDupFlag: a legitimate duplicate, ignore
			return Active, nil
		}
	case EventMsgOut:
		if ev.MsgType == "5" {
			return LogoutSent, []Action{
				{Kind: ActionSend, MsgType: "5", Fields: ev.Fields},
				{Kind: ActionArmTimer, Timer: TimerLogoutTimeout},
			}
		}
		return Active, []Action{{Kind: ActionSend, MsgType: ev.MsgType, Fields: ev.Fields}}
	case EventTimerHeartbeat:
		return Active, []Action{{Kind: ActionSend, MsgType: "0"}, {Kind: ActionArmTimer, Timer: TimerHeartbeat}}
	case EventTimerTestRequest:
		return Active, []Action{{Kind: ActionSend, MsgType: "1"}, {Kind: ActionArmTimer, Timer: TimerTestRequest}}
	default:
		return Active, nil
	}
}

func activeOnExpected(ev Event, ctx Context) (State, []Action) {
	switch ev.MsgType {
	case "5": // Logout received
		return LogoutReceived, []Action{
			{Kind: ActionSend, MsgType: "5"},
			{Kind: ActionCloseTransport},
		}
	case "2": // ResendRequest received: reply by replaying our own store
		replay := Action{Kind: ActionReplayRange, Reason: "peer requested resend"}
		if v, ok := ev.Fields.Get(7); ok { // BeginSeqNo
			replay.BeginSeqNo, _ = strconv.ParseUint(string(v), 10, 64)
		}
		if v, ok := ev.Fields.Get(16); ok { // EndSeqNo; 0 means through the last stored
			replay.EndSeqNo, _ = strconv.ParseUint(string(v), 10, 64)
		}
		return Active, []Action{replay}
	default:
		if isAdministrativeMsgType(ev.MsgType) {
			return Active, []Action{{Kind: ActionDispatchToApplication, MsgType: ev.MsgType, Fields: ev.Fields}}
		}
		return Active, []Action{{Kind: ActionDispatchToApplication, MsgType: ev.MsgType, Fields: ev.Fields}}
	}
}

func transitionResendRequested(ev Event, ctx Context) (State, []Action) {
	if ev.Kind != EventMsgIn {
		return ResendRequested, nil
	}
	switch ev.SeqStatus {
	case SeqHigher:
		// Extends the already-known gap; stay put. No gap range is tracked
		// here, and the message is not dispatched.
		return ResendRequested, nil
	case SeqExpected:
		// A resent message closing (or narrowing) the gap.
		return ResendRequested, []Action{{Kind: ActionDispatchToApplication, MsgType: ev.MsgType, Fields: ev.Fields}}
	default:
		return ResendRequested, nil
	}
}

func transitionLogoutSent(ev Event, ctx Context) (State, []Action) {
	switch ev.Kind {
	case EventMsgIn:
		if ev.MsgType == "5" {
			return Disconnected, []Action{
				{Kind: ActionCancelTimer, Timer: TimerLogoutTimeout},
				{Kind: ActionPersistSequence},
				{Kind: ActionCloseTransport},
			}
		}
		return LogoutSent, nil
	case EventTimerLogoutTimeout:
		return Disconnected, []Action{{Kind: ActionCloseTransport}, {Kind: ActionAlertOperator, Reason: "logout timeout"}}
	default:
		return LogoutSent, nil
	}
}

func transitionLogoutReceived(ev Event, ctx Context) (State, []Action) {
	return Disconnected, []Action{{Kind: ActionPersistSequence}, {Kind: ActionCloseTransport}}
}

func isAdministrativeMsgType(mt string) bool {
	switch mt {
	case "0", "1", "2", "3", "4", "5", "A":
		return true
	default:
		return false
	}
}

func itoaHeartBtInt(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}
