package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/epic1st/rtx/fixengine/internal/field"
	"github.com/epic1st/rtx/fixengine/internal/fixdict"
	"github.com/epic1st/rtx/fixengine/internal/sequence"
	"github.com/epic1st/rtx/fixengine/internal/session"
	"github.com/epic1st/rtx/fixengine/internal/store"
	"github.com/epic1st/rtx/fixengine/internal/wire"
)

// ApplicationHandler receives decoded application messages. It never sees
// administrative traffic — the orchestrator answers that itself.
type ApplicationHandler interface {
	OnMessage(sessionID string, fields wire.FieldList)
}

// Observer is notified of fatal conditions the transition function surfaces
// via ActionAlertOperator, and of transport-level failures the orchestrator
// detects on its own (connection drop, store failure).
type Observer interface {
	OnFatal(sessionID string, reason string)
}

// Config is the subset of session configuration the orchestrator needs to
// stamp outbound headers and drive timers.
type Config struct {
	SessionID    string
	BeginString  string
	SenderCompID string
	TargetCompID string
	HeartBtInt   int
	Acceptor     bool
}

// Orchestrator drives one session's event loop: transport reads feed the
// Framer, complete frames feed the Codec, decoded messages feed the state
// machine; the machine's declared Actions are executed here, and outbound
// messages are stamped, encoded, appended to the store (which advances the
// sequence counter), and then written to the transport.
type Orchestrator struct {
	cfg     Config
	dict    fixdict.Dictionary
	store   store.MessageStore
	seq     *sequence.Manager
	app     ApplicationHandler
	obs     Observer
	framer  *wire.Framer
	bufPool *wire.BufferPool

	mu        sync.Mutex
	state     session.State
	transport Transport

	heartbeatTimer   *time.Timer
	testRequestTimer *time.Timer
	logonTimer       *time.Timer
	logoutTimer      *time.Timer

	lastInbound time.Time
}

// New constructs an Orchestrator for one session. The store must already
// hold the session's sequence state (callers load it via
// sequence.Restore + the store's LoadSequenceState before constructing).
func New(cfg Config, dict fixdict.Dictionary, st store.MessageStore, seq *sequence.Manager, app ApplicationHandler, obs Observer) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		dict:    dict,
		store:   st,
		seq:     seq,
		app:     app,
		obs:     obs,
		framer:  wire.NewFramer(),
		bufPool: wire.NewBufferPool(),
		state:   session.Disconnected,
	}
}

// Attach binds a live Transport and begins the handshake, transitioning
// Disconnected -> Connecting and arming the logon timeout.
func (o *Orchestrator) Attach(t Transport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transport = t
	o.applyLocked(session.Event{Kind: session.EventConnect})
}

// Run reads from the transport until ctx is cancelled or the transport
// closes, feeding complete frames into the state machine. It returns when
// the session has disconnected.
func (o *Orchestrator) Run(ctx context.Context) error {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			o.Disconnect(false)
			return ctx.Err()
		default:
		}

		o.mu.Lock()
		transport := o.transport
		o.mu.Unlock()
		if transport == nil {
			return fmt.Errorf("orchestrator: no transport attached")
		}

		n, err := transport.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = o.consumeFrames(buf)
		}
		if err != nil {
			o.notifyFatal("transport read error: " + err.Error())
			o.Disconnect(false)
			return err
		}
	}
}

func (o *Orchestrator) consumeFrames(buf []byte) []byte {
	for {
		frame, consumed, err := o.framer.NextFrame(buf)
		if consumed == 0 && err == nil {
			return buf // truncated; wait for more bytes
		}
		if err != nil {
			o.notifyFatal("frame error: " + err.Error())
			buf = buf[consumed:]
			continue
		}
		o.handleFrame(frame)
		buf = buf[consumed:]
		if len(buf) == 0 {
			return buf
		}
	}
}

func (o *Orchestrator) handleFrame(frame []byte) {
	fields, err := wire.Decode(frame)
	if err != nil {
		o.notifyFatal("decode error: " + err.Error())
		return
	}
	msgTypeRaw, _ := fields.Get(wire.TagMsgType)
	seqRaw, _ := fields.Get(fixdict.TagMsgSeqNum)
	possDupRaw, hasPossDup := fields.Get(fixdict.TagPossDupFlag)

	seqNum, err := field.Int(fixdict.TagMsgSeqNum, seqRaw)
	if err != nil {
		o.notifyFatal("unparseable MsgSeqNum: " + err.Error())
		return
	}

	obs := o.seq.ObserveIn(uint64(seqNum))
	status := session.SeqExpected
	switch obs.Kind {
	case sequence.Higher:
		status = session.SeqHigher
	case sequence.Lower:
		status = session.SeqLower
	}
	if status == session.SeqExpected {
		o.seq.AdvanceIn(uint64(seqNum))
	}

	o.lastInbound = time.Now()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.applyLocked(session.Event{
		Kind:        session.EventMsgIn,
		MsgType:     string(msgTypeRaw),
		Fields:      fields,
		SeqStatus:   status,
		PossDupFlag: hasPossDup && len(possDupRaw) > 0 && possDupRaw[0] == 'Y',
	})
}

// Send asks the session to transmit an application message. It blocks until
// the message has been durably stored and written to the transport, and
// returns an error if the message was not stored (the session state did not
// accept it, or the store append failed).
func (o *Orchestrator) Send(ctx context.Context, msgType string, fields wire.FieldList) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	before := o.seq.NextOut()
	o.applyLocked(session.Event{Kind: session.EventMsgOut, MsgType: msgType, Fields: fields})
	if o.seq.NextOut() == before {
		return fmt.Errorf("orchestrator: %s message was not stored (state %v)", msgType, o.state)
	}
	return nil
}

// Disconnect tears the session down. graceful=true drains any outbound
// queue first (not modeled here beyond the synchronous Send path, since
// this orchestrator has no separate outbound queue); graceful=false cancels
// pending I/O immediately. Sequence state is persisted regardless.
func (o *Orchestrator) Disconnect(graceful bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applyLocked(session.Event{Kind: session.EventDisconnect, Graceful: graceful})
}

// applyLocked runs the transition function and executes its actions. Must
// be called with o.mu held.
func (o *Orchestrator) applyLocked(ev session.Event) {
	ctx := session.Context{
		SenderCompID: o.cfg.SenderCompID,
		TargetCompID: o.cfg.TargetCompID,
		HeartBtInt:   o.cfg.HeartBtInt,
		Acceptor:     o.cfg.Acceptor,
	}
	next, actions := session.Transition(o.state, ev, ctx)
	o.state = next
	for _, a := range actions {
		o.executeLocked(a)
	}
}

func (o *Orchestrator) executeLocked(a session.Action) {
	switch a.Kind {
	case session.ActionSend:
		o.stampAndWriteLocked(a.MsgType, a.Fields)
	case session.ActionArmTimer:
		o.armTimerLocked(a.Timer)
	case session.ActionCancelTimer:
		o.cancelTimerLocked(a.Timer)
	case session.ActionCloseTransport:
		if o.transport != nil {
			o.transport.Close()
		}
	case session.ActionPersistSequence:
		if ps, ok := o.store.(interface {
			PersistSequenceState(nextIn, nextOut uint64) error
		}); ok {
			ps.PersistSequenceState(o.seq.NextIn(), o.seq.NextOut())
		}
	case session.ActionEmitResendRequest:
		o.stampAndWriteLocked("2", wire.FieldList{
			{Tag: fixdict.TagBeginSeqNo, Value: []byte(fmt.Sprintf("%d", o.seq.NextIn()))},
			{Tag: fixdict.TagEndSeqNo, Value: []byte("0")},
		})
	case session.ActionReplayRange:
		o.replayRangeLocked(a.BeginSeqNo, a.EndSeqNo)
	case session.ActionDispatchToApplication:
		if o.app != nil && !fixdict.IsAdministrative(a.MsgType) {
			o.app.OnMessage(o.cfg.SessionID, a.Fields)
		}
	case session.ActionAlertOperator:
		o.notifyFatalLocked(a.Reason)
	}
}

func (o *Orchestrator) stampAndWriteLocked(msgType string, body wire.FieldList) {
	now := time.Now().UTC()
	seq := o.seq.NextOut()

	fields := wire.FieldList{
		{Tag: wire.TagMsgType, Value: []byte(msgType)},
		{Tag: fixdict.TagMsgSeqNum, Value: []byte(fmt.Sprintf("%d", seq))},
		{Tag: fixdict.TagSenderCompID, Value: []byte(o.cfg.SenderCompID)},
		{Tag: fixdict.TagTargetCompID, Value: []byte(o.cfg.TargetCompID)},
		{Tag: fixdict.TagSendingTime, Value: []byte(field.FormatUTCTimestamp(now))},
	}
	fields = append(fields, body...)

	encoded, err := wire.Encode(o.cfg.BeginString, fields)
	if err != nil {
		o.notifyFatalLocked("encode error: " + err.Error())
		return
	}

	ctx := context.Background()
	if _, err := o.seq.AssignAndStore(ctx, o.store, encoded); err != nil {
		o.notifyFatalLocked("store error: " + err.Error())
		return
	}
	if o.transport != nil {
		if _, err := o.transport.Write(encoded); err != nil {
			o.notifyFatalLocked("transport write error: " + err.Error())
		}
	}
}

// replayRangeLocked walks the store over [beginSeqNo, endSeqNo] (0 meaning
// through LastSeq) and replays it onto the wire, coalescing runs of
// administrative messages into a single SequenceReset-GapFill per the
// resend semantics CoalesceResend implements.
func (o *Orchestrator) replayRangeLocked(beginSeqNo, endSeqNo uint64) {
	ctx := context.Background()
	records, err := o.store.GetRange(ctx, beginSeqNo, endSeqNo)
	if err != nil {
		o.notifyFatalLocked("resend replay: " + err.Error())
		return
	}
	entries := session.CoalesceResend(records, decodedMsgType, fixdict.IsAdministrative)
	for _, e := range entries {
		if e.IsGapFill {
			o.sendGapFillLocked(e.GapFillBeginSeq, e.NewSeqNo)
			continue
		}
		o.sendReplayLocked(e.Bytes)
	}
}

// sendGapFillLocked emits a SequenceReset-GapFill standing in for a run of
// administrative messages the counterparty doesn't need replayed verbatim.
// It carries its own MsgSeqNum (the run's first sequence) rather than one
// drawn from the outbound sequence counter, since it is replacing old
// messages, not producing new ones.
func (o *Orchestrator) sendGapFillLocked(beginSeq, newSeqNo uint64) {
	now := time.Now().UTC()
	fields := wire.FieldList{
		{Tag: wire.TagMsgType, Value: []byte("4")},
		{Tag: fixdict.TagMsgSeqNum, Value: []byte(fmt.Sprintf("%d", beginSeq))},
		{Tag: fixdict.TagSenderCompID, Value: []byte(o.cfg.SenderCompID)},
		{Tag: fixdict.TagTargetCompID, Value: []byte(o.cfg.TargetCompID)},
		{Tag: fixdict.TagSendingTime, Value: []byte(field.FormatUTCTimestamp(now))},
		{Tag: fixdict.TagPossDupFlag, Value: []byte("Y")},
		{Tag: fixdict.TagGapFillFlag, Value: []byte("Y")},
		{Tag: fixdict.TagNewSeqNo, Value: []byte(fmt.Sprintf("%d", newSeqNo))},
	}
	encoded, err := wire.Encode(o.cfg.BeginString, fields)
	if err != nil {
		o.notifyFatalLocked("gap fill encode error: " + err.Error())
		return
	}
	if o.transport != nil {
		if _, err := o.transport.Write(encoded); err != nil {
			o.notifyFatalLocked("gap fill write error: " + err.Error())
		}
	}
}

// sendReplayLocked re-emits a previously stored frame verbatim, with
// PossDupFlag set and the original SendingTime carried over as
// OrigSendingTime, per the resend semantics for application messages.
func (o *Orchestrator) sendReplayLocked(original []byte) {
	decoded, err := wire.Decode(original)
	if err != nil {
		o.notifyFatalLocked("replay decode error: " + err.Error())
		return
	}
	origSendingTime, _ := decoded.Get(fixdict.TagSendingTime)

	var msgTypeField wire.Field
	rest := make(wire.FieldList, 0, len(decoded))
	for _, f := range decoded {
		switch f.Tag {
		case wire.TagBeginString, wire.TagBodyLength, wire.TagCheckSum:
			continue
		case wire.TagMsgType:
			msgTypeField = f
		case fixdict.TagPossDupFlag, fixdict.TagOrigSendingTime:
			continue
		default:
			rest = append(rest, f)
		}
	}
	rebuilt := append(wire.FieldList{msgTypeField}, rest...)
	rebuilt = append(rebuilt, wire.Field{Tag: fixdict.TagPossDupFlag, Value: []byte("Y")})
	if len(origSendingTime) > 0 {
		rebuilt = append(rebuilt, wire.Field{Tag: fixdict.TagOrigSendingTime, Value: origSendingTime})
	}

	encoded, err := wire.Encode(o.cfg.BeginString, rebuilt)
	if err != nil {
		o.notifyFatalLocked("replay encode error: " + err.Error())
		return
	}
	if o.transport != nil {
		if _, err := o.transport.Write(encoded); err != nil {
			o.notifyFatalLocked("replay write error: " + err.Error())
		}
	}
}

// decodedMsgType extracts MsgType from a fully encoded stored frame, for
// CoalesceResend's msgTypeOf callback.
func decodedMsgType(frame []byte) string {
	fields, err := wire.Decode(frame)
	if err != nil {
		return ""
	}
	mt, _ := fields.Get(wire.TagMsgType)
	return string(mt)
}

func (o *Orchestrator) armTimerLocked(name session.TimerName) {
	d := time.Duration(o.cfg.HeartBtInt) * time.Second
	switch name {
	case session.TimerHeartbeat:
		o.heartbeatTimer = time.AfterFunc(d, func() { o.fireTimer(session.EventTimerHeartbeat) })
	case session.TimerTestRequest:
		idle := d + d/5 // HeartBtInt + 20% tolerance
		o.testRequestTimer = time.AfterFunc(idle, func() { o.fireTimer(session.EventTimerTestRequest) })
	case session.TimerLogonTimeout:
		o.logonTimer = time.AfterFunc(10*time.Second, func() { o.fireTimer(session.EventTimerLogonTimeout) })
	case session.TimerLogoutTimeout:
		o.logoutTimer = time.AfterFunc(10*time.Second, func() { o.fireTimer(session.EventTimerLogoutTimeout) })
	}
}

func (o *Orchestrator) cancelTimerLocked(name session.TimerName) {
	var t *time.Timer
	switch name {
	case session.TimerHeartbeat:
		t = o.heartbeatTimer
	case session.TimerTestRequest:
		t = o.testRequestTimer
	case session.TimerLogonTimeout:
		t = o.logonTimer
	case session.TimerLogoutTimeout:
		t = o.logoutTimer
	}
	if t != nil {
		t.Stop()
	}
}

func (o *Orchestrator) fireTimer(kind session.EventKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applyLocked(session.Event{Kind: kind})
}

func (o *Orchestrator) notifyFatal(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifyFatalLocked(reason)
}

func (o *Orchestrator) notifyFatalLocked(reason string) {
	if o.obs != nil {
		o.obs.OnFatal(o.cfg.SessionID, reason)
	}
}

// State returns the session's current state, for diagnostics.
func (o *Orchestrator) State() session.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
