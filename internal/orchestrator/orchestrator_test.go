package orchestrator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/epic1st/rtx/fixengine/internal/fixdict"
	"github.com/epic1st/rtx/fixengine/internal/sequence"
	"github.com/epic1st/rtx/fixengine/internal/session"
	"github.com/epic1st/rtx/fixengine/internal/store"
	"github.com/epic1st/rtx/fixengine/internal/wire"
)

// pipeTransport is an in-memory Transport backed by two buffered channels, so
// tests can drive an Orchestrator without a real socket.
type pipeTransport struct {
	r *pipeEnd
	w *pipeEnd
}

type pipeEnd struct {
	ch     chan []byte
	closed chan struct{}
}

func newPipeTransport() (*pipeTransport, *pipeTransport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &pipeTransport{r: &pipeEnd{ch: ba, closed: make(chan struct{})}, w: &pipeEnd{ch: ab}}
	b := &pipeTransport{r: &pipeEnd{ch: ab, closed: make(chan struct{})}, w: &pipeEnd{ch: ba}}
	return a, b
}

func (p *pipeTransport) Read(buf []byte) (int, error) {
	select {
	case chunk, ok := <-p.r.ch:
		if !ok {
			return 0, os.ErrClosed
		}
		n := copy(buf, chunk)
		return n, nil
	case <-p.r.closed:
		return 0, os.ErrClosed
	}
}

func (p *pipeTransport) Write(buf []byte) (int, error) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	select {
	case p.w.ch <- cp:
		return len(buf), nil
	default:
		return 0, os.ErrClosed
	}
}

func (p *pipeTransport) Close() error {
	close(p.r.closed)
	return nil
}

type recordingApp struct {
	received []wire.FieldList
}

func (a *recordingApp) OnMessage(sessionID string, fields wire.FieldList) {
	a.received = append(a.received, fields)
}

type recordingObserver struct {
	reasons []string
}

func (o *recordingObserver) OnFatal(sessionID, reason string) {
	o.reasons = append(o.reasons, reason)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *pipeTransport, *recordingApp, *recordingObserver) {
	t.Helper()
	dir := t.TempDir()
	fs, err := store.OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	app := &recordingApp{}
	obs := &recordingObserver{}
	cfg := Config{
		SessionID:    "S1",
		BeginString:  "FIX.4.4",
		SenderCompID: "ACC",
		TargetCompID: "CPTY",
		HeartBtInt:   30,
		Acceptor:     true,
	}
	orch := New(cfg, fixdict.NewStaticDictionary(), fs, sequence.NewManager(), app, obs)
	near, far := newPipeTransport()
	orch.Attach(near)
	return orch, far, app, obs
}

func TestAttachArmsLogonTimeoutAndTransitionsToConnecting(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)
	if orch.State() != session.Connecting {
		t.Fatalf("State() = %v, want Connecting", orch.State())
	}
}

func TestSendStampsHeaderAndWritesFrame(t *testing.T) {
	orch, far, _, _ := newTestOrchestrator(t)

	// Force the machine into an in-session state so an application Send is
	// accepted rather than queued behind a handshake.
	orch.mu.Lock()
	orch.state = session.Active
	orch.mu.Unlock()

	if err := orch.Send(context.Background(), "D", wire.FieldList{{Tag: 11, Value: []byte("ORD1")}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case frame := <-far.r.ch:
		fields, err := wire.Decode(frame)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		mt, _ := fields.Get(wire.TagMsgType)
		if string(mt) != "D" {
			t.Fatalf("MsgType = %q, want D", mt)
		}
		sender, _ := fields.Get(fixdict.TagSenderCompID)
		if string(sender) != "ACC" {
			t.Fatalf("SenderCompID = %q, want ACC", sender)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
}

func TestReplayRangeCoalescesAdminRunsIntoGapFill(t *testing.T) {
	orch, far, _, _ := newTestOrchestrator(t)

	ctx := context.Background()
	mustAppend(t, orch.store, ctx, 1, heartbeatFrame(t, 1))
	mustAppend(t, orch.store, ctx, 2, heartbeatFrame(t, 2))
	mustAppend(t, orch.store, ctx, 3, newOrderFrame(t, 3))

	orch.mu.Lock()
	orch.replayRangeLocked(1, 3)
	orch.mu.Unlock()

	gapFill := <-far.r.ch
	fields, err := wire.Decode(gapFill)
	if err != nil {
		t.Fatalf("Decode gap fill: %v", err)
	}
	newSeqNo, _ := fields.Get(fixdict.TagNewSeqNo)
	if string(newSeqNo) != "3" {
		t.Fatalf("NewSeqNo = %q, want 3", newSeqNo)
	}

	replay := <-far.r.ch
	replayFields, err := wire.Decode(replay)
	if err != nil {
		t.Fatalf("Decode replay: %v", err)
	}
	possDup, _ := replayFields.Get(fixdict.TagPossDupFlag)
	if string(possDup) != "Y" {
		t.Fatalf("PossDupFlag = %q, want Y", possDup)
	}
	mt, _ := replayFields.Get(wire.TagMsgType)
	if string(mt) != "D" {
		t.Fatalf("MsgType = %q, want D", mt)
	}
}

func mustAppend(t *testing.T, s store.MessageStore, ctx context.Context, seq uint64, frame []byte) {
	t.Helper()
	if err := s.Append(ctx, seq, frame); err != nil {
		t.Fatalf("Append(%d): %v", seq, err)
	}
}

func heartbeatFrame(t *testing.T, seq uint64) []byte {
	t.Helper()
	fields := wire.FieldList{
		{Tag: wire.TagMsgType, Value: []byte("0")},
		{Tag: fixdict.TagMsgSeqNum, Value: []byte(itoa(seq))},
		{Tag: fixdict.TagSenderCompID, Value: []byte("ACC")},
		{Tag: fixdict.TagTargetCompID, Value: []byte("CPTY")},
		{Tag: fixdict.TagSendingTime, Value: []byte("20260730-00:00:00.000")},
	}
	frame, err := wire.Encode("FIX.4.4", fields)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return frame
}

func newOrderFrame(t *testing.T, seq uint64) []byte {
	t.Helper()
	fields := wire.FieldList{
		{Tag: wire.TagMsgType, Value: []byte("D")},
		{Tag: fixdict.TagMsgSeqNum, Value: []byte(itoa(seq))},
		{Tag: fixdict.TagSenderCompID, Value: []byte("ACC")},
		{Tag: fixdict.TagTargetCompID, Value: []byte("CPTY")},
		{Tag: fixdict.TagSendingTime, Value: []byte("20260730-00:00:01.000")},
		{Tag: 11, Value: []byte("ORD1")},
	}
	frame, err := wire.Encode("FIX.4.4", fields)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return frame
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
