package session

import (
	"sync"
	"time"
)

// gapRecoveryGrace is how long the tracker waits for out-of-order delivery
// to self-resolve a gap before the caller should emit a ResendRequest.
const gapRecoveryGrace = 500 * time.Millisecond

// sequenceGap is the [BeginSeqNo, EndSeqNo] range currently missing from the
// inbound stream.
type sequenceGap struct {
	beginSeqNo  uint64
	endSeqNo    uint64
	detectedAt  time.Time
	requestSent bool
}

// queuedMessage is a message received while a gap is open, held for
// in-order delivery to the application once the gap closes.
type queuedMessage struct {
	seq     uint64
	fields  []byte
	arrived time.Time
}

// gapTracker detects inbound sequence gaps, decides when enough grace time
// has passed to request a resend, and holds out-of-order arrivals until the
// gap is filled. One tracker per session.
type gapTracker struct {
	mu      sync.Mutex
	gap     *sequenceGap
	queued  []queuedMessage
}

func newGapTracker() *gapTracker {
	return &gapTracker{}
}

// Open records a newly observed gap ending just before got, starting at
// expected. Calling Open while a gap is already open extends its end if the
// new arrival is further out, mirroring how a second out-of-order message
// widens the known hole rather than opening a second one.
func (t *gapTracker) Open(expected, got uint64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gap == nil {
		t.gap = &sequenceGap{beginSeqNo: expected, endSeqNo: got - 1, detectedAt: now}
		return
	}
	if got-1 > t.gap.endSeqNo {
		t.gap.endSeqNo = got - 1
	}
}

// ShouldRequestResend reports whether the grace period has elapsed for the
// open gap and no ResendRequest has been sent for it yet.
func (t *gapTracker) ShouldRequestResend(now time.Time) (begin, end uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gap == nil || t.gap.requestSent {
		return 0, 0, false
	}
	if now.Sub(t.gap.detectedAt) < gapRecoveryGrace {
		return 0, 0, false
	}
	return t.gap.beginSeqNo, t.gap.endSeqNo, true
}

// MarkResendRequested records that a ResendRequest has gone out for the
// current gap, so ShouldRequestResend won't fire again for it.
func (t *gapTracker) MarkResendRequested() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gap != nil {
		t.gap.requestSent = true
	}
}

// Queue holds a message that arrived while a gap is open.
func (t *gapTracker) Queue(seq uint64, fields []byte, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queued = append(t.queued, queuedMessage{seq: seq, fields: fields, arrived: now})
}

// Fill reports that seq has arrived (via resend) and narrows or clears the
// gap accordingly. Only the gap's first missing sequence narrows it; any
// other seq is ignored. Returns true once the entire gap has closed.
func (t *gapTracker) Fill(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gap == nil || seq < t.gap.beginSeqNo || seq > t.gap.endSeqNo {
		return false
	}
	if seq != t.gap.beginSeqNo {
		return false
	}
	if seq == t.gap.endSeqNo {
		t.gap = nil
		return true
	}
	t.gap.beginSeqNo++
	return false
}

// IsOpen reports whether a gap is currently outstanding.
func (t *gapTracker) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gap != nil
}

// Drain returns and clears every message queued while the gap was open, in
// arrival order, for the caller to re-dispatch once the gap has closed.
func (t *gapTracker) Drain() []queuedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	drained := t.queued
	t.queued = nil
	return drained
}

// Reset clears all gap and queue state, e.g. after a reconnect or an
// explicit sequence reset.
func (t *gapTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gap = nil
	t.queued = nil
}
