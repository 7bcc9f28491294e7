// Package sequence implements the Sequence Manager: the in/out counters a
// session uses to assign outbound MsgSeqNum values and classify inbound
// ones, paired with the Message Store so assignment and durable append
// commit together.
package sequence

import (
	"context"
	"fmt"

	"github.com/epic1st/rtx/fixengine/internal/store"
)

// ObservationKind classifies an inbound MsgSeqNum against next_in.
type ObservationKind int

const (
	// Expected means seq == next_in; the caller should advance next_in.
	Expected ObservationKind = iota
	// Higher means seq > next_in: a gap. next_in is not advanced.
	Higher
	// Lower means seq < next_in: a duplicate, which is only legitimate
	// when PossDupFlag=Y accompanies it.
	Lower
	// Reset is only produced by explicit observation during
	// SequenceReset-Reset handling, never by ordinary ObserveIn.
	Reset
)

// Observation is the result of comparing an inbound MsgSeqNum to next_in.
type Observation struct {
	Kind     ObservationKind
	Expected uint64
	Got      uint64
}

// Manager owns next_out and next_in for one session. assign_out() pairs
// with a durable store append: the counter only advances if the append
// succeeds, so a store failure never leaves next_out ahead of what's
// actually durable.
type Manager struct {
	nextIn  uint64
	nextOut uint64
}

// NewManager constructs a Manager with both counters starting at 1, the
// contract's default for a freshly created session.
func NewManager() *Manager {
	return &Manager{nextIn: 1, nextOut: 1}
}

// Restore builds a Manager from persisted counters (as loaded from the
// Message Store on startup).
func Restore(nextIn, nextOut uint64) *Manager {
	return &Manager{nextIn: nextIn, nextOut: nextOut}
}

// NextIn returns the sequence the manager currently expects inbound.
func (m *Manager) NextIn() uint64 { return m.nextIn }

// NextOut returns the sequence that will be assigned to the next outbound
// message.
func (m *Manager) NextOut() uint64 { return m.nextOut }

// AssignAndStore assigns the current next_out to frame, persists it via s,
// and only then advances next_out. If the store append fails, next_out is
// left untouched — the assignment is rolled back — so the caller never
// observes a gap between what the manager promised and what's durable.
func (m *Manager) AssignAndStore(ctx context.Context, s store.MessageStore, frame []byte) (uint64, error) {
	seq := m.nextOut
	if err := s.Append(ctx, seq, frame); err != nil {
		return 0, fmt.Errorf("sequence: storing outbound seq %d: %w", seq, err)
	}
	m.nextOut = seq + 1
	return seq, nil
}

// ObserveIn classifies seq against next_in without mutating state; the
// caller (the orchestrator) decides whether and how to advance
// next_in based on the Observation and any accompanying PossDupFlag.
func (m *Manager) ObserveIn(seq uint64) Observation {
	switch {
	case seq == m.nextIn:
		return Observation{Kind: Expected, Expected: m.nextIn, Got: seq}
	case seq > m.nextIn:
		return Observation{Kind: Higher, Expected: m.nextIn, Got: seq}
	default:
		return Observation{Kind: Lower, Expected: m.nextIn, Got: seq}
	}
}

// AdvanceIn moves next_in forward to seq+1. Callers call this after
// accepting an Expected observation, or after a gap closes via resend.
func (m *Manager) AdvanceIn(seq uint64) {
	if seq+1 > m.nextIn {
		m.nextIn = seq + 1
	}
}

// Reset sets next_in and/or next_out directly, per Logon ResetSeqNumFlag=Y
// or SequenceReset-Reset handling. A zero argument leaves that counter
// unchanged.
func (m *Manager) Reset(nextIn, nextOut uint64) {
	if nextIn != 0 {
		m.nextIn = nextIn
	}
	if nextOut != 0 {
		m.nextOut = nextOut
	}
}
