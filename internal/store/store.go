// Package store implements the Message Store contract: a durable,
// append-only log of outbound frames keyed by sequence number, with range
// retrieval and administrative reset.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSeqAlreadyPresent is returned by Append when seq already exists.
	ErrSeqAlreadyPresent = errors.New("store: sequence already present")
	// ErrSeqOutOfOrder is returned by Append when seq != last+1.
	ErrSeqOutOfOrder = errors.New("store: sequence out of order")
	// ErrGap is returned by GetRange when a sequence within [from, to] is
	// missing from the log.
	ErrGap = errors.New("store: gap in requested range")
)

// Record is one stored (sequence, frame) pair, returned in order by
// GetRange.
type Record struct {
	Seq   uint64
	Bytes []byte
}

// MessageStore is the durable log behind one session's outbound sequence
// space. Append is serialized per session; reads may proceed concurrently
// with writes but observe a state no older than the most recently completed
// Append at the time the read began.
type MessageStore interface {
	// Append durably persists bytes at seq. It must return only after the
	// write is durable. Fails with ErrSeqAlreadyPresent or ErrSeqOutOfOrder
	// without mutating state.
	Append(ctx context.Context, seq uint64, bytes []byte) error

	// GetRange returns every record in [from, toInclusive] in order.
	// toInclusive == 0 means "through LastSeq". Fails with ErrGap if any
	// sequence in the range is missing.
	GetRange(ctx context.Context, from, toInclusive uint64) ([]Record, error)

	// ResetTo truncates the log and sets the next expected sequence to seq.
	// Used for administrative resets (ResetSeqNumFlag=Y, SequenceReset-Reset).
	ResetTo(ctx context.Context, seq uint64) error

	// LastSeq returns the highest sequence number currently stored, or 0 if
	// the store is empty (or has just been reset).
	LastSeq(ctx context.Context) (uint64, error)

	// CreationTime returns when this store's current sequence epoch began
	// (the time of creation, or of the most recent ResetTo).
	CreationTime(ctx context.Context) (time.Time, error)

	// Close releases any resources (file handles, connections) held by the
	// store. The store must not be used afterward.
	Close() error
}
