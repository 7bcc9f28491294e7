package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/epic1st/rtx/fixengine/internal/store"
)

type fakeAppendStore struct {
	store.MessageStore
	failOn uint64
	stored map[uint64][]byte
}

func newFakeAppendStore() *fakeAppendStore {
	return &fakeAppendStore{stored: make(map[uint64][]byte)}
}

func (f *fakeAppendStore) Append(ctx context.Context, seq uint64, bytes []byte) error {
	if f.failOn != 0 && seq == f.failOn {
		return errors.New("simulated store failure")
	}
	f.stored[seq] = bytes
	return nil
}

func TestManagerStartsAtOne(t *testing.T) {
	m := NewManager()
	if m.NextIn() != 1 || m.NextOut() != 1 {
		t.Fatalf("got (%d, %d), want (1, 1)", m.NextIn(), m.NextOut())
	}
}

func TestAssignAndStoreAdvancesOnSuccess(t *testing.T) {
	m := NewManager()
	s := newFakeAppendStore()
	ctx := context.Background()

	seq, err := m.AssignAndStore(ctx, s, []byte("msg1"))
	if err != nil {
		t.Fatalf("AssignAndStore: %v", err)
	}
	if seq != 1 {
		t.Fatalf("got seq %d, want 1", seq)
	}
	if m.NextOut() != 2 {
		t.Fatalf("NextOut() = %d, want 2", m.NextOut())
	}
}

func TestAssignAndStoreRollsBackOnFailure(t *testing.T) {
	m := NewManager()
	s := newFakeAppendStore()
	s.failOn = 1
	ctx := context.Background()

	if _, err := m.AssignAndStore(ctx, s, []byte("msg1")); err == nil {
		t.Fatalf("expected an error from the failing store")
	}
	if m.NextOut() != 1 {
		t.Fatalf("NextOut() after failed append = %d, want 1 (not advanced)", m.NextOut())
	}
}

func TestObserveInExpected(t *testing.T) {
	m := NewManager()
	obs := m.ObserveIn(1)
	if obs.Kind != Expected {
		t.Fatalf("got %v, want Expected", obs.Kind)
	}
	m.AdvanceIn(1)
	if m.NextIn() != 2 {
		t.Fatalf("NextIn() = %d, want 2", m.NextIn())
	}
}

func TestObserveInHigherIsAGap(t *testing.T) {
	m := NewManager()
	obs := m.ObserveIn(5)
	if obs.Kind != Higher {
		t.Fatalf("got %v, want Higher", obs.Kind)
	}
	if obs.Expected != 1 || obs.Got != 5 {
		t.Fatalf("got %+v", obs)
	}
	if m.NextIn() != 1 {
		t.Fatalf("NextIn() should be unchanged by a Higher observation, got %d", m.NextIn())
	}
}

func TestObserveInLowerIsADuplicate(t *testing.T) {
	m := NewManager()
	m.AdvanceIn(1)
	m.AdvanceIn(2)
	obs := m.ObserveIn(2)
	if obs.Kind != Lower {
		t.Fatalf("got %v, want Lower", obs.Kind)
	}
}

func TestResetOverridesOnlySpecifiedCounters(t *testing.T) {
	m := NewManager()
	m.AdvanceIn(4)
	m.Reset(0, 10)
	if m.NextIn() != 5 {
		t.Fatalf("NextIn() should be untouched by Reset(0, ...), got %d", m.NextIn())
	}
	if m.NextOut() != 10 {
		t.Fatalf("NextOut() = %d, want 10", m.NextOut())
	}

	m.Reset(1, 0)
	if m.NextIn() != 1 {
		t.Fatalf("NextIn() = %d, want 1 after Reset(1, 0)", m.NextIn())
	}
	if m.NextOut() != 10 {
		t.Fatalf("NextOut() should be untouched by Reset(1, 0), got %d", m.NextOut())
	}
}

func TestAdvanceInNeverMovesBackward(t *testing.T) {
	m := NewManager()
	m.AdvanceIn(10)
	m.AdvanceIn(3) // stale/out-of-order call must not regress next_in
	if m.NextIn() != 11 {
		t.Fatalf("NextIn() = %d, want 11", m.NextIn())
	}
}
