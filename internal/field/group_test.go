package field

import (
	"testing"

	"github.com/epic1st/rtx/fixengine/internal/wire"
)

// NoPartyIDs-style group: 453=NoPartyIDs, 448=PartyID, 447=PartyIDSource, 452=PartyRole.
var partyGroupTemplate = NewGroupTemplate(453, 448, 447, 452)

func TestDecodeGroupTwoEntries(t *testing.T) {
	fl := wire.FieldList{
		{Tag: 35, Value: []byte("D")},
		{Tag: 453, Value: []byte("2")},
		{Tag: 448, Value: []byte("BROKER1")},
		{Tag: 447, Value: []byte("D")},
		{Tag: 452, Value: []byte("1")},
		{Tag: 448, Value: []byte("BROKER2")},
		{Tag: 447, Value: []byte("D")},
		{Tag: 452, Value: []byte("2")},
		{Tag: 54, Value: []byte("1")}, // ends the group
	}

	group, next, ok := DecodeGroup(fl, 0, partyGroupTemplate)
	if !ok {
		t.Fatalf("expected group to be found")
	}
	if len(group) != 2 {
		t.Fatalf("got %d entries, want 2", len(group))
	}
	if v, _ := group[0].Get(448); string(v) != "BROKER1" {
		t.Fatalf("entry 0 PartyID = %q", v)
	}
	if v, _ := group[1].Get(448); string(v) != "BROKER2" {
		t.Fatalf("entry 1 PartyID = %q", v)
	}
	if fl[next].Tag != 54 {
		t.Fatalf("next = %d points at tag %d, want 54", next, fl[next].Tag)
	}
}

func TestDecodeGroupAbsent(t *testing.T) {
	fl := wire.FieldList{{Tag: 35, Value: []byte("D")}, {Tag: 54, Value: []byte("1")}}
	_, _, ok := DecodeGroup(fl, 0, partyGroupTemplate)
	if ok {
		t.Fatalf("expected group to be absent")
	}
}

func TestDecodeGroupStopsAtFirstUnknownTag(t *testing.T) {
	fl := wire.FieldList{
		{Tag: 453, Value: []byte("1")},
		{Tag: 448, Value: []byte("BROKER1")},
		{Tag: 447, Value: []byte("D")},
		{Tag: 999, Value: []byte("unrelated")}, // not a member tag: ends the group
		{Tag: 452, Value: []byte("1")},
	}
	group, next, ok := DecodeGroup(fl, 0, partyGroupTemplate)
	if !ok {
		t.Fatalf("expected group to be found")
	}
	if len(group) != 1 {
		t.Fatalf("got %d entries, want 1", len(group))
	}
	if fl[next].Tag != 999 {
		t.Fatalf("next should point at the unrecognized tag, got %d", fl[next].Tag)
	}
}

func TestDecodeGroupEmptyCount(t *testing.T) {
	fl := wire.FieldList{
		{Tag: 453, Value: []byte("0")},
		{Tag: 54, Value: []byte("1")},
	}
	group, next, ok := DecodeGroup(fl, 0, partyGroupTemplate)
	if !ok {
		t.Fatalf("expected group marker to be recognized even with zero entries")
	}
	if len(group) != 0 {
		t.Fatalf("got %d entries, want 0", len(group))
	}
	if fl[next].Tag != 54 {
		t.Fatalf("next should resume at tag 54, got %d", fl[next].Tag)
	}
}
