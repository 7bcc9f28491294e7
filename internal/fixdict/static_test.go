package fixdict

import "testing"

func TestStaticDictionaryKnowsAdminMessages(t *testing.T) {
	d := NewStaticDictionary()
	for _, mt := range []string{"A", "0", "1", "2", "3", "4", "5"} {
		if !IsAdministrative(mt) {
			t.Fatalf("IsAdministrative(%q) = false, want true", mt)
		}
		if _, ok := d.MessageSpecFor("FIX.4.4", mt); !ok {
			t.Fatalf("MessageSpecFor(FIX.4.4, %q) not found", mt)
		}
	}
	if _, ok := d.MessageSpecFor("FIX.4.4", "D"); ok {
		t.Fatalf("MessageSpecFor should not know application message type D")
	}
}

func TestStaticDictionaryLogonRequiredTags(t *testing.T) {
	d := NewStaticDictionary()
	spec, ok := d.MessageSpecFor("FIX.4.4", "A")
	if !ok {
		t.Fatalf("Logon spec not found")
	}
	want := map[int]bool{TagEncryptMethod: true, TagHeartBtInt: true}
	if len(spec.RequiredTags) != len(want) {
		t.Fatalf("got %d required tags, want %d", len(spec.RequiredTags), len(want))
	}
	for _, tag := range spec.RequiredTags {
		if !want[tag] {
			t.Fatalf("unexpected required tag %d", tag)
		}
	}
}

func TestStaticDictionaryBoolEnumFields(t *testing.T) {
	d := NewStaticDictionary()
	spec, ok := d.FieldSpecFor("FIX.4.4", "4", TagGapFillFlag)
	if !ok {
		t.Fatalf("GapFillFlag spec not found")
	}
	if len(spec.Allowed) != 2 {
		t.Fatalf("expected Y/N enum, got %v", spec.Allowed)
	}
}

func TestStaticDictionaryUnknownTag(t *testing.T) {
	d := NewStaticDictionary()
	if _, ok := d.FieldSpecFor("FIX.4.4", "A", 99999); ok {
		t.Fatalf("expected unknown tag to be absent")
	}
}
