package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordMessageIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(messagesTotal.WithLabelValues("S1", "in", "D"))
	RecordMessage("S1", "in", "D")
	after := testutil.ToFloat64(messagesTotal.WithLabelValues("S1", "in", "D"))
	if after != before+1 {
		t.Fatalf("messagesTotal = %v, want %v", after, before+1)
	}
}

func TestRecordSequenceGapIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(sequenceGapsDetected.WithLabelValues("S2"))
	RecordSequenceGap("S2")
	after := testutil.ToFloat64(sequenceGapsDetected.WithLabelValues("S2"))
	if after != before+1 {
		t.Fatalf("sequenceGapsDetected = %v, want %v", after, before+1)
	}
}

func TestRecordSequenceResetDistinguishesGapFill(t *testing.T) {
	beforeTrue := testutil.ToFloat64(sequenceResetsReceived.WithLabelValues("S3", "true"))
	beforeFalse := testutil.ToFloat64(sequenceResetsReceived.WithLabelValues("S3", "false"))

	RecordSequenceReset("S3", true)
	RecordSequenceReset("S3", false)

	if got := testutil.ToFloat64(sequenceResetsReceived.WithLabelValues("S3", "true")); got != beforeTrue+1 {
		t.Fatalf("gap_fill=true = %v, want %v", got, beforeTrue+1)
	}
	if got := testutil.ToFloat64(sequenceResetsReceived.WithLabelValues("S3", "false")); got != beforeFalse+1 {
		t.Fatalf("gap_fill=false = %v, want %v", got, beforeFalse+1)
	}
}

func TestHandlerIsNonNil(t *testing.T) {
	if Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}

func TestItoaNegativeAndZero(t *testing.T) {
	cases := map[int]string{0: "0", 5: "5", -5: "-5", 373: "373"}
	for in, want := range cases {
		if got := itoa(in); got != want {
			t.Fatalf("itoa(%d) = %q, want %q", in, got, want)
		}
	}
}
