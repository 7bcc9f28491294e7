package session

import "testing"

func TestRejectReasonMapping(t *testing.T) {
	cases := map[Cause]SessionRejectReason{
		CauseInvalidTag:             RejectInvalidTagNumber,
		CauseMissingRequiredTag:     RejectRequiredTagMissing,
		CauseUndefinedTag:           RejectUndefinedTag,
		CauseMalformedValue:         RejectIncorrectDataFormat,
		CauseCompIDMismatch:         RejectIncorrectCompID,
		CauseSendingTimeSkew:        RejectSendingTimeAccuracy,
		CauseSequenceLowerNoPossDup: RejectIncorrectDataFormat,
	}
	for cause, want := range cases {
		if got := RejectReasonFor(cause); got != want {
			t.Fatalf("RejectReasonFor(%v) = %v, want %v", cause, got, want)
		}
	}
}
