package session

import "github.com/epic1st/rtx/fixengine/internal/store"

// ReplayEntry is one item in a resend reply stream: either a verbatim
// application message (PossDupFlag added) or a synthesized
// SequenceReset-GapFill standing in for a run of administrative messages.
type ReplayEntry struct {
	IsGapFill bool

	// Verbatim replay fields.
	Seq   uint64
	Bytes []byte

	// Gap-fill fields.
	GapFillBeginSeq uint64 // NewSeqNo carried in the GapFill is the seq after this run
	NewSeqNo        uint64
}

// CoalesceResend walks records (already loaded from the store, in order)
// and coalesces consecutive administrative messages into a single
// SequenceReset-GapFill per run, per the resend semantics: application
// messages are resent verbatim with PossDupFlag added, while runs of
// administrative messages collapse into one GapFill whose NewSeqNo equals
// the sequence immediately following the run.
func CoalesceResend(records []store.Record, msgTypeOf func(bytes []byte) string, isAdmin func(msgType string) bool) []ReplayEntry {
	var out []ReplayEntry
	i := 0
	for i < len(records) {
		mt := msgTypeOf(records[i].Bytes)
		if !isAdmin(mt) {
			out = append(out, ReplayEntry{Seq: records[i].Seq, Bytes: records[i].Bytes})
			i++
			continue
		}

		runBegin := records[i].Seq
		j := i
		for j < len(records) && isAdmin(msgTypeOf(records[j].Bytes)) {
			j++
		}
		runEnd := records[j-1].Seq
		out = append(out, ReplayEntry{
			IsGapFill:       true,
			GapFillBeginSeq: runBegin,
			NewSeqNo:        runEnd + 1,
		})
		i = j
	}
	return out
}
