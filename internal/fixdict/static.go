package fixdict

import "github.com/epic1st/rtx/fixengine/internal/field"

// administrative message tags, shared across the FIX.4.x/FIXT.1.1 dialects
// this engine negotiates (tags 34/49/52/56/etc. are identical across them).
const (
	TagMsgSeqNum        = 34
	TagSenderCompID     = 49
	TagSendingTime      = 52
	TagTargetCompID     = 56
	TagEncryptMethod    = 98
	TagHeartBtInt       = 108
	TagTestReqID        = 112
	TagOrigSendingTime  = 122
	TagGapFillFlag      = 123
	TagPossDupFlag      = 43
	TagResetSeqNumFlag  = 141
	TagBeginSeqNo       = 7
	TagEndSeqNo         = 16
	TagNewSeqNo         = 36
	TagRefSeqNum        = 45
	TagRefTagID         = 371
	TagRefMsgType       = 372
	TagSessionRejReason = 373
	TagText             = 58
	TagDefaultApplVerID = 1137
	TagApplVerID        = 1128
)

var adminMessageSpecs = map[string]MessageSpec{
	"A": { // Logon
		MsgType:      "A",
		RequiredTags: []int{TagEncryptMethod, TagHeartBtInt},
	},
	"0": { // Heartbeat
		MsgType:      "0",
		RequiredTags: nil,
	},
	"1": { // TestRequest
		MsgType:      "1",
		RequiredTags: []int{TagTestReqID},
	},
	"2": { // ResendRequest
		MsgType:      "2",
		RequiredTags: []int{TagBeginSeqNo, TagEndSeqNo},
	},
	"3": { // Reject
		MsgType:      "3",
		RequiredTags: []int{TagRefSeqNum, TagSessionRejReason},
	},
	"4": { // SequenceReset
		MsgType:      "4",
		RequiredTags: []int{TagNewSeqNo},
	},
	"5": { // Logout
		MsgType:      "5",
		RequiredTags: nil,
	},
}

var adminFieldKinds = map[int]field.Kind{
	TagMsgSeqNum:        field.KindInt,
	TagSenderCompID:     field.KindString,
	TagSendingTime:      field.KindUTCTimestamp,
	TagTargetCompID:     field.KindString,
	TagEncryptMethod:    field.KindInt,
	TagHeartBtInt:       field.KindInt,
	TagTestReqID:        field.KindString,
	TagOrigSendingTime:  field.KindUTCTimestamp,
	TagGapFillFlag:      field.KindChar,
	TagPossDupFlag:      field.KindChar,
	TagResetSeqNumFlag:  field.KindChar,
	TagBeginSeqNo:       field.KindInt,
	TagEndSeqNo:         field.KindInt,
	TagNewSeqNo:         field.KindInt,
	TagRefSeqNum:        field.KindInt,
	TagRefTagID:         field.KindInt,
	TagRefMsgType:       field.KindString,
	TagSessionRejReason: field.KindInt,
	TagText:             field.KindString,
	TagDefaultApplVerID: field.KindString,
	TagApplVerID:        field.KindString,
}

var boolEnum = []byte{'Y', 'N'}

var enumFields = map[int][]byte{
	TagGapFillFlag:     boolEnum,
	TagPossDupFlag:     boolEnum,
	TagResetSeqNumFlag: boolEnum,
}

// StaticDictionary is a minimal built-in Dictionary covering the
// administrative message set (A 0 1 2 3 4 5), shared across every
// BeginString this engine negotiates. It has no knowledge of
// application-level message types; callers who need those must supply
// their own Dictionary (e.g. generated from a FIX XML data dictionary),
// which is out of this engine's scope.
type StaticDictionary struct{}

// NewStaticDictionary returns the engine's built-in administrative-message
// dictionary.
func NewStaticDictionary() *StaticDictionary {
	return &StaticDictionary{}
}

func (d *StaticDictionary) FieldSpecFor(beginString, msgType string, tag int) (FieldSpec, bool) {
	kind, ok := adminFieldKinds[tag]
	if !ok {
		return FieldSpec{}, false
	}
	spec := FieldSpec{Tag: tag, Kind: kind}
	if allowed, ok := enumFields[tag]; ok {
		spec.Kind = field.KindEnum
		spec.Allowed = allowed
	}
	return spec, true
}

func (d *StaticDictionary) MessageSpecFor(beginString, msgType string) (MessageSpec, bool) {
	spec, ok := adminMessageSpecs[msgType]
	return spec, ok
}
