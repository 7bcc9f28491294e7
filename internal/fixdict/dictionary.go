// Package fixdict defines the Dictionary collaborator the engine consults
// to resolve field types and per-message required-tag/group-template sets,
// and ships a small built-in dictionary covering the administrative message
// set so the engine is usable standalone without a supplied FIX XML
// dictionary.
package fixdict

import "github.com/epic1st/rtx/fixengine/internal/field"

// FieldSpec describes one field's declared type and, for enum fields, its
// permitted value set.
type FieldSpec struct {
	Tag     int
	Name    string
	Kind    field.Kind
	Allowed []byte // non-nil only for Kind == field.KindEnum
}

// MessageSpec describes one message type's required tags and the
// repeating-group templates its body may contain.
type MessageSpec struct {
	MsgType      string
	RequiredTags []int
	Groups       []field.GroupTemplate
}

// Dictionary resolves field and message specs for a given dialect. A single
// Dictionary instance may serve several BeginStrings (e.g. sharing admin
// message defs across FIX.4.2/4.3/4.4) or none at all, at the
// implementation's discretion.
type Dictionary interface {
	// FieldSpecFor resolves (BeginString, MsgType, Tag) to a FieldSpec. The
	// second return value is false if the tag is undefined for that
	// dialect/message.
	FieldSpecFor(beginString, msgType string, tag int) (FieldSpec, bool)
	// MessageSpecFor resolves (BeginString, MsgType) to a MessageSpec. False
	// if the message type is unknown to this dictionary.
	MessageSpecFor(beginString, msgType string) (MessageSpec, bool)
}

// IsAdministrative reports whether msgType is one of the session-layer
// administrative message types (0 Heartbeat, 1 TestRequest, 2 ResendRequest,
// 3 Reject, 4 SequenceReset, 5 Logout, A Logon).
func IsAdministrative(msgType string) bool {
	switch msgType {
	case "0", "1", "2", "3", "4", "5", "A":
		return true
	default:
		return false
	}
}
