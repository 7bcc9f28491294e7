package field

import "github.com/epic1st/rtx/fixengine/internal/wire"

// GroupTemplate describes how to recognize one repeating group within an
// ordered field list: the count tag, the tag that begins each new entry,
// and the full set of tags permitted inside an entry. A tag outside Members
// ends the group, matching how quickfix's FieldMap stops a group scan at
// the first unrecognized tag.
type GroupTemplate struct {
	CountTag int
	FirstTag int
	Members  map[int]bool
}

// NewGroupTemplate builds a GroupTemplate from an explicit member tag list,
// always including FirstTag in the member set.
func NewGroupTemplate(countTag, firstTag int, memberTags ...int) GroupTemplate {
	members := make(map[int]bool, len(memberTags)+1)
	members[firstTag] = true
	for _, t := range memberTags {
		members[t] = true
	}
	return GroupTemplate{CountTag: countTag, FirstTag: firstTag, Members: members}
}

// Entry is one occurrence of a repeating group's member fields, in decode
// order.
type Entry wire.FieldList

// Group is the decoded view of a repeating group: one Entry per occurrence
// of the first tag that DecodeGroup could recover from the field list. The
// count field's declared value is not checked against the number of entries.
type Group []Entry

// DecodeGroup lazily locates a repeating group within fl starting at or
// after from, per tmpl. It returns the decoded entries, the index one past
// the group's last member field (where the caller should resume scanning),
// and whether the group was present at all.
//
// A new occurrence of tmpl.FirstTag starts a new entry. The group ends at
// the first field whose tag is not in tmpl.Members, or at the end of fl.
func DecodeGroup(fl wire.FieldList, from int, tmpl GroupTemplate) (group Group, next int, ok bool) {
	countIdx := fl.IndexOf(tmpl.CountTag, from)
	if countIdx < 0 {
		return nil, from, false
	}
	declared, err := Int(tmpl.CountTag, fl[countIdx].Value)
	if err != nil || declared < 0 {
		return nil, countIdx + 1, false
	}

	pos := countIdx + 1
	var entries Group
	var current Entry
	for pos < len(fl) {
		tag := fl[pos].Tag
		if !tmpl.Members[tag] {
			break
		}
		if tag == tmpl.FirstTag {
			if current != nil {
				entries = append(entries, current)
			}
			current = Entry{}
		} else if current == nil {
			// A member tag arrived before any FirstTag occurrence: not a
			// well-formed group instance.
			break
		}
		current = append(current, fl[pos])
		pos++
	}
	if current != nil {
		entries = append(entries, current)
	}
	return entries, pos, true
}

// Get returns the value of the first field with tag within this entry.
func (e Entry) Get(tag int) ([]byte, bool) {
	for _, f := range e {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return nil, false
}
