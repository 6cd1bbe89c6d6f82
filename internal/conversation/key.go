// ABOUTME: Conversation key derivation from the origin of an inbound event
// ABOUTME: Direct user ids win over group ids, which win over room ids

package conversation

// Key identifies one conversation (a direct chat, a group, or a room).
// It is the correlation key between an image and the identifier that names it.
type Key string

// Key prefixes keep the user, group and room namespaces disjoint.
const (
	prefixUser  = "user:"
	prefixGroup = "group:"
	prefixRoom  = "room:"
)

// Origin describes where an inbound event came from. Any of the ids may be
// empty; a LINE group message, for instance, usually carries both a UserID
// and a GroupID.
type Origin struct {
	UserID  string
	GroupID string
	RoomID  string
}

// Classify derives the conversation key for an origin. The first non-empty id
// in the order user, group, room wins. The second return value is false when
// the origin carries no id at all; such events are unroutable and must be
// dropped without a reply.
func Classify(o Origin) (Key, bool) {
	switch {
	case o.UserID != "":
		return Key(prefixUser + o.UserID), true
	case o.GroupID != "":
		return Key(prefixGroup + o.GroupID), true
	case o.RoomID != "":
		return Key(prefixRoom + o.RoomID), true
	default:
		return "", false
	}
}
