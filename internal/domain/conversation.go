package domain

import (
	"strings"
)

const directPrefix = "dm:"

// DirectConversationID returns the stable id of the 1:1 conversation between a and b.
func DirectConversationID(a, b UserID) ConversationID {
	x, y := string(a), string(b)
	if y < x {
		x, y = y, x
	}
	return ConversationID(directPrefix + x + ":" + y)
}

// DirectPeers reports the two participants of a 1:1 conversation id.
func DirectPeers(c ConversationID) (UserID, UserID, bool) {
	s, ok := strings.CutPrefix(string(c), directPrefix)
	if !ok {
		return "", "", false
	}
	a, b, ok := strings.Cut(s, ":")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return UserID(a), UserID(b), true
}
