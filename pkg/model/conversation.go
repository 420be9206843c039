package model

import "strings"

// DMConversationID builds the canonical id of the direct conversation
// between two users. Participant order is normalized so both sides derive
// the same id.
func DMConversationID(uid1, uid2 string) string {
	if uid1 > uid2 {
		uid1, uid2 = uid2, uid1
	}
	return "dm:" + uid1 + ":" + uid2
}

// DMParticipants extracts the two participant uids from a DM conversation
// id. ok is false for non-DM ids and malformed DM ids.
func DMParticipants(conversationID string) (uid1, uid2 string, ok bool) {
	if !strings.HasPrefix(conversationID, "dm:") {
		return "", "", false
	}
	parts := strings.Split(conversationID, ":")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// IsDM reports whether the conversation id names a direct conversation.
func IsDM(conversationID string) bool {
	return strings.HasPrefix(conversationID, "dm:")
}
