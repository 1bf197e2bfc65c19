package timeline

import "reflect"

// Merge reconciles the locally held timeline with an authoritative batch of
// server messages.
//
// Server messages win on content. Local messages survive only if the server
// batch does not cover them: an optimistic message whose ClientID is matched
// by a server message is replaced by the server copy in the same slot, and a
// local message whose ID appears in the batch is superseded by it. Everything
// else local (unconfirmed optimistic sends, messages outside the server's
// window) is kept, inserted by timestamp so the result follows original
// sequence rather than arrival order.
//
// Merge is pure. When the merge changes nothing it returns local unchanged so
// callers can cheaply detect that no downstream refresh is needed.
func Merge(local, server []Message) []Message {
	if len(server) == 0 {
		return local
	}

	serverIDs := make(map[string]struct{}, len(server))
	serverClientIDs := make(map[string]struct{}, len(server))
	for i := range server {
		serverIDs[server[i].ID] = struct{}{}
		if server[i].ClientID != "" {
			serverClientIDs[server[i].ClientID] = struct{}{}
		}
	}

	merged := make([]Message, len(server))
	copy(merged, server)

	// Insertion scans from the front but never moves backwards, so local
	// messages with equal timestamps keep their relative order.
	insertAt := 0
	for i := range local {
		lm := local[i]
		if _, ok := serverIDs[lm.ID]; ok {
			continue
		}
		if lm.ClientID != "" {
			if _, ok := serverClientIDs[lm.ClientID]; ok {
				continue
			}
		}
		pos := insertAt
		for pos < len(merged) && !merged[pos].Timestamp.After(lm.Timestamp) {
			pos++
		}
		merged = append(merged, Message{})
		copy(merged[pos+1:], merged[pos:])
		merged[pos] = lm
		insertAt = pos + 1
	}

	if messagesEqual(local, merged) {
		return local
	}
	return merged
}

func messagesEqual(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return reflect.DeepEqual(a, b)
}
