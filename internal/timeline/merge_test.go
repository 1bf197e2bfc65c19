package timeline

import (
	"testing"
	"time"
)

func at(sec int64) time.Time { return time.Unix(sec, 0) }

func userMsg(id, clientID, text string, ts time.Time) Message {
	m := NewUserMessage(id, clientID, text, ts)
	return m
}

func assistantMsg(id, text string, ts time.Time) Message {
	return Message{
		ID:        id,
		Role:      RoleAssistant,
		Parts:     []Part{TextPart(id + "-t", text)},
		Timestamp: ts,
	}
}

func TestMergeServerWinsByID(t *testing.T) {
	local := []Message{assistantMsg("srv-1", "old content", at(100))}
	server := []Message{assistantMsg("srv-1", "corrected content", at(100))}

	merged := Merge(local, server)
	if len(merged) != 1 {
		t.Fatalf("len=%d, want 1", len(merged))
	}
	if merged[0].Text() != "corrected content" {
		t.Fatalf("text=%q, want server copy", merged[0].Text())
	}
}

func TestMergeReplacesOptimisticByClientID(t *testing.T) {
	local := []Message{
		assistantMsg("srv-1", "earlier reply", at(100)),
		userMsg("m5", "c-abc", "run the tests", at(200)),
	}
	confirmed := userMsg("srv-2", "c-abc", "run the tests", at(201))
	server := []Message{
		assistantMsg("srv-1", "earlier reply", at(100)),
		confirmed,
	}

	merged := Merge(local, server)
	if len(merged) != 2 {
		t.Fatalf("len=%d, want 2 (optimistic replaced, not duplicated)", len(merged))
	}
	if merged[1].ID != "srv-2" {
		t.Fatalf("id=%q, want server-confirmed copy", merged[1].ID)
	}
	if merged[1].ClientID != "c-abc" {
		t.Fatalf("clientID=%q, want preserved", merged[1].ClientID)
	}
}

func TestMergeKeepsUnconfirmedOptimistic(t *testing.T) {
	local := []Message{
		assistantMsg("srv-1", "reply", at(100)),
		userMsg("m5", "c-new", "not yet confirmed", at(300)),
	}
	server := []Message{assistantMsg("srv-1", "reply", at(100))}

	merged := Merge(local, server)
	if len(merged) != 2 {
		t.Fatalf("len=%d, want 2", len(merged))
	}
	if merged[1].ID != "m5" {
		t.Fatalf("unconfirmed optimistic message dropped: %v", merged)
	}
}

func TestMergeInsertsByTimestamp(t *testing.T) {
	local := []Message{
		userMsg("m1", "", "first", at(100)),
		userMsg("m2", "", "third", at(300)),
	}
	server := []Message{assistantMsg("srv-1", "second", at(200))}

	merged := Merge(local, server)
	wantOrder := []string{"m1", "srv-1", "m2"}
	if len(merged) != 3 {
		t.Fatalf("len=%d, want 3", len(merged))
	}
	for i, id := range wantOrder {
		if merged[i].ID != id {
			t.Fatalf("pos %d = %q, want %q", i, merged[i].ID, id)
		}
	}
}

func TestMergeEqualTimestampsKeepLocalOrder(t *testing.T) {
	local := []Message{
		userMsg("m1", "", "a", at(100)),
		userMsg("m2", "", "b", at(100)),
		userMsg("m3", "", "c", at(100)),
	}
	server := []Message{assistantMsg("srv-1", "x", at(100))}

	merged := Merge(local, server)
	// Insertion never moves backwards, so m1..m3 stay in sequence.
	var gotLocal []string
	for _, m := range merged {
		if m.Role == RoleUser {
			gotLocal = append(gotLocal, m.ID)
		}
	}
	want := []string{"m1", "m2", "m3"}
	for i := range want {
		if gotLocal[i] != want[i] {
			t.Fatalf("local order %v, want %v", gotLocal, want)
		}
	}
}

func TestMergeNoChangeReturnsLocalUnchanged(t *testing.T) {
	local := []Message{
		userMsg("srv-1", "", "hello", at(100)),
		assistantMsg("srv-2", "hi", at(101)),
	}
	server := []Message{local[0], local[1]}

	merged := Merge(local, server)
	if len(merged) != len(local) || &merged[0] != &local[0] {
		t.Fatal("identical merge should return the local slice for referential stability")
	}
}

func TestMergeEmptyServerBatch(t *testing.T) {
	local := []Message{userMsg("m1", "", "hello", at(100))}
	if merged := Merge(local, nil); &merged[0] != &local[0] {
		t.Fatal("empty batch should leave local untouched")
	}
}
