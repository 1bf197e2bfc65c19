package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseEvent(t *testing.T) {
	data := []byte(`{
		"session_id": "s1",
		"event": "stream.text_delta",
		"delta": "Hel"
	}`)
	ev, err := ParseEvent(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.SessionID != "s1" || ev.Kind != EventTextDelta || ev.Delta != "Hel" {
		t.Fatalf("event: %+v", ev)
	}
}

func TestParseEventRejectsMissingKind(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"session_id": "s1"}`)); err == nil {
		t.Fatal("frame without event field should be rejected")
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Fatal("malformed frame should be rejected")
	}
}

func TestParseEventUnknownKindPassesThrough(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"session_id": "s1", "event": "future.thing"}`))
	if err != nil {
		t.Fatalf("unknown kinds should decode: %v", err)
	}
	if ev.Kind != "future.thing" {
		t.Fatalf("kind=%q", ev.Kind)
	}
}

func TestIsAssistantRole(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{"", true},
		{"assistant", true},
		{"agent", true},
		{"user", false},
		{"toolResult", false},
	}
	for _, c := range cases {
		if got := IsAssistantRole(c.role); got != c.want {
			t.Errorf("IsAssistantRole(%q)=%v, want %v", c.role, got, c.want)
		}
	}
}

func TestSessionStateBusy(t *testing.T) {
	busy := []string{"streaming", "compacting", "starting"}
	for _, status := range busy {
		if !(SessionState{Status: status}).Busy() {
			t.Errorf("status %q should be busy", status)
		}
	}
	if (SessionState{Status: "idle"}).Busy() {
		t.Error("idle should not be busy")
	}
}

func TestResponseErr(t *testing.T) {
	ok := Response{Success: true}
	if err := ok.Err(); err != nil {
		t.Fatalf("success response errored: %v", err)
	}

	failed := Response{Cmd: CmdPrompt, Error: "session busy"}
	if err := failed.Err(); err == nil || err.Error() != "command prompt failed: session busy" {
		t.Fatalf("err=%v", failed.Err())
	}

	bare := Response{Cmd: CmdAbort}
	if err := bare.Err(); err == nil {
		t.Fatal("failure without message should still error")
	}
}

func TestResponseDecodeData(t *testing.T) {
	r := Response{
		Success: true,
		Data:    json.RawMessage(`{"sessions": [{"session_id": "s1", "status": "idle"}]}`),
	}
	var list SessionList
	if err := r.DecodeData(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].SessionID != "s1" {
		t.Fatalf("list: %+v", list)
	}

	empty := Response{Cmd: CmdGetState}
	if err := empty.DecodeData(&list); err == nil {
		t.Fatal("decode with no data should error")
	}
}

func TestNewCommand(t *testing.T) {
	cmd, err := NewCommand("id-1", CmdPrompt, "s1", PromptPayload{Message: "hi", ClientID: "c1"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	json.Unmarshal(data, &decoded)
	if decoded["cmd"] != "prompt" || decoded["id"] != "id-1" || decoded["session_id"] != "s1" {
		t.Fatalf("frame: %s", data)
	}
	payload := decoded["payload"].(map[string]any)
	if payload["message"] != "hi" || payload["client_id"] != "c1" {
		t.Fatalf("payload: %v", payload)
	}

	bare, err := NewCommand("id-2", CmdAbort, "s1", nil)
	if err != nil {
		t.Fatalf("build bare: %v", err)
	}
	if bare.Payload != nil {
		t.Fatal("nil payload should be omitted")
	}
}
