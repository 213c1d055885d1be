package protocol

import (
	"encoding/json"
	"testing"
)

func TestEncodeEvent(t *testing.T) {
	data, err := EncodeEvent("StartDM", map[string]any{"trial": 3, "event": "spoofed"}, "v1", 2.5)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatal(err)
	}
	if obj["event"] != "StartDM" {
		t.Errorf("event = %v, reserved key must win over payload", obj["event"])
	}
	if obj["trial"] != float64(3) {
		t.Errorf("trial = %v, want 3", obj["trial"])
	}
	if obj["t_send"] != 2.5 {
		t.Errorf("t_send = %v, want 2.5", obj["t_send"])
	}
	if _, ok := obj["t_recv"]; ok {
		t.Error("unset t_recv should be omitted")
	}
}

func TestEventMarshalRoundTrip(t *testing.T) {
	ev := NewEvent("DecisionMade", map[string]any{"trial": 1, "rt": 0.42})
	ev.TRecv = 9

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Name != "DecisionMade" || got.Proto != DefaultProto || got.TRecv != 9 {
		t.Errorf("got %+v", got)
	}
	if got.Fields["rt"] != json.Number("0.42") {
		t.Errorf("rt = %#v", got.Fields["rt"])
	}
}

func TestEventProtoOrDefault(t *testing.T) {
	ev := &Event{Name: "x"}
	if ev.ProtoOrDefault() != DefaultProto {
		t.Errorf("ProtoOrDefault() = %q", ev.ProtoOrDefault())
	}
	ev.Proto = "v2"
	if ev.ProtoOrDefault() != "v2" {
		t.Errorf("ProtoOrDefault() = %q", ev.ProtoOrDefault())
	}
	if ev.Trial() != nil {
		t.Errorf("Trial() = %v, want nil", ev.Trial())
	}
}

func TestMonotonic(t *testing.T) {
	a := Monotonic()
	b := Monotonic()
	if b < a {
		t.Errorf("Monotonic went backwards: %v then %v", a, b)
	}
	if FrameText.String() != "text" || FrameBinary.String() != "binary" {
		t.Error("unexpected FrameType strings")
	}
}
