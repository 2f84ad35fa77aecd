package domain

import (
	"errors"
	"testing"
)

func TestKind_RoundTripAndOutbound(t *testing.T) {
	want := map[string]string{
		"call:initiate":   "call:incoming",
		"call:answer":     "call:answered",
		"ice:candidate":   "ice:candidate",
		"call:reject":     "call:rejected",
		"call:end":        "call:ended",
		"call:cancel":     "call:cancelled",
		"typing:start":    "typing:start",
		"typing:stop":     "typing:stop",
		"message:deleted": "message:deleted",
	}
	for in, out := range want {
		k, err := ParseKind(in)
		if err != nil {
			t.Errorf("ParseKind(%q) error = %v", in, err)
			continue
		}
		if k.String() != in {
			t.Errorf("String() = %q, want %q", k.String(), in)
		}
		if k.Outbound() != out {
			t.Errorf("%q.Outbound() = %q, want %q", in, k.Outbound(), out)
		}
	}
	if _, err := ParseKind("message:send"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind(message:send) error = %v, want ErrUnknownKind", err)
	}
}

func TestKind_IsCall(t *testing.T) {
	if !KindCallCancel.IsCall() || !KindICECandidate.IsCall() {
		t.Error("call kinds should report IsCall")
	}
	if KindTypingStart.IsCall() || KindMessageDeleted.IsCall() {
		t.Error("non-call kinds should not report IsCall")
	}
}

func TestEnvelope_Validate(t *testing.T) {
	if err := (Envelope{Kind: KindTypingStart, Target: "bob"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := (Envelope{Kind: KindTypingStart}).Validate(); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Validate(no target) = %v, want ErrNoTarget", err)
	}
	if err := (Envelope{Target: "bob"}).Validate(); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Validate(no kind) = %v, want ErrUnknownKind", err)
	}
}
