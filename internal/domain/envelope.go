package domain

import "encoding/json"

// Kind is the closed set of events the relay forwards without interpretation.
type Kind uint8

const (
	KindCallInitiate Kind = iota + 1
	KindCallAnswer
	KindICECandidate
	KindCallReject
	KindCallEnd
	KindCallCancel
	KindTypingStart
	KindTypingStop
	KindMessageDeleted
)

var kindNames = map[string]Kind{
	"call:initiate":   KindCallInitiate,
	"call:answer":     KindCallAnswer,
	"ice:candidate":   KindICECandidate,
	"call:reject":     KindCallReject,
	"call:end":        KindCallEnd,
	"call:cancel":     KindCallCancel,
	"typing:start":    KindTypingStart,
	"typing:stop":     KindTypingStop,
	"message:deleted": KindMessageDeleted,
}

// ParseKind maps an inbound event name onto a Kind.
func ParseKind(name string) (Kind, error) {
	if k, ok := kindNames[name]; ok {
		return k, nil
	}
	return 0, ErrUnknownKind
}

func (k Kind) String() string {
	for name, v := range kindNames {
		if v == k {
			return name
		}
	}
	return "unknown"
}

// Outbound is the event name the target receives.
func (k Kind) Outbound() string {
	switch k {
	case KindCallInitiate:
		return "call:incoming"
	case KindCallAnswer:
		return "call:answered"
	case KindICECandidate:
		return "ice:candidate"
	case KindCallReject:
		return "call:rejected"
	case KindCallEnd:
		return "call:ended"
	case KindCallCancel:
		return "call:cancelled"
	case KindTypingStart:
		return "typing:start"
	case KindTypingStop:
		return "typing:stop"
	case KindMessageDeleted:
		return "message:deleted"
	}
	return ""
}

func (k Kind) IsCall() bool { return k >= KindCallInitiate && k <= KindCallCancel }

type CallID string

// Envelope is a transient relay unit. Payload is forwarded verbatim.
type Envelope struct {
	Sender  UserID
	Target  UserID
	Kind    Kind
	CallID  CallID
	Payload json.RawMessage
}

func (e Envelope) Validate() error {
	if e.Kind.Outbound() == "" {
		return ErrUnknownKind
	}
	if e.Target == "" {
		return ErrNoTarget
	}
	return nil
}
