package execution

import (
	"bytes"
	"encoding/json"
)

// TraceTransaction is the result of debug_traceTransaction with the struct
// logger.
type TraceTransaction struct {
	Gas         JSONUint64 `json:"gas"`
	Failed      bool       `json:"failed"`
	ReturnValue *string    `json:"returnValue"`

	// empty array on transfer
	StructLogs []StructLog `json:"structLogs"`
}

// StructLog is one raw structlog record. Fields are kept as raw JSON so that
// a single bad record does not fail the whole trace; required fields and
// their types are enforced when the record is decoded into an instruction.
//
// Stack is ordered bottom first, the way geth and erigon emit it. Entries are
// hex strings, decimal strings or numbers depending on the tracer.
type StructLog struct {
	PC      json.RawMessage   `json:"pc,omitempty"`
	Op      json.RawMessage   `json:"op,omitempty"`
	Gas     json.RawMessage   `json:"gas,omitempty"`
	GasCost json.RawMessage   `json:"gasCost,omitempty"`
	Depth   json.RawMessage   `json:"depth,omitempty"`
	Stack   []json.RawMessage `json:"stack,omitempty"`
	Memory  json.RawMessage   `json:"memory,omitempty"`
	Refund  json.RawMessage   `json:"refund,omitempty"`
	Error   json.RawMessage   `json:"error,omitempty"`
}

// OpName returns the record's mnemonic, or "" when it is missing or not a
// string.
func (s *StructLog) OpName() string {
	var op string
	if err := json.Unmarshal(s.Op, &op); err != nil {
		return ""
	}

	return op
}

// IsAbsent reports whether a raw field was omitted or null.
func IsAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)

	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// RawString encodes s as a raw JSON field.
func RawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)

	return b
}
