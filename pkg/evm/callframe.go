package evm

import (
	"fmt"
	"strings"

	"github.com/0xsequence/ethkit/go-ethereum/common"
	"github.com/0xsequence/ethkit/go-ethereum/common/hexutil"
)

// Address is a 20 byte account address. The zero value is used whenever the
// trace source does not carry address data.
type Address = common.Address

// ZeroAddress is the unknown/unset address.
var ZeroAddress = Address{}

// HexToAddress parses a 0x-prefixed address. Shorter input is left padded,
// longer input keeps its trailing 20 bytes (stack words hold addresses in
// their low bytes).
func HexToAddress(s string) (Address, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}

	b, err := hexutil.Decode("0x" + digits)
	if err != nil {
		return ZeroAddress, fmt.Errorf("invalid address %q: %w", s, err)
	}

	return common.BytesToAddress(b), nil
}

// CallKind is the way a frame was entered.
type CallKind uint8

const (
	KindRoot CallKind = iota
	KindCall
	KindStaticCall
	KindDelegateCall
	KindCallCode
	KindCreate
	KindCreate2
)

var callKindNames = map[CallKind]string{
	KindRoot:         "ROOT",
	KindCall:         "CALL",
	KindStaticCall:   "STATICCALL",
	KindDelegateCall: "DELEGATECALL",
	KindCallCode:     "CALLCODE",
	KindCreate:       "CREATE",
	KindCreate2:      "CREATE2",
}

func (k CallKind) String() string {
	if name, ok := callKindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

// IsCreate reports whether the frame deploys a contract.
func (k CallKind) IsCreate() bool {
	return k == KindCreate || k == KindCreate2
}

// ParseCallKind is the inverse of CallKind.String.
func ParseCallKind(s string) (CallKind, error) {
	for kind, name := range callKindNames {
		if name == s {
			return kind, nil
		}
	}

	return KindCall, fmt.Errorf("unknown call kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k CallKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CallKind) UnmarshalText(text []byte) error {
	v, err := ParseCallKind(string(text))
	if err != nil {
		return err
	}

	*k = v

	return nil
}

// callKindFor classifies the frame opened right after op. Anything that is not
// a call-like opcode, including INVALID for "no previous instruction", falls
// back to a plain CALL.
func callKindFor(op OpCode) CallKind {
	switch op {
	case CALL:
		return KindCall
	case CALLCODE:
		return KindCallCode
	case DELEGATECALL:
		return KindDelegateCall
	case STATICCALL:
		return KindStaticCall
	case CREATE:
		return KindCreate
	case CREATE2:
		return KindCreate2
	default:
		return KindCall
	}
}

// RevertedError is the error recorded on a frame that executed REVERT.
const RevertedError = "Reverted"

// CallFrame is one reconstructed execution context. A frame owns the
// instructions it executed directly and the frames it opened, in entry order.
type CallFrame struct {
	Kind         CallKind      `json:"type"`
	From         Address       `json:"from"`
	To           Address       `json:"to"`
	Value        Word          `json:"value"`
	Calldata     HexBytes      `json:"calldata"`
	ReturnData   HexBytes      `json:"returnData"`
	GasLimit     uint64        `json:"gasLimit"`
	GasUsed      uint64        `json:"gasUsed"`
	Success      bool          `json:"success"`
	Error        *string       `json:"error,omitempty"`
	Instructions []Instruction `json:"instructions"`
	Children     []*CallFrame  `json:"children"`
}

// NewCallFrame returns an empty, successful frame of the given kind.
func NewCallFrame(kind CallKind, from, to Address, gasLimit uint64) *CallFrame {
	return &CallFrame{
		Kind:         kind,
		From:         from,
		To:           to,
		Value:        ZeroWord,
		Calldata:     HexBytes{},
		ReturnData:   HexBytes{},
		GasLimit:     gasLimit,
		Success:      true,
		Instructions: []Instruction{},
		Children:     []*CallFrame{},
	}
}

// Walk visits f and its descendants in pre-order, passing each frame's depth
// relative to f (f itself is 0). Returning false from fn skips the subtree.
func (f *CallFrame) Walk(fn func(frame *CallFrame, depth int) bool) {
	f.walk(fn, 0)
}

func (f *CallFrame) walk(fn func(frame *CallFrame, depth int) bool, depth int) {
	if !fn(f, depth) {
		return
	}

	for _, child := range f.Children {
		child.walk(fn, depth+1)
	}
}

// FrameCount returns the number of frames in the tree rooted at f.
func (f *CallFrame) FrameCount() int {
	count := 0

	f.Walk(func(*CallFrame, int) bool {
		count++

		return true
	})

	return count
}

// InstructionCount returns the number of instructions across the whole tree.
func (f *CallFrame) InstructionCount() int {
	count := 0

	f.Walk(func(frame *CallFrame, _ int) bool {
		count += len(frame.Instructions)

		return true
	})

	return count
}

// MaxDepth returns the deepest relative nesting level below f.
func (f *CallFrame) MaxDepth() int {
	deepest := 0

	f.Walk(func(_ *CallFrame, depth int) bool {
		if depth > deepest {
			deepest = depth
		}

		return true
	})

	return deepest
}

// HexBytes is a byte slice that encodes to 0x-prefixed hex in JSON.
type HexBytes = hexutil.Bytes
