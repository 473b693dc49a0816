package evm

// Instruction is one executed step of a structlog trace.
//
// Stack is ordered top-of-stack first. GasCost and Memory are nil when the
// tracer did not report them.
type Instruction struct {
	PC      uint64  `json:"pc"`
	Op      OpCode  `json:"op"`
	Gas     uint64  `json:"gas"`
	GasCost *uint64 `json:"gasCost,omitempty"`
	Depth   uint64  `json:"depth"`
	Stack   []Word  `json:"stack"`
	Memory  *[]Word `json:"memory,omitempty"`
}

// Cost returns the step's gas cost, or zero when it was not reported.
func (i *Instruction) Cost() uint64 {
	if i.GasCost == nil {
		return 0
	}

	return *i.GasCost
}

// StackTop returns the n-th stack item counted from the top (0 is the top).
func (i *Instruction) StackTop(n int) (Word, bool) {
	if n < 0 || n >= len(i.Stack) {
		return ZeroWord, false
	}

	return i.Stack[n], true
}
