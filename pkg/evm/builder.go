package evm

import "fmt"

// BuildCallTree reconstructs the call tree of one transaction from its
// chronologically ordered instructions.
//
// The depth of the first instruction is the baseline (1 for geth, 0 for
// erigon) and the root frame lives at that depth. A depth increase opens one
// child frame, classified by the last instruction of the frame that opened
// it; anything but a call-like opcode there yields KindCall. A depth decrease
// closes as many frames as needed to get back to the new depth. Increases of
// more than one level in a single step still open a single frame.
//
// Instructions are moved into the tree: the returned frames own them.
func BuildCallTree(instructions []Instruction) (*CallFrame, error) {
	if len(instructions) == 0 {
		return nil, ErrEmptyTrace
	}

	first := &instructions[0]
	baseline := first.Depth
	previousDepth := baseline

	stack := frameStack{NewCallFrame(KindRoot, ZeroAddress, ZeroAddress, first.Gas)}

	for i := range instructions {
		ins := instructions[i]
		currentDepth := ins.Depth

		switch {
		case currentDepth > previousDepth:
			stack.push(NewCallFrame(stack.top().openedBy(), ZeroAddress, ZeroAddress, ins.Gas))
		case currentDepth < previousDepth:
			if currentDepth < baseline {
				return nil, fmt.Errorf("%w: instruction %d at depth %d is below the root depth %d",
					ErrStructuralCorruption, i, currentDepth, baseline)
			}

			target := int(currentDepth-baseline) + 1

			for len(stack) > target {
				if err := stack.popInto(); err != nil {
					return nil, fmt.Errorf("%w: instruction %d", err, i)
				}
			}
		}

		frame := stack.top()
		frame.Instructions = append(frame.Instructions, ins)

		if ins.Op == REVERT {
			reverted := RevertedError
			frame.Success = false
			frame.Error = &reverted
		}

		previousDepth = currentDepth
	}

	for len(stack) > 1 {
		if err := stack.popInto(); err != nil {
			return nil, err
		}
	}

	root := stack.top()
	root.seal()

	return root, nil
}

// frameStack holds the frames still under construction, root at the bottom.
type frameStack []*CallFrame

func (s *frameStack) push(f *CallFrame) {
	*s = append(*s, f)
}

func (s frameStack) top() *CallFrame {
	return s[len(s)-1]
}

// popInto seals the top frame and appends it to the children of the frame
// below it.
func (s *frameStack) popInto() error {
	if len(*s) < 2 {
		return ErrStructuralCorruption
	}

	child := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]

	child.seal()

	parent := (*s)[len(*s)-1]
	parent.Children = append(parent.Children, child)

	return nil
}

// openedBy classifies a frame entered right after f's latest instruction.
func (f *CallFrame) openedBy() CallKind {
	if len(f.Instructions) == 0 {
		return KindCall
	}

	return callKindFor(f.Instructions[len(f.Instructions)-1].Op)
}

// seal computes GasUsed from the frame's own first and last gas readings.
// The span covers every descendant since they run in between.
func (f *CallFrame) seal() {
	if len(f.Instructions) == 0 {
		return
	}

	first := f.Instructions[0]
	last := f.Instructions[len(f.Instructions)-1]

	start := first.Gas
	end := last.Gas
	cost := last.Cost()

	switch {
	case end >= start:
		f.GasUsed = cost
	default:
		f.GasUsed = start - end + cost
	}
}
