package evm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
)

var (
	errMissing    = errors.New("missing")
	errEmptyOp    = errors.New("empty mnemonic")
	errOpType     = errors.New("mnemonic must be a string")
	errMemoryType = errors.New("memory must be an array of hex strings")
	errBadStack   = errors.New("stack entry must be a string or a number")
	errNullStack  = errors.New("null stack entry")
)

// DecodeInstruction turns one structlog record into an Instruction.
//
// pc, op, gas and depth are required and must be well formed. gasCost and
// memory stay absent when the tracer omitted them. The stack is reversed so
// that the top of the stack comes first; a single malformed entry fails the
// whole record.
func DecodeInstruction(log execution.StructLog) (Instruction, error) {
	return decodeInstruction(log, -1)
}

// DecodeInstructions decodes records in order. The returned *DecodeError
// carries the index of the first failing record.
func DecodeInstructions(logs []execution.StructLog) ([]Instruction, error) {
	instructions := make([]Instruction, 0, len(logs))

	for i := range logs {
		ins, err := decodeInstruction(logs[i], i)
		if err != nil {
			return nil, err
		}

		instructions = append(instructions, ins)
	}

	return instructions, nil
}

func decodeInstruction(log execution.StructLog, index int) (Instruction, error) {
	fail := func(field string, err error) (Instruction, error) {
		return Instruction{}, &DecodeError{Index: index, Field: field, Err: err}
	}

	pc, err := requiredUint64(log.PC)
	if err != nil {
		return fail("pc", err)
	}

	if execution.IsAbsent(log.Op) {
		return fail("op", errMissing)
	}

	var mnemonic string
	if err := json.Unmarshal(log.Op, &mnemonic); err != nil {
		return fail("op", errOpType)
	}

	if mnemonic == "" {
		return fail("op", errEmptyOp)
	}

	gas, err := requiredUint64(log.Gas)
	if err != nil {
		return fail("gas", err)
	}

	depth, err := requiredUint64(log.Depth)
	if err != nil {
		return fail("depth", err)
	}

	ins := Instruction{
		PC:    pc,
		Op:    DecodeMnemonic(mnemonic),
		Gas:   gas,
		Depth: depth,
		Stack: make([]Word, len(log.Stack)),
	}

	if !execution.IsAbsent(log.GasCost) {
		cost, err := execution.DecodeUint64(log.GasCost)
		if err != nil {
			return fail("gasCost", err)
		}

		ins.GasCost = &cost
	}

	// Tracers emit the stack bottom first.
	for i, raw := range log.Stack {
		w, err := decodeStackEntry(raw)
		if err != nil {
			return fail(fmt.Sprintf("stack[%d]", i), err)
		}

		ins.Stack[len(log.Stack)-1-i] = w
	}

	if !execution.IsAbsent(log.Memory) {
		var chunks []json.RawMessage
		if err := json.Unmarshal(log.Memory, &chunks); err != nil {
			return fail("memory", errMemoryType)
		}

		memory := make([]Word, len(chunks))

		for i, raw := range chunks {
			var chunk string
			if err := json.Unmarshal(raw, &chunk); err != nil {
				return fail(fmt.Sprintf("memory[%d]", i), errMemoryType)
			}

			w, err := ParseMemoryWord(chunk)
			if err != nil {
				return fail(fmt.Sprintf("memory[%d]", i), err)
			}

			memory[i] = w
		}

		ins.Memory = &memory
	}

	return ins, nil
}

func requiredUint64(raw json.RawMessage) (uint64, error) {
	if execution.IsAbsent(raw) {
		return 0, errMissing
	}

	return execution.DecodeUint64(raw)
}

func decodeStackEntry(raw json.RawMessage) (Word, error) {
	raw = bytes.TrimSpace(raw)

	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return ZeroWord, errNullStack
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ZeroWord, err
		}

		return ParseWord(s)
	case raw[0] >= '0' && raw[0] <= '9':
		return ParseWord(string(raw))
	default:
		return ZeroWord, errBadStack
	}
}
