package evm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
)

func record(op string, depth uint64) execution.StructLog {
	return execution.StructLog{
		PC:    execution.RawUint64(10),
		Op:    execution.RawString(op),
		Gas:   execution.RawUint64(5000),
		Depth: execution.RawUint64(depth),
	}
}

func TestDecodeInstruction(t *testing.T) {
	rec := record("ADD", 2)
	rec.GasCost = json.RawMessage(`"0x3"`)
	rec.Stack = []json.RawMessage{
		json.RawMessage(`"0x1"`),
		json.RawMessage(`"0x2"`),
		json.RawMessage(`3`),
	}
	rec.Memory = json.RawMessage(`[
		"0000000000000000000000000000000000000000000000000000000000000000",
		"0000000000000000000000000000000000000000000000000000000000000080"
	]`)

	ins, err := DecodeInstruction(rec)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), ins.PC)
	assert.Equal(t, ADD, ins.Op)
	assert.Equal(t, uint64(5000), ins.Gas)
	assert.Equal(t, uint64(2), ins.Depth)
	require.NotNil(t, ins.GasCost)
	assert.Equal(t, uint64(3), *ins.GasCost)

	// top of stack first
	assert.Equal(t, []Word{WordFromUint64(3), WordFromUint64(2), WordFromUint64(1)}, ins.Stack)

	top, ok := ins.StackTop(0)
	assert.True(t, ok)
	assert.Equal(t, WordFromUint64(3), top)

	_, ok = ins.StackTop(3)
	assert.False(t, ok)

	require.NotNil(t, ins.Memory)
	assert.Equal(t, []Word{ZeroWord, WordFromUint64(0x80)}, *ins.Memory)
}

func TestDecodeInstructionOptionalFields(t *testing.T) {
	ins, err := DecodeInstruction(record("STOP", 1))
	require.NoError(t, err)

	assert.Nil(t, ins.GasCost)
	assert.Nil(t, ins.Memory)
	assert.Empty(t, ins.Stack)
	assert.Equal(t, uint64(0), ins.Cost())
}

func TestDecodeInstructionUnknownMnemonic(t *testing.T) {
	ins, err := DecodeInstruction(record("opcode 0xef not defined", 1))
	require.NoError(t, err)
	assert.Equal(t, INVALID, ins.Op)
}

func TestDecodeInstructionErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*execution.StructLog)
		field  string
	}{
		{name: "missing pc", mutate: func(r *execution.StructLog) { r.PC = nil }, field: "pc"},
		{name: "null pc", mutate: func(r *execution.StructLog) { r.PC = json.RawMessage(`null`) }, field: "pc"},
		{name: "non numeric pc", mutate: func(r *execution.StructLog) { r.PC = execution.RawString("zz") }, field: "pc"},
		{name: "missing op", mutate: func(r *execution.StructLog) { r.Op = nil }, field: "op"},
		{name: "empty op", mutate: func(r *execution.StructLog) { r.Op = execution.RawString("") }, field: "op"},
		{name: "numeric op", mutate: func(r *execution.StructLog) { r.Op = json.RawMessage(`96`) }, field: "op"},
		{name: "missing gas", mutate: func(r *execution.StructLog) { r.Gas = nil }, field: "gas"},
		{name: "fractional gas", mutate: func(r *execution.StructLog) { r.Gas = json.RawMessage(`1.5`) }, field: "gas"},
		{name: "missing depth", mutate: func(r *execution.StructLog) { r.Depth = nil }, field: "depth"},
		{name: "negative depth", mutate: func(r *execution.StructLog) { r.Depth = json.RawMessage(`-1`) }, field: "depth"},
		{name: "malformed gas cost", mutate: func(r *execution.StructLog) { r.GasCost = json.RawMessage(`"0xzz"`) }, field: "gasCost"},
		{name: "memory not an array", mutate: func(r *execution.StructLog) { r.Memory = json.RawMessage(`"00"`) }, field: "memory"},
		{name: "numeric memory chunk", mutate: func(r *execution.StructLog) { r.Memory = json.RawMessage(`[0]`) }, field: "memory[0]"},
		{
			name: "malformed stack entry",
			mutate: func(r *execution.StructLog) {
				r.Stack = []json.RawMessage{json.RawMessage(`"0x1"`), json.RawMessage(`"0xnope"`)}
			},
			field: "stack[1]",
		},
		{
			name:   "boolean stack entry",
			mutate: func(r *execution.StructLog) { r.Stack = []json.RawMessage{json.RawMessage(`true`)} },
			field:  "stack[0]",
		},
		{
			name:   "null stack entry",
			mutate: func(r *execution.StructLog) { r.Stack = []json.RawMessage{json.RawMessage(`null`)} },
			field:  "stack[0]",
		},
		{
			name:   "malformed memory chunk",
			mutate: func(r *execution.StructLog) { r.Memory = json.RawMessage(`["xyz"]`) },
			field:  "memory[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("PUSH1", 1)
			tt.mutate(&rec)

			_, err := DecodeInstruction(rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tt.field, decodeErr.Field)
			assert.Equal(t, -1, decodeErr.Index)
		})
	}
}

func TestDecodeInstructions(t *testing.T) {
	logs := []execution.StructLog{record("PUSH1", 1), record("CALL", 1), record("STOP", 2)}

	instructions, err := DecodeInstructions(logs)
	require.NoError(t, err)
	assert.Equal(t, []OpCode{PUSH1, CALL, STOP}, opsOf(instructions))

	logs[1].Depth = nil

	_, err = DecodeInstructions(logs)
	require.ErrorIs(t, err, ErrDecode)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 1, decodeErr.Index)
	assert.Contains(t, decodeErr.Error(), "record 1")
}

func TestDecodeAndBuildFromParsedTrace(t *testing.T) {
	doc := []byte(`{"jsonrpc":"2.0","id":"1","result":{"gas":100,"failed":false,"returnValue":"","structLogs":[
		{"pc":0,"op":"PUSH1","gas":1000,"gasCost":3,"depth":1,"stack":[]},
		{"pc":2,"op":"STATICCALL","gas":997,"gasCost":700,"depth":1,"stack":["0x1","0x2"]},
		{"pc":0,"op":"PUSH1","gas":200,"gasCost":3,"depth":2,"stack":[]},
		{"pc":2,"op":"RETURN","gas":197,"gasCost":0,"depth":2,"stack":["0x0","0x0"]},
		{"pc":3,"op":"STOP","gas":150,"gasCost":0,"depth":1,"stack":["0x1"]}
	]}}`)

	trace, err := execution.ParseTraceEnvelope(doc)
	require.NoError(t, err)

	instructions, err := DecodeInstructions(trace.StructLogs)
	require.NoError(t, err)

	root, err := BuildCallTree(instructions)
	require.NoError(t, err)

	require.Len(t, root.Children, 1)
	assert.Equal(t, KindStaticCall, root.Children[0].Kind)
	assert.Equal(t, uint64(200), root.Children[0].GasLimit)
	assert.Equal(t, uint64(3), root.Children[0].GasUsed)
	assert.Equal(t, 5, root.InstructionCount())
}

func TestDecodeMalformedRecordFromParsedTrace(t *testing.T) {
	tests := []struct {
		name   string
		record string
		field  string
	}{
		{name: "non numeric pc", record: `{"pc":"zz","op":"STOP","gas":10,"depth":1}`, field: "pc"},
		{name: "negative depth", record: `{"pc":1,"op":"STOP","gas":10,"depth":-1}`, field: "depth"},
		{name: "numeric op", record: `{"pc":1,"op":96,"gas":10,"depth":1}`, field: "op"},
		{name: "boolean gas", record: `{"pc":1,"op":"STOP","gas":true,"depth":1}`, field: "gas"},
		{name: "object gas cost", record: `{"pc":1,"op":"STOP","gas":10,"gasCost":{},"depth":1}`, field: "gasCost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := []byte(`{"jsonrpc":"2.0","id":"1","result":{"gas":100,"failed":false,"structLogs":[
				{"pc":0,"op":"PUSH1","gas":1000,"gasCost":3,"depth":1,"stack":[]},
				` + tt.record + `
			]}}`)

			trace, err := execution.ParseTraceEnvelope(doc)
			require.NoError(t, err)

			_, err = DecodeInstructions(trace.StructLogs)
			require.ErrorIs(t, err, ErrDecode)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, 1, decodeErr.Index)
			assert.Equal(t, tt.field, decodeErr.Field)
		})
	}
}
