package evm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeByte(t *testing.T) {
	tests := []struct {
		in   byte
		want OpCode
		name string
	}{
		{in: 0x00, want: STOP, name: "STOP"},
		{in: 0x01, want: ADD, name: "ADD"},
		{in: 0x20, want: SHA3, name: "SHA3"},
		{in: 0x4a, want: BLOBBASEFEE, name: "BLOBBASEFEE"},
		{in: 0x5e, want: MCOPY, name: "MCOPY"},
		{in: 0x5f, want: PUSH0, name: "PUSH0"},
		{in: 0x7f, want: PUSH32, name: "PUSH32"},
		{in: 0xf1, want: CALL, name: "CALL"},
		{in: 0xfd, want: REVERT, name: "REVERT"},
		{in: 0xfe, want: INVALID, name: "INVALID"},
		{in: 0x0c, want: INVALID, name: "INVALID"},
		{in: 0xef, want: INVALID, name: "INVALID"},
	}

	for _, tt := range tests {
		op := Decode(tt.in)
		assert.Equal(t, tt.want, op, "byte 0x%02x", tt.in)
		assert.Equal(t, tt.name, op.Info().Name, "byte 0x%02x", tt.in)
	}
}

func TestDecodeIsTotal(t *testing.T) {
	for b := 0; b < 256; b++ {
		op := Decode(byte(b))
		assert.True(t, op.IsDefined(), "byte 0x%02x", b)

		if op != INVALID {
			assert.Equal(t, byte(b), op.Info().Byte)
		}
	}
}

func TestDecodeMnemonic(t *testing.T) {
	tests := []struct {
		in   string
		want OpCode
	}{
		{in: "PUSH1", want: PUSH1},
		{in: "CALL", want: CALL},
		{in: "DELEGATECALL", want: DELEGATECALL},
		{in: "STATICCALL", want: STATICCALL},
		{in: "CALLCODE", want: CALLCODE},
		{in: "CREATE", want: CREATE},
		{in: "CREATE2", want: CREATE2},
		{in: "SHA3", want: SHA3},
		{in: "KECCAK256", want: SHA3},
		{in: "PREVRANDAO", want: DIFFICULTY},
		{in: "INVALID", want: INVALID},
		{in: "opcode 0xef not defined", want: INVALID},
		{in: "push1", want: INVALID},
		{in: "", want: INVALID},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeMnemonic(tt.in))
		})
	}
}

func TestOpcodeInfo(t *testing.T) {
	call := CALL.Info()
	assert.Equal(t, "CALL", call.Name)
	assert.Equal(t, byte(0xf1), call.Byte)
	assert.Equal(t, uint8(7), call.Inputs)
	assert.Equal(t, uint8(1), call.Outputs)
	assert.True(t, call.IsCall)
	assert.False(t, call.Halts)

	invalid := INVALID.Info()
	assert.True(t, invalid.Halts)
	assert.Zero(t, invalid.Inputs)
	assert.Zero(t, invalid.Outputs)
	assert.False(t, invalid.IsCall)

	for _, op := range []OpCode{STOP, RETURN, REVERT, SELFDESTRUCT} {
		assert.True(t, op.Info().Halts, op.String())
	}

	for _, op := range []OpCode{CALL, CALLCODE, DELEGATECALL, STATICCALL, CREATE, CREATE2} {
		assert.True(t, op.Info().IsCall, op.String())
	}

	dup := DUP3.Info()
	assert.Equal(t, uint8(3), dup.Inputs)
	assert.Equal(t, uint8(4), dup.Outputs)
}

func TestMnemonicRoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		op := Decode(byte(b))
		assert.Equal(t, op, DecodeMnemonic(op.Info().Name))
	}
}

func TestPushHelpers(t *testing.T) {
	assert.True(t, PUSH0.IsPush())
	assert.True(t, PUSH32.IsPush())
	assert.False(t, DUP1.IsPush())
	assert.Equal(t, 0, PUSH0.PushSize())
	assert.Equal(t, 1, PUSH1.PushSize())
	assert.Equal(t, 32, PUSH32.PushSize())
	assert.Equal(t, 0, ADD.PushSize())
}

func TestOpCodeText(t *testing.T) {
	assert.Equal(t, "SSTORE", SSTORE.String())
	assert.Equal(t, "INVALID(0x0c)", OpCode(0x0c).String())

	text, err := OpCode(0x0c).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "INVALID", string(text))

	var op OpCode
	require.NoError(t, op.UnmarshalText([]byte("NOT_AN_OPCODE")))
	assert.Equal(t, INVALID, op)
}
