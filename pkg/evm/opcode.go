package evm

import "fmt"

// OpCode is a single EVM instruction byte.
type OpCode byte

// 0x00 range: stop and arithmetic.
const (
	STOP       OpCode = 0x00
	ADD        OpCode = 0x01
	MUL        OpCode = 0x02
	SUB        OpCode = 0x03
	DIV        OpCode = 0x04
	SDIV       OpCode = 0x05
	MOD        OpCode = 0x06
	SMOD       OpCode = 0x07
	ADDMOD     OpCode = 0x08
	MULMOD     OpCode = 0x09
	EXP        OpCode = 0x0a
	SIGNEXTEND OpCode = 0x0b
)

// 0x10 range: comparison and bitwise.
const (
	LT     OpCode = 0x10
	GT     OpCode = 0x11
	SLT    OpCode = 0x12
	SGT    OpCode = 0x13
	EQ     OpCode = 0x14
	ISZERO OpCode = 0x15
	AND    OpCode = 0x16
	OR     OpCode = 0x17
	XOR    OpCode = 0x18
	NOT    OpCode = 0x19
	BYTE   OpCode = 0x1a
	SHL    OpCode = 0x1b
	SHR    OpCode = 0x1c
	SAR    OpCode = 0x1d
)

// 0x20 range: hashing.
const (
	SHA3 OpCode = 0x20
)

// 0x30 range: execution environment.
const (
	ADDRESS        OpCode = 0x30
	BALANCE        OpCode = 0x31
	ORIGIN         OpCode = 0x32
	CALLER         OpCode = 0x33
	CALLVALUE      OpCode = 0x34
	CALLDATALOAD   OpCode = 0x35
	CALLDATASIZE   OpCode = 0x36
	CALLDATACOPY   OpCode = 0x37
	CODESIZE       OpCode = 0x38
	CODECOPY       OpCode = 0x39
	GASPRICE       OpCode = 0x3a
	EXTCODESIZE    OpCode = 0x3b
	EXTCODECOPY    OpCode = 0x3c
	RETURNDATASIZE OpCode = 0x3d
	RETURNDATACOPY OpCode = 0x3e
	EXTCODEHASH    OpCode = 0x3f
)

// 0x40 range: block information.
const (
	BLOCKHASH   OpCode = 0x40
	COINBASE    OpCode = 0x41
	TIMESTAMP   OpCode = 0x42
	NUMBER      OpCode = 0x43
	DIFFICULTY  OpCode = 0x44
	GASLIMIT    OpCode = 0x45
	CHAINID     OpCode = 0x46
	SELFBALANCE OpCode = 0x47
	BASEFEE     OpCode = 0x48
	BLOBHASH    OpCode = 0x49
	BLOBBASEFEE OpCode = 0x4a
)

// 0x50 range: stack, memory, storage and flow.
const (
	POP      OpCode = 0x50
	MLOAD    OpCode = 0x51
	MSTORE   OpCode = 0x52
	MSTORE8  OpCode = 0x53
	SLOAD    OpCode = 0x54
	SSTORE   OpCode = 0x55
	JUMP     OpCode = 0x56
	JUMPI    OpCode = 0x57
	PC       OpCode = 0x58
	MSIZE    OpCode = 0x59
	GAS      OpCode = 0x5a
	JUMPDEST OpCode = 0x5b
	TLOAD    OpCode = 0x5c
	TSTORE   OpCode = 0x5d
	MCOPY    OpCode = 0x5e
)

// 0x5f - 0x7f: push.
const (
	PUSH0  OpCode = 0x5f
	PUSH1  OpCode = 0x60
	PUSH2  OpCode = 0x61
	PUSH3  OpCode = 0x62
	PUSH4  OpCode = 0x63
	PUSH5  OpCode = 0x64
	PUSH6  OpCode = 0x65
	PUSH7  OpCode = 0x66
	PUSH8  OpCode = 0x67
	PUSH9  OpCode = 0x68
	PUSH10 OpCode = 0x69
	PUSH11 OpCode = 0x6a
	PUSH12 OpCode = 0x6b
	PUSH13 OpCode = 0x6c
	PUSH14 OpCode = 0x6d
	PUSH15 OpCode = 0x6e
	PUSH16 OpCode = 0x6f
	PUSH17 OpCode = 0x70
	PUSH18 OpCode = 0x71
	PUSH19 OpCode = 0x72
	PUSH20 OpCode = 0x73
	PUSH21 OpCode = 0x74
	PUSH22 OpCode = 0x75
	PUSH23 OpCode = 0x76
	PUSH24 OpCode = 0x77
	PUSH25 OpCode = 0x78
	PUSH26 OpCode = 0x79
	PUSH27 OpCode = 0x7a
	PUSH28 OpCode = 0x7b
	PUSH29 OpCode = 0x7c
	PUSH30 OpCode = 0x7d
	PUSH31 OpCode = 0x7e
	PUSH32 OpCode = 0x7f
)

// 0x80 range: dup.
const (
	DUP1  OpCode = 0x80
	DUP2  OpCode = 0x81
	DUP3  OpCode = 0x82
	DUP4  OpCode = 0x83
	DUP5  OpCode = 0x84
	DUP6  OpCode = 0x85
	DUP7  OpCode = 0x86
	DUP8  OpCode = 0x87
	DUP9  OpCode = 0x88
	DUP10 OpCode = 0x89
	DUP11 OpCode = 0x8a
	DUP12 OpCode = 0x8b
	DUP13 OpCode = 0x8c
	DUP14 OpCode = 0x8d
	DUP15 OpCode = 0x8e
	DUP16 OpCode = 0x8f
)

// 0x90 range: swap.
const (
	SWAP1  OpCode = 0x90
	SWAP2  OpCode = 0x91
	SWAP3  OpCode = 0x92
	SWAP4  OpCode = 0x93
	SWAP5  OpCode = 0x94
	SWAP6  OpCode = 0x95
	SWAP7  OpCode = 0x96
	SWAP8  OpCode = 0x97
	SWAP9  OpCode = 0x98
	SWAP10 OpCode = 0x99
	SWAP11 OpCode = 0x9a
	SWAP12 OpCode = 0x9b
	SWAP13 OpCode = 0x9c
	SWAP14 OpCode = 0x9d
	SWAP15 OpCode = 0x9e
	SWAP16 OpCode = 0x9f
)

// 0xa0 range: logging.
const (
	LOG0 OpCode = 0xa0
	LOG1 OpCode = 0xa1
	LOG2 OpCode = 0xa2
	LOG3 OpCode = 0xa3
	LOG4 OpCode = 0xa4
)

// 0xf0 range: system.
const (
	CREATE       OpCode = 0xf0
	CALL         OpCode = 0xf1
	CALLCODE     OpCode = 0xf2
	RETURN       OpCode = 0xf3
	DELEGATECALL OpCode = 0xf4
	CREATE2      OpCode = 0xf5
	STATICCALL   OpCode = 0xfa
	REVERT       OpCode = 0xfd
	SELFDESTRUCT OpCode = 0xff

	// INVALID is the designated invalid instruction. Every undefined byte and
	// unknown mnemonic decodes to it.
	INVALID OpCode = 0xfe
)

// OpcodeInfo is the static metadata of an opcode.
type OpcodeInfo struct {
	Name    string
	Byte    byte
	Inputs  uint8
	Outputs uint8
	// Halts is set for opcodes that unconditionally end their frame.
	Halts bool
	// IsCall is set for opcodes that may open a nested frame.
	IsCall bool
}

const (
	flagHalt = 1 << iota
	flagCall
)

type opcodeDef struct {
	op      OpCode
	name    string
	inputs  uint8
	outputs uint8
	flags   uint8
}

var opcodeDefs = []opcodeDef{
	{STOP, "STOP", 0, 0, flagHalt},
	{ADD, "ADD", 2, 1, 0},
	{MUL, "MUL", 2, 1, 0},
	{SUB, "SUB", 2, 1, 0},
	{DIV, "DIV", 2, 1, 0},
	{SDIV, "SDIV", 2, 1, 0},
	{MOD, "MOD", 2, 1, 0},
	{SMOD, "SMOD", 2, 1, 0},
	{ADDMOD, "ADDMOD", 3, 1, 0},
	{MULMOD, "MULMOD", 3, 1, 0},
	{EXP, "EXP", 2, 1, 0},
	{SIGNEXTEND, "SIGNEXTEND", 2, 1, 0},
	{LT, "LT", 2, 1, 0},
	{GT, "GT", 2, 1, 0},
	{SLT, "SLT", 2, 1, 0},
	{SGT, "SGT", 2, 1, 0},
	{EQ, "EQ", 2, 1, 0},
	{ISZERO, "ISZERO", 1, 1, 0},
	{AND, "AND", 2, 1, 0},
	{OR, "OR", 2, 1, 0},
	{XOR, "XOR", 2, 1, 0},
	{NOT, "NOT", 1, 1, 0},
	{BYTE, "BYTE", 2, 1, 0},
	{SHL, "SHL", 2, 1, 0},
	{SHR, "SHR", 2, 1, 0},
	{SAR, "SAR", 2, 1, 0},
	{SHA3, "SHA3", 2, 1, 0},
	{ADDRESS, "ADDRESS", 0, 1, 0},
	{BALANCE, "BALANCE", 1, 1, 0},
	{ORIGIN, "ORIGIN", 0, 1, 0},
	{CALLER, "CALLER", 0, 1, 0},
	{CALLVALUE, "CALLVALUE", 0, 1, 0},
	{CALLDATALOAD, "CALLDATALOAD", 1, 1, 0},
	{CALLDATASIZE, "CALLDATASIZE", 0, 1, 0},
	{CALLDATACOPY, "CALLDATACOPY", 3, 0, 0},
	{CODESIZE, "CODESIZE", 0, 1, 0},
	{CODECOPY, "CODECOPY", 3, 0, 0},
	{GASPRICE, "GASPRICE", 0, 1, 0},
	{EXTCODESIZE, "EXTCODESIZE", 1, 1, 0},
	{EXTCODECOPY, "EXTCODECOPY", 4, 0, 0},
	{RETURNDATASIZE, "RETURNDATASIZE", 0, 1, 0},
	{RETURNDATACOPY, "RETURNDATACOPY", 3, 0, 0},
	{EXTCODEHASH, "EXTCODEHASH", 1, 1, 0},
	{BLOCKHASH, "BLOCKHASH", 1, 1, 0},
	{COINBASE, "COINBASE", 0, 1, 0},
	{TIMESTAMP, "TIMESTAMP", 0, 1, 0},
	{NUMBER, "NUMBER", 0, 1, 0},
	{DIFFICULTY, "DIFFICULTY", 0, 1, 0},
	{GASLIMIT, "GASLIMIT", 0, 1, 0},
	{CHAINID, "CHAINID", 0, 1, 0},
	{SELFBALANCE, "SELFBALANCE", 0, 1, 0},
	{BASEFEE, "BASEFEE", 0, 1, 0},
	{BLOBHASH, "BLOBHASH", 1, 1, 0},
	{BLOBBASEFEE, "BLOBBASEFEE", 0, 1, 0},
	{POP, "POP", 1, 0, 0},
	{MLOAD, "MLOAD", 1, 1, 0},
	{MSTORE, "MSTORE", 2, 0, 0},
	{MSTORE8, "MSTORE8", 2, 0, 0},
	{SLOAD, "SLOAD", 1, 1, 0},
	{SSTORE, "SSTORE", 2, 0, 0},
	{JUMP, "JUMP", 1, 0, 0},
	{JUMPI, "JUMPI", 2, 0, 0},
	{PC, "PC", 0, 1, 0},
	{MSIZE, "MSIZE", 0, 1, 0},
	{GAS, "GAS", 0, 1, 0},
	{JUMPDEST, "JUMPDEST", 0, 0, 0},
	{TLOAD, "TLOAD", 1, 1, 0},
	{TSTORE, "TSTORE", 2, 0, 0},
	{MCOPY, "MCOPY", 3, 0, 0},
	{PUSH0, "PUSH0", 0, 1, 0},
	{PUSH1, "PUSH1", 0, 1, 0},
	{PUSH2, "PUSH2", 0, 1, 0},
	{PUSH3, "PUSH3", 0, 1, 0},
	{PUSH4, "PUSH4", 0, 1, 0},
	{PUSH5, "PUSH5", 0, 1, 0},
	{PUSH6, "PUSH6", 0, 1, 0},
	{PUSH7, "PUSH7", 0, 1, 0},
	{PUSH8, "PUSH8", 0, 1, 0},
	{PUSH9, "PUSH9", 0, 1, 0},
	{PUSH10, "PUSH10", 0, 1, 0},
	{PUSH11, "PUSH11", 0, 1, 0},
	{PUSH12, "PUSH12", 0, 1, 0},
	{PUSH13, "PUSH13", 0, 1, 0},
	{PUSH14, "PUSH14", 0, 1, 0},
	{PUSH15, "PUSH15", 0, 1, 0},
	{PUSH16, "PUSH16", 0, 1, 0},
	{PUSH17, "PUSH17", 0, 1, 0},
	{PUSH18, "PUSH18", 0, 1, 0},
	{PUSH19, "PUSH19", 0, 1, 0},
	{PUSH20, "PUSH20", 0, 1, 0},
	{PUSH21, "PUSH21", 0, 1, 0},
	{PUSH22, "PUSH22", 0, 1, 0},
	{PUSH23, "PUSH23", 0, 1, 0},
	{PUSH24, "PUSH24", 0, 1, 0},
	{PUSH25, "PUSH25", 0, 1, 0},
	{PUSH26, "PUSH26", 0, 1, 0},
	{PUSH27, "PUSH27", 0, 1, 0},
	{PUSH28, "PUSH28", 0, 1, 0},
	{PUSH29, "PUSH29", 0, 1, 0},
	{PUSH30, "PUSH30", 0, 1, 0},
	{PUSH31, "PUSH31", 0, 1, 0},
	{PUSH32, "PUSH32", 0, 1, 0},
	{DUP1, "DUP1", 1, 2, 0},
	{DUP2, "DUP2", 2, 3, 0},
	{DUP3, "DUP3", 3, 4, 0},
	{DUP4, "DUP4", 4, 5, 0},
	{DUP5, "DUP5", 5, 6, 0},
	{DUP6, "DUP6", 6, 7, 0},
	{DUP7, "DUP7", 7, 8, 0},
	{DUP8, "DUP8", 8, 9, 0},
	{DUP9, "DUP9", 9, 10, 0},
	{DUP10, "DUP10", 10, 11, 0},
	{DUP11, "DUP11", 11, 12, 0},
	{DUP12, "DUP12", 12, 13, 0},
	{DUP13, "DUP13", 13, 14, 0},
	{DUP14, "DUP14", 14, 15, 0},
	{DUP15, "DUP15", 15, 16, 0},
	{DUP16, "DUP16", 16, 17, 0},
	{SWAP1, "SWAP1", 2, 2, 0},
	{SWAP2, "SWAP2", 3, 3, 0},
	{SWAP3, "SWAP3", 4, 4, 0},
	{SWAP4, "SWAP4", 5, 5, 0},
	{SWAP5, "SWAP5", 6, 6, 0},
	{SWAP6, "SWAP6", 7, 7, 0},
	{SWAP7, "SWAP7", 8, 8, 0},
	{SWAP8, "SWAP8", 9, 9, 0},
	{SWAP9, "SWAP9", 10, 10, 0},
	{SWAP10, "SWAP10", 11, 11, 0},
	{SWAP11, "SWAP11", 12, 12, 0},
	{SWAP12, "SWAP12", 13, 13, 0},
	{SWAP13, "SWAP13", 14, 14, 0},
	{SWAP14, "SWAP14", 15, 15, 0},
	{SWAP15, "SWAP15", 16, 16, 0},
	{SWAP16, "SWAP16", 17, 17, 0},
	{LOG0, "LOG0", 2, 0, 0},
	{LOG1, "LOG1", 3, 0, 0},
	{LOG2, "LOG2", 4, 0, 0},
	{LOG3, "LOG3", 5, 0, 0},
	{LOG4, "LOG4", 6, 0, 0},
	{CREATE, "CREATE", 3, 1, flagCall},
	{CALL, "CALL", 7, 1, flagCall},
	{CALLCODE, "CALLCODE", 7, 1, flagCall},
	{RETURN, "RETURN", 2, 0, flagHalt},
	{DELEGATECALL, "DELEGATECALL", 6, 1, flagCall},
	{CREATE2, "CREATE2", 4, 1, flagCall},
	{STATICCALL, "STATICCALL", 6, 1, flagCall},
	{REVERT, "REVERT", 2, 0, flagHalt},
	{SELFDESTRUCT, "SELFDESTRUCT", 1, 0, flagHalt},
}

var (
	opcodeInfos   [256]OpcodeInfo
	opcodeDefined [256]bool
	mnemonics     map[string]OpCode

	invalidInfo = OpcodeInfo{Name: "INVALID", Byte: byte(INVALID), Halts: true}
)

func init() {
	mnemonics = make(map[string]OpCode, len(opcodeDefs)+3)

	for _, def := range opcodeDefs {
		opcodeInfos[def.op] = OpcodeInfo{
			Name:    def.name,
			Byte:    byte(def.op),
			Inputs:  def.inputs,
			Outputs: def.outputs,
			Halts:   def.flags&flagHalt != 0,
			IsCall:  def.flags&flagCall != 0,
		}
		opcodeDefined[def.op] = true
		mnemonics[def.name] = def.op
	}

	opcodeInfos[INVALID] = invalidInfo
	opcodeDefined[INVALID] = true
	mnemonics[invalidInfo.Name] = INVALID

	// Names used by newer geth releases for the same bytes.
	mnemonics["KECCAK256"] = SHA3
	mnemonics["PREVRANDAO"] = DIFFICULTY
}

// Decode maps a raw instruction byte to its opcode. Undefined bytes decode to INVALID.
func Decode(b byte) OpCode {
	if !opcodeDefined[b] {
		return INVALID
	}

	return OpCode(b)
}

// DecodeMnemonic maps a tracer mnemonic (e.g. "PUSH1") to its opcode.
// Unknown mnemonics, including geth's "opcode 0xef not defined", decode to INVALID.
func DecodeMnemonic(name string) OpCode {
	if op, ok := mnemonics[name]; ok {
		return op
	}

	return INVALID
}

// Info returns the static metadata of op.
func (op OpCode) Info() OpcodeInfo {
	if !opcodeDefined[op] {
		return invalidInfo
	}

	return opcodeInfos[op]
}

// IsDefined reports whether op is part of the modeled instruction set.
func (op OpCode) IsDefined() bool {
	return opcodeDefined[op]
}

// IsPush reports whether op is one of PUSH0..PUSH32.
func (op OpCode) IsPush() bool {
	return op >= PUSH0 && op <= PUSH32
}

// PushSize returns the number of immediate bytes that follow a PUSH opcode.
func (op OpCode) PushSize() int {
	if !op.IsPush() {
		return 0
	}

	return int(op - PUSH0)
}

func (op OpCode) String() string {
	if !opcodeDefined[op] {
		return fmt.Sprintf("INVALID(0x%02x)", byte(op))
	}

	return opcodeInfos[op].Name
}

// MarshalText implements encoding.TextMarshaler using the mnemonic.
func (op OpCode) MarshalText() ([]byte, error) {
	return []byte(op.Info().Name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails.
func (op *OpCode) UnmarshalText(text []byte) error {
	*op = DecodeMnemonic(string(text))

	return nil
}
