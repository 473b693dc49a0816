package evm

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Word is the EVM's native 256-bit unsigned integer.
//
// It is a plain value: copies are independent, == compares numerically and
// the type can be used as a map key.
type Word uint256.Int

// ZeroWord is the zero value of a Word.
var ZeroWord = Word{}

// WordFromUint64 returns the Word holding v.
func WordFromUint64(v uint64) Word {
	return Word(*uint256.NewInt(v))
}

// WordFromBig converts b into a Word. It fails when b is negative or wider than 256 bits.
func WordFromBig(b *big.Int) (Word, error) {
	if b.Sign() < 0 {
		return ZeroWord, fmt.Errorf("negative value %s", b.String())
	}

	v, overflow := uint256.FromBig(b)
	if overflow {
		return ZeroWord, fmt.Errorf("value %s exceeds 256 bits", b.String())
	}

	return Word(*v), nil
}

// ParseWord parses a stack entry as emitted by structlog tracers: either
// 0x-prefixed hex (leading zeros allowed) or plain decimal.
func ParseWord(s string) (Word, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroWord, fmt.Errorf("empty word")
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return parseHexWord(s[2:], s)
	}

	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return ZeroWord, fmt.Errorf("invalid word %q", s)
	}

	return WordFromBig(b)
}

// ParseMemoryWord parses a 32-byte memory chunk. Tracers emit these as hex
// with or without the 0x prefix.
func ParseMemoryWord(s string) (Word, error) {
	s = strings.TrimSpace(s)

	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return ZeroWord, fmt.Errorf("empty memory chunk")
	}

	if len(digits) > 64 {
		return ZeroWord, fmt.Errorf("memory chunk %q wider than 32 bytes", s)
	}

	return parseHexWord(digits, s)
}

func parseHexWord(digits, raw string) (Word, error) {
	if digits == "" {
		return ZeroWord, nil
	}

	b, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return ZeroWord, fmt.Errorf("invalid hex word %q", raw)
	}

	return WordFromBig(b)
}

// Int returns a copy of w as a *uint256.Int.
func (w Word) Int() *uint256.Int {
	v := uint256.Int(w)

	return &v
}

// Big returns w as a *big.Int.
func (w Word) Big() *big.Int {
	return w.Int().ToBig()
}

// Uint64 returns the low 64 bits of w.
func (w Word) Uint64() uint64 {
	return w.Int().Uint64()
}

// IsZero reports whether w is zero.
func (w Word) IsZero() bool {
	return w == ZeroWord
}

// Hex returns the minimal 0x-prefixed hex encoding of w.
func (w Word) Hex() string {
	return w.Int().Hex()
}

// String returns the decimal representation of w.
func (w Word) String() string {
	return w.Big().String()
}

// MarshalJSON implements json.Marshaler.
func (w Word) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Hex())
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *Word) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("word must be a string: %w", err)
	}

	v, err := ParseWord(s)
	if err != nil {
		return err
	}

	*w = v

	return nil
}
