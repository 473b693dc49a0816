package execution

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSONUint64 handles JSON numbers that might be numbers, decimal strings or
// 0x-prefixed hex strings. Tracers disagree on which one they emit.
type JSONUint64 uint64

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONUint64) UnmarshalJSON(data []byte) error {
	// Try to unmarshal as number first
	var num uint64
	if err := json.Unmarshal(data, &num); err == nil {
		*j = JSONUint64(num)

		return nil
	}

	// Try to unmarshal as string
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("invalid number %s: %w", string(data), err)
	}

	num, err := ParseUint64(str)
	if err != nil {
		return err
	}

	*j = JSONUint64(num)

	return nil
}

// MarshalJSON implements json.Marshaler.
func (j JSONUint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(j))
}

// Uint64 returns the value as uint64.
func (j JSONUint64) Uint64() uint64 {
	return uint64(j)
}

// DecodeUint64 parses a raw field holding a number, a decimal string or a
// 0x-prefixed hex string.
func DecodeUint64(raw json.RawMessage) (uint64, error) {
	var j JSONUint64
	if err := j.UnmarshalJSON(raw); err != nil {
		return 0, err
	}

	return j.Uint64(), nil
}

// RawUint64 encodes v as a raw JSON number field.
func RawUint64(v uint64) json.RawMessage {
	return json.RawMessage(strconv.FormatUint(v, 10))
}

// ParseUint64 parses a decimal or 0x-prefixed hex string.
func ParseUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		num, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid hex number %q: %w", s, err)
		}

		return num, nil
	}

	num, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}

	return num, nil
}
