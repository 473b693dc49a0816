package storage

import (
	"fmt"
	"strings"

	"github.com/0xsequence/ethkit/go-ethereum/common"
	"github.com/0xsequence/ethkit/go-ethereum/common/hexutil"
)

// NormalizeHash returns hash in its canonical form: lower-case, 0x-prefixed,
// 64 hex digits. The prefix is optional on input.
func NormalizeHash(hash string) (string, error) {
	s := strings.TrimSpace(hash)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	b, err := hexutil.Decode("0x" + s[2:])
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidHash, hash, err)
	}

	if len(b) != common.HashLength {
		return "", fmt.Errorf("%w: %q has %d bytes", ErrInvalidHash, hash, len(b))
	}

	return common.BytesToHash(b).Hex(), nil
}
