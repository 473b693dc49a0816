package execution

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/0xsequence/ethkit/go-ethereum/core/types"
)

// ReceiptSucceeded reports the receipt status. Pre-byzantium receipts carry a
// state root instead of a status and report true.
func ReceiptSucceeded(r *types.Receipt) bool {
	return r.Status == types.ReceiptStatusSuccessful || len(r.PostState) > 0
}

// ParseReceiptEnvelope decodes a persisted eth_getTransactionReceipt response.
func ParseReceiptEnvelope(data []byte) (*types.Receipt, error) {
	result, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(bytes.TrimSpace(result), []byte("null")) {
		return nil, ErrTransactionNotFound
	}

	var receipt types.Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("%w: receipt result: %w", ErrMalformedJSON, err)
	}

	return &receipt, nil
}
