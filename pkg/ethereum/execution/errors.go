package execution

import "errors"

var (
	// ErrTransactionNotFound indicates the node does not know the transaction.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrMalformedJSON indicates a truncated or otherwise unparseable document.
	ErrMalformedJSON = errors.New("malformed json")

	// ErrTrailingData indicates bytes after the single top-level JSON value.
	ErrTrailingData = errors.New("trailing data after json value")

	// ErrInvalidEnvelope indicates a document that is not a JSON-RPC 2.0 response.
	ErrInvalidEnvelope = errors.New("invalid json-rpc envelope")

	// ErrRPCError indicates a response carrying an `error` member.
	ErrRPCError = errors.New("rpc returned an error")

	// ErrMissingResult indicates a response without a `result` member.
	ErrMissingResult = errors.New("rpc response missing result")
)
