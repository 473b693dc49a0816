package execution

import (
	"encoding/json"
)

const (
	MethodDebugTraceTransaction = "debug_traceTransaction"
	MethodTransactionReceipt    = "eth_getTransactionReceipt"

	jsonRPCVersion = "2.0"
	requestID      = "1"
)

// Request is a JSON-RPC 2.0 request body.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// RPCError is the `error` member of a failed JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Envelope is a JSON-RPC 2.0 response body.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// DebugTraceRequest is the debug_traceTransaction request for hash.
func DebugTraceRequest(hash string, opts TraceOptions) Request {
	return Request{
		JSONRPC: jsonRPCVersion,
		ID:      requestID,
		Method:  MethodDebugTraceTransaction,
		Params:  []any{hash, opts.Params()},
	}
}

// ReceiptRequest is the eth_getTransactionReceipt request for hash.
func ReceiptRequest(hash string) Request {
	return Request{
		JSONRPC: jsonRPCVersion,
		ID:      requestID,
		Method:  MethodTransactionReceipt,
		Params:  []any{hash},
	}
}

// DebugTracePayload returns the debug_traceTransaction request body for hash.
func DebugTracePayload(hash string, opts TraceOptions) ([]byte, error) {
	return json.Marshal(DebugTraceRequest(hash, opts))
}

// ReceiptPayload returns the eth_getTransactionReceipt request body for hash.
func ReceiptPayload(hash string) ([]byte, error) {
	return json.Marshal(ReceiptRequest(hash))
}

// WrapResult wraps a raw result in a successful response envelope, the form
// in which traces and receipts are persisted.
func WrapResult(result json.RawMessage) ([]byte, error) {
	return json.Marshal(Envelope{
		JSONRPC: jsonRPCVersion,
		ID:      json.RawMessage(`"` + requestID + `"`),
		Result:  result,
	})
}
