package execution

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ValidateWellFormed checks that r holds exactly one complete JSON value and
// nothing but whitespace after it. Values are skipped token by token so large
// traces are never materialised.
func ValidateWellFormed(r io.Reader) error {
	dec := json.NewDecoder(r)

	if err := skipValue(dec); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}

	return nil
}

// ValidateEnvelope checks that r holds a successful JSON-RPC 2.0 response:
// an object with "jsonrpc":"2.0", no "error" member and a "result" member.
func ValidateEnvelope(r io.Reader) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected a json object", ErrInvalidEnvelope)
	}

	var hasJSONRPC, hasResult, hasError bool

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected token %v", ErrInvalidEnvelope, keyTok)
		}

		switch key {
		case "jsonrpc":
			var version string
			if err := dec.Decode(&version); err != nil {
				return fmt.Errorf("%w: jsonrpc: %w", ErrInvalidEnvelope, err)
			}

			hasJSONRPC = version == jsonRPCVersion
		case "result":
			hasResult = true

			if err := skipValue(dec); err != nil {
				return fmt.Errorf("%w: result: %w", ErrInvalidEnvelope, err)
			}
		case "error":
			hasError = true

			if err := skipValue(dec); err != nil {
				return fmt.Errorf("%w: error: %w", ErrInvalidEnvelope, err)
			}
		default:
			if err := skipValue(dec); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidEnvelope, key, err)
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	switch {
	case !hasJSONRPC:
		return fmt.Errorf("%w: missing or invalid jsonrpc field", ErrInvalidEnvelope)
	case hasError:
		return ErrRPCError
	case !hasResult:
		return ErrMissingResult
	}

	return nil
}

// ValidateTraceFile runs the envelope and well-formedness checks on a
// persisted response file.
func ValidateTraceFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	if err := ValidateEnvelope(f); err != nil {
		return fmt.Errorf("trace file has invalid rpc response: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind trace file: %w", err)
	}

	if err := ValidateWellFormed(f); err != nil {
		return fmt.Errorf("trace file is not well-formed json: %w", err)
	}

	return nil
}

// ValidateDocument is ValidateTraceFile for an in-memory document.
func ValidateDocument(data []byte) error {
	if err := ValidateEnvelope(bytes.NewReader(data)); err != nil {
		return err
	}

	return ValidateWellFormed(bytes.NewReader(data))
}

// ParseEnvelope decodes a response document and returns its result member.
func ParseEnvelope(data []byte) (json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}

	if env.JSONRPC != jsonRPCVersion {
		return nil, fmt.Errorf("%w: jsonrpc %q", ErrInvalidEnvelope, env.JSONRPC)
	}

	if env.Error != nil {
		return nil, fmt.Errorf("%w: %d %s", ErrRPCError, env.Error.Code, env.Error.Message)
	}

	if len(env.Result) == 0 {
		return nil, ErrMissingResult
	}

	return env.Result, nil
}

// ParseTraceEnvelope decodes a persisted debug_traceTransaction response.
func ParseTraceEnvelope(data []byte) (*TraceTransaction, error) {
	result, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(bytes.TrimSpace(result), []byte("null")) {
		return nil, ErrMissingResult
	}

	var trace TraceTransaction
	if err := json.Unmarshal(result, &trace); err != nil {
		return nil, fmt.Errorf("%w: trace result: %w", ErrMalformedJSON, err)
	}

	return &trace, nil
}

// skipValue consumes exactly one JSON value from dec.
func skipValue(dec *json.Decoder) error {
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}

			return err
		}

		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}

		if depth == 0 {
			return nil
		}
	}
}
