package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
)

const (
	traceFile    = "trace.json"
	receiptFile  = "receipt.json"
	metadataFile = "metadata.json"
)

// Paths are the files that make up one persisted trace.
type Paths struct {
	Dir      string
	Trace    string
	Receipt  string
	Metadata string
}

// Metadata describes how a trace was acquired.
type Metadata struct {
	TxHash         string                 `json:"txHash"`
	Node           string                 `json:"node,omitempty"`
	ChainID        int32                  `json:"chainId,omitempty"`
	ClientVersion  string                 `json:"clientVersion,omitempty"`
	FetchedAt      time.Time              `json:"fetchedAt"`
	TraceOptions   execution.TraceOptions `json:"traceOptions"`
	TraceRequest   execution.Request      `json:"traceRequest"`
	ReceiptRequest *execution.Request     `json:"receiptRequest,omitempty"`
}

// RawTrace is one fully acquired transaction. Trace and Receipt hold complete
// JSON-RPC response envelopes; Receipt is nil when it was not acquired.
type RawTrace struct {
	TxHash   string
	Trace    json.RawMessage
	Receipt  json.RawMessage
	Metadata Metadata
}

// Store persists RawTraces below a root directory.
type Store struct {
	log logrus.FieldLogger
	dir string
}

// New creates the root directory if needed.
func New(log logrus.FieldLogger, cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	return &Store{
		log: log.WithField("component", "storage"),
		dir: cfg.Dir,
	}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Paths returns the file locations for hash without touching the disk.
func (s *Store) Paths(hash string) (Paths, error) {
	normalized, err := NormalizeHash(hash)
	if err != nil {
		return Paths{}, err
	}

	dir := filepath.Join(s.dir, normalized)

	return Paths{
		Dir:      dir,
		Trace:    filepath.Join(dir, traceFile),
		Receipt:  filepath.Join(dir, receiptFile),
		Metadata: filepath.Join(dir, metadataFile),
	}, nil
}

// Exists reports whether a trace file has been persisted for hash.
func (s *Store) Exists(hash string) bool {
	paths, err := s.Paths(hash)
	if err != nil {
		return false
	}

	_, err = os.Stat(paths.Trace)

	return err == nil
}

// Save writes raw atomically, file by file. The trace is written last so a
// visible trace.json implies the rest of the set is complete.
func (s *Store) Save(ctx context.Context, raw *RawTrace) (Paths, error) {
	paths, err := s.Paths(raw.TxHash)
	if err != nil {
		return Paths{}, err
	}

	if len(raw.Trace) == 0 {
		return Paths{}, errors.New("trace is empty")
	}

	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("failed to create trace dir: %w", err)
	}

	meta := raw.Metadata
	meta.TxHash, _ = NormalizeHash(raw.TxHash)

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Paths{}, fmt.Errorf("failed to encode metadata: %w", err)
	}

	writes := []struct {
		path string
		data []byte
	}{
		{paths.Metadata, metaBytes},
		{paths.Receipt, raw.Receipt},
		{paths.Trace, raw.Trace},
	}

	for _, w := range writes {
		if err := ctx.Err(); err != nil {
			return Paths{}, err
		}

		// An absent file replaces whatever an earlier save left behind.
		if len(w.data) == 0 {
			if err := os.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return Paths{}, fmt.Errorf("failed to remove stale %s: %w", filepath.Base(w.path), err)
			}

			continue
		}

		if err := writeFileAtomic(w.path, w.data); err != nil {
			return Paths{}, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"tx_hash": meta.TxHash,
		"bytes":   len(raw.Trace),
	}).Debug("Persisted trace")

	return paths, nil
}

// Load reads a persisted trace. A missing receipt or metadata file is not an
// error; a missing trace is ErrTraceNotFound.
func (s *Store) Load(hash string) (*RawTrace, error) {
	paths, err := s.Paths(hash)
	if err != nil {
		return nil, err
	}

	trace, err := os.ReadFile(paths.Trace)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, hash)
		}

		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	raw := &RawTrace{
		Trace: trace,
	}
	raw.TxHash, _ = NormalizeHash(hash)

	receipt, err := readOptional(paths.Receipt)
	if err != nil {
		return nil, err
	}

	raw.Receipt = receipt

	metaBytes, err := readOptional(paths.Metadata)
	if err != nil {
		return nil, err
	}

	if metaBytes != nil {
		if err := json.Unmarshal(metaBytes, &raw.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return raw, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	return data, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpPath := tmp.Name()

	fail := func(step string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to %s %s: %w", step, filepath.Base(path), err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}

	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}

	return nil
}
