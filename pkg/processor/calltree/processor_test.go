package calltree_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/ch-go/proto"
	"github.com/creasty/defaults"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-calltree/internal/testutil"
	"github.com/ethpandaops/execution-calltree/pkg/cache"
	"github.com/ethpandaops/execution-calltree/pkg/clickhouse"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-calltree/pkg/evm"
	"github.com/ethpandaops/execution-calltree/pkg/processor/calltree"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

const (
	txHash      = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
	otherTxHash = "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// traceResult is a root frame that CALLs into a frame which reverts.
const traceResult = `{
	"gas": 21040,
	"failed": false,
	"returnValue": "",
	"structLogs": [
		{"pc": 0, "op": "PUSH1", "gas": 100, "gasCost": 3, "depth": 1, "stack": []},
		{"pc": 2, "op": "CALL", "gas": 97, "gasCost": 40, "depth": 1, "stack": ["0x0", "0x1", "0x2"]},
		{"pc": 0, "op": "PUSH1", "gas": 50, "gasCost": 3, "depth": 2, "stack": []},
		{"pc": 2, "op": "REVERT", "gas": 47, "gasCost": 0, "depth": 2, "stack": ["0x0", "0x0"]},
		{"pc": 3, "op": "STOP", "gas": 60, "gasCost": 0, "depth": 1, "stack": ["0x0"]}
	]
}`

var receiptResult = `{
	"transactionHash": "` + txHash + `",
	"logsBloom": "0x` + strings.Repeat("00", 256) + `",
	"logs": [],
	"blockNumber": "0x121eac0",
	"transactionIndex": "0x3",
	"from": "0x1111111111111111111111111111111111111111",
	"to": "0x2222222222222222222222222222222222222222",
	"gasUsed": "0x5230",
	"cumulativeGasUsed": "0x5230",
	"status": "0x1"
}`

type stubNode struct {
	mu         sync.Mutex
	traceErrs  []error
	traceCalls int
	receiptErr error
}

func (n *stubNode) Start(context.Context) error { return nil }
func (n *stubNode) Stop(context.Context) error  { return nil }

func (n *stubNode) OnReady(context.Context, func(ctx context.Context) error) {}

func (n *stubNode) DebugTraceTransactionRaw(context.Context, string, execution.TraceOptions) (json.RawMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.traceCalls++

	if len(n.traceErrs) > 0 {
		err := n.traceErrs[0]
		n.traceErrs = n.traceErrs[1:]

		if err != nil {
			return nil, err
		}
	}

	return json.RawMessage(traceResult), nil
}

func (n *stubNode) TransactionReceiptRaw(context.Context, string) (json.RawMessage, error) {
	if n.receiptErr != nil {
		return nil, n.receiptErr
	}

	return json.RawMessage(receiptResult), nil
}

func (n *stubNode) ChainID() int32     { return 1 }
func (n *stubNode) ClientType() string { return "Geth/v1.14.0" }
func (n *stubNode) IsSynced() bool     { return true }
func (n *stubNode) Name() string       { return "stub" }

func (n *stubNode) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.traceCalls
}

type stubNodes struct {
	node execution.Node
}

func (s *stubNodes) WaitForHealthyExecutionNode(ctx context.Context) (execution.Node, error) {
	if s.node == nil {
		<-ctx.Done()

		return nil, ctx.Err()
	}

	return s.node, nil
}

func (s *stubNodes) GetNetworkByChainID(chainID int32) (*ethereum.Network, error) {
	return ethereum.GetNetworkByChainID(chainID)
}

func testConfig(t *testing.T) *calltree.Config {
	t.Helper()

	cfg := &calltree.Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.FetchBaseBackoff = time.Millisecond
	cfg.FetchMaxBackoff = 5 * time.Millisecond
	cfg.FetchMaxRetries = 3
	cfg.NodeWaitTimeout = 50 * time.Millisecond
	cfg.Export.MaxRows = 1

	return cfg
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()

	store, err := storage.New(logrus.New(), &storage.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	return store
}

func persistFixture(t *testing.T, store *storage.Store, hash string) {
	t.Helper()

	trace, err := execution.WrapResult(json.RawMessage(traceResult))
	require.NoError(t, err)

	_, err = store.Save(context.Background(), &storage.RawTrace{
		TxHash:   hash,
		Trace:    trace,
		Metadata: storage.Metadata{ChainID: 1, FetchedAt: testTime},
	})
	require.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *calltree.Config)
		expectErr bool
	}{
		{name: "defaults", mutate: func(*calltree.Config) {}},
		{name: "zero concurrency", mutate: func(c *calltree.Config) { c.Concurrency = 0 }, expectErr: true},
		{name: "max backoff below base", mutate: func(c *calltree.Config) { c.FetchMaxBackoff = time.Millisecond }, expectErr: true},
		{name: "no table", mutate: func(c *calltree.Config) { c.Table = "" }, expectErr: true},
		{name: "negative task retries", mutate: func(c *calltree.Config) { c.TaskMaxRetry = -1 }, expectErr: true},
		{name: "zero node wait", mutate: func(c *calltree.Config) { c.NodeWaitTimeout = 0 }, expectErr: true},
		{name: "zero export batch", mutate: func(c *calltree.Config) { c.Export.MaxRows = 0 }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &calltree.Config{}
			require.NoError(t, defaults.Set(cfg))

			tt.mutate(cfg)

			if tt.expectErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := calltree.New(&calltree.Dependencies{Log: logrus.New()}, testConfig(t))
	require.Error(t, err)
}

func TestReconstructDocument(t *testing.T) {
	doc, err := execution.WrapResult(json.RawMessage(traceResult))
	require.NoError(t, err)

	root, stats, err := calltree.ReconstructDocument(doc)
	require.NoError(t, err)

	assert.Equal(t, calltree.Stats{
		Frames:       2,
		Instructions: 5,
		MaxDepth:     1,
		GasUsed:      40,
		Failed:       false,
	}, stats)

	require.Len(t, root.Children, 1)

	child := root.Children[0]
	assert.Equal(t, evm.KindCall, child.Kind)
	assert.False(t, child.Success)
	assert.Equal(t, uint64(3), child.GasUsed)
	assert.True(t, root.Success)
}

func TestReconstructDocument_FailedFollowsRootFrame(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		failed bool
	}{
		{
			name: "tracer flag without root revert",
			doc: `{"jsonrpc":"2.0","id":"1","result":{"gas":1,"failed":true,"structLogs":[
				{"pc":0,"op":"INVALID","gas":10,"gasCost":10,"depth":1}
			]}}`,
			failed: false,
		},
		{
			name: "root revert",
			doc: `{"jsonrpc":"2.0","id":"1","result":{"gas":1,"failed":true,"structLogs":[
				{"pc":0,"op":"REVERT","gas":10,"gasCost":0,"depth":1,"stack":["0x0","0x0"]}
			]}}`,
			failed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, stats, err := calltree.ReconstructDocument([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.failed, stats.Failed)
			assert.Equal(t, !root.Success, stats.Failed)
		})
	}
}

func TestReconstructDocument_Errors(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		sentinel  error
		errorType string
	}{
		{
			name:      "rpc error",
			doc:       `{"jsonrpc":"2.0","id":"1","error":{"code":-32000,"message":"not found"}}`,
			sentinel:  execution.ErrRPCError,
			errorType: "validation",
		},
		{
			name:      "trailing data",
			doc:       `{"jsonrpc":"2.0","id":"1","result":{"structLogs":[]}} {}`,
			sentinel:  execution.ErrTrailingData,
			errorType: "validation",
		},
		{
			name:      "empty trace",
			doc:       `{"jsonrpc":"2.0","id":"1","result":{"gas":21000,"failed":false,"returnValue":"","structLogs":[]}}`,
			sentinel:  evm.ErrEmptyTrace,
			errorType: "empty_trace",
		},
		{
			name:      "missing depth",
			doc:       `{"jsonrpc":"2.0","id":"1","result":{"structLogs":[{"pc":0,"op":"STOP","gas":1}]}}`,
			sentinel:  evm.ErrDecode,
			errorType: "decode",
		},
		{
			name:      "non numeric pc",
			doc:       `{"jsonrpc":"2.0","id":"1","result":{"structLogs":[{"pc":"zz","op":"STOP","gas":1,"depth":1}]}}`,
			sentinel:  evm.ErrDecode,
			errorType: "decode",
		},
		{
			name:      "negative depth",
			doc:       `{"jsonrpc":"2.0","id":"1","result":{"structLogs":[{"pc":0,"op":"STOP","gas":1,"depth":-1}]}}`,
			sentinel:  evm.ErrDecode,
			errorType: "decode",
		},
		{
			name:      "numeric op",
			doc:       `{"jsonrpc":"2.0","id":"1","result":{"structLogs":[{"pc":0,"op":96,"gas":1,"depth":1}]}}`,
			sentinel:  evm.ErrDecode,
			errorType: "decode",
		},
		{
			name: "depth below root",
			doc: `{"jsonrpc":"2.0","id":"1","result":{"structLogs":[
				{"pc":0,"op":"CALL","gas":10,"depth":2,"stack":[]},
				{"pc":0,"op":"STOP","gas":5,"depth":1,"stack":[]}
			]}}`,
			sentinel:  evm.ErrStructuralCorruption,
			errorType: "structural_corruption",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := calltree.ReconstructDocument([]byte(tt.doc))
			require.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.errorType, calltree.ErrorType(err))
			assert.True(t, calltree.IsPermanent(err))

			if tt.sentinel == evm.ErrDecode {
				var decodeErr *evm.DecodeError
				require.ErrorAs(t, err, &decodeErr)
				assert.Equal(t, 0, decodeErr.Index)
			}
		})
	}

	assert.Equal(t, "other", calltree.ErrorType(errors.New("connection reset")))
	assert.False(t, calltree.IsPermanent(errors.New("connection reset")))
}

func TestProcessor_ReconstructFetchesAndPersists(t *testing.T) {
	node := &stubNode{}
	store := newStore(t)
	redisClient, _ := testutil.NewMiniredisClient(t)
	treeCache := cache.New(logrus.New(), redisClient, "test", &cache.Config{Enabled: true, TTL: time.Hour})
	ch := clickhouse.NewMockClient()

	var inserted int

	ch.InsertFunc = func(_ context.Context, table string, input proto.Input) error {
		assert.Equal(t, "call_frame", table)

		inserted = input[0].Data.Rows()

		return nil
	}

	p, err := calltree.New(&calltree.Dependencies{
		Log:        logrus.New(),
		Nodes:      &stubNodes{node: node},
		Store:      store,
		Cache:      treeCache,
		ClickHouse: ch,
	}, testConfig(t))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, 1, ch.GetCallCount("Execute"))

	result, err := p.Reconstruct(context.Background(), txHash)
	require.NoError(t, err)

	assert.Equal(t, txHash, result.TxHash)
	assert.Equal(t, "mainnet", result.Network)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, result.Stats.Frames)
	require.NotNil(t, result.Receipt)
	assert.True(t, execution.ReceiptSucceeded(result.Receipt))
	assert.Equal(t, uint64(19_000_000), result.Receipt.BlockNumber.Uint64())

	assert.Equal(t, 2, inserted)
	assert.True(t, store.Exists(txHash))

	raw, err := store.Load(txHash)
	require.NoError(t, err)
	assert.Equal(t, "stub", raw.Metadata.Node)
	assert.NotNil(t, raw.Receipt)
	require.NoError(t, execution.ValidateDocument(raw.Trace))

	cached, err := p.Reconstruct(context.Background(), txHash)
	require.NoError(t, err)

	assert.True(t, cached.Cached)
	assert.Equal(t, 2, cached.Stats.Frames)
	assert.Equal(t, result.Stats.Failed, cached.Stats.Failed)
	assert.Equal(t, result.Stats.GasUsed, cached.Stats.GasUsed)
	assert.Equal(t, 1, node.calls())
	assert.Equal(t, 1, ch.GetCallCount("Insert"))

	require.NoError(t, p.Stop(context.Background()))
	assert.True(t, ch.WasCalled("Stop"))
}

func TestProcessor_FetchRetriesTransientErrors(t *testing.T) {
	node := &stubNode{traceErrs: []error{errors.New("connection reset"), errors.New("timeout"), nil}}

	p, err := calltree.New(&calltree.Dependencies{
		Log:   logrus.New(),
		Nodes: &stubNodes{node: node},
		Store: newStore(t),
	}, testConfig(t))
	require.NoError(t, err)

	raw, err := p.Fetch(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, txHash, raw.TxHash)
	assert.Equal(t, 3, node.calls())
}

func TestProcessor_FetchGivesUp(t *testing.T) {
	boom := errors.New("connection reset")
	node := &stubNode{traceErrs: []error{boom, boom, boom, boom, boom}}

	p, err := calltree.New(&calltree.Dependencies{
		Log:   logrus.New(),
		Nodes: &stubNodes{node: node},
		Store: newStore(t),
	}, testConfig(t))
	require.NoError(t, err)

	_, err = p.Fetch(context.Background(), txHash)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, node.calls())
}

func TestProcessor_FetchUnknownTransactionIsNotRetried(t *testing.T) {
	node := &stubNode{traceErrs: []error{execution.ErrTransactionNotFound}}

	p, err := calltree.New(&calltree.Dependencies{
		Log:   logrus.New(),
		Nodes: &stubNodes{node: node},
		Store: newStore(t),
	}, testConfig(t))
	require.NoError(t, err)

	_, err = p.Reconstruct(context.Background(), txHash)
	require.ErrorIs(t, err, execution.ErrTransactionNotFound)
	assert.True(t, calltree.IsPermanent(err))
	assert.Equal(t, 1, node.calls())
}

func TestProcessor_FetchWithoutReceipt(t *testing.T) {
	node := &stubNode{receiptErr: errors.New("receipt unavailable")}
	store := newStore(t)

	p, err := calltree.New(&calltree.Dependencies{
		Log:   logrus.New(),
		Nodes: &stubNodes{node: node},
		Store: store,
	}, testConfig(t))
	require.NoError(t, err)

	result, err := p.Reconstruct(context.Background(), txHash)
	require.NoError(t, err)
	assert.Nil(t, result.Receipt)

	raw, err := store.Load(txHash)
	require.NoError(t, err)
	assert.Nil(t, raw.Receipt)
	assert.Nil(t, raw.Metadata.ReceiptRequest)
}

func TestProcessor_NoHealthyNode(t *testing.T) {
	p, err := calltree.New(&calltree.Dependencies{
		Log:   logrus.New(),
		Nodes: &stubNodes{},
		Store: newStore(t),
	}, testConfig(t))
	require.NoError(t, err)

	_, err = p.Fetch(context.Background(), txHash)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessor_WithoutNodes(t *testing.T) {
	store := newStore(t)

	p, err := calltree.New(&calltree.Dependencies{Log: logrus.New(), Store: store}, testConfig(t))
	require.NoError(t, err)

	_, err = p.Reconstruct(context.Background(), txHash)
	require.ErrorIs(t, err, storage.ErrTraceNotFound)

	_, err = p.Fetch(context.Background(), txHash)
	require.ErrorIs(t, err, calltree.ErrNoNodes)

	_, err = p.Reconstruct(context.Background(), "0x1234")
	require.ErrorIs(t, err, storage.ErrInvalidHash)

	persistFixture(t, store, txHash)

	result, err := p.Reconstruct(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, "mainnet", result.Network)
	assert.Equal(t, uint64(40), result.Root.GasUsed)
}

func TestProcessor_ExportSkippedWhenRowsExist(t *testing.T) {
	store := newStore(t)
	persistFixture(t, store, txHash)

	ch := clickhouse.NewMockClient()
	ch.IsStorageEmptyFunc = func(_ context.Context, table string, conditions map[string]any) (bool, error) {
		assert.Equal(t, "call_frame", table)
		assert.Equal(t, txHash, conditions["transaction_hash"])
		assert.Equal(t, "mainnet", conditions["meta_network_name"])

		return false, nil
	}

	p, err := calltree.New(&calltree.Dependencies{Log: logrus.New(), Store: store, ClickHouse: ch}, testConfig(t))
	require.NoError(t, err)

	_, err = p.Reconstruct(context.Background(), txHash)
	require.NoError(t, err)
	assert.False(t, ch.WasCalled("Insert"))
}

func TestProcessor_ProcessTransactions(t *testing.T) {
	store := newStore(t)
	persistFixture(t, store, txHash)
	persistFixture(t, store, otherTxHash)

	p, err := calltree.New(&calltree.Dependencies{Log: logrus.New(), Store: store}, testConfig(t))
	require.NoError(t, err)

	results, err := p.ProcessTransactions(context.Background(), []string{otherTxHash, txHash})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, otherTxHash, results[0].TxHash)
	assert.Equal(t, txHash, results[1].TxHash)

	_, err = p.ProcessTransactions(context.Background(), []string{txHash, "0xdead"})
	require.ErrorIs(t, err, storage.ErrInvalidHash)
}

func TestProcessor_HandleProcessTask(t *testing.T) {
	store := newStore(t)
	persistFixture(t, store, txHash)

	ch := clickhouse.NewMockClient()

	p, err := calltree.New(&calltree.Dependencies{Log: logrus.New(), Store: store, ClickHouse: ch}, testConfig(t))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))

	defer func() { _ = p.Stop(context.Background()) }()

	newTask := func(hash string) *asynq.Task {
		task, err := calltree.NewProcessTask(&calltree.ProcessPayload{TransactionHash: hash})
		require.NoError(t, err)

		return task
	}

	require.NoError(t, p.HandleProcessTask(context.Background(), newTask(txHash)))

	err = p.HandleProcessTask(context.Background(), asynq.NewTask(calltree.ProcessTaskType, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = p.HandleProcessTask(context.Background(), newTask(otherTxHash))
	require.ErrorIs(t, err, storage.ErrTraceNotFound)
	require.ErrorIs(t, err, asynq.SkipRetry)

	transient := errors.New("clickhouse unavailable")
	ch.IsStorageEmptyFunc = func(context.Context, string, map[string]any) (bool, error) {
		return false, transient
	}

	err = p.HandleProcessTask(context.Background(), newTask(txHash))
	require.ErrorIs(t, err, transient)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessor_Enqueue(t *testing.T) {
	p, err := calltree.New(&calltree.Dependencies{Log: logrus.New(), Store: newStore(t)}, testConfig(t))
	require.NoError(t, err)

	_, err = p.Enqueue(context.Background(), txHash)
	require.ErrorIs(t, err, calltree.ErrQueueDisabled)

	mr := testutil.NewMiniredis(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})

	defer client.Close()

	p, err = calltree.New(&calltree.Dependencies{
		Log:         logrus.New(),
		Store:       newStore(t),
		AsynqClient: client,
		RedisPrefix: "test",
	}, testConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "test:calltree:process", p.Queue())
	assert.Equal(t, map[string]int{"test:calltree:process": 10}, p.Queues())
	assert.Contains(t, p.GetHandlers(), calltree.ProcessTaskType)

	queued, err := p.Enqueue(context.Background(), txHash)
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = p.Enqueue(context.Background(), txHash)
	require.NoError(t, err)
	assert.False(t, queued, "duplicate enqueue is deduplicated by task id")

	_, err = p.Enqueue(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrInvalidHash)
}

func TestProcessPayload(t *testing.T) {
	task, err := calltree.NewProcessTask(&calltree.ProcessPayload{TransactionHash: txHash})
	require.NoError(t, err)
	assert.Equal(t, calltree.ProcessTaskType, task.Type())

	var payload calltree.ProcessPayload
	require.NoError(t, payload.UnmarshalBinary(task.Payload()))
	assert.Equal(t, txHash, payload.TransactionHash)

	assert.Equal(t, "calltree:process", calltree.ProcessQueue(""))
}
