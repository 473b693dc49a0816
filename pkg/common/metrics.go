package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TracesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_traces_fetched_total",
		Help: "Total number of raw traces acquired from execution nodes",
	}, []string{"network", "status"})

	TraceFetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_trace_fetch_attempts_total",
		Help: "Total number of trace acquisition attempts, including retries",
	}, []string{"network"})

	TreesReconstructed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_trees_reconstructed_total",
		Help: "Total number of call trees reconstructed",
	}, []string{"network", "status"})

	ReconstructionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_calltree_reconstruction_duration_seconds",
		Help:    "Time taken to decode and reconstruct a call tree",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
	}, []string{"network"})

	TreeFrames = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_calltree_tree_frames",
		Help:    "Number of call frames per reconstructed tree",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"network"})

	TreeInstructions = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_calltree_tree_instructions",
		Help:    "Number of instructions per reconstructed tree",
		Buckets: prometheus.ExponentialBuckets(10, 4, 10),
	}, []string{"network"})

	ReconstructionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_reconstruction_errors_total",
		Help: "Total number of reconstruction failures by kind",
	}, []string{"network", "error_type"})

	GasCostsSanitized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_gas_costs_sanitized_total",
		Help: "Total number of corrupted structlog gas costs corrected",
	}, []string{"network"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_cache_requests_total",
		Help: "Total number of call tree cache lookups",
	}, []string{"result"})

	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_tasks_enqueued_total",
		Help: "Total number of tasks enqueued",
	}, []string{"queue", "task_type"})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_tasks_processed_total",
		Help: "Total number of tasks processed",
	}, []string{"queue", "task_type", "status"})

	TaskProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_calltree_task_processing_duration_seconds",
		Help:    "Time taken to process a task",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"queue", "task_type"})

	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_calltree_rpc_call_duration_seconds",
		Help:    "Duration of RPC calls to Ethereum nodes",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain_id", "node", "method", "status"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_rpc_calls_total",
		Help: "Total RPC calls made to Ethereum nodes",
	}, []string{"chain_id", "node", "method", "status"})

	ClickHouseOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_calltree_clickhouse_operation_duration_seconds",
		Help:    "Duration of ClickHouse operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation", "table", "status", "error_code"})

	ClickHouseOperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_clickhouse_operation_total",
		Help: "Total number of ClickHouse operations",
	}, []string{"operation", "table", "status", "error_code"})

	ClickHouseInsertsRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_clickhouse_inserted_rows_total",
		Help: "Total number of rows inserted into ClickHouse",
	}, []string{"table", "status"})

	ClickHousePoolAcquiredResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_calltree_clickhouse_pool_acquired_resources",
		Help: "Number of currently acquired resources in the ClickHouse connection pool",
	}, []string{"database"})

	ClickHousePoolIdleResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_calltree_clickhouse_pool_idle_resources",
		Help: "Number of currently idle resources in the ClickHouse connection pool",
	}, []string{"database"})

	ClickHousePoolTotalResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_calltree_clickhouse_pool_total_resources",
		Help: "Total number of resources in the ClickHouse connection pool",
	}, []string{"database"})

	RetryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_retry_count_total",
		Help: "Total number of retry attempts",
	}, []string{"component", "reason"})

	MemoryUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_calltree_memory_usage_bytes",
		Help: "Process memory usage by type",
	}, []string{"type"})

	GoroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execution_calltree_goroutines",
		Help: "Number of running goroutines",
	})

	MemoryPressureEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_memory_pressure_events_total",
		Help: "Total number of times memory usage crossed a configured threshold",
	}, []string{"level"})

	RowBufferFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_rowbuffer_flushes_total",
		Help: "Total number of row buffer flushes",
	}, []string{"table", "trigger", "status"})

	RowBufferFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_calltree_rowbuffer_flush_duration_seconds",
		Help:    "Duration of row buffer flushes",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"table"})

	RowBufferFlushSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_calltree_rowbuffer_flush_rows",
		Help:    "Number of rows per row buffer flush",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"table"})

	RowBufferPendingRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_calltree_rowbuffer_pending_rows",
		Help: "Rows waiting in the row buffer",
	}, []string{"table"})

	QueueTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_calltree_queue_tasks",
		Help: "Tasks in a queue by state",
	}, []string{"queue", "state"})

	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_calltree_leader_election_status",
		Help: "1 while this node holds leadership, 0 otherwise",
	}, []string{"node_id"})

	LeaderElectionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_leader_election_transitions_total",
		Help: "Total number of leadership gains and losses",
	}, []string{"node_id", "transition"})

	LeaderElectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_calltree_leader_election_errors_total",
		Help: "Total number of leader election errors by operation",
	}, []string{"node_id", "operation"})
)
