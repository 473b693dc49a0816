package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/chpool"
	"github.com/ClickHouse/ch-go/compress"
	"github.com/ClickHouse/ch-go/proto"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/common"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// ErrNotStarted is returned by queries issued before Start.
var ErrNotStarted = errors.New("clickhouse client not started")

// Client implements the ClientInterface using ch-go native protocol.
type Client struct {
	pool        *chpool.Pool
	config      *Config
	compression ch.Compression
	log         logrus.FieldLogger
	lock        sync.RWMutex

	metricsDone chan struct{}
	metricsWg   sync.WaitGroup
}

var (
	// retryableCodes are server exceptions caused by load or the network
	// rather than by the query itself.
	retryableCodes = []proto.Error{
		proto.ErrTimeoutExceeded,
		proto.ErrNoFreeConnection,
		proto.ErrTooManySimultaneousQueries,
		proto.ErrSocketTimeout,
		proto.ErrNetworkError,
	}

	retryableErrors = []error{
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.EPIPE,
		io.EOF,
		io.ErrUnexpectedEOF,
	}

	// transientMessages catch driver errors that lost their type on the way up.
	transientMessages = []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"eof",
		"timeout",
		"temporary failure",
		"server is overloaded",
		"too many connections",
	}
)

// isRetryableError reports whether err is transient.
func isRetryableError(err error) bool {
	if err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ch.ErrClosed) {
		return false
	}

	if exc, ok := ch.AsException(err); ok {
		return exc.IsCode(retryableCodes...)
	}

	var corrupted *compress.CorruptedDataErr
	if errors.As(err, &corrupted) {
		return false
	}

	// syscall.Errno implements net.Error, so match errnos first.
	for _, target := range retryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())

	for _, pattern := range transientMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// withQueryTimeout returns a context with the configured query timeout applied.
// If the context already has a deadline, the original context is returned unchanged.
func (c *Client) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.QueryTimeout == 0 {
		return ctx, func() {}
	}

	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.config.QueryTimeout)
}

// retryPolicy is an exponential backoff bounded by MaxRetries and ctx.
func retryPolicy(ctx context.Context, cfg *Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryBaseDelay
	b.MaxInterval = cfg.RetryMaxDelay
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)
}

// retry runs fn until it succeeds, fails with a non-retryable error or the
// policy gives up.
func retry(ctx context.Context, log logrus.FieldLogger, cfg *Config, operation string, fn func() error) error {
	attempt := 0

	op := func() error {
		attempt++

		err := fn()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, delay time.Duration) {
		common.RetryCount.WithLabelValues("clickhouse", operation).Inc()

		log.WithFields(logrus.Fields{
			"attempt":   attempt,
			"max":       cfg.MaxRetries,
			"delay":     delay,
			"operation": operation,
			"error":     err,
		}).Debug("Retrying after transient error")
	}

	return backoff.RetryNotify(op, retryPolicy(ctx, cfg), notify)
}

// doWithRetry executes a function with exponential backoff retry logic.
// The function receives a context with the configured query timeout applied per attempt.
func (c *Client) doWithRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return retry(ctx, c.log, c.config, operation, func() error {
		attemptCtx, cancel := c.withQueryTimeout(ctx)
		defer cancel()

		return fn(attemptCtx)
	})
}

// New creates a new ch-go native ClickHouse client.
// The client is not connected until Start() is called.
func New(log logrus.FieldLogger, cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Addr == "" {
		return nil, fmt.Errorf("invalid config: addr is required")
	}

	cfg.SetDefaults()

	compression := ch.CompressionLZ4

	switch cfg.Compression {
	case "zstd":
		compression = ch.CompressionZSTD
	case "none":
		compression = ch.CompressionDisabled
	}

	return &Client{
		config:      cfg,
		compression: compression,
		log:         log.WithField("component", "clickhouse"),
	}, nil
}

// Start initializes the client by dialing ClickHouse with retry logic.
func (c *Client) Start(ctx context.Context) error {
	c.lock.Lock()

	if c.pool != nil {
		c.lock.Unlock()
		c.log.Debug("Start() already completed successfully, skipping")

		return nil
	}

	c.lock.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout*time.Duration(c.config.MaxRetries+1))
	defer cancel()

	var pool *chpool.Pool

	err := retry(dialCtx, c.log, c.config, "dial", func() error {
		var dialErr error

		pool, dialErr = chpool.Dial(dialCtx, chpool.Options{
			ClientOptions: ch.Options{
				Address:     c.config.Addr,
				Database:    c.config.Database,
				User:        c.config.Username,
				Password:    c.config.Password,
				Compression: c.compression,
				DialTimeout: c.config.DialTimeout,
			},
			MaxConns:          c.config.MaxConns,
			MinConns:          c.config.MinConns,
			MaxConnLifetime:   c.config.ConnMaxLifetime,
			MaxConnIdleTime:   c.config.ConnMaxIdleTime,
			HealthCheckPeriod: c.config.HealthCheckPeriod,
		})

		return dialErr
	})
	if err != nil {
		return fmt.Errorf("failed to dial clickhouse: %w", err)
	}

	c.lock.Lock()
	c.pool = pool
	c.metricsDone = make(chan struct{})
	c.lock.Unlock()

	c.log.WithField("addr", c.config.Addr).Info("Connected to ClickHouse native interface")

	c.metricsWg.Add(1)

	go c.collectPoolMetrics(pool)

	return nil
}

// Stop closes the connection pool.
func (c *Client) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.metricsDone != nil {
		close(c.metricsDone)
		c.metricsWg.Wait()

		c.metricsDone = nil
	}

	if c.pool != nil {
		c.pool.Close()
		c.pool = nil

		c.log.Info("Closed ClickHouse connection pool")
	}

	return nil
}

func (c *Client) getPool() (*chpool.Pool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.pool == nil {
		return nil, ErrNotStarted
	}

	return c.pool, nil
}

// track records duration and outcome of one operation. Call the returned
// function with the operation's final error.
func (c *Client) track(operation, table string) func(err error) {
	start := time.Now()

	return func(err error) {
		status := statusSuccess
		if err != nil {
			status = statusFailed
		}

		common.ClickHouseOperationDuration.WithLabelValues(operation, table, status, "").Observe(time.Since(start).Seconds())
		common.ClickHouseOperationTotal.WithLabelValues(operation, table, status, "").Inc()
	}
}

// Execute runs a statement that returns no rows.
func (c *Client) Execute(ctx context.Context, query string) (err error) {
	done := c.track("execute", extractTableName(query))
	defer func() { done(err) }()

	pool, err := c.getPool()
	if err != nil {
		return err
	}

	err = c.doWithRetry(ctx, "execute", func(attemptCtx context.Context) error {
		return pool.Do(attemptCtx, ch.Query{Body: query})
	})
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	return nil
}

// Insert writes input into table. The input columns must not be reset by
// the caller until Insert returns, since a retry resends them.
func (c *Client) Insert(ctx context.Context, table string, input proto.Input) (err error) {
	done := c.track("insert", table)

	rows := 0
	if len(input) > 0 {
		rows = input[0].Data.Rows()
	}

	defer func() {
		done(err)

		status := statusSuccess
		if err != nil {
			status = statusFailed
		}

		common.ClickHouseInsertsRows.WithLabelValues(table, status).Add(float64(rows))
	}()

	pool, err := c.getPool()
	if err != nil {
		return err
	}

	err = c.doWithRetry(ctx, "insert", func(attemptCtx context.Context) error {
		return pool.Do(attemptCtx, ch.Query{
			Body:  input.Into(table),
			Input: input,
		})
	})
	if err != nil {
		return fmt.Errorf("insert into %s failed: %w", table, err)
	}

	return nil
}

// IsStorageEmpty reports whether table has no rows matching conditions.
func (c *Client) IsStorageEmpty(ctx context.Context, table string, conditions map[string]any) (empty bool, err error) {
	done := c.track("is_storage_empty", table)
	defer func() { done(err) }()

	pool, err := c.getPool()
	if err != nil {
		return false, err
	}

	query := countQuery(table, conditions)

	var count uint64

	err = c.doWithRetry(ctx, "is_storage_empty", func(attemptCtx context.Context) error {
		colCount := new(proto.ColUInt64)

		if err := pool.Do(attemptCtx, ch.Query{
			Body:   query,
			Result: proto.Results{{Name: "count", Data: colCount}},
		}); err != nil {
			return err
		}

		if colCount.Rows() > 0 {
			count = colCount.Row(0)
		}

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check if table is empty: %w", err)
	}

	return count == 0, nil
}

// countQuery builds the row count query used by IsStorageEmpty. Conditions
// are ANDed in key order so the query text is stable.
func countQuery(table string, conditions map[string]any) string {
	query := fmt.Sprintf("SELECT count() AS count FROM %s FINAL", table)

	if len(conditions) == 0 {
		return query
	}

	keys := make([]string, 0, len(conditions))
	for key := range conditions {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))

	for _, key := range keys {
		switch v := conditions[key].(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s = '%s'", key, strings.ReplaceAll(v, "'", "\\'")))
		case int, int32, int64, uint32, uint64:
			parts = append(parts, fmt.Sprintf("%s = %v", key, v))
		default:
			parts = append(parts, fmt.Sprintf("%s = '%v'", key, v))
		}
	}

	return query + " WHERE " + strings.Join(parts, " AND ")
}

// extractTableName attempts to extract the table name from various SQL query patterns.
func extractTableName(query string) string {
	trimmedQuery := strings.TrimSpace(query)
	upperQuery := strings.ToUpper(trimmedQuery)

	for _, prefix := range []string{"INSERT INTO", "CREATE TABLE", "DROP TABLE"} {
		if strings.HasPrefix(upperQuery, prefix) {
			parts := strings.Fields(trimmedQuery)

			// CREATE TABLE IF NOT EXISTS name
			if len(parts) >= 6 && strings.EqualFold(parts[2], "IF") {
				return strings.Trim(parts[5], "`'\"(")
			}

			if len(parts) >= 3 {
				return strings.Trim(parts[2], "`'\"(")
			}
		}
	}

	if idx := strings.Index(upperQuery, "FROM"); idx != -1 {
		parts := strings.Fields(strings.TrimSpace(trimmedQuery[idx+4:]))
		if len(parts) > 0 && !strings.EqualFold(parts[0], "FINAL") {
			return strings.Trim(parts[0], "`'\"")
		}
	}

	return ""
}

// collectPoolMetrics periodically collects pool statistics and updates Prometheus metrics.
func (c *Client) collectPoolMetrics(pool *chpool.Pool) {
	defer c.metricsWg.Done()

	c.lock.RLock()
	done := c.metricsDone
	c.lock.RUnlock()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			stat := pool.Stat()

			common.ClickHousePoolAcquiredResources.WithLabelValues(c.config.Database).Set(float64(stat.AcquiredResources()))
			common.ClickHousePoolIdleResources.WithLabelValues(c.config.Database).Set(float64(stat.IdleResources()))
			common.ClickHousePoolTotalResources.WithLabelValues(c.config.Database).Set(float64(stat.TotalResources()))
		}
	}
}
