package calltree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/common"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

// Enqueue schedules a transaction for reconstruction. It reports false
// without error when the transaction is already queued.
func (p *Processor) Enqueue(ctx context.Context, hash string) (bool, error) {
	if p.asynqClient == nil {
		return false, ErrQueueDisabled
	}

	normalized, err := storage.NormalizeHash(hash)
	if err != nil {
		return false, err
	}

	task, err := NewProcessTask(&ProcessPayload{TransactionHash: normalized})
	if err != nil {
		return false, fmt.Errorf("failed to create process task: %w", err)
	}

	_, err = p.asynqClient.EnqueueContext(ctx, task,
		asynq.Queue(p.Queue()),
		asynq.TaskID(normalized),
		asynq.MaxRetry(p.config.TaskMaxRetry),
		asynq.Timeout(p.config.TaskTimeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return false, nil
		}

		return false, fmt.Errorf("failed to enqueue %s: %w", normalized, err)
	}

	common.TasksEnqueued.WithLabelValues(p.Queue(), ProcessTaskType).Inc()

	return true, nil
}

// HandleProcessTask reconstructs the transaction named by the task payload.
// Failures that cannot succeed on retry skip the remaining retries.
func (p *Processor) HandleProcessTask(ctx context.Context, task *asynq.Task) error {
	start := time.Now()
	queue := p.Queue()

	defer func() {
		common.TaskProcessingDuration.WithLabelValues(queue, ProcessTaskType).Observe(time.Since(start).Seconds())
	}()

	var payload ProcessPayload
	if err := payload.UnmarshalBinary(task.Payload()); err != nil {
		common.TasksProcessed.WithLabelValues(queue, ProcessTaskType, "failed").Inc()

		return fmt.Errorf("failed to unmarshal process payload: %w: %w", err, asynq.SkipRetry)
	}

	result, err := p.Reconstruct(ctx, payload.TransactionHash)
	if err != nil {
		common.TasksProcessed.WithLabelValues(queue, ProcessTaskType, "failed").Inc()

		if IsPermanent(err) {
			p.log.WithError(err).WithField("tx_hash", payload.TransactionHash).Warn("Dropping unprocessable transaction")

			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		return err
	}

	common.TasksProcessed.WithLabelValues(queue, ProcessTaskType, "success").Inc()

	p.log.WithFields(logrus.Fields{
		"tx_hash": result.TxHash,
		"frames":  result.Stats.Frames,
		"cached":  result.Cached,
	}).Info("Processed transaction")

	return nil
}
