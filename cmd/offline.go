package cmd

import (
	"context"
	"fmt"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum"
	"github.com/ethpandaops/execution-calltree/pkg/processor/calltree"
	"github.com/ethpandaops/execution-calltree/pkg/server"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

// newOfflineProcessor builds a processor over the trace store, without the
// task queue, cache or export. The returned stop function releases the
// node pool when one was started.
func newOfflineProcessor(ctx context.Context, config *server.Config, withNodes bool) (*calltree.Processor, func(), error) {
	if err := config.Storage.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	if err := config.Processor.Calltree.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid calltree configuration: %w", err)
	}

	store, err := storage.New(log.WithField("component", "storage"), &config.Storage)
	if err != nil {
		return nil, nil, err
	}

	deps := &calltree.Dependencies{Log: log, Store: store}
	stop := func() {}

	if withNodes {
		if err := config.Ethereum.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid ethereum configuration: %w", err)
		}

		pool := ethereum.NewPool(log.WithField("component", "ethereum"), "execution_calltree", &config.Ethereum)
		if pool.HasExecutionNodes() {
			pool.Start(ctx)

			deps.Nodes = pool
			stop = func() {
				if err := pool.Stop(context.Background()); err != nil {
					log.WithError(err).Warn("Failed to stop ethereum pool")
				}
			}
		}
	}

	p, err := calltree.New(deps, &config.Processor.Calltree)
	if err != nil {
		stop()

		return nil, nil, err
	}

	return p, stop, nil
}
