// Package worker executes batches of plugin invocations concurrently and
// drives the queue consumer loop.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nchandak/fanout/internal/invocation"
	"github.com/nchandak/fanout/internal/metrics"
	"github.com/nchandak/fanout/internal/service"
)

// Worker fans a batch of invocations out to the execution service.
type Worker struct {
	service service.ExecutionService
	metrics *metrics.Metrics
}

// New creates a Worker over the given execution service. metrics may be nil.
func New(svc service.ExecutionService, m *metrics.Metrics) *Worker {
	return &Worker{service: svc, metrics: m}
}

// ProcessBatch executes every invocation in the batch and returns the results
// in input order.
//
// All executions are started concurrently rather than awaited one by one:
// plugin execution spawns a process and typically performs outbound network
// calls, so sequential awaiting would serialize independent latencies across
// the whole batch. Each execution is individually instrumented under its
// plugin's stats key.
//
// The join is fail-fast: the first execution error cancels the remaining
// in-flight executions and fails the whole call, with no partial results.
// A plugin-reported failure is a successful execution carrying a failed
// Result and does not trip the join.
func (w *Worker) ProcessBatch(ctx context.Context, invs []*invocation.Invocation) ([]*invocation.Result, error) {
	results := make([]*invocation.Result, len(invs))

	g, ctx := errgroup.WithContext(ctx)
	for i, inv := range invs {
		g.Go(func() error {
			res, err := metrics.Instrument(ctx, w.metrics, "plugin."+inv.PluginName,
				func(ctx context.Context) (*invocation.Result, error) {
					return w.service.Execute(ctx, inv)
				})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
