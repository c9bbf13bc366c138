package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nchandak/fanout/internal/invocation"
	"github.com/nchandak/fanout/internal/store"
)

// dedupeCacheSize bounds the set of recently completed invocation IDs kept
// for duplicate suppression.
const dedupeCacheSize = 4096

// ConsumerConfig holds configuration options for the queue consumer.
type ConsumerConfig struct {
	Store        *store.Store
	Worker       *Worker
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	// OnResult, if set, is called for every completed invocation. The server
	// uses it to feed the WebSocket event stream.
	OnResult func(*invocation.Result)
}

// Consumer polls the queue for due invocations and hands them to the worker
// in batches.
type Consumer struct {
	config ConsumerConfig
	seen   *lru.Cache[string, struct{}]
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewConsumer creates a Consumer with the given configuration.
func NewConsumer(config ConsumerConfig) (*Consumer, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 25
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}

	seen, err := lru.New[string, struct{}](dedupeCacheSize)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		config: config,
		seen:   seen,
	}, nil
}

// Start launches the consumer loop. It is a no-op if already running.
// Invocations left in running state by a previous process are returned to
// pending first.
func (c *Consumer) Start() {
	if c.stopCh != nil {
		return
	}

	if n, err := c.config.Store.Invocations().Recover(0); err != nil {
		log.Printf("queue recovery error: %v", err)
	} else if n > 0 {
		log.Printf("requeued %d stale invocations", n)
	}

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.runLoop()
}

// Stop halts the consumer loop and waits for the in-flight batch to settle.
func (c *Consumer) Stop() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.doneCh
	c.stopCh = nil
}

// runLoop claims and processes one batch per tick until stopped.
func (c *Consumer) runLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.Poll(context.Background()); err != nil {
				log.Printf("consumer poll error: %v", err)
			}
		}
	}
}

// Poll claims one batch of due invocations, executes it, and persists the
// outcomes. Invocations whose IDs completed recently are short-circuited as
// duplicates without touching the execution service.
//
// When the batch fails fast, the failed execution is not attributable to a
// single invocation at this layer, so every claimed invocation is rescheduled
// (or marked failed once out of attempts).
func (c *Consumer) Poll(ctx context.Context) error {
	claimed, err := c.config.Store.Invocations().Claim(c.config.BatchSize)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	batch := make([]*invocation.Invocation, 0, len(claimed))
	for _, inv := range claimed {
		if c.seen.Contains(inv.ID) {
			c.completeDuplicate(inv)
			continue
		}
		batch = append(batch, inv)
	}
	if len(batch) == 0 {
		return nil
	}

	results, err := c.config.Worker.ProcessBatch(ctx, batch)
	if err != nil {
		for _, inv := range batch {
			if ferr := c.config.Store.Invocations().Fail(inv.ID, err.Error(), c.config.MaxAttempts, c.config.RetryDelay); ferr != nil {
				log.Printf("failed to reschedule invocation %s: %v", inv.ID, ferr)
			}
		}
		return err
	}

	for _, res := range results {
		if err := c.config.Store.Invocations().Complete(res); err != nil {
			log.Printf("failed to record result for %s: %v", res.InvocationID, err)
			continue
		}
		c.seen.Add(res.InvocationID, struct{}{})
		if c.config.OnResult != nil {
			c.config.OnResult(res)
		}
	}
	return nil
}

// completeDuplicate marks a re-delivered invocation completed without
// re-executing its plugin.
func (c *Consumer) completeDuplicate(inv *invocation.Invocation) {
	res := &invocation.Result{
		InvocationID: inv.ID,
		Success:      true,
		Data:         json.RawMessage(`{"duplicate":true}`),
		FinishedAt:   time.Now().UTC(),
	}
	if err := c.config.Store.Invocations().Complete(res); err != nil {
		log.Printf("failed to complete duplicate invocation %s: %v", inv.ID, err)
	}
}
