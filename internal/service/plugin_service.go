package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/nchandak/fanout/internal/invocation"
	"github.com/nchandak/fanout/internal/plugin"
)

// ErrUnknownAction is returned when an invocation names an action the plugin's
// manifest does not declare.
var ErrUnknownAction = errors.New("unknown plugin action")

// Options configures a PluginService.
type Options struct {
	// MaxRetries is the number of additional attempts after a failed plugin
	// process, within a single Execute call.
	MaxRetries uint64
	// BreakerTimeout is how long a tripped plugin's circuit stays open.
	BreakerTimeout time.Duration
}

// PluginService executes invocations through out-of-process plugins. Plugin
// process failures are retried with exponential backoff, and each plugin is
// guarded by its own circuit breaker so a persistently broken plugin stops
// consuming processes.
//
// A plugin that runs and reports success:false is a completed execution with
// a failed Result, not an error; only process-level failures (spawn error,
// timeout, open circuit, exhausted retries) return a Go error.
type PluginService struct {
	manager *plugin.Manager
	exec    *plugin.Executor
	opts    Options

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewPluginService creates a PluginService over the given manager and executor.
func NewPluginService(manager *plugin.Manager, exec *plugin.Executor, opts Options) *PluginService {
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	return &PluginService{
		manager:  manager,
		exec:     exec,
		opts:     opts,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Execute resolves the invocation's plugin and runs it, returning the plugin's
// reported outcome as a Result.
func (s *PluginService) Execute(ctx context.Context, inv *invocation.Invocation) (*invocation.Result, error) {
	p, err := s.manager.Get(inv.PluginName)
	if err != nil {
		return nil, fmt.Errorf("resolve plugin %q: %w", inv.PluginName, err)
	}
	if !p.Supports(inv.Action) {
		return nil, fmt.Errorf("plugin %q action %q: %w", inv.PluginName, inv.Action, ErrUnknownAction)
	}

	req := &plugin.Request{
		InvocationID: inv.ID,
		Action:       inv.Action,
		Payload:      inv.Payload,
		Config:       inv.Config,
	}

	start := time.Now()
	resp, err := s.run(ctx, p, req)
	if err != nil {
		return nil, err
	}

	return &invocation.Result{
		InvocationID: inv.ID,
		Success:      resp.Success,
		Error:        resp.Error,
		Data:         resp.Data,
		DurationMs:   time.Since(start).Milliseconds(),
		FinishedAt:   time.Now(),
	}, nil
}

// run executes the plugin process through its circuit breaker, retrying
// process failures with exponential backoff. An open circuit aborts the retry
// loop immediately.
func (s *PluginService) run(ctx context.Context, p *plugin.Plugin, req *plugin.Request) (*plugin.Response, error) {
	breaker := s.breaker(p.Manifest.Name)

	var resp *plugin.Response
	attempt := func() error {
		out, err := breaker.Execute(func() (interface{}, error) {
			return s.exec.Execute(ctx, p, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = out.(*plugin.Response)
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.opts.MaxRetries),
		ctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, fmt.Errorf("execute plugin %q: %w", p.Manifest.Name, err)
	}
	return resp, nil
}

func (s *PluginService) breaker(name string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: s.opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	s.breakers[name] = b
	return b
}
