// Package service provides the plugin execution service consumed by the
// fan-out worker.
package service

import (
	"context"

	"github.com/nchandak/fanout/internal/invocation"
)

// ExecutionService executes a single invocation. Implementations must be safe
// to call concurrently for distinct invocations.
type ExecutionService interface {
	Execute(ctx context.Context, inv *invocation.Invocation) (*invocation.Result, error)
}
