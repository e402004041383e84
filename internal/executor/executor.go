// Package executor runs source snippets inside a sandbox under a hard
// wall-clock timeout.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/codeon-dev/codeon/internal/config"
	"github.com/codeon-dev/codeon/internal/runtime"
	"github.com/codeon-dev/codeon/internal/sandbox"
)

// Request is one execution: a source snippet and its language tag.
type Request struct {
	Code     string
	Language string
}

// Result is the captured outcome of one execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// TimeoutError means the execution exceeded the configured bound. It is
// distinct from a crash so clients can tell "your code is slow" from
// "your code failed".
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Limit)
}

// ErrExecInProgress rejects a second concurrent execution against the
// same sandbox.
var ErrExecInProgress = errors.New("an execution is already in progress for this sandbox")

// Engine materializes source inside a sandbox and invokes the language's
// toolchain. It owns no state beyond its configuration.
type Engine struct {
	rt      runtime.Client
	workdir string
	timeout time.Duration
	logger  *zap.Logger
}

// NewEngine creates an engine bound to the configured workdir and timeout.
func NewEngine(rt runtime.Client, cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		rt:      rt,
		workdir: cfg.Sandbox.Workdir,
		timeout: cfg.ExecTimeout(),
		logger:  logger,
	}
}

// Timeout returns the configured execution bound.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Run materializes req.Code as a file in the sandbox workdir and runs the
// language's command over it. Materialization and execution are chained:
// a failed write never executes. On timeout the in-sandbox process tree is
// reaped and a *TimeoutError is returned with no Result.
func (e *Engine) Run(ctx context.Context, sb *sandbox.Sandbox, req Request) (Result, error) {
	lang := ParseLanguage(req.Language)

	if !sb.TryBeginExec() {
		return Result{}, ErrExecInProgress
	}
	defer sb.EndExec()

	file := path.Join(e.workdir, "code."+lang.Ext())
	if err := e.rt.WriteFile(ctx, sb.ID, file, []byte(req.Code)); err != nil {
		return Result{}, fmt.Errorf("materializing source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Debug("executing",
		zap.String("sandbox", sb.Name),
		zap.String("language", lang.String()))

	res, err := e.rt.Exec(runCtx, sb.ID, []string{"/bin/bash", "-c", lang.Command(file)})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			if killErr := e.rt.Kill(context.WithoutCancel(ctx), sb.ID, e.workdir); killErr != nil {
				e.logger.Warn("reaping timed-out execution",
					zap.String("sandbox", sb.Name),
					zap.Error(killErr))
			}
			return Result{}, &TimeoutError{Limit: e.timeout}
		}
		return Result{}, fmt.Errorf("executing in sandbox %s: %w", sb.Name, err)
	}

	return Result{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}, nil
}
