package collector

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// Outcome is one task's result: a value or a captured failure
type Outcome[T, R any] struct {
	Key   string
	Task  T
	Value R
	Err   error
}

// OK reports whether the task succeeded
func (o Outcome[T, R]) OK() bool {
	return o.Err == nil
}

// ExecOptions tunes one Execute call
type ExecOptions struct {
	Stage       string
	TaskTimeout time.Duration // 0 = no per-task timeout

	// OnDone runs on the collecting goroutine after every completion
	OnDone func(done, total int, err error)
}

// Execute runs fn over tasks with at most workers in flight and returns one
// Outcome per task in completion order.
// ⭐ SSOT: 수집 단계의 동시성 제한은 이 함수에서만
//
// A task error, panic or timeout is captured as *contracts.TaskError on its
// Outcome. It never cancels sibling tasks and is never returned past Execute.
// At most workers task bodies run at once, timeouts included.
// There is no retry here; retries belong to the fetch collaborator.
func Execute[T, R any](
	ctx context.Context,
	tasks []T,
	workers int,
	key func(T) string,
	fn func(context.Context, T) (R, error),
	opts ExecOptions,
) []Outcome[T, R] {
	if workers <= 0 {
		workers = 1
	}

	total := len(tasks)
	resultCh := make(chan Outcome[T, R], workers)

	// errgroup.Group (WithContext 아님): 한 태스크 실패가 나머지를 취소하지 않음
	var g errgroup.Group
	g.SetLimit(workers)

	go func() {
		for _, task := range tasks {
			task := task
			g.Go(func() error {
				resultCh <- runTask(ctx, task, key, fn, opts)
				return nil
			})
		}
		_ = g.Wait()
		close(resultCh)
	}()

	// 결과 수집 (단일 consumer)
	outcomes := make([]Outcome[T, R], 0, total)
	for o := range resultCh {
		outcomes = append(outcomes, o)
		if opts.OnDone != nil {
			opts.OnDone(len(outcomes), total, o.Err)
		}
	}

	return outcomes
}

type taskResult[R any] struct {
	value R
	err   error
}

func runTask[T, R any](
	ctx context.Context,
	task T,
	key func(T) string,
	fn func(context.Context, T) (R, error),
	opts ExecOptions,
) Outcome[T, R] {
	out := Outcome[T, R]{Key: key(task), Task: task}

	fail := func(err error) Outcome[T, R] {
		out.Err = &contracts.TaskError{Key: out.Key, Stage: opts.Stage, Err: err}
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	tctx := ctx
	if opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, opts.TaskTimeout)
		defer cancel()
	}

	// fn runs on this worker so the slot stays held until it returns.
	// The deadline only reaches fetches that honour their context.
	res := callSafely(tctx, task, fn)
	if res.err != nil {
		if opts.TaskTimeout > 0 && tctx.Err() != nil && ctx.Err() == nil {
			return fail(fmt.Errorf("timeout after %s: %w", opts.TaskTimeout, res.err))
		}
		return fail(res.err)
	}
	out.Value = res.value
	return out
}

// callSafely converts a panic in fn into an error
func callSafely[T, R any](ctx context.Context, task T, fn func(context.Context, T) (R, error)) (res taskResult[R]) {
	defer func() {
		if r := recover(); r != nil {
			res = taskResult[R]{err: fmt.Errorf("panic: %v", r)}
		}
	}()

	v, err := fn(ctx, task)
	return taskResult[R]{value: v, err: err}
}
