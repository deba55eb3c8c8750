package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shakurocom/iOS-Toolbox-sub000/internal/config"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/events"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/task"
	"github.com/spf13/cobra"
)

// Operation types used by the demo
const (
	demoTypeSync task.OperationType = iota + 1
	demoTypeReport
	demoTypeUpload
	demoTypeAudit
)

var errDemoUnavailable = errors.New("upstream unavailable")

func newDemoCmd(opts *cliOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted scheduling and retry scenario",
		Long: `Run a scripted scenario against a single-slot task manager.

The first part queues operations of mixed priority, order and dependencies
before starting the manager, then prints the order they ran in. The second
part runs an operation group whose primary fails until the retry policy from
the configuration lets it succeed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runDemo(ctx, cmd.OutOrStdout(), cfg, logger)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "abort the demo after this long")
	return cmd
}

// runDemo drives both scenarios and writes a human readable report to out.
func runDemo(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	if err := demoScheduling(ctx, out, logger); err != nil {
		return err
	}
	return demoRetry(ctx, out, retryPolicy(cfg.Retry), logger)
}

// demoScheduling queues everything before Start so that the single slot
// is handed out purely by priority, order and dependencies.
func demoScheduling(ctx context.Context, out io.Writer, logger *slog.Logger) error {
	m := task.NewTaskManager(task.TaskManagerConfig{MaxConcurrentOperations: 1}, logger)
	defer m.Stop()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	low := task.NewOperation(demoTypeSync, record("low"), task.WithName("low"))
	high := task.NewOperation(demoTypeSync, record("high"), task.WithName("high"), task.WithPriority(10))
	mid := task.NewOperation(demoTypeSync, record("mid"), task.WithName("mid"), task.WithPriority(5))
	lifoFirst := task.NewOperation(demoTypeSync, record("lifo-first"),
		task.WithName("lifo-first"), task.WithPriority(1), task.WithOrder(task.OrderLIFO))
	lifoSecond := task.NewOperation(demoTypeSync, record("lifo-second"),
		task.WithName("lifo-second"), task.WithPriority(1), task.WithOrder(task.OrderLIFO))
	report := task.NewOperation(demoTypeReport, record("report"), task.WithName("report"), task.WithPriority(20))
	report.AddDependency(high, true)

	tasks := []*task.Task[string]{
		task.Perform(m, low),
		task.Perform(m, high),
		task.Perform(m, mid),
		task.Perform(m, lifoFirst),
		task.Perform(m, lifoSecond),
		task.Perform(m, report),
	}
	m.Start()

	for _, t := range tasks {
		if _, err := t.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for scheduling demo: %w", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "execution order: %s\n", strings.Join(order, ", "))
	return nil
}

// demoRetry runs an upload whose first two rounds fail, alongside an audit
// operation that is rebuilt with it every round. Completion is delivered
// on a serial dispatcher.
func demoRetry(ctx context.Context, out io.Writer, policy task.RetryPolicy, logger *slog.Logger) error {
	emitter := events.NewInMemoryEventEmitter(logger)
	var printMu sync.Mutex
	printf := func(format string, args ...any) {
		printMu.Lock()
		defer printMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}
	emitter.RegisterHandler(events.EventHandlerFunc(func(_ context.Context, ev *events.OperationEvent) error {
		printf("round %d of %s ended in %s, retrying\n", ev.Attempt, ev.OperationName, ev.Outcome)
		return nil
	}), events.KindRetried)

	m := task.NewTaskManager(task.TaskManagerConfig{MaxConcurrentOperations: 2}, logger, task.WithEventEmitter(emitter))
	m.Start()
	defer m.Stop()

	build := func(attempt int) task.Group[string] {
		upload := task.NewOperation(demoTypeUpload, func(context.Context) (string, error) {
			if attempt < 2 {
				return "", fmt.Errorf("attempt %d: %w", attempt+1, errDemoUnavailable)
			}
			return fmt.Sprintf("uploaded on attempt %d", attempt+1), nil
		}, task.WithName("upload"))
		audit := task.NewOperation(demoTypeAudit, func(context.Context) (string, error) {
			return "audited", nil
		}, task.WithName("audit"))
		return task.NewGroup(upload, audit)
	}

	serial := task.NewSerialDispatcher()
	done := make(chan struct{})
	t := task.PerformGroup(m, build(0), task.BackoffRetryHandler(policy, build))
	t.OnComplete(serial, func(_ *task.Task[string], outcome task.Outcome[string]) {
		printf("upload finished: %s\n", outcome)
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Cancel()
		return fmt.Errorf("waiting for retry demo: %w", ctx.Err())
	}
}
