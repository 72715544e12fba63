// Package engine is a concurrent execution engine for analysis pipelines.
//
// It has two halves that share one worker pool:
//
//   - processor queues fan each entity out to a set of member processors,
//     serially on the caller's goroutine, in parallel on an executor, or in
//     parallel with a fixed admission capacity (backpressure);
//   - task schedulers run tasks under typed categories, each category with
//     its own concurrency cap and an optional global cap on outstanding units.
//
// Failures and panics from processors and tasks never stop the engine; they
// are collected and reported together when the queue stops or the scheduler
// shuts down.
//
// # Quick Start
//
//	cfg, err := config.Load("engine.yaml")
//	if err != nil {
//		return err
//	}
//	eng, err := engine.New(cfg, engine.Options{})
//	if err != nil {
//		return err
//	}
//	if err := eng.Start(ctx); err != nil {
//		return err
//	}
//	defer eng.Shutdown(ctx)
//
//	io, _ := eng.TaskType("io")
//	err = eng.Scheduler().Schedule(ctx, func(ctx context.Context) error {
//		return fetch(ctx)
//	}, io)
//
// Components can also be wired by hand from the core, processor and scheduler
// packages; the Engine only bundles a pool, a scheduler and the configured
// observability hooks.
//
// # Deadlock hazard
//
// A task that schedules more work into a category capped by the shared pool
// and then waits for it can starve the pool. Keep blocking waits out of task
// bodies, or give dependent work its own category.
package engine
