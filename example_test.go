package engine_test

import (
	"context"
	"fmt"
	"strings"

	engine "github.com/eligu/se-uom-vcs-sub001"
	"github.com/eligu/se-uom-vcs-sub001/config"
	"github.com/eligu/se-uom-vcs-sub001/core"
	"github.com/eligu/se-uom-vcs-sub001/processor"
)

// ExampleNew wires an engine from a config and runs units in FIFO order on a
// single-thread category.
func ExampleNew() {
	cfg := &config.Config{
		Pool: config.PoolConfig{ID: "pool", Workers: 2},
		Scheduler: config.SchedulerConfig{
			Kind:  config.SchedulerStatic,
			Types: []config.TaskTypeConfig{{Name: "ordered", MaxThreads: 1}},
		},
	}
	eng, err := engine.New(cfg, engine.Options{Logger: core.NewNoOpLogger()})
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		panic(err)
	}

	ordered, _ := eng.TaskType("ordered")
	for i := 1; i <= 3; i++ {
		_ = eng.Scheduler().Schedule(ctx, func(context.Context) error {
			fmt.Println("unit", i)
			return nil
		}, ordered)
	}
	if err := eng.Shutdown(ctx); err != nil {
		panic(err)
	}

	// Output:
	// unit 1
	// unit 2
	// unit 3
}

// ExampleQueue shows a serial queue where one member asks to stop early.
func ExampleQueue() {
	ctx := context.Background()
	q, _ := processor.NewSerialQueue[string]("words", &processor.Config{Logger: core.NewNoOpLogger()})

	_ = q.Add(ctx, engine.NewFunc("upper", func(_ context.Context, w string) (bool, error) {
		fmt.Println(strings.ToUpper(w))
		return true, nil
	}))
	_ = q.Add(ctx, engine.NewFunc("first-only", func(_ context.Context, w string) (bool, error) {
		fmt.Println("first:", w)
		return false, nil
	}))
	_ = q.Start(ctx)

	for _, w := range []string{"alpha", "beta"} {
		_, _ = q.Process(ctx, w)
	}
	_ = q.Stop(ctx)

	// Output:
	// ALPHA
	// first: alpha
	// BETA
}
