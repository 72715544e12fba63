package processor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eligu/se-uom-vcs-sub001/core"
	"github.com/eligu/se-uom-vcs-sub001/processor"
)

var errBoom = errors.New("boom")

// recorder is a test processor that remembers every entity it received.
type recorder struct {
	id string

	// stopAfter > 0 makes Process answer false on that call.
	stopAfter int
	// failOn / panicOn make Process fail for that entity.
	failOn  int
	panicOn int
	// gate, when set, is read once per Process call before recording.
	gate chan struct{}

	startErr error
	stopErr  error
	// startDelay makes Start slow; the recorder counts as started only after it.
	startDelay time.Duration

	started    atomic.Bool
	startCalls atomic.Int32
	starts     atomic.Int32
	stops      atomic.Int32

	mu  sync.Mutex
	got []int
}

var _ processor.Processor[int] = (*recorder)(nil)

func newRecorder(id string) *recorder { return &recorder{id: id, failOn: -1, panicOn: -1} }

func (r *recorder) Process(ctx context.Context, e int) (bool, error) {
	if !r.started.Load() {
		return false, core.StateErrorf("recorder %s not started", r.id)
	}
	if r.gate != nil {
		<-r.gate
	}
	if e == r.panicOn {
		panic("recorder " + r.id + " panicked")
	}
	r.mu.Lock()
	r.got = append(r.got, e)
	n := len(r.got)
	r.mu.Unlock()

	if e == r.failOn {
		return true, errBoom
	}
	return r.stopAfter == 0 || n < r.stopAfter, nil
}

func (r *recorder) Start(ctx context.Context) error {
	r.startCalls.Add(1)
	if r.startDelay > 0 {
		time.Sleep(r.startDelay)
	}
	if r.startErr != nil {
		return r.startErr
	}
	if r.started.CompareAndSwap(false, true) {
		r.starts.Add(1)
	}
	return nil
}

func (r *recorder) Stop(ctx context.Context) error {
	if r.started.CompareAndSwap(true, false) {
		r.stops.Add(1)
		return r.stopErr
	}
	return nil
}

func (r *recorder) ID() string      { return r.id }
func (r *recorder) IsStarted() bool { return r.started.Load() }

func (r *recorder) received() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.got))
	copy(out, r.got)
	return out
}

func testConfig() *processor.Config {
	return &processor.Config{Logger: core.NewNoOpLogger(), IDGenerator: core.NewSequenceGenerator()}
}

func newPool(t *testing.T, workers int) *core.GoroutineThreadPool {
	t.Helper()
	pool, err := core.NewGoroutineThreadPoolWithConfig("test-pool", workers, &core.PoolConfig{Logger: core.NewNoOpLogger()})
	require.NoError(t, err)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return pool
}

func withTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func addAll(t *testing.T, q *processor.Queue[int], ps ...processor.Processor[int]) {
	t.Helper()
	for _, p := range ps {
		require.NoError(t, q.Add(context.Background(), p))
	}
}
