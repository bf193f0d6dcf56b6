package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type blockingService struct {
	started  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}
	order    *[]string
	orderMu  *sync.Mutex
	name     string
}

func newBlocking(name string, order *[]string, mu *sync.Mutex) *blockingService {
	return &blockingService{stopped: make(chan struct{}), order: order, orderMu: mu, name: name}
}

func (b *blockingService) Start(ctx context.Context) error {
	b.started.Store(true)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopped:
		return nil
	}
}

func (b *blockingService) Stop() {
	b.stopOnce.Do(func() {
		b.orderMu.Lock()
		*b.order = append(*b.order, b.name)
		b.orderMu.Unlock()
		close(b.stopped)
	})
}

func TestLifecycle_CancelStopsInReverseOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	svc1 := newBlocking("svc1", &order, &mu)
	svc2 := newBlocking("svc2", &order, &mu)

	lc := NewLifecycle(zaptest.NewLogger(t))
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc1.started.Load() && svc2.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.Equal(t, []string{"svc2", "svc1"}, order)
}

func TestLifecycle_ReturnsWhenAllServicesFinish(t *testing.T) {
	stopped := false
	lc := NewLifecycle(zaptest.NewLogger(t))
	lc.Add("bounded", &FuncService{
		StartFn: func(context.Context) error { return nil },
		StopFn:  func() { stopped = true },
	})

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not return after services finished")
	}
	assert.True(t, stopped)
}

func TestLifecycle_ServiceErrorStopsOthers(t *testing.T) {
	var order []string
	var mu sync.Mutex
	blocker := newBlocking("blocker", &order, &mu)
	boom := errors.New("boom")

	lc := NewLifecycle(zaptest.NewLogger(t))
	lc.Add("blocker", blocker)
	lc.Add("failing", &FuncService{StartFn: func(context.Context) error { return boom }})

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, []string{"blocker"}, order)
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false
	svc := &FuncService{
		StartFn: func(context.Context) error {
			started = true
			return nil
		},
		StopFn: func() { stopped = true },
	}
	assert.NoError(t, svc.Start(context.Background()))
	assert.True(t, started)
	svc.Stop()
	assert.True(t, stopped)

	(&FuncService{StartFn: func(context.Context) error { return nil }}).Stop()
}
