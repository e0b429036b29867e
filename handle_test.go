package quicklistener

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// 完成屏障
// ============================================================================

func TestBroadcastAndWait_NoListeners(t *testing.T) {
	b := newTestBus(t)
	h := For[string](b, "nobody")

	require.NoError(t, h.BroadcastAndWait(testContext(t), "hello"))
	assert.Equal(t, 0, b.Stats().PendingBarriers)
}

func TestBroadcast_FireAndForgetCleansUp(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	var got recorder[int]
	h.Listen(got.onData())

	require.NoError(t, h.Broadcast(1))
	require.Eventually(t, func() bool {
		return got.len() == 1 && b.Stats().PendingBarriers == 0
	}, waitFor, time.Millisecond)
}

func TestBroadcastAndWait_WaitsForAllListeners(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	const n = 5
	release := make(chan struct{})
	var settled atomic.Int32
	for i := 0; i < n; i++ {
		For[int](b, "k").Listen(func(int, Respond) error {
			<-release
			settled.Add(1)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- h.BroadcastAndWait(testContext(t), 1) }()

	select {
	case <-done:
		t.Fatal("BroadcastAndWait 在监听者处理完之前返回")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(n), settled.Load())
}

func TestBroadcastAndWait_ErrorsDoNotPropagate(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	var streamErrs recorder[error]
	h.Listen(func(int, Respond) error { return errors.New("listener failed") },
		WithOnStreamError(streamErrs.add))
	h.Listen(func(int, Respond) error { panic("listener panicked") },
		WithOnStreamError(streamErrs.add))
	var got recorder[int]
	h.Listen(got.onData())

	require.NoError(t, h.BroadcastAndWait(testContext(t), 7))
	assert.Equal(t, []int{7}, got.snapshot())

	errs := streamErrs.snapshot()
	require.Len(t, errs, 2)
	var panicked int
	for _, err := range errs {
		var derr *DeliveryError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "k", derr.Key)
		assert.Equal(t, EventData, derr.Type)
		if derr.Panic {
			panicked++
		}
	}
	assert.Equal(t, 1, panicked)
}

func TestBroadcastAndWait_ContextCancelled(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	release := make(chan struct{})
	defer close(release)
	h.Listen(func(int, Respond) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.BroadcastAndWait(ctx, 1), context.Canceled)
}

// ============================================================================
// 事件分类
// ============================================================================

func TestBroadcast_AsDataErrorInvokesOnData(t *testing.T) {
	b := newTestBus(t)
	h := For[error](b, "k")

	var data recorder[error]
	var onErrorCalls atomic.Int32
	for i := 0; i < 3; i++ {
		For[error](b, "k").Listen(data.onData(), WithOnError(func(error, Respond) error {
			onErrorCalls.Add(1)
			return nil
		}))
	}

	boom := errors.New("boom")
	require.NoError(t, h.BroadcastAndWait(testContext(t), AsData(boom)))

	assert.Equal(t, []error{boom, boom, boom}, data.snapshot())
	assert.Zero(t, onErrorCalls.Load())
}

func TestBroadcast_RawErrorInvokesOnError(t *testing.T) {
	b := newTestBus(t)
	h := For[any](b, "k")

	var errs recorder[error]
	var onDataCalls atomic.Int32
	h.Listen(func(any, Respond) error {
		onDataCalls.Add(1)
		return nil
	}, WithOnError(func(err error, _ Respond) error {
		errs.add(err)
		return nil
	}))

	boom := errors.New("boom")
	require.NoError(t, h.BroadcastAndWait(testContext(t), boom))

	assert.Equal(t, []error{boom}, errs.snapshot())
	assert.Zero(t, onDataCalls.Load())
}

func TestBroadcast_ErrorWithoutOnErrorGoesToStreamError(t *testing.T) {
	b := newTestBus(t)
	h := For[any](b, "k")

	var streamErrs recorder[error]
	h.Listen(nil, WithOnStreamError(streamErrs.add))

	boom := errors.New("boom")
	require.NoError(t, h.BroadcastAndWait(testContext(t), AsError(boom)))
	assert.Equal(t, []error{boom}, streamErrs.snapshot())
}

func TestBroadcast_TypeMismatchDeliversZeroValue(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	var got recorder[int]
	h.Listen(got.onData())

	require.NoError(t, h.BroadcastAndWait(testContext(t), "not an int"))
	require.NoError(t, h.BroadcastAndWait(testContext(t), 5))
	assert.Equal(t, []int{0, 5}, got.snapshot())
}

func TestBroadcast_ClassifierFallback(t *testing.T) {
	cause := errors.New("unclassifiable")
	b := newTestBus(t, WithClassifier(func(v any) (EventType, error) {
		if v == "bad" {
			return 0, cause
		}
		return DefaultClassifier(v)
	}))
	h := For[string](b, "k")

	var errs recorder[error]
	h.Listen(nil, WithOnError(func(err error, _ Respond) error {
		errs.add(err)
		return nil
	}))

	require.NoError(t, h.BroadcastAndWait(testContext(t), "bad"))
	require.Equal(t, 1, errs.len())

	var cerr *ClassificationError
	require.ErrorAs(t, errs.snapshot()[0], &cerr)
	assert.ErrorIs(t, cerr, cause)
	assert.Equal(t, "bad", cerr.Value)

	require.NoError(t, b.Close())
	err := h.Broadcast("bad")
	var ferr *ClassificationFallbackError
	require.ErrorAs(t, err, &ferr)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrClosed)
}

// ============================================================================
// key 过滤
// ============================================================================

func TestListen_KeyFiltering(t *testing.T) {
	b := newTestBus(t)
	a := For[string](b, "A")

	var got recorder[string]
	a.Listen(got.onData())

	ctx := testContext(t)
	require.NoError(t, For[string](b, "B").BroadcastAndWait(ctx, "for B"))
	wild, err := NewHandle[string](b, nil)
	require.NoError(t, err)
	require.NoError(t, wild.BroadcastAndWait(ctx, "for everyone"))
	require.NoError(t, a.BroadcastAndWait(ctx, "for A"))

	assert.Equal(t, []string{"for everyone", "for A"}, got.snapshot())
}

func TestListen_WildcardReceivesAllKeys(t *testing.T) {
	b := newTestBus(t)
	wild, err := NewHandle[string](b, "")
	require.NoError(t, err)

	var got recorder[string]
	wild.Listen(got.onData())

	ctx := testContext(t)
	require.NoError(t, For[string](b, "A").BroadcastAndWait(ctx, "a"))
	require.NoError(t, For[string](b, "B").BroadcastAndWait(ctx, "b"))
	assert.Equal(t, []string{"a", "b"}, got.snapshot())
}

func TestListen_MultiKeyHandle(t *testing.T) {
	b := newTestBus(t)
	multi, err := NewHandle[string](b, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, multi.Keys())

	var got recorder[string]
	multi.Listen(got.onData())

	var onA recorder[string]
	For[string](b, "A").Listen(onA.onData())

	ctx := testContext(t)
	require.NoError(t, multi.BroadcastAndWait(ctx, "x"))
	require.NoError(t, For[string](b, "C").BroadcastAndWait(ctx, "c"))

	// 多 key Handle 对每个 key 各推送一次
	assert.Equal(t, []string{"x", "x"}, got.snapshot())
	assert.Equal(t, []string{"x"}, onA.snapshot())
}

func TestListen_DeliveryOrder(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	var got recorder[int]
	h.Listen(func(v int, _ Respond) error {
		time.Sleep(time.Duration(v%3) * time.Millisecond)
		got.add(v)
		return nil
	})

	for i := 0; i < 50; i++ {
		require.NoError(t, h.Broadcast(i))
	}
	require.Eventually(t, func() bool { return got.len() == 50 }, waitFor, time.Millisecond)

	for i, v := range got.snapshot() {
		assert.Equal(t, i, v)
	}
}

func TestListen_OnlyLaterBroadcasts(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	require.NoError(t, h.Broadcast(1))

	var got recorder[int]
	h.Listen(got.onData())
	require.NoError(t, h.BroadcastAndWait(testContext(t), 2))
	assert.Equal(t, []int{2}, got.snapshot())
}

func TestListen_ClosedBus(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")
	require.NoError(t, b.Close())

	var streamErrs recorder[error]
	assert.Same(t, h, h.Listen(nil, WithOnStreamError(streamErrs.add)))
	require.Len(t, streamErrs.snapshot(), 1)
	assert.ErrorIs(t, streamErrs.snapshot()[0], ErrClosed)
	assert.ErrorIs(t, h.Broadcast(1), ErrClosed)
}

// ============================================================================
// 场景
// ============================================================================

func TestScenario_ListenThenBroadcastAndWait(t *testing.T) {
	b := newTestBus(t)

	var calls atomic.Int32
	var returned atomic.Bool
	For[string](b, "x").Listen(func(data string, _ Respond) error {
		assert.Equal(t, "hello", data)
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		returned.Store(true)
		return nil
	})

	require.NoError(t, For[string](b, "x").BroadcastAndWait(testContext(t), "hello"))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, returned.Load())
}

func TestScenario_RespondThenWaitForResponse(t *testing.T) {
	b := newTestBus(t)

	For[any](b, "x").Listen(func(_ any, respond Respond) error {
		respond(42)
		return nil
	})

	ctx := testContext(t)
	require.NoError(t, For[any](b, "x").BroadcastAndWait(ctx, nil))

	r, err := For[any](b, "x").WaitForResponse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, r.Value)
	assert.False(t, r.IsError)
	assert.Equal(t, "x", r.Key)
}

func TestScenario_DoneRetiresKeyAndListeners(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	var dones atomic.Int32
	var data recorder[string]
	for i := 0; i < 2; i++ {
		For[string](b, "y").Listen(data.onData(), WithOnDone(func() error {
			dones.Add(1)
			return nil
		}))
	}
	For[string](b, "other")
	assert.Equal(t, []string{"y", "other"}, b.ListAllActiveKeys())

	require.NoError(t, For[string](b, "y").Done(ctx))

	assert.Equal(t, int32(2), dones.Load())
	assert.Equal(t, []string{"other"}, b.ListAllActiveKeys())
	assert.Equal(t, 0, b.Stats().Listeners)

	// 退役后的广播没有接收者
	y, err := NewHandle[string](b, "y")
	require.NoError(t, err)
	require.NoError(t, y.BroadcastAndWait(ctx, "late"))
	assert.Empty(t, data.snapshot())
	assert.Equal(t, int32(2), dones.Load())

	// 新构造的 Handle 重新激活 key
	assert.Equal(t, []string{"other", "y"}, b.ListAllActiveKeys())
}

// ============================================================================
// Done 与 Dispose
// ============================================================================

func TestDone_Idempotent(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)
	h := For[int](b, "k")

	require.NoError(t, h.Done(ctx))
	require.NoError(t, h.Done(ctx))
	assert.Empty(t, b.ListAllActiveKeys())
	assert.Equal(t, 0, b.Stats().PendingBarriers)
}

func TestDone_WildcardRetiresEverything(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	var dones atomic.Int32
	onDone := WithOnDone(func() error {
		dones.Add(1)
		return nil
	})
	For[int](b, "a").Listen(nil, onDone)
	For[int](b, "b").Listen(nil, onDone)
	wild, err := NewHandle[int](b, nil)
	require.NoError(t, err)
	wild.Listen(nil, onDone)

	require.NoError(t, wild.Done(ctx))

	assert.Equal(t, int32(3), dones.Load())
	assert.Empty(t, b.ListAllActiveKeys())
	assert.Equal(t, 0, b.Stats().Listeners)
}

func TestDone_WildcardListenerSurvivesKeyDone(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	wild, err := NewHandle[string](b, nil)
	require.NoError(t, err)
	var dones atomic.Int32
	var data recorder[string]
	wild.Listen(data.onData(), WithOnDone(func() error {
		dones.Add(1)
		return nil
	}))

	require.NoError(t, For[string](b, "a").Done(ctx))
	assert.Equal(t, int32(1), dones.Load())
	assert.Equal(t, 1, b.Stats().Listeners)

	require.NoError(t, For[string](b, "b").BroadcastAndWait(ctx, "still here"))
	assert.Equal(t, []string{"still here"}, data.snapshot())
}

func TestDone_MultiKeyListenerCancelledOnce(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	multi, err := NewHandle[int](b, []string{"a", "b"})
	require.NoError(t, err)
	var dones atomic.Int32
	multi.Listen(nil, WithOnDone(func() error {
		dones.Add(1)
		return nil
	}))

	require.NoError(t, For[int](b, "a").Done(ctx))
	assert.Equal(t, int32(1), dones.Load())
	assert.Equal(t, 0, b.Stats().Listeners)
	assert.Equal(t, []string{"b"}, b.ListAllActiveKeys())
}

func TestDone_DoneCallbackErrorIsContained(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	var streamErrs recorder[error]
	h.Listen(nil,
		WithOnDone(func() error { return errors.New("cleanup failed") }),
		WithOnStreamError(streamErrs.add))

	require.NoError(t, h.Done(testContext(t)))
	require.Len(t, streamErrs.snapshot(), 1)
	var derr *DeliveryError
	require.ErrorAs(t, streamErrs.snapshot()[0], &derr)
	assert.Equal(t, EventDone, derr.Type)
	assert.Equal(t, 0, b.Stats().Listeners)
}

func TestDone_SiblingListenersEachGetDone(t *testing.T) {
	for _, tc := range []struct {
		name string
		done func(h *Handle[string]) *Handle[string]
	}{
		{"ForeignHandle", func(*Handle[string]) *Handle[string] { return nil }},
		{"OwnHandle", func(h *Handle[string]) *Handle[string] { return h }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBus(t)
			ctx := testContext(t)

			var fastDones, slowDones atomic.Int32
			var slowGot recorder[string]
			h := For[string](b, "y")
			h.Listen(nil, WithOnDone(func() error {
				fastDones.Add(1)
				return nil
			})).Listen(func(v string, _ Respond) error {
				time.Sleep(100 * time.Millisecond)
				slowGot.add(v)
				return nil
			}, WithOnDone(func() error {
				slowDones.Add(1)
				return nil
			}))

			require.NoError(t, h.Broadcast("work"))
			doner := tc.done(h)
			if doner == nil {
				doner = For[string](b, "y")
			}
			require.NoError(t, doner.Done(ctx))

			assert.Equal(t, int32(1), fastDones.Load())
			assert.Equal(t, int32(1), slowDones.Load(), "忙碌的监听者也要收到 Done")
			assert.Equal(t, []string{"work"}, slowGot.snapshot())
			assert.Equal(t, 0, b.Stats().Listeners)
			assert.Empty(t, b.ListAllActiveKeys())
		})
	}
}

func TestDone_ContextCancelledFinishesInBackground(t *testing.T) {
	b := newTestBus(t)

	release := make(chan struct{})
	started := make(chan struct{})
	var dones atomic.Int32
	h := For[int](b, "k")
	h.Listen(func(int, Respond) error {
		close(started)
		<-release
		return nil
	}, WithOnDone(func() error {
		dones.Add(1)
		return nil
	}))

	require.NoError(t, h.Broadcast(1))
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, h.Done(ctx), context.Canceled)
	assert.Equal(t, []string{"k"}, b.ListAllActiveKeys())

	close(release)
	require.Eventually(t, func() bool {
		return len(b.ListAllActiveKeys()) == 0 && b.Stats().Listeners == 0
	}, waitFor, time.Millisecond)
	assert.Equal(t, int32(1), dones.Load())
}

func TestDispose_OnlyOwnSubscriptions(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	mine := For[int](b, "k")
	theirs := For[int](b, "k")
	var mineGot, theirsGot recorder[int]
	mine.Listen(mineGot.onData()).Listen(mineGot.onData())
	theirs.Listen(theirsGot.onData())

	require.NoError(t, mine.Dispose())
	assert.Equal(t, 1, b.Stats().Listeners)
	assert.Equal(t, []string{"k"}, b.ListAllActiveKeys())

	require.NoError(t, theirs.BroadcastAndWait(ctx, 1))
	assert.Empty(t, mineGot.snapshot())
	assert.Equal(t, []int{1}, theirsGot.snapshot())
}

func TestDispose_DuringBroadcastStillCompletesBarrier(t *testing.T) {
	b := newTestBus(t)
	h := For[int](b, "k")

	started := make(chan struct{})
	release := make(chan struct{})
	var got recorder[int]
	h.Listen(func(v int, _ Respond) error {
		if v == 1 {
			close(started)
			<-release
		}
		got.add(v)
		return nil
	})

	require.NoError(t, h.Broadcast(1))
	<-started

	done := make(chan error, 1)
	go func() { done <- h.BroadcastAndWait(testContext(t), 2) }()
	require.Eventually(t, func() bool { return b.Stats().PendingBarriers == 2 }, waitFor, time.Millisecond)

	// 正在执行的回调执行完毕，排队的事件被丢弃
	require.NoError(t, h.Dispose())
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, []int{1}, got.snapshot())
	require.Eventually(t, func() bool { return b.Stats().PendingBarriers == 0 }, waitFor, time.Millisecond)
}
