package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtcpeer/internal/core"
)

type tapFunc func()

func (f *tapFunc) Process() { (*f)() }

func newTap(fn func()) *tapFunc {
	t := tapFunc(fn)
	return &t
}

func TestGraph_RenderThenTapsInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	g := NewGraph(48000, 480, func() { order = append(order, "render") })
	g.Attach(newTap(func() { order = append(order, "a") }))
	g.Attach(newTap(func() { order = append(order, "b") }))

	g.Tick()
	assert.Equal(t, []string{"render", "a", "b"}, order)
	assert.Equal(t, uint64(1), g.Ticks())
}

func TestGraph_DetachFromInsideProcess(t *testing.T) {
	t.Parallel()

	g := NewGraph(48000, 480, nil)
	calls := 0
	var self core.Tap
	tap := newTap(func() {
		calls++
		g.Detach(self)
	})
	self = tap
	other := 0
	g.Attach(tap)
	g.Attach(newTap(func() { other++ }))

	g.Tick()
	g.Tick()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other, "taps after a detaching tap still run that period")
	assert.Equal(t, 1, g.Taps())
}

func TestGraph_DetachUnknown(t *testing.T) {
	t.Parallel()

	g := NewGraph(48000, 480, nil)
	g.Attach(newTap(func() {}))
	g.Detach(newTap(func() {}))
	assert.Equal(t, 1, g.Taps())
}

func TestGraph_Period(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10*time.Millisecond, NewGraph(48000, 480, nil).Period())
	assert.Zero(t, NewGraph(0, 480, nil).Period())
}

func TestGraph_Run(t *testing.T) {
	t.Parallel()

	g := NewGraph(48000, 48, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return g.Ticks() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
