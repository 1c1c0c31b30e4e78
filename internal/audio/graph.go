package audio

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/rtcpeer/internal/core"
)

var _ core.AudioHost = (*Graph)(nil)

// Graph is the host audio graph: a fixed block size, one main render pass per period, then
// every attached tap in attach order.
type Graph struct {
	sampleRate int
	blockSize  int
	render     func()

	mu    sync.Mutex // serialises Attach/Detach writers
	taps  atomic.Pointer[[]core.Tap]
	ticks atomic.Uint64
}

// NewGraph creates a graph. render may be nil.
func NewGraph(sampleRate, blockSize int, render func()) *Graph {
	g := &Graph{sampleRate: sampleRate, blockSize: blockSize, render: render}
	g.taps.Store(&[]core.Tap{})
	return g
}

func (g *Graph) SampleRate() int { return g.sampleRate }
func (g *Graph) BlockSize() int  { return g.blockSize }

// Attach appends t to the tap list. Attaching the same tap twice runs it twice.
func (g *Graph) Attach(t core.Tap) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := append(slices.Clone(*g.taps.Load()), t)
	g.taps.Store(&next)
}

// Detach removes t. The current period still sees the old list.
func (g *Graph) Detach(t core.Tap) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur := *g.taps.Load()
	i := slices.Index(cur, t)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	g.taps.Store(&next)
}

// Taps returns the number of attached taps.
func (g *Graph) Taps() int { return len(*g.taps.Load()) }

// Ticks returns how many periods have run.
func (g *Graph) Ticks() uint64 { return g.ticks.Load() }

// Period is the wall-clock length of one block.
func (g *Graph) Period() time.Duration {
	if g.sampleRate <= 0 {
		return 0
	}
	return time.Duration(g.blockSize) * time.Second / time.Duration(g.sampleRate)
}

// Tick runs one period.
func (g *Graph) Tick() {
	if g.render != nil {
		g.render()
	}
	for _, t := range *g.taps.Load() {
		t.Process()
	}
	g.ticks.Add(1)
}

// Run ticks the graph at its block period until ctx is done.
func (g *Graph) Run(ctx context.Context) {
	period := g.Period()
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}
