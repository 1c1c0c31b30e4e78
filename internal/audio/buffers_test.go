package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_InactiveIgnoresPush(t *testing.T) {
	t.Parallel()

	r := NewRecorder(2, 4)
	assert.Zero(t, r.Push(stereo(2)))
	_, frames, channels := r.Buffer()
	assert.Zero(t, frames)
	assert.Equal(t, 2, channels)
}

func TestRecorder_CapacityDrops(t *testing.T) {
	t.Parallel()

	r := NewRecorder(2, 4)
	r.SetRecordingActive(true)
	assert.Equal(t, 3, r.Push(stereo(3)))
	assert.Equal(t, 1, r.Push(stereo(3)))

	samples, frames, _ := r.Buffer()
	assert.Equal(t, 4, frames)
	assert.Equal(t, []float32{1, -1, 2, -2, 3, -3, 1, -1}, samples)
	assert.Equal(t, uint64(2), r.Dropped())

	r.ResetBuffer()
	_, frames, _ = r.Buffer()
	assert.Zero(t, frames)
}

func TestRecorder_MonoKeepsLeft(t *testing.T) {
	t.Parallel()

	r := NewRecorder(1, 8)
	r.SetRecordingActive(true)
	r.Push(stereo(2))
	samples, frames, channels := r.Buffer()
	assert.Equal(t, []float32{1, 2}, samples)
	assert.Equal(t, 2, frames)
	assert.Equal(t, 1, channels)
}

func TestRecorder_UniqueIDs(t *testing.T) {
	t.Parallel()
	assert.NotEqual(t, NewRecorder(1, 1).ID(), NewRecorder(1, 1).ID())
}

func TestPlayback_RingWraps(t *testing.T) {
	t.Parallel()

	p := newPlayback(1, 3)
	for i := range 3 {
		require.True(t, p.PushFrame(SampleFrame{L: float32(i)}))
	}
	assert.False(t, p.PushFrame(SampleFrame{L: 99}))
	assert.Equal(t, uint64(1), p.Dropped())

	out := make([]SampleFrame, 2)
	require.Equal(t, 2, p.Pop(out))
	assert.Equal(t, float32(0), out[0].L)
	assert.Equal(t, float32(1), out[1].L)

	require.True(t, p.PushFrame(SampleFrame{L: 3}))
	require.True(t, p.PushFrame(SampleFrame{L: 4}))
	out = make([]SampleFrame, 5)
	require.Equal(t, 3, p.Pop(out))
	assert.Equal(t, []float32{2, 3, 4}, []float32{out[0].L, out[1].L, out[2].L})
	assert.Zero(t, p.Len())
}

func TestPlaybacks_Registry(t *testing.T) {
	t.Parallel()

	ps := NewPlaybacks(8)
	a := ps.Create()
	b := ps.Create()
	require.NotEqual(t, a.ID(), b.ID())

	sink, ok := ps.Playback(a.ID())
	require.True(t, ok)
	assert.Same(t, a, sink)
	assert.Len(t, ps.Snapshot(), 2)

	ps.Destroy(a.ID())
	_, ok = ps.Playback(a.ID())
	assert.False(t, ok)
	_, ok = ps.Lookup(b.ID())
	assert.True(t, ok)
}

func TestArena_Generations(t *testing.T) {
	t.Parallel()

	var a arena[string]
	h1 := a.insert("one")
	a.insert("two")
	assert.Equal(t, 2, a.len())

	v, ok := a.remove(h1)
	require.True(t, ok)
	assert.Equal(t, "one", v)
	_, ok = a.remove(h1)
	assert.False(t, ok)

	h3 := a.insert("three")
	assert.Equal(t, h1.index, h3.index, "freed slot is reused")
	assert.NotEqual(t, h1.gen, h3.gen)

	_, ok = a.get(h1)
	assert.False(t, ok, "stale handle does not resolve")
	v, ok = a.get(h3)
	require.True(t, ok)
	assert.Equal(t, "three", v)

	var seen []string
	a.each(func(_ slotHandle, s string) { seen = append(seen, s) })
	assert.Equal(t, []string{"three", "two"}, seen)
	_, ok = a.get(slotHandle{index: 42})
	assert.False(t, ok)
}
