package audio

// slotHandle is a stable reference into an arena. A handle whose slot was reused by a later
// insert no longer resolves.
type slotHandle struct {
	index uint32
	gen   uint32
}

type slot[T any] struct {
	gen  uint32
	used bool
	val  T
}

// arena is a generational slot table. It is not safe for concurrent use; the Bridge guards it
// with its control-side lock.
type arena[T any] struct {
	slots []slot[T]
	free  []uint32
	n     int
}

func (a *arena[T]) insert(v T) slotHandle {
	var i uint32
	if k := len(a.free); k > 0 {
		i = a.free[k-1]
		a.free = a.free[:k-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		i = uint32(len(a.slots) - 1)
	}
	s := &a.slots[i]
	s.gen++
	s.used = true
	s.val = v
	a.n++
	return slotHandle{index: i, gen: s.gen}
}

func (a *arena[T]) get(h slotHandle) (T, bool) {
	var zero T
	if int(h.index) >= len(a.slots) {
		return zero, false
	}
	s := a.slots[h.index]
	if !s.used || s.gen != h.gen {
		return zero, false
	}
	return s.val, true
}

func (a *arena[T]) remove(h slotHandle) (T, bool) {
	v, ok := a.get(h)
	if !ok {
		return v, false
	}
	s := &a.slots[h.index]
	var zero T
	s.used = false
	s.val = zero
	a.free = append(a.free, h.index)
	a.n--
	return v, true
}

// each visits live slots in index order. fn must not insert or remove.
func (a *arena[T]) each(fn func(slotHandle, T)) {
	for i := range a.slots {
		s := a.slots[i]
		if s.used {
			fn(slotHandle{index: uint32(i), gen: s.gen}, s.val)
		}
	}
}

func (a *arena[T]) len() int { return a.n }
