package dense

// Iterator points at a bucket of a Table. It is a value type; iterators of
// the same table compare equal with == when they point at the same bucket.
// Any insertion or erasure other than through EraseIter invalidates it.
type Iterator[K comparable, V any] struct {
	t   *Table[K, V]
	idx uint32
}

// Begin returns an iterator to the first element, or End if the table is
// empty.
func (t *Table[K, V]) Begin() Iterator[K, V] {
	return t.advance(0)
}

// End returns the past-the-end iterator.
func (t *Table[K, V]) End() Iterator[K, V] {
	return Iterator[K, V]{t: t, idx: uint32(len(t.buckets))}
}

// advance returns an iterator to the first occupied bucket at or after idx.
func (t *Table[K, V]) advance(idx uint32) Iterator[K, V] {
	for idx < uint32(len(t.buckets)) && t.buckets[idx].distAndFingerprint == 0 {
		idx++
	}
	return Iterator[K, V]{t: t, idx: idx}
}

// Valid reports whether it points at an element.
func (it Iterator[K, V]) Valid() bool {
	return it.t != nil && it.idx < uint32(len(it.t.buckets))
}

// Next returns an iterator to the following element.
func (it Iterator[K, V]) Next() Iterator[K, V] {
	return it.t.advance(it.idx + 1)
}

func (it Iterator[K, V]) Key() K {
	return it.t.buckets[it.idx].key
}

func (it Iterator[K, V]) Value() V {
	return it.t.buckets[it.idx].value
}

// ValuePtr returns a pointer to the element's value for in-place updates.
func (it Iterator[K, V]) ValuePtr() *V {
	return &it.t.buckets[it.idx].value
}

// EraseIter removes the element at it and returns an iterator to the next
// element in iteration order. When the run of displaced elements after it
// wraps past the last bucket, an element from the front of the table moves
// to the back and a loop from Begin visits it twice. DeleteFunc has no such
// caveat.
func (t *Table[K, V]) EraseIter(it Iterator[K, V]) Iterator[K, V] {
	idx := it.idx
	last := idx == uint32(len(t.buckets))-1
	t.eraseAt(idx)
	// Backward shifting pulled the following element into idx unless idx is
	// the last bucket, where it came from bucket 0.
	if !last && t.buckets[idx].distAndFingerprint != 0 {
		return it
	}
	return t.advance(idx + 1)
}

// DeleteFunc removes every element for which del returns true and returns
// the number removed. del sees each element once.
func (t *Table[K, V]) DeleteFunc(del func(K, V) bool) int {
	if t.size == 0 {
		return 0
	}
	// Start after an empty bucket: no shift run crosses it, so elements
	// pulled back by an erasure are always still ahead.
	var start uint32
	for t.buckets[start].distAndFingerprint != 0 {
		start++
	}
	removed := 0
	idx := t.next(start)
	for seen := 1; seen < len(t.buckets); {
		b := &t.buckets[idx]
		if b.distAndFingerprint != 0 && del(b.key, b.value) {
			t.eraseAt(idx)
			removed++
			continue
		}
		seen++
		idx = t.next(idx)
	}
	return removed
}

// EraseRange removes the elements in [first, last) and returns an iterator
// to the element last pointed at.
func (t *Table[K, V]) EraseRange(first, last Iterator[K, V]) Iterator[K, V] {
	var keys []K
	for it := first; it != last && it.Valid(); it = it.Next() {
		keys = append(keys, it.Key())
	}
	var lastKey K
	hasLast := last.Valid()
	if hasLast {
		lastKey = last.Key()
	}
	for _, k := range keys {
		t.Erase(k)
	}
	if !hasLast {
		return t.End()
	}
	return t.Find(lastKey)
}

// ExtractIter removes the element at it and returns its key and value.
func (t *Table[K, V]) ExtractIter(it Iterator[K, V]) (K, V) {
	b := t.buckets[it.idx]
	t.eraseAt(it.idx)
	return b.key, b.value
}
