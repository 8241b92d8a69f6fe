package dense

import "iter"

// Set is a Table without values. Its buckets carry no value storage.
type Set[K comparable] struct {
	t *Table[K, struct{}]
}

// NewSet returns an empty set configured like New.
func NewSet[K comparable](opts ...Option[K, struct{}]) *Set[K] {
	return &Set[K]{t: New(opts...)}
}

// Insert adds k and reports whether it was absent.
func (s *Set[K]) Insert(k K) (bool, error) {
	return s.t.Insert(k, struct{}{})
}

func (s *Set[K]) Contains(k K) bool { return s.t.Contains(k) }

// Erase removes k and returns the number of keys removed.
func (s *Set[K]) Erase(k K) int { return s.t.Erase(k) }

// Extract removes k and returns the stored key.
func (s *Set[K]) Extract(k K) (K, bool) {
	key, _, ok := s.t.Extract(k)
	return key, ok
}

// Merge moves the keys of other that are absent from s into s.
func (s *Set[K]) Merge(other *Set[K]) error {
	if other == nil {
		return nil
	}
	return s.t.Merge(other.t)
}

func (s *Set[K]) Len() int                   { return s.t.Len() }
func (s *Set[K]) Empty() bool                { return s.t.Empty() }
func (s *Set[K]) Clear()                     { s.t.Clear() }
func (s *Set[K]) Reserve(n uint64) error     { return s.t.Reserve(n) }
func (s *Set[K]) Rehash(n uint64) error      { return s.t.Rehash(n) }
func (s *Set[K]) BucketCount() uint64        { return s.t.BucketCount() }
func (s *Set[K]) Release()                   { s.t.Release() }
func (s *Set[K]) Table() *Table[K, struct{}] { return s.t }

func (s *Set[K]) Clone() (*Set[K], error) {
	c, err := s.t.Clone()
	if err != nil {
		return nil, err
	}
	return &Set[K]{t: c}, nil
}

// Move transfers the keys of s into a new set and leaves s empty.
func (s *Set[K]) Move() *Set[K] {
	return &Set[K]{t: s.t.Move()}
}

// All yields every key in bucket order.
func (s *Set[K]) All() iter.Seq[K] { return s.t.Keys() }
