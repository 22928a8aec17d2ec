package collections

// LongSet is an open-addressed set of uint64 values with the same probing
// scheme as LongLongMap. Not safe for concurrent use.
type LongSet struct {
	keys     []uint64
	size     int
	resizeAt int

	hasZeroKey bool
}

// NewLongSet creates an empty LongSet.
func NewLongSet() *LongSet {
	return NewLongSetWithCapacity(0)
}

// NewLongSetWithCapacity creates a LongSet pre-sized for the expected
// number of elements.
func NewLongSetWithCapacity(expected int) *LongSet {
	capacity := capacityFor(expected)
	return &LongSet{
		keys:     make([]uint64, capacity),
		resizeAt: int(float64(capacity) * loadFactor),
	}
}

// Add inserts key, reporting whether it was newly added.
func (s *LongSet) Add(key uint64) bool {
	if key == emptyKey {
		if s.hasZeroKey {
			return false
		}
		s.hasZeroKey = true
		s.size++
		return true
	}
	if s.size >= s.resizeAt {
		s.grow()
	}
	mask := uint64(len(s.keys) - 1)
	slot := mix64(key) & mask
	for {
		k := s.keys[slot]
		if k == emptyKey {
			s.keys[slot] = key
			s.size++
			return true
		}
		if k == key {
			return false
		}
		slot = (slot + 1) & mask
	}
}

// Contains reports whether key is in the set.
func (s *LongSet) Contains(key uint64) bool {
	if key == emptyKey {
		return s.hasZeroKey
	}
	mask := uint64(len(s.keys) - 1)
	slot := mix64(key) & mask
	for {
		k := s.keys[slot]
		if k == emptyKey {
			return false
		}
		if k == key {
			return true
		}
		slot = (slot + 1) & mask
	}
}

// Size returns the number of elements.
func (s *LongSet) Size() int {
	return s.size
}

// Iterate calls fn for each element until fn returns false.
// The order is unspecified.
func (s *LongSet) Iterate(fn func(key uint64) bool) {
	if s.hasZeroKey && !fn(emptyKey) {
		return
	}
	for _, k := range s.keys {
		if k == emptyKey {
			continue
		}
		if !fn(k) {
			return
		}
	}
}

// ToSlice returns all elements in unspecified order.
func (s *LongSet) ToSlice() []uint64 {
	result := make([]uint64, 0, s.size)
	s.Iterate(func(key uint64) bool {
		result = append(result, key)
		return true
	})
	return result
}

// grow doubles the slot array and rehashes every element.
func (s *LongSet) grow() {
	oldKeys := s.keys
	capacity := len(oldKeys) * 2
	s.keys = make([]uint64, capacity)
	s.resizeAt = int(float64(capacity) * loadFactor)

	mask := uint64(capacity - 1)
	for _, k := range oldKeys {
		if k == emptyKey {
			continue
		}
		slot := mix64(k) & mask
		for s.keys[slot] != emptyKey {
			slot = (slot + 1) & mask
		}
		s.keys[slot] = k
	}
}
