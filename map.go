package bisimulation

// Hashable is implemented by HashMap keys.
type Hashable interface {
	Hash() uint64
	Equals(other Hashable) bool
}

// HashMap is a chained hash table keyed by Hashable values. It is not safe for
// concurrent use; refinement workers each build their own.
type HashMap[T any] struct {
	buckets []*hashEntry[T]
	size    int
	mask    uint64
}

type hashEntry[T any] struct {
	key   Hashable
	value T
	next  *hashEntry[T]
}

// defaultLoadFactor is the size/buckets ratio above which the table doubles.
const defaultLoadFactor = 0.75

type hashMapOptions struct {
	capacity int
}

// HashMapOption configures NewHashMap.
type HashMapOption func(*hashMapOptions)

// WithCapacity sets the initial bucket count, rounded up to a power of two.
func WithCapacity(capacity int) HashMapOption {
	return func(o *hashMapOptions) {
		o.capacity = capacity
	}
}

func NewHashMap[T any](opts ...HashMapOption) *HashMap[T] {
	o := &hashMapOptions{capacity: 1}
	for _, opt := range opts {
		opt(o)
	}
	capacity := 1
	for capacity < o.capacity {
		capacity <<= 1
	}
	return &HashMap[T]{
		buckets: make([]*hashEntry[T], capacity),
		mask:    uint64(capacity - 1),
	}
}

// LoadOrStore returns the existing value for key if present. Otherwise it stores
// value and returns it. The boolean reports whether the value was loaded.
func (m *HashMap[T]) LoadOrStore(key Hashable, value T) (T, bool) {
	if e := m.find(key); e != nil {
		return e.value, true
	}
	m.insert(key, value)
	return value, false
}

func (m *HashMap[T]) Size() int {
	return m.size
}

func (m *HashMap[T]) find(key Hashable) *hashEntry[T] {
	for e := m.buckets[key.Hash()&m.mask]; e != nil; e = e.next {
		if e.key.Equals(key) {
			return e
		}
	}
	return nil
}

func (m *HashMap[T]) insert(key Hashable, value T) {
	index := key.Hash() & m.mask
	m.buckets[index] = &hashEntry[T]{key: key, value: value, next: m.buckets[index]}
	m.size++
	if float64(m.size)/float64(len(m.buckets)) > defaultLoadFactor {
		m.resize()
	}
}

func (m *HashMap[T]) resize() {
	capacity := len(m.buckets) << 1
	buckets := make([]*hashEntry[T], capacity)
	mask := uint64(capacity - 1)
	for _, head := range m.buckets {
		for e := head; e != nil; {
			next := e.next
			index := e.key.Hash() & mask
			e.next = buckets[index]
			buckets[index] = e
			e = next
		}
	}
	m.buckets = buckets
	m.mask = mask
}
