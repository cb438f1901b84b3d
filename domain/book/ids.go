package book

import "errors"

var ErrIDSpaceExhausted = errors.New("book: id space exhausted")

// idCursor allocates synthetic order ids. Id 0 is permanently
// reserved as the sentinel and is never handed out.
//
// Allocation starts after the last assigned id and linearly probes
// for a free slot. A single wraparound of the id space is tolerated;
// a second wraparound without a free slot means the book is saturated.
type idCursor struct {
	last uint64
}

func (c *idCursor) next(used func(uint64) bool) (uint64, error) {
	id := c.last
	wrapped := false
	for {
		id++
		if id == 0 {
			if wrapped {
				return 0, ErrIDSpaceExhausted
			}
			wrapped = true
			id = 1
		}
		if !used(id) {
			c.last = id
			return id, nil
		}
	}
}

// reset rewinds the cursor, used when rebuilding state from the
// command journal so fresh ids resume after the replayed ones.
func (c *idCursor) reset(last uint64) {
	c.last = last
}

// Alloc recycles order nodes. infra/memory.Pool[T] satisfies it;
// a nil Alloc falls back to plain heap allocation.
type Alloc[T any] interface {
	Get() *T
	Put(*T)
}

func get[T any](a Alloc[T]) *T {
	if a == nil {
		return new(T)
	}
	return a.Get()
}

func put[T any](a Alloc[T], v *T) {
	if a != nil {
		a.Put(v)
	}
}
