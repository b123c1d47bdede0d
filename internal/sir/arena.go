package sir

// Arena is a page-allocated slab that owns every node of a single kind
// for one module. Nodes are referenced by Handle (an arena index) rather
// than by pointer, so mutually-recursive declarations (modules that
// import each other, a struct that refers to itself) never need back-
// patched pointers: a Handle into an Arena is valid as soon as it is
// issued, even before the node it names has been fully populated.
//
// Grounded on the page-pooled allocator in the teacher's ssa.pool[T].
type Arena[T any] struct {
	pages     []*[arenaPageSize]T
	allocated int
}

const arenaPageSize = 128

// Handle is an index into an Arena. The zero Handle is reserved as
// invalid so a zero-valued struct field reads as "unset".
type Handle uint32

const HandleInvalid Handle = 0

// New allocates a fresh zero-valued T and returns its Handle.
func (a *Arena[T]) New() Handle {
	if a.allocated == 0 {
		a.allocated = 1 // reserve index 0 for HandleInvalid
	}
	idx := a.allocated
	page, offset := idx/arenaPageSize, idx%arenaPageSize
	for len(a.pages) <= page {
		a.pages = append(a.pages, new([arenaPageSize]T))
	}
	a.allocated++
	_ = offset
	return Handle(idx)
}

// Get returns a pointer to the node named by h. The pointer is valid for
// the lifetime of the Arena (i.e. the owning module).
func (a *Arena[T]) Get(h Handle) *T {
	idx := int(h)
	page, offset := idx/arenaPageSize, idx%arenaPageSize
	return &a.pages[page][offset]
}

// Len returns the number of allocated nodes, including the reserved
// invalid slot.
func (a *Arena[T]) Len() int {
	return a.allocated
}
