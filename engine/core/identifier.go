package core

import "fmt"

// ID is a generation-tagged slot identifier. The low 32 bits hold the
// slot index, the high 32 bits the generation. The zero ID is never
// handed out.
type ID uint64

const InvalidID ID = 0

func newID(index, generation uint32) ID {
	return ID(uint64(generation)<<32 | uint64(index))
}

func (id ID) Index() uint32 {
	return uint32(id)
}

func (id ID) Generation() uint32 {
	return uint32(id >> 32)
}

func (id ID) String() string {
	return fmt.Sprintf("%d#%d", id.Index(), id.Generation())
}

// Identifiers allocates IDs and reuses released slots under a new
// generation, so an ID held after release is detectably stale.
type Identifiers struct {
	generations []uint32
	alive       []bool
	free        []uint32
}

func NewIdentifiers(capacity int) *Identifiers {
	return &Identifiers{
		generations: make([]uint32, 0, capacity),
		alive:       make([]bool, 0, capacity),
	}
}

func (ids *Identifiers) Acquire() ID {
	// Existing free spot. Take it.
	if n := len(ids.free); n > 0 {
		index := ids.free[n-1]
		ids.free = ids.free[:n-1]
		ids.alive[index] = true
		return newID(index, ids.generations[index])
	}

	// No existing free slots, push one.
	ids.generations = append(ids.generations, 1)
	ids.alive = append(ids.alive, true)
	return newID(uint32(len(ids.generations)-1), 1)
}

func (ids *Identifiers) Release(id ID) error {
	if !ids.Alive(id) {
		return fmt.Errorf("identifier %s: %w", id, ErrStaleHandle)
	}
	index := id.Index()
	ids.alive[index] = false
	ids.generations[index]++
	if ids.generations[index] == 0 {
		ids.generations[index] = 1
	}
	ids.free = append(ids.free, index)
	return nil
}

func (ids *Identifiers) Alive(id ID) bool {
	if id == InvalidID {
		return false
	}
	index := id.Index()
	if int(index) >= len(ids.generations) {
		return false
	}
	return ids.alive[index] && ids.generations[index] == id.Generation()
}

// Len returns the number of live IDs.
func (ids *Identifiers) Len() int {
	return len(ids.generations) - len(ids.free)
}
