package vm

import "github.com/pkg/errors"

// chunk is one allocated heap block, tracked as a doubly-linked list
// ordered by address - mirroring original_source/api.c's
// SpyMemoryChunk, minus the separate host-pointer field: since Go
// keeps everything in one memory slice, the VM address and the byte
// offset are the same number.
type chunk struct {
	pages int
	addr  Addr
	next  *chunk
	prev  *chunk
}

// Malloc reserves size bytes (rounded up to the nearest SizePage
// multiple) from the heap region using first-fit over the gap before
// the first chunk and the gaps between existing chunks, falling back
// to extending past the last chunk. Returns the address of the new block, or 0 when the heap is
// exhausted - the program sees a null pointer, it does not crash.
func (m *Machine) Malloc(size int64) (Addr, error) {
	pages := pagesFor(size)

	c := &chunk{pages: pages, addr: StartHeap}

	var prev *chunk
	if m.chunks != nil && int(m.chunks.addr-StartHeap)/SizePage < pages {
		at := m.chunks
		for at.next != nil {
			gapEnd := at.addr + Addr(at.pages*SizePage)
			gapPages := int(at.next.addr-gapEnd) / SizePage
			if gapPages >= pages {
				break
			}
			at = at.next
		}
		c.addr = at.addr + Addr(at.pages*SizePage)
		prev = at
	}

	if c.addr+Addr(c.pages*SizePage) > SizeMemory {
		return 0, nil
	}

	if prev == nil {
		c.next = m.chunks
		if m.chunks != nil {
			m.chunks.prev = c
		}
		m.chunks = c
	} else {
		c.prev = prev
		c.next = prev.next
		if prev.next != nil {
			prev.next.prev = c
		}
		prev.next = c
	}
	return c.addr, nil
}

// Free releases the chunk beginning at addr. It is an error to free an
// address that was never returned by Malloc (or was already freed).
func (m *Machine) Free(addr Addr) error {
	at := m.chunks
	found := false
	for at != nil {
		if at.addr == addr {
			if at.prev != nil {
				at.prev.next = at.next
			} else {
				m.chunks = at.next
			}
			if at.next != nil {
				at.next.prev = at.prev
			}
			found = true
		}
		at = at.next
	}
	if !found {
		return errors.Errorf("spyre: attempt to free an invalid pointer (0x%x)", addr)
	}
	return nil
}

func pagesFor(size int64) int {
	if size == 0 {
		return 1
	}
	if size%SizePage > 0 {
		return int(size+(SizePage-size%SizePage)) / SizePage
	}
	return int(size) / SizePage
}

// DumpHeap renders the current chunk list, one block per line: its
// page count, byte size, and fill ratio - mirroring Spy_dumpHeap.
func (m *Machine) DumpHeap() string {
	var out string
	at := m.chunks
	index := 0
	for at != nil {
		nonzero := 0
		size := at.pages * SizePage
		for i := 0; i < size; i++ {
			if m.memory[int(at.addr)+i] != 0 {
				nonzero++
			}
		}
		pct := 0
		if size > 0 {
			pct = (100 * nonzero) / size
		}
		out += itoa(int64(index)) + ": " + itoa(int64(at.pages)) + " pages, " +
			itoa(int64(size)) + " bytes, " + itoa(int64(pct)) + "% non-zero, addr=0x" + hex(uint64(at.addr)) + "\n"
		at = at.next
		index++
	}
	return out
}

func hex(n uint64) string {
	const digits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%16]
		n /= 16
	}
	return string(buf[i:])
}
