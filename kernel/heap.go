package main

import "unsafe"

// Heap allocator: a two-region bump allocator. A low and a high watermark
// delimit the current pool; malloc carves from the high end downward.
// Intentionally non-freeing: kfree poisons and tags the block but never
// reclaims the space, so the only guarantee kept is that live blocks never
// overlap.
const (
	heapAllocMagic = 0xEAEAEAEA
	heapFreeMagic  = 0x25252525
	heapAllocMax   = 4000
)

type heapAllocHeader struct {
	magic   uint32
	size    uint32
	sizeInv uint32
	ra32    uint32
}

type heapFreeRecord struct {
	magic uint32
	ra32  uint32
}

var heapLow uintptr
var heapEnd uintptr
var heapInitialized bool

func heapInit(start, end uintptr) {
	start = PGGROUNDUP2(start, HEAP_ALIGN)
	end = roundDown(end, HEAP_ALIGN)
	if start >= end {
		panic("heap_init: empty region")
	}
	heapLow = start
	heapEnd = end
	heapInitialized = true
}

func roundUp(n, k uintptr) uintptr   { return (n + k - 1) / k * k }
func roundDown(n, k uintptr) uintptr { return n / k * k }

// PGGROUNDUP2 rounds n up to a multiple of k; named distinctly from
// PGGROUNDUP (which is hardwired to PGSIZE) since the heap aligns to
// HEAP_ALIGN, not the page size.
func PGGROUNDUP2(n, k uintptr) uintptr { return roundUp(n, k) }

const headerSize = unsafe.Sizeof(heapAllocHeader{})

// kmalloc rounds up to HEAP_ALIGN, carves from the high end of the
// current pool, growing the pool by one physical page when the current
// pool cannot satisfy the request.
func kmalloc(size uintptr) uintptr {
	if size == 0 {
		return 0
	}
	size = roundUp(size, HEAP_ALIGN)
	if size > heapAllocMax {
		panic("kmalloc: request too large")
	}

	var ptr uintptr
	if size+headerSize <= heapEnd-heapLow {
		ptr = heapEnd - size
		heapEnd = ptr - headerSize
	} else {
		if PGSIZE-headerSize < size {
			panic("kmalloc: request larger than a page")
		}
		newpage := allocPhysPage()
		if newpage == 0 {
			panic("kmalloc: out of physical memory")
		}
		ptr = newpage + PGSIZE - size
		leftover := PGSIZE - size - headerSize

		if heapEnd-heapLow < leftover {
			heapEnd = ptr - headerSize
			heapLow = newpage
		}
	}

	hdr := (*heapAllocHeader)(unsafe.Pointer(ptr - headerSize))
	hdr.magic = heapAllocMagic
	hdr.size = uint32(size)
	hdr.sizeInv = ^uint32(size)
	hdr.ra32 = 0

	memset(ptr, 0x33, uint(size))
	return ptr
}

func kcalloc(nelts, eltsz uintptr) uintptr {
	if eltsz != 0 && nelts > heapAllocMax/eltsz {
		panic("kcalloc: request too large")
	}
	size := nelts * eltsz
	ptr := kmalloc(size)
	if ptr != 0 {
		memset(ptr, 0, uint(size))
	}
	return ptr
}

// kfree poisons the block and writes a freed-record tag but never reclaims
// the memory.
func kfree(ptr uintptr) {
	if ptr == 0 {
		return
	}
	hdr := (*heapAllocHeader)(unsafe.Pointer(ptr - headerSize))
	if hdr.magic != heapAllocMagic {
		panic("kfree: bad header")
	}
	size := uintptr(hdr.size)
	memset(ptr, 0xDE, uint(size))

	rec := (*heapFreeRecord)(unsafe.Pointer(ptr - headerSize))
	rec.magic = heapFreeMagic
	rec.ra32 = 0
}
