package main

import "unsafe"

// pageChunk describes a run of contiguous free physical pages. Chunks are
// singly linked and are never coalesced. Node storage comes from the heap
// allocator (kmalloc) rather than being embedded in the first free page of
// the chunk itself.
type pageChunk struct {
	next     *pageChunk
	firstPPN uintptr // physical page number of the first page in the chunk
	pagecnt  uintptr
}

var freeChunkList *pageChunk

func pagenum(pa uintptr) uintptr { return pa >> 12 }
func pageptr(ppn uintptr) uintptr { return ppn << 12 }

// kinit seeds the physical page allocator with everything from the first
// page boundary above the kernel heap region up to PHYSTOP as a single
// chunk.
func kinit(heapEnd uintptr) {
	freeStart := PGGROUNDUP(heapEnd)
	freeEnd := PHYSTOP
	if freeEnd <= freeStart {
		panic("kinit: no free RAM for page allocator")
	}

	first := (*pageChunk)(unsafe.Pointer(kmalloc(unsafe.Sizeof(pageChunk{}))))
	first.next = nil
	first.pagecnt = (freeEnd - freeStart) >> 12
	first.firstPPN = pagenum(freeStart)
	freeChunkList = first

	printf("kinit: [%x, %x): %d pages free\n", freeStart, freeEnd, int(first.pagecnt))
}

// bestFitSearch scans the chunk list for the smallest chunk whose pagecnt is
// >= need, returning the matching node and a pointer to the link that
// refers to it: its predecessor's next field, or bestFitSearch's own copy
// of head when the match is the head. It repeats the search loop of
// allocPhysPages as a standalone function so the selection rule can be
// exercised directly by tests without any hardware dependency.
func bestFitSearch(head *pageChunk, need uintptr) (prevNext **pageChunk, best *pageChunk) {
	if need == 0 {
		return nil, nil
	}
	prevp := &head
	c := head
	var bestPrevp **pageChunk
	var bestChunk *pageChunk
	for c != nil {
		if c.pagecnt >= need && (bestChunk == nil || c.pagecnt < bestChunk.pagecnt) {
			bestPrevp = prevp
			bestChunk = c
		}
		prevp = &c.next
		c = c.next
	}
	return bestPrevp, bestChunk
}

// allocPhysPages allocates cnt contiguous pages using best-fit,
// split-from-front, no coalescing.
func allocPhysPages(cnt uintptr) uintptr {
	if cnt == 0 {
		return 0
	}

	prevp := &freeChunkList
	c := freeChunkList
	var bestPrevp **pageChunk
	var best *pageChunk
	for c != nil {
		if c.pagecnt >= cnt && (best == nil || c.pagecnt < best.pagecnt) {
			bestPrevp = prevp
			best = c
		}
		prevp = &c.next
		c = c.next
	}
	if best == nil {
		return 0 // out of memory
	}

	startPPN := best.firstPPN
	if best.pagecnt == cnt {
		*bestPrevp = best.next
		kfree(uintptr(unsafe.Pointer(best)))
	} else {
		best.firstPPN += cnt
		best.pagecnt -= cnt
	}
	return pageptr(startPPN)
}

func allocPhysPage() uintptr { return allocPhysPages(1) }

// freePhysPages inserts a new chunk node at the head of the free list
// without attempting to coalesce with adjacent chunks.
func freePhysPages(pp uintptr, cnt uintptr) {
	if pp == 0 || cnt == 0 {
		return
	}
	node := (*pageChunk)(unsafe.Pointer(kmalloc(unsafe.Sizeof(pageChunk{}))))
	node.firstPPN = pagenum(pp)
	node.pagecnt = cnt
	node.next = freeChunkList
	freeChunkList = node
}

func freePhysPage(pp uintptr) { freePhysPages(pp, 1) }

func freePhysPageCount() uintptr {
	var total uintptr
	for c := freeChunkList; c != nil; c = c.next {
		total += c.pagecnt
	}
	return total
}
