package main

import "unsafe"

// Sv39 page-table manager: walk/mappages over a root table, generalized to
// full per-process address spaces with clone/discard/switch/fault
// handling.

// mainMtag is the memory-space tag installed at boot: identity-maps MMIO
// and RAM, and is shared (by pointer, never copied) as the upper half of
// every per-process root table.
var mainMtag uintptr
var kernelRoot pagetable_t

// activeRoot is the page table of the address space currently installed in
// satp. It is switched by switch_mspace and consulted by the manager's
// mutating operations, which by invariant only ever touch the active space.
var activeRoot pagetable_t

func kvminit() {
	kernelRoot = pagetable_t(allocPhysPage())
	if kernelRoot == 0 {
		panic("kvminit: out of memory")
	}
	memset(uintptr(kernelRoot), 0, uint(PGSIZE))

	for i := 0; i < NUART; i++ {
		kvmmap(UART_MMIO_BASE(i), UART_MMIO_BASE(i), PGSIZE, PTE_R|PTE_W)
	}
	for i := 0; i < NVIRTIO; i++ {
		kvmmap(VIRTIO_MMIO_BASE(i), VIRTIO_MMIO_BASE(i), PGSIZE, PTE_R|PTE_W)
	}
	kvmmap(RTC_MMIO_BASE, RTC_MMIO_BASE, PGSIZE, PTE_R|PTE_W)
	kvmmap(PLIC, PLIC, 0x400000, PTE_R|PTE_W)
	kvmmap(KERNBASE, KERNBASE, PHYSTOP-KERNBASE, PTE_R|PTE_W|PTE_X)

	mainMtag = MAKE_SATP(uintptr(kernelRoot))
	activeRoot = kernelRoot
}

func kvmmap(va, pa, sz uintptr, perm int) {
	if mapRange(kernelRoot, va, pa, sz, perm|PTE_G) != 0 {
		panic("kvmmap")
	}
}

//go:linkname kvminithart kvminithart
func kvminithart()

// walk returns a pointer to the PTE for va within pagetable, allocating
// intermediate level-1/level-0 tables on the way down when alloc is true.
func walk(pagetable pagetable_t, va uintptr, alloc bool) *pte_t {
	if va >= MAXVA {
		panic("walk: va out of range")
	}
	for level := 2; level > 0; level-- {
		idx := PX(level, va)
		ptep := (*pte_t)(unsafe.Pointer(uintptr(pagetable) + idx*8))
		if *ptep&PTE_V != 0 {
			pagetable = pagetable_t(PTE2PA(*ptep))
		} else {
			if !alloc {
				return nil
			}
			newpage := allocPhysPage()
			if newpage == 0 {
				return nil
			}
			memset(newpage, 0, uint(PGSIZE))
			*ptep = PA2PTE(newpage) | PTE_V
			pagetable = pagetable_t(newpage)
		}
	}
	idx0 := PX(0, va)
	return (*pte_t)(unsafe.Pointer(uintptr(pagetable) + idx0*8))
}

// mapPage installs one 4 KiB leaf mapping va->pa with the given flags in
// the active (or passed) page table; returns 0 on success, -ENOMEM if a
// page table couldn't be allocated, -EINVAL if va is already mapped.
func mapPage(pagetable pagetable_t, va, pa uintptr, perm int) int {
	pte := walk(pagetable, PGGROUNDDOWN(va), true)
	if pte == nil {
		return -ENOMEM
	}
	if *pte&PTE_V != 0 {
		return -EINVAL
	}
	*pte = PA2PTE(pa) | pte_t(perm|PTE_V)
	return 0
}

// mapRange installs leaf mappings for every page in [va, va+size).
func mapRange(pagetable pagetable_t, va, pa, size uintptr, perm int) int {
	a := PGGROUNDDOWN(va)
	last := PGGROUNDDOWN(va + size - 1)
	for {
		if rc := mapPage(pagetable, a, pa, perm); rc != 0 {
			return rc
		}
		if a == last {
			break
		}
		a += PGSIZE
		pa += PGSIZE
	}
	sfence_vma()
	return 0
}

// allocAndMapRange allocates fresh zeroed physical pages and maps them over
// [va, va+size) in the active address space with the given permission bits.
func allocAndMapRange(va, size uintptr, perm int) int {
	a := PGGROUNDDOWN(va)
	last := PGGROUNDDOWN(va + size - 1)
	for {
		pa := allocPhysPage()
		if pa == 0 {
			return -ENOMEM
		}
		memset(pa, 0, uint(PGSIZE))
		if rc := mapPage(activeRoot, a, pa, perm); rc != 0 {
			freePhysPage(pa)
			return rc
		}
		if a == last {
			break
		}
		a += PGSIZE
	}
	sfence_vma()
	return 0
}

// setRangeFlags rewrites the R/W/X/U flags of every leaf PTE across
// [va, va+size) in the active address space, leaving PPN/V untouched.
func setRangeFlags(va, size uintptr, perm int) int {
	a := PGGROUNDDOWN(va)
	last := PGGROUNDDOWN(va + size - 1)
	for {
		pte := walk(activeRoot, a, false)
		if pte == nil || *pte&PTE_V == 0 {
			return -EINVAL
		}
		flagsMask := pte_t(PTE_R | PTE_W | PTE_X | PTE_U)
		*pte = (*pte &^ flagsMask) | pte_t(perm)&flagsMask
		if a == last {
			break
		}
		a += PGSIZE
	}
	sfence_vma()
	return 0
}

// unmapAndFreeRange clears leaf PTEs across [va, va+size) in the active
// address space and returns their backing physical pages to the allocator.
func unmapAndFreeRange(va, size uintptr) int {
	a := PGGROUNDDOWN(va)
	last := PGGROUNDDOWN(va + size - 1)
	for {
		pte := walk(activeRoot, a, false)
		if pte != nil && *pte&PTE_V != 0 {
			freePhysPage(PTE2PA(*pte))
			*pte = 0
		}
		if a == last {
			break
		}
		a += PGSIZE
	}
	sfence_vma()
	return 0
}

// isUserLevel2 reports whether level-2 index idx covers part of the user
// range [UMEM_START_VMA, UMEM_END_VMA). Every other level-2 slot, including
// those holding the kernel's identity map of MMIO and RAM, belongs to the
// kernel half and is always copied by reference, never duplicated.
func isUserLevel2(idx uintptr) bool {
	return idx >= PX(2, UMEM_START_VMA) && idx <= PX(2, UMEM_END_VMA-1)
}

// cloneActiveMspace makes an eager deep copy of the user half of the
// active address space into a freshly allocated root.
// Kernel-half level-2 entries are copied as pointers (shared); user-half
// subtrees are walked and duplicated page by page.
func cloneActiveMspace() (uintptr, int) {
	newRoot := pagetable_t(allocPhysPage())
	if newRoot == 0 {
		return 0, -ENOMEM
	}
	memset(uintptr(newRoot), 0, uint(PGSIZE))

	src := activeRoot
	for i2 := uintptr(0); i2 < 512; i2++ {
		srcL2 := (*pte_t)(unsafe.Pointer(uintptr(src) + i2*8))
		if *srcL2&PTE_V == 0 {
			continue
		}
		dstL2 := (*pte_t)(unsafe.Pointer(uintptr(newRoot) + i2*8))
		if !isUserLevel2(i2) {
			// Kernel half: share the subtree by pointer.
			*dstL2 = *srcL2
			continue
		}
		if *srcL2&(PTE_R|PTE_W|PTE_X) != 0 {
			// A level-2 leaf (gigapage) in user range should not occur in
			// this kernel (user mappings are always 4 KiB), but handle it
			// defensively by sharing it rather than corrupting state.
			*dstL2 = *srcL2
			continue
		}
		srcL1 := pagetable_t(PTE2PA(*srcL2))
		dstL1page := allocPhysPage()
		if dstL1page == 0 {
			discardMspace(newRoot)
			return 0, -ENOMEM
		}
		memset(dstL1page, 0, uint(PGSIZE))
		dstL1 := pagetable_t(dstL1page)
		*dstL2 = PA2PTE(dstL1page) | (*srcL2 & 0x3FF)

		for i1 := uintptr(0); i1 < 512; i1++ {
			srcL1e := (*pte_t)(unsafe.Pointer(uintptr(srcL1) + i1*8))
			if *srcL1e&PTE_V == 0 {
				continue
			}
			dstL1e := (*pte_t)(unsafe.Pointer(uintptr(dstL1) + i1*8))
			if *srcL1e&(PTE_R|PTE_W|PTE_X) != 0 {
				// Leaf: allocate and copy the page.
				srcL0 := pagetable_t(PTE2PA(*srcL1e))
				newPage := allocPhysPage()
				if newPage == 0 {
					discardMspace(newRoot)
					return 0, -ENOMEM
				}
				memcpy(newPage, uintptr(srcL0), uint(PGSIZE))
				*dstL1e = PA2PTE(newPage) | (*srcL1e & 0x3FF)
				continue
			}
			// Non-leaf: another level-0 table.
			srcL0t := pagetable_t(PTE2PA(*srcL1e))
			dstL0page := allocPhysPage()
			if dstL0page == 0 {
				discardMspace(newRoot)
				return 0, -ENOMEM
			}
			memset(dstL0page, 0, uint(PGSIZE))
			*dstL1e = PA2PTE(dstL0page) | (*srcL1e & 0x3FF)
			dstL0 := pagetable_t(dstL0page)
			for i0 := uintptr(0); i0 < 512; i0++ {
				srcL0e := (*pte_t)(unsafe.Pointer(uintptr(srcL0t) + i0*8))
				if *srcL0e&PTE_V == 0 {
					continue
				}
				newPage := allocPhysPage()
				if newPage == 0 {
					discardMspace(newRoot)
					return 0, -ENOMEM
				}
				memcpy(newPage, PTE2PA(*srcL0e), uint(PGSIZE))
				dstL0e := (*pte_t)(unsafe.Pointer(uintptr(dstL0) + i0*8))
				*dstL0e = PA2PTE(newPage) | (*srcL0e & 0x3FF)
			}
		}
	}
	return MAKE_SATP(uintptr(newRoot)), 0
}

// discardMspace walks and frees every user-half leaf page and intermediate
// table rooted at root, but never the kernel-half subtrees (which are
// shared and outlive any one process).
func discardMspace(root pagetable_t) {
	for i2 := uintptr(0); i2 < 512; i2++ {
		if !isUserLevel2(i2) {
			continue
		}
		l2 := (*pte_t)(unsafe.Pointer(uintptr(root) + i2*8))
		if *l2&PTE_V == 0 {
			continue
		}
		if *l2&(PTE_R|PTE_W|PTE_X) != 0 {
			*l2 = 0
			continue
		}
		l1 := pagetable_t(PTE2PA(*l2))
		for i1 := uintptr(0); i1 < 512; i1++ {
			l1e := (*pte_t)(unsafe.Pointer(uintptr(l1) + i1*8))
			if *l1e&PTE_V == 0 {
				continue
			}
			if *l1e&(PTE_R|PTE_W|PTE_X) != 0 {
				freePhysPage(PTE2PA(*l1e))
				*l1e = 0
				continue
			}
			l0 := pagetable_t(PTE2PA(*l1e))
			for i0 := uintptr(0); i0 < 512; i0++ {
				l0e := (*pte_t)(unsafe.Pointer(uintptr(l0) + i0*8))
				if *l0e&PTE_V != 0 {
					freePhysPage(PTE2PA(*l0e))
					*l0e = 0
				}
			}
			freePhysPage(uintptr(l0))
			*l1e = 0
		}
		freePhysPage(uintptr(l1))
		*l2 = 0
	}
}

// discardActiveMspace frees the active space's user half and switches back
// to the kernel's mspace.
func discardActiveMspace() {
	root := activeRoot
	discardMspace(root)
	if root != kernelRoot {
		freePhysPage(uintptr(root))
	}
	switchMspace(mainMtag)
}

// resetActiveMspace discards the current user-half mappings in place
// without freeing the root table itself, leaving it ready for a fresh exec.
func resetActiveMspace() {
	discardMspace(activeRoot)
	sfence_vma()
}

// switchMspace installs mtag into satp and records the new active root.
func switchMspace(mtag uintptr) {
	w_satp(mtag)
	sfence_vma()
	activeRoot = pagetable_t((mtag & 0xFFFFFFFFFFF) << 12)
}

// handleUmodePageFault handles a fault at a valid user address by
// allocating a fresh zeroed page and installing it R|W|U|G; any other
// address is unrecoverable and the caller must terminate the process.
func handleUmodePageFault(faultAddr uintptr) int {
	if faultAddr < UMEM_START_VMA || faultAddr >= UMEM_END_VMA {
		return -EINVAL
	}
	va := PGGROUNDDOWN(faultAddr)
	pa := allocPhysPage()
	if pa == 0 {
		return -ENOMEM
	}
	memset(pa, 0, uint(PGSIZE))
	if rc := mapPage(activeRoot, va, pa, MAP_RWUG); rc != 0 {
		freePhysPage(pa)
		return rc
	}
	sfence_vma()
	return 0
}
