package main

import _ "unsafe"

// Sv39 page size and maximum virtual address (38 bits, one below Sv39's
// 39-bit limit, so no address needs sign extension).
const PGSIZE = uintptr(4096)
const MAXVA = uintptr(1) << 38

// Page table entry flag bits.
const (
	PTE_V = 1 << 0 // Valid
	PTE_R = 1 << 1 // Readable
	PTE_W = 1 << 2 // Writable
	PTE_X = 1 << 3 // Executable
	PTE_U = 1 << 4 // User
	PTE_G = 1 << 5 // Global
	PTE_A = 1 << 6 // Accessed
	PTE_D = 1 << 7 // Dirty
)

const MAP_RWUG = PTE_R | PTE_W | PTE_U | PTE_G

type pte_t uintptr
type pagetable_t uintptr

// PX extracts the 9-bit index for the given Sv39 page table level (0,1,2)
// out of a virtual address.
func PX(level int, va uintptr) uintptr { return (va >> (12 + uintptr(level)*9)) & 0x1FF }

func PTE2PA(pte pte_t) uintptr       { return (uintptr(pte) >> 10) << 12 }
func PA2PTE(pa uintptr) pte_t        { return pte_t((pa >> 12) << 10) }
func PGGROUNDDOWN(a uintptr) uintptr { return a & ^(PGSIZE - 1) }
func PGGROUNDUP(a uintptr) uintptr   { return (a + PGSIZE - 1) & ^(PGSIZE - 1) }

// sstatus bits referenced by the trap frame and process exec path.
const (
	RISCV_SSTATUS_SIE  = 1 << 1
	RISCV_SSTATUS_SPIE = 1 << 5
	RISCV_SSTATUS_SPP  = 1 << 8
)

// scause values for the supervisor interrupt sources; all other causes are
// exceptions and are routed to handleSmodeException /
// handleUmodeException by kernelTrap.
const (
	SCAUSE_SSI = 0x8000000000000001 // supervisor software interrupt
	SCAUSE_STI = 0x8000000000000005 // supervisor timer interrupt
	SCAUSE_SEI = 0x8000000000000009 // supervisor external interrupt
)

// CSR accessors. These are implemented in the assembly/runtime layer this
// package links against; the contract is a single CSR read or
// read-modify-write instruction with no side effects beyond the CSR itself.

//go:linkname r_sstatus r_sstatus
func r_sstatus() uintptr

//go:linkname w_sstatus w_sstatus
func w_sstatus(x uintptr)

//go:linkname r_sip r_sip
func r_sip() uintptr

//go:linkname w_sip w_sip
func w_sip(x uintptr)

//go:linkname r_sie r_sie
func r_sie() uintptr

//go:linkname w_sie w_sie
func w_sie(x uintptr)

//go:linkname r_scause r_scause
func r_scause() uintptr

//go:linkname r_sepc r_sepc
func r_sepc() uintptr

//go:linkname w_sepc w_sepc
func w_sepc(x uintptr)

//go:linkname r_satp r_satp
func r_satp() uintptr

//go:linkname w_satp w_satp
func w_satp(x uintptr)

//go:linkname sfence_vma sfence_vma
func sfence_vma()

//go:linkname intr_on intr_on
func intr_on()

//go:linkname intr_off intr_off
func intr_off()

//go:linkname intr_get intr_get
func intr_get() bool

// SATP_MODE_SV39 / MAKE_SATP build the satp CSR value for the paging mode,
// ASID, and root page table physical page number this kernel uses as the
// "memory-space tag" (spec Data Model: Memory-space tag).
const SATP_MODE_SV39 = uintptr(8) << 60

func MAKE_SATP(ppn uintptr) uintptr { return SATP_MODE_SV39 | (ppn>>12)&0xFFFFFFFFFFF }
