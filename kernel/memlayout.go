package main

// Physical memory layout
//
// qemu -machine virt is set up like this, based on qemu's hw/riscv/virt.c:
//
// 00001000 -- boot ROM, provided by qemu
// 00101000 -- Goldfish RTC
// 02000000 -- CLINT
// 0C000000 -- PLIC
// 10000000 -- uart0, uart1, uart2 (0x100 apart)
// 10001000 -- virtio mmio slots 0..7 (0x1000 apart)
// 80000000 -- boot ROM jumps here in machine mode; -kernel loads here
// unused RAM after 80000000.
//
// The kernel uses physical memory thus:
// 80000000 -- entry.S, then kernel text and data
// end -- start of kernel page allocation area
// PHYSTOP -- end of RAM usable by the kernel

// NS16550-compatible UARTs. The kernel attaches UART0..UART2.
const (
	UART0_MMIO_BASE = uintptr(0x10000000)
	UART1_MMIO_BASE = uintptr(0x10000100)
	UART_IRQ_BASE   = 10
	NUART           = 3
)

func UART_MMIO_BASE(i int) uintptr {
	return UART0_MMIO_BASE + uintptr(i)*(UART1_MMIO_BASE-UART0_MMIO_BASE)
}

// VirtIO MMIO slots. 8 slots are identity-mapped at boot; slot 0 is the
// boot-time VirtIO-block device, per the "Boot to shell" scenario.
const (
	VIRTIO0_MMIO_BASE = uintptr(0x10001000)
	VIRTIO1_MMIO_BASE = uintptr(0x10002000)
	VIRTIO_IRQ_BASE   = 1
	NVIRTIO           = 8
)

func VIRTIO_MMIO_BASE(i int) uintptr {
	return VIRTIO0_MMIO_BASE + uintptr(i)*(VIRTIO1_MMIO_BASE-VIRTIO0_MMIO_BASE)
}

// Goldfish RTC.
const RTC_MMIO_BASE = uintptr(0x00101000)

// core local interruptor (CLINT), which contains the timer.
const (
	CLINT       = uintptr(0x2000000)
	CLINT_MTIME = CLINT + 0xBFF8
)

func CLINT_MTIMECMP(hartid int) uintptr { return CLINT + 0x4000 + 8*uintptr(hartid) }

// qemu puts the platform-level interrupt controller (PLIC) here.
const (
	PLIC          = uintptr(0x0c000000)
	PLIC_SRC_CNT  = 96 // QEMU VIRT_IRQCHIP_NUM_SOURCES
	PLIC_PRIO_MIN = 0
	PLIC_PRIO_MAX = 7
)

func PLIC_PRIORITY(srcno int) uintptr  { return PLIC + 4*uintptr(srcno) }
func PLIC_PENDING(srcno int) uintptr   { return PLIC + 0x1000 + 4*uintptr(srcno/32) }
func PLIC_SENABLE(hart, w int) uintptr { return PLIC + 0x2080 + uintptr(hart)*0x100 + 4*uintptr(w) }
func PLIC_SPRIORITY(hart int) uintptr  { return PLIC + 0x201000 + uintptr(hart)*0x2000 }
func PLIC_SCLAIM(hart int) uintptr     { return PLIC + 0x201004 + uintptr(hart)*0x2000 }

// the kernel expects there to be RAM for use by the kernel and user pages
// from physical address 0x80000000 to PHYSTOP.
const (
	KERNBASE = uintptr(0x80000000)
	RAMSIZE  = uintptr(128 * 1024 * 1024)
	PHYSTOP  = KERNBASE + RAMSIZE
)

// User virtual address range. The top page of this range is the initial
// user stack; UHEAP_START is where the userspace heap begins growing on
// demand via handleUmodePageFault.
const (
	UMEM_START_VMA = uintptr(0x0C0000000)
	UMEM_END_VMA   = uintptr(0x100000000)
	UHEAP_START    = uintptr(0xE0000000)
)
