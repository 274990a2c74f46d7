package main

import "unsafe"

// PLIC-backed interrupt manager: per-source priority, routing to S-mode
// hart 0, and ISR dispatch via claim/complete. Source 0 is reserved as
// "no interrupt."

type isrFunc func(srcno int, aux unsafe.Pointer)

type isrSlot struct {
	isr isrFunc
	aux unsafe.Pointer
}

var isrTable [PLIC_SRC_CNT]isrSlot

const hart0 = 0

func plicWrite(addr uintptr, v uint32) { *(*uint32)(unsafe.Pointer(addr)) = v }
func plicRead(addr uintptr) uint32     { return *(*uint32)(unsafe.Pointer(addr)) }

// intrmgrInit sets all sources to priority 0 (disabled) and routes them to
// S-mode hart 0; S-mode timer and external interrupts are enabled in sie.
func intrmgrInit() {
	for src := 0; src < PLIC_SRC_CNT; src++ {
		plicWrite(PLIC_PRIORITY(src), 0)
	}
	for w := 0; w < PLIC_SRC_CNT/32; w++ {
		plicWrite(PLIC_SENABLE(hart0, w), 0)
	}
	for src := 1; src < PLIC_SRC_CNT; src++ {
		word := src / 32
		bit := uint32(1) << uint(src%32)
		plicWrite(PLIC_SENABLE(hart0, word), plicRead(PLIC_SENABLE(hart0, word))|bit)
	}
	plicWrite(uintptr(PLIC_SPRIORITY(hart0)), 0)

	w_sie(r_sie() | (1 << causeSTI) | (1 << causeSEI))
}

// enableIntrSource stores the ISR/aux in slot n and sets the PLIC priority
// for source n.
func enableIntrSource(srcno, prio int, isr isrFunc, aux unsafe.Pointer) {
	if srcno <= 0 || srcno >= PLIC_SRC_CNT {
		panic("enableIntrSource: source out of range")
	}
	isrTable[srcno] = isrSlot{isr: isr, aux: aux}
	plicWrite(PLIC_PRIORITY(srcno), uint32(prio))
}

func disableIntrSource(srcno int) {
	if srcno <= 0 || srcno >= PLIC_SRC_CNT {
		return
	}
	plicWrite(PLIC_PRIORITY(srcno), 0)
	isrTable[srcno] = isrSlot{}
}

// handleExternalInterrupt claims the source, ignores a spurious claim of
// 0, calls the registered ISR, and completes the interrupt with the PLIC.
func handleExternalInterrupt() {
	srcno := int(plicRead(PLIC_SCLAIM(hart0)))
	if srcno == 0 {
		return
	}
	slot := isrTable[srcno]
	if slot.isr == nil {
		printf("handleExternalInterrupt: no ISR registered for source %d\n", srcno)
		panicHalt()
	}
	slot.isr(srcno, slot.aux)
	plicWrite(PLIC_SCLAIM(hart0), uint32(srcno))
}
