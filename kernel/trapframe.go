package main

import "unsafe"

// Trap frame and trap dispatch: full exception/interrupt/syscall fan-out
// from a single S-mode entry point. The assembly entry glue and
// trap_frame_jump stay external asm contracts; this file only defines the
// frame layout and the S-mode dispatcher that decides where a trap goes.

// trapFrame mirrors the saved-register layout field for field, since
// trap_frame_jump (the asm trampoline that resumes user execution from
// one) indexes into it by fixed offset.
type trapFrame struct {
	a0, a1, a2, a3, a4, a5, a6, a7 uintptr
	t0, t1, t2, t3, t4, t5, t6     uintptr
	s1, s2, s3, s4, s5, s6, s7     uintptr
	s8, s9, s10, s11               uintptr
	ra, sp, gp, tp                 uintptr
	sstatus                        uintptr
	instret                        uint64
	fp                             uintptr
	sepc                           uintptr
}

//go:linkname trapFrameJump trap_frame_jump
func trapFrameJump(tfr *trapFrame, sscratch uintptr)

//go:linkname trapinithart trapinithart
func trapinithart()

// kernelTrap is the single S-mode trap entry point, linked to the
// assembly trap vector. cause is the raw scause value; tfr is non-nil
// only when the trap was taken from U-mode (the
// entry glue builds a trap frame only in that case, since S-mode traps use
// the kernel stack of the interrupted thread directly).
//
//export kernelTrap
func kernelTrap(cause uintptr, tfr *trapFrame) {
	fromUser := tfr != nil

	switch {
	case cause&(uintptr(1)<<63) != 0:
		handleInterrupt(cause&^(uintptr(1)<<63), fromUser)
	case fromUser:
		handleUmodeException(cause, tfr)
	default:
		handleSmodeException(cause)
	}
}

const (
	causeSSI = 1 // supervisor software interrupt
	causeSTI = 5 // supervisor timer interrupt
	causeSEI = 9 // supervisor external interrupt
)

func handleInterrupt(code uintptr, fromUser bool) {
	switch code {
	case causeSTI:
		w_sip(r_sip() &^ 2)
		handleTimerInterrupt(readTimerTicks())
	case causeSEI:
		handleExternalInterrupt()
	default:
		printf("kernelTrap: unknown interrupt cause %x\n", code)
		panicHalt()
	}
	if runningThread != nil && runningThread.state == THREAD_RUNNING {
		// Implicit suspension point: returning from an interrupt taken
		// in user mode yields, enabling preemption.
		if fromUser {
			threadYield()
		}
	}
}

//go:linkname readTimerTicks read_timer_ticks
func readTimerTicks() uint64

// handleSmodeException covers faults the kernel itself takes; these
// indicate a broken invariant and halt the machine.
func handleSmodeException(cause uintptr) {
	printf("handleSmodeException: unexpected S-mode exception %x at %x\n", cause, r_sepc())
	panicHalt()
}

// Exception causes this kernel recognizes from U-mode.
const (
	excECallUmode     = 8
	excInstrPageFault = 12
	excLoadPageFault   = 13
	excStorePageFault  = 15
	excIllegalInstr    = 2
)

// handleUmodeException routes ecall to the syscall dispatcher, routes
// page faults to the page-table manager's recoverable-fault path, and
// kills the process for anything else.
func handleUmodeException(cause uintptr, tfr *trapFrame) {
	switch cause {
	case excECallUmode:
		tfr.sepc += 4
		dispatchSyscall(tfr)
	case excLoadPageFault, excStorePageFault, excInstrPageFault:
		faultAddr := r_stval()
		if rc := handleUmodePageFault(faultAddr); rc != 0 {
			killFaultingProcess(tfr, "page fault outside user range")
			return
		}
		// The faulting instruction is restarted automatically: sepc is
		// left unchanged, and trap_frame_jump resumes exactly there.
	default:
		killFaultingProcess(tfr, "unrecoverable exception")
	}
}

//go:linkname r_stval r_stval
func r_stval() uintptr

func killFaultingProcess(tfr *trapFrame, reason string) {
	printf("process killed: %s (sepc=%x)\n", reason, tfr.sepc)
	if p := runningThread.proc; p != nil {
		processExit(p)
	} else {
		threadExit()
	}
}

//go:linkname panicHalt panic_halt
func panicHalt()

// buildInitialTrapFrame fills in the fields processExec needs before
// jumping into a freshly loaded ELF image.
func buildInitialTrapFrame(tfr *trapFrame, entry, sp uintptr, argc int, argvUser uintptr, tp uintptr) {
	*tfr = trapFrame{}
	tfr.sepc = entry
	tfr.sp = sp
	tfr.a0 = uintptr(argc)
	tfr.a1 = argvUser
	tfr.tp = tp
	tfr.sstatus = (r_sstatus() &^ RISCV_SSTATUS_SPP) | RISCV_SSTATUS_SPIE
}

var _ = unsafe.Sizeof(trapFrame{})
