package main

import "unsafe"

// Process manager: exec/fork/exit plus the per-process fixed-size I/O
// table, built as small functions operating over a fixed-size global
// table.
type process struct {
	idx   int
	tid   int
	mtag  uintptr
	iotab [PROCESS_IOMAX]ioRef
}

var proctab [NPROC]*process

func runningThreadProcess() *process {
	if runningThread == nil {
		return nil
	}
	return runningThread.proc
}

// processExec discards the current user address space, loads the ELF
// image, builds the initial user stack with the argv vector at the bottom
// of the top page, constructs a trap frame, installs the space as the
// process's, and jumps into user mode (does not return).
func processExec(exeio ioRef, argc int, argv []string) int {
	proc := runningThreadProcess()
	if proc == nil {
		return -EINVAL
	}

	discardActiveMspace()
	entry, rc := elfLoad(exeio)
	if rc != 0 {
		return rc
	}

	stackVA := UMEM_END_VMA - PGSIZE
	if rc := allocAndMapRange(stackVA, PGSIZE, PTE_R|PTE_W|PTE_U); rc != 0 {
		return rc
	}

	stksz, rc := buildStack(stackVA, argc, argv)
	if rc != 0 {
		return rc
	}

	var tfr trapFrame
	argvUser := stackVA + (PGSIZE - uintptr(stksz))
	buildInitialTrapFrame(&tfr, entry, argvUser, argc, argvUser, uintptr(unsafe.Pointer(runningThread)))

	proc.mtag = MAKE_SATP(uintptr(activeRoot))
	proc.tid = runningThread.id

	trapFrameJump(&tfr, uintptr(unsafe.Pointer(runningThread.anchor)))
	panic("processExec: trap_frame_jump returned")
}

// buildStack lays out argv pointers (referencing addresses in the user
// view) followed by NUL-terminated strings, at the bottom of the top
// page, 16-byte aligned per the RISC-V ABI.
func buildStack(stackVA uintptr, argc int, argv []string) (int, int) {
	if uintptr(argc+1)*8 > PGSIZE {
		return 0, -ENOMEM
	}
	stksz := uintptr(argc+1) * 8
	for _, a := range argv {
		need := uintptr(len(a) + 1)
		if PGSIZE-stksz < need {
			return 0, -ENOMEM
		}
		stksz += need
	}
	stksz = roundUp(stksz, 16)
	if stksz > PGSIZE {
		return 0, -ENOMEM
	}

	newargvKVA := stackVA + PGSIZE - stksz
	pKVA := newargvKVA + uintptr(argc+1)*8
	userBase := stackVA // identity: kernel and user both see this page at the same VA post-switch

	for i, a := range argv {
		ptrSlot := (*uintptr)(unsafe.Pointer(newargvKVA + uintptr(i)*8))
		*ptrSlot = userBase + (pKVA - stackVA)
		for j := 0; j < len(a); j++ {
			*(*byte)(unsafe.Pointer(pKVA + uintptr(j))) = a[j]
		}
		*(*byte)(unsafe.Pointer(pKVA + uintptr(len(a)))) = 0
		pKVA += uintptr(len(a) + 1)
	}
	*(*uintptr)(unsafe.Pointer(newargvKVA + uintptr(argc)*8)) = 0

	return int(stksz), 0
}

// processFork allocates a process record, clones the address space,
// copies I/O table references, spawns a trampoline thread that resumes
// the parent's trap frame with a0=0 and the child's tp, then waits for it
// to signal done.
func processFork(tfr *trapFrame) (int, int) {
	parent := runningThreadProcess()
	if parent == nil {
		return 0, -EINVAL
	}

	var idx = -1
	for i := range proctab {
		if proctab[i] == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, -EMPROC
	}

	child := &process{idx: idx}
	proctab[idx] = child

	mtag, rc := cloneActiveMspace()
	if rc != 0 {
		proctab[idx] = nil
		return 0, rc
	}
	child.mtag = mtag

	for i := range parent.iotab {
		if parent.iotab[i].hdr != nil {
			child.iotab[i] = ioAddRef(parent.iotab[i])
		}
	}

	childTfr := *tfr

	done := &condition{}
	condInit(done, "fork_done")

	was := criticalEnter()
	tid, rc := threadSpawn("forked", nil)
	if rc != 0 {
		criticalExit(was)
		proctab[idx] = nil
		return 0, rc
	}
	child.tid = tid
	ct := &thrtab[tid]
	ct.proc = child
	ct.entryFn = func() { forkTrampoline(done, &childTfr, ct) }
	criticalExit(was)

	condWait(done)
	return tid, 0
}

// forkTrampoline overwrites a0/tp in the copied trap frame for the child,
// signals the parent, and jumps.
func forkTrampoline(done *condition, tfr *trapFrame, child *thread) {
	tfr.a0 = 0
	tfr.tp = uintptr(unsafe.Pointer(child))
	condBroadcast(done)
	trapFrameJump(tfr, uintptr(unsafe.Pointer(child.anchor)))
	panic("forkTrampoline: trap_frame_jump returned")
}

// processExit closes every I/O slot before freeing the record, then exits
// the thread.
func processExit(proc *process) {
	if proc.tid == 0 {
		panic("process_exit: main process exited")
	}
	for i := range proc.iotab {
		if proc.iotab[i].hdr != nil {
			ioClose(proc.iotab[i])
			proc.iotab[i] = ioRef{}
		}
	}
	proctab[proc.idx] = nil
	threadExit()
}

// allocIOSlot returns the lowest free I/O table slot, or -EMFILE.
func allocIOSlot(proc *process) int {
	for i := range proc.iotab {
		if proc.iotab[i].hdr == nil {
			return i
		}
	}
	return -EMFILE
}
