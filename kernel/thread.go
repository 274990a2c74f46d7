package main

import "unsafe"

// Thread scheduler: a ready-list scheduler with explicit main/idle
// threads over a fixed thread table. The context-switch trampoline
// itself (_thread_swtch) stays an external asm contract.

type threadState int

const (
	THREAD_UNINIT threadState = iota
	THREAD_WAITING
	THREAD_RUNNING
	THREAD_READY
	THREAD_EXITED
)

// threadContext is the callee-saved register save area swapped by
// _thread_swtch; its layout (s0-s11, ra, sp) must match the assembly
// trampoline's contract exactly.
type threadContext struct {
	s0, s1, s2, s3, s4, s5, s6, s7, s8, s9, s10, s11 uintptr
	ra, sp                                           uintptr
}

// stackAnchor sits at the top of every kernel stack so trap entry from
// user mode can recover kernel tp/gp.
type stackAnchor struct {
	ktp uintptr // *thread of the owning thread
	kgp uintptr
}

type thread struct {
	ctx         threadContext // must stay first: the asm trampoline indexes into it directly
	id          int
	state       threadState
	name        [32]byte
	anchor      *stackAnchor
	stackBase   uintptr
	parent      *thread
	listNext    *thread
	waitCond    *condition
	childExit   condition
	lockList    *lock
	proc        *process
	entryFn     func()
	argRegs     [8]uintptr
}

var thrtab [NTHR]thread
var readyHead, readyTail *thread
var runningThread *thread
var mainThread, idleThread *thread
var threadsInitialized bool

func threadName(t *thread) string { return goString(t.name[:]) }

func setThreadName(t *thread, name string) { putString(t.name[:], name) }

// criticalEnter/criticalExit bracket mutations that must happen with
// interrupts disabled (ready list, wait lists, lock lists, thread/process
// table). On this single-hart kernel that is the entire mutual-exclusion
// mechanism; there is no second hart to race with.
func criticalEnter() bool {
	was := intr_get()
	intr_off()
	return was
}

func criticalExit(was bool) {
	if was {
		intr_on()
	}
}

func tlPushBack(head, tail **thread, t *thread) {
	t.listNext = nil
	if *tail == nil {
		*head = t
		*tail = t
	} else {
		(*tail).listNext = t
		*tail = t
	}
}

func tlPopFront(head, tail **thread) *thread {
	t := *head
	if t == nil {
		return nil
	}
	*head = t.listNext
	if *head == nil {
		*tail = nil
	}
	t.listNext = nil
	return t
}

func readyListPush(t *thread) { tlPushBack(&readyHead, &readyTail, t) }
func readyListPop() *thread   { return tlPopFront(&readyHead, &readyTail) }

// threadsInit sets up the fixed thread table and the two static threads:
// main (id 0, RUNNING at boot) and idle (last slot, READY at boot).
func threadsInit() {
	for i := range thrtab {
		thrtab[i].id = i
		thrtab[i].state = THREAD_UNINIT
	}
	mainThread = &thrtab[0]
	mainThread.state = THREAD_RUNNING
	setThreadName(mainThread, "main")
	runningThread = mainThread

	idleThread = &thrtab[NTHR-1]
	setThreadName(idleThread, "idle")
	if rc := buildThreadContext(idleThread, idleLoop, nil); rc != 0 {
		panic("threadsinit: out of memory for idle stack")
	}
	idleThread.state = THREAD_READY
	readyListPush(idleThread)

	threadsInitialized = true
}

// idleLoop yields while other ready work exists; otherwise it masks
// interrupts, issues a wait-for-interrupt hint, and unmasks them again
// across the sleep.
func idleLoop() {
	for {
		if readyHead != nil {
			threadYield()
			continue
		}
		intr_off()
		wfiHint()
		intr_on()
	}
}

//go:linkname wfiHint wfi_hint
func wfiHint()

//go:linkname threadSwtch thread_swtch
func threadSwtch(old, new *threadContext)

//go:linkname threadStartupTrampoline thread_startup_trampoline
func threadStartupTrampoline()

//go:linkname currentThreadEntryStub current_thread_entry_stub
func currentThreadEntryStub(a0, a1, a2, a3, a4, a5, a6, a7 uintptr)

// threadEntryDispatch is where every thread's context lands after its
// first switch-in, via ctx.s8. It cannot be a per-thread closure: a
// captured Go closure carries state (its upvalues) that a single
// context register cannot hold, unlike a bare C function pointer, so
// the startup trampoline always lands on this one fixed, non-capturing
// function instead. It recovers the thread's real entry point from the
// now-current thread's own record and calls it there, in Go, where
// calling a closure is unremarkable.
func threadEntryDispatch() {
	t := runningThread
	if t.entryFn != nil {
		t.entryFn()
	}
	threadExit()
}

// buildThreadContext allocates a full-page kernel stack whose top bytes
// are the stack anchor, stores entry and args on the thread record, and
// builds the context so the first switch into t enters the startup
// trampoline, which lands on threadEntryDispatch (ctx.s8) with args
// available in ctx.s0-s7 and thread_exit in ctx.s9, mirroring how a
// spawned thread's register file is populated before its first run.
func buildThreadContext(t *thread, entry func(), args []uintptr) int {
	stackPage := allocPhysPage()
	if stackPage == 0 {
		return -ENOMEM
	}
	memset(stackPage, 0, uint(PGSIZE))

	t.stackBase = stackPage
	top := stackPage + PGSIZE
	anchorAddr := top - unsafe.Sizeof(stackAnchor{})
	t.anchor = (*stackAnchor)(unsafe.Pointer(anchorAddr))
	t.anchor.ktp = uintptr(unsafe.Pointer(t))
	t.anchor.kgp = 0

	t.entryFn = entry
	t.argRegs = [8]uintptr{}
	for i, a := range args {
		if i < len(t.argRegs) {
			t.argRegs[i] = a
		}
	}

	t.ctx = threadContext{}
	t.ctx.sp = anchorAddr
	t.ctx.ra = reinterpretFuncPtr(threadStartupTrampoline)
	t.ctx.s8 = reinterpretFuncPtr(threadEntryDispatch)
	t.ctx.s9 = reinterpretFuncPtr(threadExit)
	t.ctx.s0 = t.argRegs[0]
	t.ctx.s1 = t.argRegs[1]
	t.ctx.s2 = t.argRegs[2]
	t.ctx.s3 = t.argRegs[3]
	t.ctx.s4 = t.argRegs[4]
	t.ctx.s5 = t.argRegs[5]
	t.ctx.s6 = t.argRegs[6]
	t.ctx.s7 = t.argRegs[7]

	return 0
}

//go:linkname reinterpretFuncPtr reinterpret_func_ptr
func reinterpretFuncPtr(f func()) uintptr

// threadSpawn allocates a thread record and hands it a fresh kernel
// stack and context built by buildThreadContext, then inserts it into
// the ready list.
func threadSpawn(name string, entry func(), args ...uintptr) (int, int) {
	was := criticalEnter()
	defer criticalExit(was)

	var t *thread
	for i := range thrtab {
		if thrtab[i].state == THREAD_UNINIT && i != NTHR-1 {
			t = &thrtab[i]
			break
		}
	}
	if t == nil {
		return 0, -EMTHR
	}

	if rc := buildThreadContext(t, entry, args); rc != 0 {
		return 0, rc
	}

	t.parent = runningThread
	t.waitCond = nil
	t.lockList = nil
	t.proc = nil
	condInit(&t.childExit, "child_exit")
	setThreadName(t, name)

	t.state = THREAD_READY
	readyListPush(t)
	return t.id, 0
}

// threadYield voluntarily gives up the CPU; the caller is placed back on
// the ready list as READY.
func threadYield() {
	runningThreadSuspend()
}

// runningThreadSuspend saves context, puts the caller back on the ready
// list if still RUNNING, pops the next thread (falling back to idle),
// installs its mspace, and switches.
func runningThreadSuspend() {
	was := criticalEnter()
	me := runningThread
	if me.state == THREAD_RUNNING {
		me.state = THREAD_READY
		readyListPush(me)
	}

	next := readyListPop()
	if next == nil {
		next = idleThread
	}
	next.state = THREAD_RUNNING
	runningThread = next

	if next.proc != nil {
		switchMspace(next.proc.mtag)
	} else {
		switchMspace(mainMtag)
	}

	oldCtx := &me.ctx
	newCtx := &next.ctx
	criticalExit(was)
	threadSwtch(oldCtx, newCtx)

	reapExitedThread()
}

// reapExitedThread frees the kernel stack of a thread that became EXITED
// while we were swapped out of the scheduler, as noted by the previously
// running thread on its way back in.
var pendingReap *thread

func reapExitedThread() {
	was := criticalEnter()
	if pendingReap != nil && pendingReap.state == THREAD_EXITED {
		t := pendingReap
		pendingReap = nil
		if t.stackBase != 0 {
			freePhysPage(t.stackBase)
			t.stackBase = 0
		}
	}
	criticalExit(was)
}

// threadExit releases every lock the caller holds (waking waiters), marks
// EXITED, broadcasts the thread's own child-exit condition to any
// joiner, and suspends for the last time.
func threadExit() {
	was := criticalEnter()
	me := runningThread
	for me.lockList != nil {
		l := me.lockList
		me.lockList = l.nextOwned
		l.nextOwned = nil
		l.owner = nil
		l.count = 0
		condBroadcastLocked(&l.cond)
	}
	me.state = THREAD_EXITED
	condBroadcastLocked(&me.childExit)
	pendingReap = me
	criticalExit(was)

	runningThreadSuspend()
	panic("thread_exit: suspend returned")
}

// threadJoin blocks until the target thread (or any child, if tid is 0)
// exits, then reports its id.
func threadJoin(tid int) (int, int) {
	me := runningThread
	if tid != 0 {
		if tid < 0 || tid >= NTHR {
			return 0, -EINVAL
		}
		target := &thrtab[tid]
		if target.parent != me {
			return 0, -EINVAL
		}
		for target.state != THREAD_EXITED {
			condWait(&target.childExit)
		}
		reclaimThread(target)
		return tid, 0
	}

	for {
		var waitOn *thread
		for i := range thrtab {
			t := &thrtab[i]
			if t.parent != me || t.state == THREAD_UNINIT {
				continue
			}
			if t.state == THREAD_EXITED {
				id := t.id
				reclaimThread(t)
				return id, 0
			}
			waitOn = t
		}
		if waitOn == nil {
			return 0, -EINVAL
		}
		// Wait on this specific child's own exit condition: a child
		// broadcasts its own childExit when it exits, not its
		// parent's, so waiting on me.childExit here would never wake.
		condWait(&waitOn.childExit)
	}
}

// reclaimThread reparents the exiting thread's remaining children to the
// caller and returns the slot to UNINIT.
func reclaimThread(t *thread) {
	was := criticalEnter()
	for i := range thrtab {
		if thrtab[i].parent == t {
			thrtab[i].parent = t.parent
		}
	}
	t.state = THREAD_UNINIT
	t.parent = nil
	t.proc = nil
	t.waitCond = nil
	criticalExit(was)
}
