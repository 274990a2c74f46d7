package main

import _ "unsafe"

// Synchronization primitives: condition variables, recursive locks, and
// the alarm/timed-sleep list. On a single hart, disabling interrupts
// around list manipulation (thread.go's criticalEnter/criticalExit) is
// the entire mutual-exclusion mechanism needed, so these primitives build
// directly on that rather than on a spinning lock that could never
// contend.

type condition struct {
	name string
	head *thread
	tail *thread
}

func condInit(c *condition, name string) {
	c.name = name
	c.head = nil
	c.tail = nil
}

// condWait requires the caller to be RUNNING; it records the condition it
// is waiting on, moves itself onto the condition's wait list as WAITING,
// and suspends. It returns only once this thread is next scheduled, i.e.
// after some broadcast made it READY again.
func condWait(c *condition) {
	was := criticalEnter()
	me := runningThread
	me.waitCond = c
	me.state = THREAD_WAITING
	tlPushBack(&c.head, &c.tail, me)
	criticalExit(was)

	runningThreadSuspend()
}

// condBroadcastLocked is condBroadcast's body, assuming the caller already
// holds the critical section (used by threadExit, which is already inside
// one when it releases locks on exit).
func condBroadcastLocked(c *condition) {
	for {
		t := tlPopFront(&c.head, &c.tail)
		if t == nil {
			break
		}
		t.waitCond = nil
		t.state = THREAD_READY
		readyListPush(t)
	}
}

// condBroadcast disables interrupts, drains the wait list, marks every
// thread READY, and appends each to the ready list in original order. It
// may be called from an ISR; it never blocks or context-switches.
func condBroadcast(c *condition) {
	was := criticalEnter()
	condBroadcastLocked(c)
	criticalExit(was)
}

// lock is a recursive mutex. nextOwned threads the owner's per-thread list
// of currently-held locks.
type lock struct {
	owner    *thread
	count    uint
	cond     condition
	nextOwned *lock
}

func lockInit(l *lock) {
	l.owner = nil
	l.count = 0
	l.nextOwned = nil
	condInit(&l.cond, "lock")
}

// lockAcquire is recursive for the current owner; otherwise waits on the
// lock's condition while an owner exists, then takes ownership and links
// itself onto the caller's per-thread lock list.
func lockAcquire(l *lock) {
	was := criticalEnter()
	me := runningThread
	if l.owner == me {
		l.count++
		criticalExit(was)
		return
	}
	for l.owner != nil {
		criticalExit(was)
		condWait(&l.cond)
		was = criticalEnter()
	}
	l.owner = me
	l.count = 1
	l.nextOwned = me.lockList
	me.lockList = l
	criticalExit(was)
}

// lockRelease decrements; at zero, unlinks from the owner's lock list,
// clears ownership, and broadcasts. Releasing a lock the caller does not
// own is a no-op.
func lockRelease(l *lock) {
	was := criticalEnter()
	me := runningThread
	if l.owner != me {
		criticalExit(was)
		return
	}
	l.count--
	if l.count > 0 {
		criticalExit(was)
		return
	}
	prev := &me.lockList
	for *prev != nil && *prev != l {
		prev = &(*prev).nextOwned
	}
	if *prev == l {
		*prev = l.nextOwned
	}
	l.nextOwned = nil
	l.owner = nil
	condBroadcastLocked(&l.cond)
	criticalExit(was)
}

// alarm tracks a thread waiting for a wakeup time. The sleep list is kept
// sorted ascending by twake so handleTimerInterrupt only ever inspects
// the head.
type alarm struct {
	cond  condition
	twake uint64
	next  *alarm
}

var sleepListHead *alarm
var ticksNow uint64

func alarmInit(a *alarm, name string) {
	condInit(&a.cond, name)
	a.twake = 0
	a.next = nil
}

// alarmSleep advances twake by ticks (saturating), inserts into the
// sorted sleep list if still in the future, reprograms the timer compare
// register if the new head changed, and waits.
func alarmSleep(a *alarm, ticks uint64) {
	was := criticalEnter()

	newWake := a.twake + ticks
	if newWake < a.twake { // saturate on overflow
		newWake = ^uint64(0)
	}
	a.twake = newWake

	if a.twake <= ticksNow {
		criticalExit(was)
		return
	}

	headChanged := sleepListHead == nil || a.twake < sleepListHead.twake
	prev := &sleepListHead
	for *prev != nil && (*prev).twake <= a.twake {
		prev = &(*prev).next
	}
	a.next = *prev
	*prev = a
	if headChanged {
		programTimerCompare(sleepListHead.twake)
	}
	criticalExit(was)

	condWait(&a.cond)
}

//go:linkname programTimerCompare program_timer_compare
func programTimerCompare(ticks uint64)

//go:linkname disableTimerIntr disable_timer_intr
func disableTimerIntr()

// handleTimerInterrupt pops all expired alarms from the head of the sleep
// list and broadcasts their conditions, then reprograms the compare
// register to the new head (or disables timer interrupts if the list is
// now empty).
func handleTimerInterrupt(now uint64) {
	ticksNow = now
	for sleepListHead != nil && sleepListHead.twake <= now {
		a := sleepListHead
		sleepListHead = a.next
		a.next = nil
		condBroadcast(&a.cond)
	}
	if sleepListHead != nil {
		programTimerCompare(sleepListHead.twake)
	} else {
		disableTimerIntr()
	}
}
