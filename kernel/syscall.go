package main

import "unsafe"

// Syscall dispatch: fd is a plain index into the 16-slot per-process I/O
// table, -EBADFD on an out-of-range or unused slot, and a negative fd
// argument to devopen/fsopen/pipe/iodup means "pick the lowest free slot"
// rather than a specific one.
const (
	SYSCALL_EXIT     = 0
	SYSCALL_EXEC     = 1
	SYSCALL_FORK     = 2
	SYSCALL_WAIT     = 3
	SYSCALL_PRINT    = 4
	SYSCALL_USLEEP   = 5
	SYSCALL_DEVOPEN  = 10
	SYSCALL_FSOPEN   = 11
	SYSCALL_FSCREATE = 12
	SYSCALL_FSDELETE = 13
	SYSCALL_CLOSE    = 16
	SYSCALL_READ     = 17
	SYSCALL_WRITE    = 18
	SYSCALL_IOCTL    = 19
	SYSCALL_PIPE     = 20
	SYSCALL_IODUP    = 21
)

// dispatchSyscall reads the syscall number from a7, the arguments from
// a0-a2, runs the handler, and writes the result back into a0. sepc has
// already been advanced past the ecall by the caller.
func dispatchSyscall(tfr *trapFrame) {
	var rc int64
	switch tfr.a7 {
	case SYSCALL_EXIT:
		rc = int64(sysExit())
	case SYSCALL_EXEC:
		rc = int64(sysExec(int(tfr.a0), int(tfr.a1), tfr.a2))
	case SYSCALL_FORK:
		rc = int64(sysFork(tfr))
	case SYSCALL_WAIT:
		rc = int64(sysWait(int(tfr.a0)))
	case SYSCALL_PRINT:
		rc = int64(sysPrint(tfr.a0))
	case SYSCALL_USLEEP:
		rc = int64(sysUsleep(uint64(tfr.a0)))
	case SYSCALL_DEVOPEN:
		rc = int64(sysDevopen(int(tfr.a0), tfr.a1, int(tfr.a2)))
	case SYSCALL_FSOPEN:
		rc = int64(sysFsopen(int(tfr.a0), tfr.a1))
	case SYSCALL_FSCREATE:
		rc = int64(sysFscreate(tfr.a0))
	case SYSCALL_FSDELETE:
		rc = int64(sysFsdelete(tfr.a0))
	case SYSCALL_CLOSE:
		rc = int64(sysClose(int(tfr.a0)))
	case SYSCALL_READ:
		rc = int64(sysRead(int(tfr.a0), tfr.a1, int(tfr.a2)))
	case SYSCALL_WRITE:
		rc = int64(sysWrite(int(tfr.a0), tfr.a1, int(tfr.a2)))
	case SYSCALL_IOCTL:
		rc = int64(sysIoctl(int(tfr.a0), int(tfr.a1), tfr.a2))
	case SYSCALL_PIPE:
		rc = int64(sysPipe(tfr.a0, tfr.a1))
	case SYSCALL_IODUP:
		rc = int64(sysIodup(int(tfr.a0), int(tfr.a1)))
	default:
		rc = -ENOTSUP
	}
	tfr.a0 = uintptr(rc)
}

func currentProcessOrPanic() *process {
	p := runningThreadProcess()
	if p == nil {
		panic("syscall from a thread with no process")
	}
	return p
}

func sysExit() int {
	processExit(currentProcessOrPanic())
	return 0
}

func sysExec(fd, argc int, argvUser uintptr) int {
	proc := currentProcessOrPanic()
	if argc < 0 || argvUser == 0 || fd < 0 || fd >= PROCESS_IOMAX || proc.iotab[fd].hdr == nil {
		return -EBADFD
	}
	argv := copyArgvFromUser(argvUser, argc)
	return processExec(proc.iotab[fd], argc, argv)
}

// copyArgvFromUser reads an argc-length array of user string pointers at
// argvUser (each a uintptr in this single-address-space kernel, since
// user and kernel share the same page table) and copies out Go strings.
func copyArgvFromUser(argvUser uintptr, argc int) []string {
	out := make([]string, argc)
	for i := 0; i < argc; i++ {
		p := *(*uintptr)(unsafe.Pointer(argvUser + uintptr(i)*8))
		out[i] = goCString(p)
	}
	return out
}

func goCString(p uintptr) string {
	n := 0
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = *(*byte)(unsafe.Pointer(p + uintptr(i)))
	}
	return string(buf)
}

func sysFork(tfr *trapFrame) int {
	tid, rc := processFork(tfr)
	if rc != 0 {
		return rc
	}
	return tid
}

func sysWait(tid int) int {
	if tid < 0 {
		return -EINVAL
	}
	rtid, rc := threadJoin(tid)
	if rc != 0 {
		return rc
	}
	return rtid
}

func sysPrint(msgUser uintptr) int {
	msg := goCString(msgUser)
	kprintf("Thread <%s:%d> says: %s\n", threadName(runningThread), runningThread.id, msg)
	return 0
}

// sysUsleep converts a microsecond count to hardware ticks at TIMER_FREQ
// and blocks on a stack-local alarm.
func sysUsleep(us uint64) int {
	var a alarm
	alarmInit(&a, "usleep")
	ticks := us * uint64(TIMER_FREQ) / 1000000
	alarmSleep(&a, ticks)
	return 0
}

func sysDevopen(fd int, nameUser uintptr, instance int) int {
	proc := currentProcessOrPanic()
	desc, rc := resolveFd(proc, fd)
	if rc != 0 {
		return rc
	}
	name := goCString(nameUser)
	ep, rc := openDevice(name, instance)
	if rc != 0 {
		return rc
	}
	proc.iotab[desc] = ep
	return desc
}

func sysFsopen(fd int, nameUser uintptr) int {
	proc := currentProcessOrPanic()
	desc, rc := resolveFd(proc, fd)
	if rc != 0 {
		return rc
	}
	if rootFS == nil {
		return -ENODEV
	}
	name := goCString(nameUser)
	ep, rc := rootFS.fsOpen(name)
	if rc != 0 {
		return rc
	}
	proc.iotab[desc] = ep
	return desc
}

// resolveFd implements the "fd < 0 means pick the lowest free slot"
// convention shared by devopen/fsopen/pipe/iodup; a non-negative fd must
// name a currently-unused slot.
func resolveFd(proc *process, fd int) (int, int) {
	if fd < 0 {
		desc := allocIOSlot(proc)
		if desc < 0 {
			return 0, -EBADFD
		}
		return desc, 0
	}
	if fd >= PROCESS_IOMAX || proc.iotab[fd].hdr != nil {
		return 0, -EBADFD
	}
	return fd, 0
}

func sysFscreate(nameUser uintptr) int {
	if rootFS == nil {
		return -ENODEV
	}
	return rootFS.fsCreate(goCString(nameUser))
}

func sysFsdelete(nameUser uintptr) int {
	if rootFS == nil {
		return -ENODEV
	}
	return rootFS.fsDelete(goCString(nameUser))
}

func sysClose(fd int) int {
	proc := currentProcessOrPanic()
	if fd < 0 || fd >= PROCESS_IOMAX || proc.iotab[fd].hdr == nil {
		return -EBADFD
	}
	ioClose(proc.iotab[fd])
	proc.iotab[fd] = ioRef{}
	return 0
}

func sysRead(fd int, bufUser uintptr, n int) int {
	proc := currentProcessOrPanic()
	if fd < 0 || fd >= PROCESS_IOMAX || proc.iotab[fd].hdr == nil {
		return -EBADFD
	}
	return ioReadRaw(proc.iotab[fd], bufUser, n)
}

func sysWrite(fd int, bufUser uintptr, n int) int {
	proc := currentProcessOrPanic()
	if fd < 0 || fd >= PROCESS_IOMAX || proc.iotab[fd].hdr == nil {
		return -EBADFD
	}
	return ioWrite(proc.iotab[fd], bufUser, n)
}

func sysIoctl(fd, cmd int, argUser uintptr) int {
	proc := currentProcessOrPanic()
	if fd < 0 || fd >= PROCESS_IOMAX || proc.iotab[fd].hdr == nil {
		return -EBADFD
	}
	return ioCntl(proc.iotab[fd], cmd, argUser)
}

// sysPipe allocates a connected writer/reader pair and installs them at
// the two requested (or auto-picked) descriptors, rolling back if either
// slot can't be used.
func sysPipe(wfdUser, rfdUser uintptr) int {
	proc := currentProcessOrPanic()
	if wfdUser == 0 || rfdUser == 0 {
		return -EINVAL
	}
	wfd := int(*(*uintptr)(unsafe.Pointer(wfdUser)))
	rfd := int(*(*uintptr)(unsafe.Pointer(rfdUser)))

	wref, rref := createPipe()

	if wfd < 0 || rfd < 0 {
		for i := 0; i < PROCESS_IOMAX; i++ {
			if proc.iotab[i].hdr != nil {
				continue
			}
			if wfd < 0 {
				wfd = i
				continue
			}
			if rfd < 0 {
				rfd = i
				break
			}
		}
	}

	if wfd < 0 || rfd < 0 || wfd == rfd || wfd >= PROCESS_IOMAX || rfd >= PROCESS_IOMAX ||
		proc.iotab[wfd].hdr != nil || proc.iotab[rfd].hdr != nil {
		ioClose(wref)
		ioClose(rref)
		return -EBADFD
	}

	proc.iotab[wfd] = wref
	proc.iotab[rfd] = rref
	*(*uintptr)(unsafe.Pointer(wfdUser)) = uintptr(wfd)
	*(*uintptr)(unsafe.Pointer(rfdUser)) = uintptr(rfd)
	return 0
}

// sysIodup duplicates oldfd's reference into newfd (or the lowest free
// slot when newfd < 0), closing whatever newfd previously held.
func sysIodup(oldfd, newfd int) int {
	proc := currentProcessOrPanic()
	if oldfd < 0 || oldfd >= PROCESS_IOMAX || proc.iotab[oldfd].hdr == nil {
		return -EBADFD
	}
	if newfd < 0 {
		for newfd = 0; newfd < PROCESS_IOMAX; newfd++ {
			if proc.iotab[newfd].hdr == nil {
				break
			}
		}
	}
	if newfd >= PROCESS_IOMAX {
		return -EBADFD
	}
	if proc.iotab[newfd].hdr != nil {
		ioClose(proc.iotab[newfd])
	}
	proc.iotab[newfd] = ioAddRef(proc.iotab[oldfd])
	return 0
}
