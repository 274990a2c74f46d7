package main

import _ "unsafe"

//go:linkname get_end get_end
func get_end() uintptr

// KMain is the kernel's entry point from the boot trampoline: it brings
// up memory, threads, interrupts and devices in order (memory → heap →
// interrupts → threads → devices → processes), mounts the root file
// system off the first VirtIO block device, and execs the init program.
//
//export KMain
func KMain() {
	printf("kvminit...  ")
	kvminit()
	printf("OK\n")

	printf("kvminithart...  ")
	kvminithart()
	printf("OK\n")

	printf("heapinit... ")
	kimgEnd := get_end()
	heapStart := kimgEnd
	heapEnd := PGGROUNDUP(heapStart)
	if heapEnd-heapStart < HEAP_INIT_MIN {
		heapEnd += PGGROUNDUP(HEAP_INIT_MIN - (heapEnd - heapStart))
	}
	heapInit(heapStart, heapEnd)
	printf("OK\n")

	printf("kinit... ")
	kinit(heapEnd)
	printf("OK\n")

	printf("intrmgrinit... ")
	intrmgrInit()
	printf("OK\n")

	printf("threadsinit... ")
	threadsInit()
	printf("OK\n")

	printf("devmgrinit... ")
	devmgrInit()
	printf("OK\n")

	printf("trapinithart... ")
	trapinithart()
	printf("OK\n")

	printf("uartinit... ")
	uartInit()
	printf("OK\n")

	attachBlockDevices()

	printf("mount... ")
	mountRootFS()
	printf("OK\n")

	bootInitProcess()
}

// attachBlockDevices probes every VirtIO slot and attaches whatever
// responds as a block device.
func attachBlockDevices() {
	for i := 0; i < NVIRTIO; i++ {
		dev, rc := vioblkAttach(i)
		if rc != 0 {
			continue
		}
		vioblkDevices[i] = dev
		printf("vioblk%d attached: %d sectors\n", i, int(dev.capacity))
	}
}

// mountRootFS mounts the file system from the first attached VirtIO block
// device.
func mountRootFS() {
	for i := 0; i < NVIRTIO; i++ {
		if vioblkDevices[i] == nil {
			continue
		}
		backing := newIoRef(&vioblkEndpoint{dev: vioblkDevices[i]}, nil)
		fs, rc := mountFS(backing)
		if rc != 0 {
			panic("mountRootFS: mount failed")
		}
		rootFS = fs
		return
	}
	panic("mountRootFS: no block device to mount")
}

// bootInitProcess gives the main thread a process record and execs the
// init program. processExec never returns on success; it jumps straight
// into user mode.
func bootInitProcess() {
	initProc := &process{idx: 0, tid: 0}
	proctab[0] = initProc
	runningThread.proc = initProc

	image, rc := rootFS.fsOpen("trekfib")
	if rc != 0 {
		printf("bootInitProcess: open trekfib failed: %d\n", rc)
		panicHalt()
	}
	initProc.iotab[0] = image

	rc = processExec(image, 1, []string{"trekfib"})
	printf("bootInitProcess: exec failed: %d\n", rc)
	panicHalt()
}

func main() {}
