package main

import "unsafe"

// VirtIO block driver: a fixed-size descriptor pool, one request header
// per in-flight slot, interrupt-driven completion via the used ring.

const (
	vioBlkDeviceID = 2

	blkReqIn    = 0
	blkReqOut   = 1
	blkReqFlush = 4
)

// virtioBlkReq mirrors the wire header struct virtio_blk_req.
type virtioBlkReq struct {
	typ      uint32
	reserved uint32
	sector   uint64
}

type vioblkSlot struct {
	inUse   bool
	length  uint32
	status  byte
	done    condition
	reqHdr  virtioBlkReq
	statusB byte
}

type vioblkDevice struct {
	base     uintptr
	irqno    int
	blkSize  uint32
	capacity uint64 // sectors
	segMax   uint32

	descs     []virtioDesc
	descAddr  uintptr
	availAddr uintptr
	usedAddr  uintptr
	availHdr  *virtioAvailHeader
	availRing []uint16
	usedHdr   *virtioUsedHeader
	usedRing  []virtioUsedElem
	lastUsed  uint16

	freeDesc []bool
	slots    [RINGLEN]vioblkSlot
	qlock    lock
}

var vioblkDevices [NVIRTIO]*vioblkDevice

// vioblkAttach verifies magic/device-id, negotiates required (ring-reset,
// indirect-desc) and requested (block size, topology) features, reads
// geometry, and builds the descriptor ring.
func vioblkAttach(instance int) (*vioblkDevice, int) {
	base := VIRTIO_MMIO_BASE(instance)
	if rc := virtioAttach(base, vioBlkDeviceID); rc != 0 {
		return nil, rc
	}

	required := []uint{vioFeatRingReset, vioFeatIndirectDesc}
	// VIRTIO_BLK_F_BLK_SIZE and VIRTIO_BLK_F_TOPOLOGY; the block-size and
	// seg-max config fields are read unconditionally below.
	requested := []uint{6, 10}
	if _, rc := virtioNegotiateFeatures(base, required, requested); rc != 0 {
		return nil, rc
	}

	d := &vioblkDevice{base: base, irqno: VIRTIO_IRQ_BASE + instance}
	lockInit(&d.qlock)
	for i := range d.slots {
		condInit(&d.slots[i].done, "vioblk_done")
	}

	d.capacity = vioRead64(base, vioRegConfig+0x00)
	d.segMax = vioRead32(base, vioRegConfig+0x0C)
	d.blkSize = vioRead32(base, vioRegConfig+0x14)
	if d.blkSize == 0 {
		d.blkSize = 512
	}
	if d.segMax == 0 {
		d.segMax = 1
	}

	nd := RINGLEN
	descBytes := uintptr(nd) * unsafe.Sizeof(virtioDesc{})
	availBytes := uintptr(4 + nd*2)
	usedBytes := uintptr(4 + nd*8)

	ringPage := allocPhysPage()
	if ringPage == 0 {
		return nil, -ENOMEM
	}
	memset(ringPage, 0, uint(PGSIZE))

	d.descAddr = ringPage
	d.availAddr = roundUp(d.descAddr+descBytes, 8)
	d.usedAddr = roundUp(d.availAddr+availBytes, 8)
	if d.usedAddr+usedBytes > ringPage+PGSIZE {
		return nil, -ENOMEM
	}

	d.descs = unsafe.Slice((*virtioDesc)(unsafe.Pointer(d.descAddr)), nd)
	d.availHdr = (*virtioAvailHeader)(unsafe.Pointer(d.availAddr))
	d.availRing = unsafe.Slice((*uint16)(unsafe.Pointer(d.availAddr+4)), nd)
	d.usedHdr = (*virtioUsedHeader)(unsafe.Pointer(d.usedAddr))
	d.usedRing = unsafe.Slice((*virtioUsedElem)(unsafe.Pointer(d.usedAddr+4)), nd)

	d.freeDesc = make([]bool, nd)
	for i := range d.freeDesc {
		d.freeDesc[i] = true
	}

	virtioAttachVirtq(base, 0, uint16(nd), d.descAddr, d.availAddr, d.usedAddr)
	virtioDriverOK(base)

	enableIntrSource(d.irqno, VIOBLK_INTR_PRIO, vioblkISR, unsafe.Pointer(d))
	vioblkDevices[instance] = d
	return d, 0
}

func vioRead64(base uintptr, off uintptr) uint64 { return *vioReg64(base, off) }

// allocDescChain reserves n contiguous-by-linking (but not necessarily
// contiguous-by-index) free descriptors, returning their indices chained
// via next. Fails -EBUSY if not enough are free.
func (d *vioblkDevice) allocDescChain(n int) ([]int, int) {
	chain := make([]int, 0, n)
	for i := range d.freeDesc {
		if d.freeDesc[i] {
			chain = append(chain, i)
			if len(chain) == n {
				for _, idx := range chain {
					d.freeDesc[idx] = false
				}
				return chain, 0
			}
		}
	}
	return nil, -EBUSY
}

// submit builds a header|data...|status descriptor chain, places the
// chain head into the available ring, and waits on the slot's completion
// condition.
func (d *vioblkDevice) submit(reqType uint32, pos uint64, buf uintptr, n int) int {
	if pos%uint64(d.blkSize) != 0 || uint64(n)%uint64(d.blkSize) != 0 {
		return -EINVAL
	}
	sector := pos / 512
	if pos/uint64(d.blkSize) >= d.capacity*512/uint64(d.blkSize) {
		return -EINVAL
	}

	numData := (n + int(d.segMax) - 1) / int(d.segMax)
	if numData == 0 {
		numData = 1
	}
	total := 1 + numData + 1

	lockAcquire(&d.qlock)
	chain, rc := d.allocDescChain(total)
	if rc != 0 {
		lockRelease(&d.qlock)
		return rc
	}

	slotIdx := chain[0]
	slot := &d.slots[slotIdx]
	slot.inUse = true
	slot.status = 0xFF
	slot.reqHdr = virtioBlkReq{typ: reqType, sector: sector}

	hdrDesc := &d.descs[chain[0]]
	hdrDesc.addr = uint64(uintptr(unsafe.Pointer(&slot.reqHdr)))
	hdrDesc.len = uint32(unsafe.Sizeof(virtioBlkReq{}))
	hdrDesc.flags = descFNext
	hdrDesc.next = int16(chain[1])

	remain := n
	off := 0
	for i := 0; i < numData; i++ {
		segLen := remain
		if segLen > int(d.segMax) {
			segLen = int(d.segMax)
		}
		dd := &d.descs[chain[1+i]]
		dd.addr = uint64(buf + uintptr(off))
		dd.len = uint32(segLen)
		dd.flags = descFNext
		if reqType == blkReqIn {
			dd.flags |= descFWrite
		}
		dd.next = int16(chain[2+i])
		remain -= segLen
		off += segLen
	}

	statusDesc := &d.descs[chain[total-1]]
	statusDesc.addr = uint64(uintptr(unsafe.Pointer(&slot.statusB)))
	statusDesc.len = 1
	statusDesc.flags = descFWrite
	statusDesc.next = -1

	ringIdx := d.availHdr.idx % uint16(len(d.availRing))
	d.availRing[ringIdx] = uint16(chain[0])
	sync_barrier()
	d.availHdr.idx++
	virtioNotify(d.base, 0)

	for slot.inUse {
		lockRelease(&d.qlock)
		condWait(&slot.done)
		lockAcquire(&d.qlock)
	}
	lockRelease(&d.qlock)

	if slot.status != 0 {
		return -EIO
	}
	return n
}

func (d *vioblkDevice) readAt(pos uint64, buf uintptr, n int) int {
	return d.submit(blkReqIn, pos, buf, n)
}

func (d *vioblkDevice) writeAt(pos uint64, buf uintptr, n int) int {
	return d.submit(blkReqOut, pos, buf, n)
}

// vioblkISR drains the used ring, clears every descriptor in each
// completed chain back to free, records returned length/status, marks
// the slot not in use, broadcasts, and acknowledges.
func vioblkISR(srcno int, aux unsafe.Pointer) {
	d := (*vioblkDevice)(aux)
	status := vioRead32(d.base, vioRegInterruptStatus)
	if status == 0 {
		return
	}

	for d.lastUsed != d.usedHdr.idx {
		elem := d.usedRing[d.lastUsed%uint16(len(d.usedRing))]
		head := int(elem.id)

		slot := &d.slots[head]
		slot.length = elem.len
		slot.status = slot.statusB
		slot.inUse = false

		idx := head
		for idx >= 0 {
			next := int(d.descs[idx].next)
			hasNext := d.descs[idx].flags&descFNext != 0
			d.freeDesc[idx] = true
			if !hasNext {
				break
			}
			idx = next
		}

		condBroadcast(&slot.done)
		d.lastUsed++
	}

	vioWrite32(d.base, vioRegInterruptAck, status)
}

func (d *vioblkDevice) ioctl(cmd int, arg uintptr) int {
	switch cmd {
	case IOCTL_GETBLKSZ:
		return int(d.blkSize)
	case IOCTL_GETEND:
		*(*uint64)(unsafe.Pointer(arg)) = d.capacity * 512
		return 0
	default:
		return -ENOTSUP
	}
}

// close disables the interrupt source and resets the queue.
func (d *vioblkDevice) close() {
	disableIntrSource(d.irqno)
	vioWrite32(d.base, vioRegQueueSel, 0)
	vioWrite32(d.base, vioRegQueueReady, 0)
}

// vioblkEndpoint adapts vioblkDevice to the ioEndpoint interface so it can
// be registered in the device table like any other endpoint.
type vioblkEndpoint struct {
	baseEndpoint
	dev *vioblkDevice
}

func (e *vioblkEndpoint) ioClose()                                     { e.dev.close() }
func (e *vioblkEndpoint) ioCntl(cmd int, arg uintptr) int               { return e.dev.ioctl(cmd, arg) }
func (e *vioblkEndpoint) ioReadAt(pos uint64, buf uintptr, n int) int   { return e.dev.readAt(pos, buf, n) }
func (e *vioblkEndpoint) ioWriteAt(pos uint64, buf uintptr, n int) int  { return e.dev.writeAt(pos, buf, n) }
