package main

// Terminal wrapper. CRLF line-editing is out of scope; devopen("uart",n)
// still needs to hand back something that implements the ioEndpoint
// contract, so this is a minimal passthrough over the UART device
// endpoint rather than a state machine.
type terminalEndpoint struct {
	baseEndpoint
	backing ioRef
}

func createTerminalIO(backing ioRef) ioRef {
	t := &terminalEndpoint{backing: backing}
	return newIoRef(t, func() { ioClose(t.backing) })
}

func (t *terminalEndpoint) ioClose() {}

func (t *terminalEndpoint) ioCntl(cmd int, arg uintptr) int { return ioCntl(t.backing, cmd, arg) }
func (t *terminalEndpoint) ioRead(buf uintptr, n int) int   { return t.backing.ep.ioRead(buf, n) }
func (t *terminalEndpoint) ioWrite(buf uintptr, n int) int  { return t.backing.ep.ioWrite(buf, n) }
