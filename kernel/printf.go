package main

import (
	_ "runtime"
	_ "unsafe"
)

// uart_putc is the raw UART0 transmit primitive implemented by the assembly/
// runtime layer. It is used directly for the very earliest boot messages,
// before uartInit has built the richer multi-instance driver table.
//
//go:linkname uart_putc uart_putc
func uart_putc(c byte)

// consoleInstance selects which attached UART instance console output
// goes to. Boot output goes to UART0.
var consoleInstance = 0

func consolePutc(c byte) {
	if !uartReady() {
		uart_putc(c)
		return
	}
	uartPutcInstance(consoleInstance, c)
}

func printInt(num int) {
	// Int in Go ranges from -9,223,372,036,854,775,808
	//					 to   9,223,372,036,854,775,807.
	// We need roughly 20 bytes to store it.
	var buf [20]byte
	i := 0

	if num < 0 {
		consolePutc('-')
		num = -num
	}
	if num == 0 {
		consolePutc('0')
		return
	}

	for num > 0 {
		buf[i] = byte(num%10) + '0'
		i++
		num = num / 10
	}

	for i = i - 1; i >= 0; i-- {
		consolePutc(buf[i])
	}
}

func printHex(num uintptr) {
	const digits = "0123456789abcdef"
	var buf [16]byte
	i := 0
	if num == 0 {
		consolePutc('0')
		return
	}
	for num > 0 {
		buf[i] = digits[num&0xF]
		i++
		num >>= 4
	}
	for i = i - 1; i >= 0; i-- {
		consolePutc(buf[i])
	}
}

func printString(str string) {
	for i := 0; i < len(str); i++ {
		consolePutc(str[i])
	}
}

// printf is a small, allocation-free formatter understanding %d %s %c %x %p
// and %%. It must stay allocation-free: the heap (kmalloc/kcalloc) may not
// be initialized yet when early boot messages are printed.
func printf(format string, args ...interface{}) {
	argIdx := 0
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			i++
			switch format[i] {
			case 'd':
				printInt(args[argIdx].(int))
				argIdx++
			case 's':
				printString(args[argIdx].(string))
				argIdx++
			case 'x', 'p':
				switch v := args[argIdx].(type) {
				case uintptr:
					printHex(v)
				case int:
					printHex(uintptr(v))
				case uint64:
					printHex(uintptr(v))
				default:
					consolePutc('?')
				}
				argIdx++
			case 'c':
				switch v := args[argIdx].(type) {
				case int:
					consolePutc(byte(v))
				case int32:
					consolePutc(byte(v))
				case byte:
					consolePutc(v)
				default:
					consolePutc('?')
				}
				argIdx++
			default:
				consolePutc('%')
				consolePutc(format[i])
			}
		} else {
			consolePutc(format[i])
		}
	}
}

// kprintf is the ordinary console print used by sysprint and boot-sequence
// messages.
func kprintf(format string, args ...interface{}) {
	printf(format, args...)
}

// klprintf mirrors the original's labelled debug/trace helper: it prefixes
// the message with "LABEL file:line: ".
func klprintf(label, file string, line int, format string, args ...interface{}) {
	printf("%s %s:%d: ", label, file, line)
	printf(format, args...)
}

func debugf(file string, line int, format string, args ...interface{}) {
	if DebugEnabled {
		klprintf("DEBUG", file, line, format, args...)
	}
}

func tracef(file string, line int, format string, args ...interface{}) {
	if TraceEnabled {
		klprintf("TRACE", file, line, format, args...)
	}
}
