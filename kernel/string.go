package main

import "unsafe"

func memset(dst uintptr, c int, n uint) {
	for i := uint(0); i < n; i++ {
		*(*byte)(unsafe.Pointer(dst + uintptr(i))) = byte(c)
	}
}

func memcpy(dst, src uintptr, n uint) {
	for i := uint(0); i < n; i++ {
		*(*byte)(unsafe.Pointer(dst + uintptr(i))) = *(*byte)(unsafe.Pointer(src + uintptr(i)))
	}
}

func memcmp(a, b uintptr, n uint) int {
	for i := uint(0); i < n; i++ {
		ab := *(*byte)(unsafe.Pointer(a + uintptr(i)))
		bb := *(*byte)(unsafe.Pointer(b + uintptr(i)))
		if ab != bb {
			return int(ab) - int(bb)
		}
	}
	return 0
}

// strlen returns the length, not including the NUL terminator, of the
// C string at address s.
func strlen(s uintptr) int {
	n := 0
	for *(*byte)(unsafe.Pointer(s + uintptr(n))) != 0 {
		n++
	}
	return n
}

// strncpy copies at most n bytes from src to dst, NUL-padding the remainder
// of dst if src is shorter than n (standard C strncpy semantics).
func strncpy(dst, src uintptr, n int) {
	i := 0
	for ; i < n; i++ {
		c := *(*byte)(unsafe.Pointer(src + uintptr(i)))
		*(*byte)(unsafe.Pointer(dst + uintptr(i))) = c
		if c == 0 {
			break
		}
	}
	for ; i < n; i++ {
		*(*byte)(unsafe.Pointer(dst + uintptr(i))) = 0
	}
}

// goString converts a fixed-size NUL-padded byte buffer (as used in on-disk
// directory entries and thread/process names) into a Go string.
func goString(buf []byte) string {
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

// putString copies a Go string into a fixed-size NUL-padded byte buffer,
// truncating if necessary and always leaving room for the terminator.
func putString(buf []byte, s string) {
	n := len(buf) - 1
	if n > len(s) {
		n = len(s)
	}
	copy(buf, s[:n])
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
}
