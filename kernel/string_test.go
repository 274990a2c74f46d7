package main

import (
	"testing"
	"unsafe"
)

func addrOf(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }

func TestMemsetMemcpyMemcmp(t *testing.T) {
	dst := make([]byte, 8)
	memset(addrOf(dst), 0x7A, 8)
	for i, b := range dst {
		if b != 0x7A {
			t.Fatalf("dst[%d] = %x, want 0x7a", i, b)
		}
	}

	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	memcpy(addrOf(dst), addrOf(src), 8)
	if memcmp(addrOf(dst), addrOf(src), 8) != 0 {
		t.Fatalf("memcpy did not copy bytes identically")
	}

	src[3] = 99
	if memcmp(addrOf(dst), addrOf(src), 8) == 0 {
		t.Fatalf("memcmp should detect the difference at index 3")
	}
}

func TestGoStringAndPutString(t *testing.T) {
	buf := make([]byte, 8)
	putString(buf, "hi")
	if got := goString(buf); got != "hi" {
		t.Errorf("got %q, want \"hi\"", got)
	}

	putString(buf, "way too long for this buffer")
	if got := goString(buf); got != "way too" {
		t.Errorf("got %q, want \"way too\" (truncated to 7 bytes + NUL)", got)
	}
}

func TestStrlen(t *testing.T) {
	buf := []byte("hello\x00garbage")
	if n := strlen(addrOf(buf)); n != 5 {
		t.Errorf("strlen = %d, want 5", n)
	}
}
