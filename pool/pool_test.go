// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pool

import "testing"

type testStruct struct {
	a uint32
	b uint64
}

func TestAllocateWithoutAlignment(t *testing.T) {
	Reset()

	for i := 0; i < 32; i++ {
		if _, err := Allocate(4096, 0, 0); err != nil {
			t.Fatalf("allocation %d: unexpected error: %v", i, err)
		}
	}

	if _, err := Allocate(4096, 0, 0); err == nil {
		t.Fatal("expected out-of-memory error, got nil")
	}
}

func TestContiguousLayout(t *testing.T) {
	Reset()

	first, err := Allocate(1, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := uintptr(1); i < Bytes; i++ {
		addr, err := Allocate(1, 0, 0)
		if err != nil {
			t.Fatalf("allocation at offset %d: unexpected error: %v", i, err)
		}
		if addr-first != i {
			t.Fatalf("addr-first = %d, want %d", addr-first, i)
		}
	}

	if _, err := Allocate(1, 0, 0); err == nil {
		t.Fatal("expected out-of-memory error, got nil")
	}
}

func TestBaseAlignment(t *testing.T) {
	Reset()

	addr, err := Allocate(1, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr%64 != 0 {
		t.Fatalf("addr %% 64 = %d, want 0", addr%64)
	}
}

func TestAllocateAlignmentAndBoundary(t *testing.T) {
	Reset()

	if _, err := Allocate(1, 64, 4096); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 1 {
		t.Fatalf("offset = %d, want 1", offset)
	}

	if _, err := Allocate(1, 64, 4096); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 64+1 {
		t.Fatalf("offset = %d, want %d", offset, 64+1)
	}

	if _, err := Allocate(4090, 64, 4096); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 4096+4090 {
		t.Fatalf("offset = %d, want %d", offset, 4096+4090)
	}
}

func TestAllocateArray(t *testing.T) {
	Reset()

	arr, err := AllocateArray[testStruct](2, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(arr) != 2 {
		t.Fatalf("len(arr) = %d, want 2", len(arr))
	}
	for i, v := range arr {
		if v != (testStruct{}) {
			t.Fatalf("arr[%d] = %+v, want zero value", i, v)
		}
	}
}

func TestCeil(t *testing.T) {
	cases := []struct {
		value, align, want int
	}{
		{0, 64, 0},
		{1, 64, 64},
		{63, 64, 64},
		{64, 64, 64},
		{65, 64, 128},
	}

	for _, c := range cases {
		if got := ceil(c.value, c.align); got != c.want {
			t.Errorf("ceil(%d, %d) = %d, want %d", c.value, c.align, got, c.want)
		}
	}
}
