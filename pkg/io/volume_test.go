package io

import (
	"bytes"
	"testing"

	"github.com/weberc2/ext2fs/pkg/device"
	. "github.com/weberc2/ext2fs/pkg/types"
)

func TestVolume_BlockMapping(t *testing.T) {
	dev := device.NewMemory(16)
	v := NewVolume(dev, 1) // 2048-byte blocks

	if v.Len() != 8 {
		t.Fatalf("Len(): wanted `8`; found `%d`", v.Len())
	}

	p := bytes.Repeat([]byte{0xab}, int(v.BlockSize()))
	if err := v.WriteBlock(3, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// filesystem block 3 is device blocks 6 and 7
	for _, index := range []uint64{6, 7} {
		var b [DeviceBlockSize]byte
		if err := dev.ReadBlock(index, &b); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b[0] != 0xab || b[DeviceBlockSize-1] != 0xab {
			t.Fatalf("device block `%d` not written", index)
		}
	}
	if dev.Stored() != 2 {
		t.Fatalf("wanted `2` device blocks written; found `%d`", dev.Stored())
	}
}

func TestVolume_WriteAtPreservesNeighbors(t *testing.T) {
	v := NewVolume(device.NewMemory(4), 0)
	if err := v.WriteBlock(2, bytes.Repeat([]byte{1}, 1024)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.WriteAt(2, 100, []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := make([]byte, 7)
	if err := v.ReadAt(2, 99, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wanted := []byte("\x01hello\x01"); !bytes.Equal(p, wanted) {
		t.Fatalf("wanted `%q`; found `%q`", wanted, p)
	}
}

func TestVolume_CrossingBoundaryPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("wanted panic")
		}
	}()
	v := NewVolume(device.NewMemory(4), 0)
	_ = v.WriteAt(1, 1020, make([]byte, 8))
}
