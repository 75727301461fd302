package gpu

import (
	"bytes"
	"testing"
)

func TestMemBufferSemantics(t *testing.T) {
	dev := NewMemDevice()

	buf, err := dev.NewBuffer("test", 10)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	// Sizes round up to 4-byte alignment.
	if buf.Size() != 12 {
		t.Errorf("Expected size 12, got %d", buf.Size())
	}

	if err := buf.Upload([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	data, err := buf.Download()
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.Equal(data[:4], []byte{1, 2, 3, 4}) {
		t.Errorf("Downloaded %v", data[:4])
	}

	// Download returns a copy, not the backing storage.
	data[0] = 99
	again, _ := buf.Download()
	if again[0] != 1 {
		t.Error("Download must copy")
	}

	if err := buf.Zero(); err != nil {
		t.Fatalf("Zero failed: %v", err)
	}
	zeroed, _ := buf.Download()
	for _, b := range zeroed {
		if b != 0 {
			t.Fatal("Zero must clear the buffer")
		}
	}

	if err := buf.Upload(make([]byte, 64)); err == nil {
		t.Error("Oversized upload must fail")
	}
}

func TestMemDeviceLaunch(t *testing.T) {
	dev := NewMemDevice()

	if err := dev.Launch(KernelVisibility, Dims{X: 1, Y: 1, Z: 1}); err == nil {
		t.Error("Launch of an unregistered kernel must fail")
	}

	var gotGrid Dims
	dev.RegisterKernel(KernelVisibility, func(grid Dims, buffers []*MemBuffer) error {
		gotGrid = grid
		buffers[0].Bytes()[0] = 7
		return nil
	})

	buf, _ := dev.NewBuffer("out", 4)
	if err := dev.Launch(KernelVisibility, Dims{X: 3, Y: 1, Z: 1}, buf); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if gotGrid.X != 3 {
		t.Errorf("Kernel saw grid %v", gotGrid)
	}
	data, _ := buf.Download()
	if data[0] != 7 {
		t.Error("Kernel writes must land in the buffer")
	}
}

func TestWorkgroupsFor(t *testing.T) {
	if g := WorkgroupsFor(0, 32); g.X != 0 {
		t.Errorf("Zero items need zero workgroups, got %d", g.X)
	}
	if g := WorkgroupsFor(1, 32); g.X != 1 {
		t.Errorf("One item needs one workgroup, got %d", g.X)
	}
	if g := WorkgroupsFor(33, 32); g.X != 2 {
		t.Errorf("33 items need two workgroups, got %d", g.X)
	}
}
