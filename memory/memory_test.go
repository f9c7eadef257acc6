package memory

import "testing"

func TestReadWrite(t *testing.T) {
	b := NewRAM()
	b.PowerOn()
	b.Write(0x1234, 0xAB)
	if got, want := b.Read(0x1234), uint8(0xAB); got != want {
		t.Errorf("Read(0x1234) = 0x%02X, want 0x%02X", got, want)
	}
	if got, want := b.DatabusVal(), uint8(0xAB); got != want {
		t.Errorf("DatabusVal() = 0x%02X, want 0x%02X", got, want)
	}
}

func TestAliasing(t *testing.T) {
	b, err := New8BitRAMBank(256, nil)
	if err != nil {
		t.Fatalf("New8BitRAMBank: %v", err)
	}
	b.Write(0x0000, 0x42)
	if got, want := b.Read(0x0100), uint8(0x42); got != want {
		t.Errorf("aliased Read(0x0100) = 0x%02X, want 0x%02X (256 byte bank should alias every 256 bytes)", got, want)
	}
}

func TestNew8BitRAMBankBadSize(t *testing.T) {
	if _, err := New8BitRAMBank(100, nil); err == nil {
		t.Error("New8BitRAMBank(100, nil) succeeded, want error (not a power of 2)")
	}
	if _, err := New8BitRAMBank(1<<17, nil); err == nil {
		t.Error("New8BitRAMBank(1<<17, nil) succeeded, want error (bigger than 64k)")
	}
}

func TestLatestDatabusVal(t *testing.T) {
	parent := NewRAM()
	parent.Write(0x0000, 0x99)
	child, err := New8BitRAMBank(256, parent)
	if err != nil {
		t.Fatalf("New8BitRAMBank: %v", err)
	}
	if got, want := LatestDatabusVal(child), uint8(0x99); got != want {
		t.Errorf("LatestDatabusVal(child) = 0x%02X, want 0x%02X", got, want)
	}
}

func TestLoadProgram(t *testing.T) {
	b := NewRAM()
	prog := []uint8{0xA9, 0x01, 0x00}
	if err := LoadProgram(b, 0x0200, prog, 0x0200); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	for i, want := range prog {
		if got := b.Read(0x0200 + uint16(i)); got != want {
			t.Errorf("byte %d = 0x%02X, want 0x%02X", i, got, want)
		}
	}
	if got, want := b.Read(0xFFFC), uint8(0x00); got != want {
		t.Errorf("reset vector low = 0x%02X, want 0x%02X", got, want)
	}
	if got, want := b.Read(0xFFFD), uint8(0x02); got != want {
		t.Errorf("reset vector high = 0x%02X, want 0x%02X", got, want)
	}
}

func TestLoadProgramOutOfRange(t *testing.T) {
	b := NewRAM()
	prog := make([]uint8, 100)
	if err := LoadProgram(b, 0xFFF0, prog, 0); err == nil {
		t.Error("LoadProgram past 0xFFFF succeeded, want AddressOutOfRange")
	} else if _, ok := err.(AddressOutOfRange); !ok {
		t.Errorf("LoadProgram error type = %T, want AddressOutOfRange", err)
	}
}
