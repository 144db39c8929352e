package keyboard

import (
	"testing"

	"lainkernel/kernel/irq"
	"lainkernel/kernel/ring"
)

func withCleanState(t *testing.T) {
	t.Helper()
	origInb, origHlt := inbFn, hltFn
	buf = ring.New[byte](bufferSize)
	shiftPressed = false
	t.Cleanup(func() {
		buf = ring.New[byte](bufferSize)
		shiftPressed = false
		inbFn = origInb
		hltFn = origHlt
	})
}

func TestHandlerPushesUnshiftedLetter(t *testing.T) {
	withCleanState(t)
	inbFn = func(uint16) uint8 { return 0x1E } // 'a'

	handler(irqLine, &irq.Frame{}, &irq.Regs{})

	if !HasInput() {
		t.Fatal("expected a character to be buffered")
	}
	if c := GetChar(); c != 'a' {
		t.Fatalf("expected 'a'; got %q", c)
	}
}

func TestHandlerAppliesShiftState(t *testing.T) {
	withCleanState(t)

	inbFn = func(uint16) uint8 { return leftShiftPress }
	handler(irqLine, &irq.Frame{}, &irq.Regs{})

	inbFn = func(uint16) uint8 { return 0x1E } // 'a'
	handler(irqLine, &irq.Frame{}, &irq.Regs{})

	if c := GetChar(); c != 'A' {
		t.Fatalf("expected shifted 'A'; got %q", c)
	}
}

func TestHandlerClearsShiftStateOnRelease(t *testing.T) {
	withCleanState(t)

	inbFn = func(uint16) uint8 { return leftShiftPress }
	handler(irqLine, &irq.Frame{}, &irq.Regs{})

	inbFn = func(uint16) uint8 { return leftShiftRelease }
	handler(irqLine, &irq.Frame{}, &irq.Regs{})

	inbFn = func(uint16) uint8 { return 0x1E } // 'a'
	handler(irqLine, &irq.Frame{}, &irq.Regs{})

	if c := GetChar(); c != 'a' {
		t.Fatalf("expected unshifted 'a' after shift release; got %q", c)
	}
}

func TestHandlerIgnoresKeyReleaseScancodes(t *testing.T) {
	withCleanState(t)
	inbFn = func(uint16) uint8 { return 0x1E | 0x80 } // release of 'a'

	handler(irqLine, &irq.Frame{}, &irq.Regs{})

	if HasInput() {
		t.Fatal("expected a key release to not buffer a character")
	}
}

func TestHandlerIgnoresScancodesWithNoASCIIMapping(t *testing.T) {
	withCleanState(t)
	inbFn = func(uint16) uint8 { return 0x01 } // Escape

	handler(irqLine, &irq.Frame{}, &irq.Regs{})

	if HasInput() {
		t.Fatal("expected a non-printable scancode to not buffer a character")
	}
}

func TestGetCharHaltsUntilInputIsAvailable(t *testing.T) {
	withCleanState(t)

	halts := 0
	hltFn = func() {
		halts++
		if halts == 3 {
			inbFn = func(uint16) uint8 { return 0x1E } // 'a'
			handler(irqLine, &irq.Frame{}, &irq.Regs{})
		}
	}

	if c := GetChar(); c != 'a' {
		t.Fatalf("expected 'a'; got %q", c)
	}
	if halts < 3 {
		t.Fatalf("expected GetChar to halt while waiting for input; halted %d times", halts)
	}
}
