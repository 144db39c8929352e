// Package keyboard implements the PS/2 keyboard driver: a scancode
// interrupt handler that feeds a bounded ring buffer, and a blocking
// getchar that halts the CPU until a key is available.
package keyboard

import (
	"lainkernel/kernel/cpu"
	"lainkernel/kernel/irq"
	"lainkernel/kernel/ring"
)

// irqLine is the legacy PIC IRQ line the PS/2 keyboard controller raises.
const irqLine = 1

// dataPort is the PS/2 controller's data port, from which a scancode is
// read on every IRQ1.
const dataPort = 0x60

// bufferSize is the capacity of the scancode-to-ASCII ring buffer.
const bufferSize = 256

const (
	leftShiftPress    = 0x2A
	rightShiftPress   = 0x36
	leftShiftRelease  = 0xAA
	rightShiftRelease = 0xB6
)

// scancodeToASCII maps a set-1 make-code (key press) to its unshifted US
// QWERTY ASCII value. A 0 entry means the key has no ASCII representation.
var scancodeToASCII = [0x3A]byte{
	0x01: 0, 0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5', 0x07: '6',
	0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0', 0x0C: '-', 0x0D: '=', 0x0E: '\b',
	0x0F: '\t', 0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't', 0x15: 'y',
	0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p', 0x1A: '[', 0x1B: ']', 0x1C: '\n',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g', 0x23: 'h', 0x24: 'j',
	0x25: 'k', 0x26: 'l', 0x27: ';', 0x28: '\'', 0x29: '`', 0x2B: '\\', 0x2C: 'z',
	0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b', 0x31: 'n', 0x32: 'm', 0x33: ',',
	0x34: '.', 0x35: '/', 0x37: '*', 0x39: ' ',
}

// scancodeToASCIIShift is scancodeToASCII's shifted counterpart.
var scancodeToASCIIShift = [0x3A]byte{
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%', 0x07: '^', 0x08: '&',
	0x09: '*', 0x0A: '(', 0x0B: ')', 0x0C: '_', 0x0D: '+', 0x0E: '\b', 0x0F: '\t',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T', 0x15: 'Y', 0x16: 'U',
	0x17: 'I', 0x18: 'O', 0x19: 'P', 0x1A: '{', 0x1B: '}', 0x1C: '\n', 0x1E: 'A',
	0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G', 0x23: 'H', 0x24: 'J', 0x25: 'K',
	0x26: 'L', 0x27: ':', 0x28: '"', 0x29: '~', 0x2B: '|', 0x2C: 'Z', 0x2D: 'X',
	0x2E: 'C', 0x2F: 'V', 0x30: 'B', 0x31: 'N', 0x32: 'M', 0x33: '<', 0x34: '>',
	0x35: '?', 0x37: '*', 0x39: ' ',
}

var (
	buf          = ring.New[byte](bufferSize)
	shiftPressed bool

	// inbFn and hltFn are mocked by tests.
	inbFn = cpu.Inb
	hltFn = cpu.Halt
)

// Init registers the scancode handler on IRQ1.
func Init() {
	irq.HandleIRQ(irqLine, handler)
}

func handler(_ uint8, _ *irq.Frame, _ *irq.Regs) {
	scancode := inbFn(dataPort)

	switch scancode {
	case leftShiftPress, rightShiftPress:
		shiftPressed = true
		return
	case leftShiftRelease, rightShiftRelease:
		shiftPressed = false
		return
	}

	// Extended scancodes (top bit set) are key releases; this driver only
	// tracks key-down events.
	if scancode&0x80 != 0 {
		return
	}

	var c byte
	if int(scancode) < len(scancodeToASCII) {
		if shiftPressed {
			c = scancodeToASCIIShift[scancode]
		} else {
			c = scancodeToASCII[scancode]
		}
	}

	if c != 0 {
		buf.Push(c)
	}
}

// HasInput reports whether a key is waiting in the buffer.
func HasInput() bool {
	return buf.Len() > 0
}

// GetChar blocks, halting the CPU between interrupts, until a key is
// available, then returns it.
func GetChar() byte {
	for !HasInput() {
		hltFn()
	}

	c, _ := buf.Pop()
	return c
}
