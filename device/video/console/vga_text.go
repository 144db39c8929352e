// Package console implements the kernel's VGA text-mode console: an
// 80x25, 16-color character display mapped at the standard physical
// address 0xB8000.
package console

import (
	"image/color"
	"reflect"
	"unsafe"

	"lainkernel/kernel"
	"lainkernel/kernel/cpu"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/pmm"
	"lainkernel/kernel/mem/vmm"
)

// Width and Height are the fixed dimensions of the VGA text-mode console.
const (
	Width  = 80
	Height = 25
)

// fbPhysAddr is the standard physical address of the VGA text framebuffer.
const fbPhysAddr = uintptr(0xB8000)

const (
	crtcIndexPort = 0x3D4
	crtcDataPort  = 0x3D5
)

// Console is an EGA-compatible 80x25 text console using VGA mode 0x3. Each
// character cell is two bytes: an ASCII code and a color byte (4 bits
// background, 4 bits foreground).
type Console struct {
	fb []uint16

	row, col int
	fg, bg   uint8

	palette [16]color.RGBA
}

// defaultPalette is the standard 16-color EGA palette.
var defaultPalette = [16]color.RGBA{
	{R: 0, G: 0, B: 0},       // black
	{R: 0, G: 0, B: 170},     // blue
	{R: 0, G: 170, B: 0},     // green
	{R: 0, G: 170, B: 170},   // cyan
	{R: 170, G: 0, B: 0},     // red
	{R: 170, G: 0, B: 170},   // magenta
	{R: 170, G: 85, B: 0},    // brown
	{R: 170, G: 170, B: 170}, // light gray
	{R: 85, G: 85, B: 85},    // dark gray
	{R: 85, G: 85, B: 255},   // light blue
	{R: 85, G: 255, B: 85},   // light green
	{R: 85, G: 255, B: 255},  // light cyan
	{R: 255, G: 85, B: 85},   // light red
	{R: 255, G: 85, B: 255},  // light magenta
	{R: 255, G: 255, B: 85},  // yellow
	{R: 255, G: 255, B: 255}, // white
}

// New returns an unmapped console; call Init before use.
func New() *Console {
	return &Console{palette: defaultPalette, fg: 7, bg: 0}
}

var (
	mapRegionFn     = vmm.MapRegion
	portWriteByteFn = cpu.Outb
	portReadByteFn  = cpu.Inb
)

// Init maps the console's framebuffer, clears the screen and enables the
// hardware cursor with a full-height block shape (scanlines 0-15).
func (c *Console) Init() *kernel.Error {
	fbSize := mem.Size(Width * Height * 2)
	fbPage, err := mapRegionFn(pmm.Frame(fbPhysAddr>>mem.PageShift), fbSize, vmm.FlagPresent|vmm.FlagRW)
	if err != nil {
		return err
	}

	c.fb = *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(fbSize >> 1),
		Cap:  int(fbSize >> 1),
		Data: fbPage.Address(),
	}))

	c.Clear()
	c.EnableCursor(0, 15)
	return nil
}

// colorByte packs the console's current foreground/background into a
// single VGA attribute byte.
func (c *Console) colorByte() uint16 {
	return (uint16(c.bg)<<4 | uint16(c.fg)) << 8
}

// Clear fills the screen with the clear character in the current color and
// homes the cursor.
func (c *Console) Clear() {
	blank := c.colorByte() | uint16(' ')
	for i := range c.fb {
		c.fb[i] = blank
	}
	c.row, c.col = 0, 0
	c.UpdateCursor(0, 0)
}

// SetColor changes the foreground/background used by subsequent PutChar
// calls. Values outside the 16-color palette are clamped to the palette's
// last entry.
func (c *Console) SetColor(fg, bg uint8) {
	if fg >= uint8(len(c.palette)) {
		fg = uint8(len(c.palette) - 1)
	}
	if bg >= uint8(len(c.palette)) {
		bg = uint8(len(c.palette) - 1)
	}
	c.fg, c.bg = fg, bg
}

// Palette returns the console's active 16-color palette.
func (c *Console) Palette() [16]color.RGBA {
	return c.palette
}

func (c *Console) scroll() {
	copy(c.fb, c.fb[Width:])
	blank := c.colorByte() | uint16(' ')
	for i := (Height - 1) * Width; i < Height*Width; i++ {
		c.fb[i] = blank
	}
	c.row = Height - 1
}

func (c *Console) newline() {
	c.col = 0
	c.row++
	if c.row == Height {
		c.scroll()
	}
}

// PutChar writes a single byte at the current cursor position, advancing
// it and scrolling the console when it runs off the last line. \n, \r, \t
// and \b are interpreted rather than rendered as glyphs.
func (c *Console) PutChar(ch byte) {
	switch ch {
	case '\n':
		c.newline()
	case '\r':
		c.col = 0
	case '\t':
		c.col = (c.col + 8) &^ 7
		if c.col >= Width {
			c.newline()
		}
	case '\b':
		if c.col > 0 {
			c.col--
			c.fb[c.row*Width+c.col] = c.colorByte() | uint16(' ')
		}
	default:
		c.fb[c.row*Width+c.col] = c.colorByte() | uint16(ch)
		c.col++
		if c.col == Width {
			c.newline()
		}
	}
	c.UpdateCursor(c.col, c.row)
}

// Write renders every byte of p via PutChar and implements io.Writer, so
// the console can be installed directly as kfmt's output sink.
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		c.PutChar(b)
	}
	return len(p), nil
}

// WriteString renders s via PutChar.
func (c *Console) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		c.PutChar(s[i])
	}
}

// EnableCursor turns on the hardware text-mode cursor with the given
// scanline start/end; (0, 15) produces a full-height block cursor.
func (c *Console) EnableCursor(start, end uint8) {
	portWriteByteFn(crtcIndexPort, 0x0A)
	portWriteByteFn(crtcDataPort, (portReadByteFn(crtcDataPort)&0xC0)|start)

	portWriteByteFn(crtcIndexPort, 0x0B)
	portWriteByteFn(crtcDataPort, (portReadByteFn(crtcDataPort)&0xE0)|end)
}

// DisableCursor hides the hardware text-mode cursor.
func (c *Console) DisableCursor() {
	portWriteByteFn(crtcIndexPort, 0x0A)
	portWriteByteFn(crtcDataPort, 0x20)
}

// UpdateCursor moves the hardware cursor to the given character cell.
func (c *Console) UpdateCursor(x, y int) {
	pos := uint16(y*Width + x)

	portWriteByteFn(crtcIndexPort, 0x0F)
	portWriteByteFn(crtcDataPort, uint8(pos&0xFF))
	portWriteByteFn(crtcIndexPort, 0x0E)
	portWriteByteFn(crtcDataPort, uint8((pos>>8)&0xFF))
}
