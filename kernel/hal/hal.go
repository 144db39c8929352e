// Package hal brings up the machine's console and keyboard and wires them
// into the kernel's early-boot services. Unlike a pluggable driver
// registry, this core targets one fixed platform (a PC-compatible VGA
// text console and a PS/2 keyboard), so hardware bring-up is a direct,
// ordered sequence of concrete device init calls rather than a
// detection-and-probe pass.
package hal

import (
	"lainkernel/device/keyboard"
	"lainkernel/device/video/console"
	"lainkernel/kernel"
	"lainkernel/kernel/kfmt"
)

var activeConsole *console.Console

// ActiveConsole returns the console device brought up by Init, or nil if
// Init has not yet been called.
func ActiveConsole() *console.Console {
	return activeConsole
}

// Init brings up the console and keyboard and links kfmt's output to the
// console, flushing anything printed before this call ran.
func Init() *kernel.Error {
	cons := console.New()
	if err := cons.Init(); err != nil {
		return err
	}
	activeConsole = cons
	kfmt.SetOutputSink(cons)

	keyboard.Init()
	return nil
}
