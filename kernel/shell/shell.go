// Package shell implements the kernel's interactive command line: a
// read-eval-print loop driven by keyboard.GetChar that exposes a handful
// of built-in diagnostic commands.
package shell

import (
	"lainkernel/device/keyboard"
	"lainkernel/device/video/console"
	"lainkernel/kernel/audit"
	"lainkernel/kernel/cpu"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/security"
)

// VGA color indices, named for the prompt/output colors the shell cycles
// through. These mirror the console's default 16-color EGA palette.
const (
	colorBlack      = 0
	colorLightGreen = 10
	colorLightCyan  = 11
	colorLightRed   = 12
	colorYellow     = 14
	colorLightGrey  = 7
	colorWhite      = 15
)

// maxCommandLen bounds a single command line, mirroring the original
// fixed 256-byte command buffer.
const maxCommandLen = 255

// keyboardPortReboot is the PS/2 controller command port; writing 0xFE to
// it pulses the CPU's reset line.
const keyboardPortReboot = 0x64
const rebootCommand = 0xFE

// display is the subset of *console.Console the shell renders through.
// Accepting an interface rather than the concrete type lets tests drive
// the shell without a mapped VGA framebuffer.
type display interface {
	SetColor(fg, bg uint8)
	WriteString(s string)
	PutChar(c byte)
	Clear()
}

// Shell owns the console it prints to and the in-flight command line.
type Shell struct {
	console display
	line    []byte

	// getCharFn and outbFn are mocked by tests.
	getCharFn func() byte
	outbFn    func(uint16, uint8)
	haltFn    func()
}

// New returns a Shell that reads from the keyboard and writes to cons.
func New(cons *console.Console) *Shell {
	return newWithDisplay(cons)
}

func newWithDisplay(d display) *Shell {
	return &Shell{
		console:   d,
		getCharFn: keyboard.GetChar,
		outbFn:    cpu.Outb,
		haltFn:    cpu.Halt,
	}
}

func (s *Shell) prompt() {
	s.console.SetColor(colorLightGreen, colorBlack)
	s.console.WriteString("kernel> ")
	s.console.SetColor(colorWhite, colorBlack)
}

// Run prints the prompt and processes keystrokes forever, dispatching a
// command each time Enter is pressed. It returns only if a command asks
// the shell to exit the loop (currently none do; reboot halts the CPU).
func (s *Shell) Run() {
	s.prompt()
	for {
		c := s.getCharFn()

		switch {
		case c == '\n':
			s.console.PutChar('\n')
			s.Dispatch(string(s.line))
			s.line = s.line[:0]
			s.prompt()
		case c == '\b':
			if len(s.line) > 0 {
				s.line = s.line[:len(s.line)-1]
				s.console.PutChar('\b')
			}
		case len(s.line) < maxCommandLen:
			s.line = append(s.line, c)
			s.console.PutChar(c)
		}
	}
}

// Dispatch runs a single command line, matching the original kernel
// shell's fixed built-in command set.
func (s *Shell) Dispatch(cmd string) {
	switch cmd {
	case "help":
		s.cmdHelp()
	case "clear":
		s.cmdClear()
	case "info":
		s.cmdInfo()
	case "test":
		s.cmdTest()
	case "audit":
		audit.PrintLog()
	case "reboot":
		s.cmdReboot()
	case "":
		// A bare Enter produces no output.
	default:
		s.console.SetColor(colorLightRed, colorBlack)
		s.console.WriteString("Unknown command: ")
		s.console.WriteString(cmd)
		s.console.WriteString("\nType 'help' for available commands.\n\n")
		s.console.SetColor(colorLightGrey, colorBlack)
	}
}

func (s *Shell) cmdHelp() {
	s.console.SetColor(colorLightCyan, colorBlack)
	s.console.WriteString("\nAvailable commands:\n")
	s.console.SetColor(colorLightGrey, colorBlack)
	s.console.WriteString("  help    - Show this help message\n")
	s.console.WriteString("  clear   - Clear the screen\n")
	s.console.WriteString("  info    - Display system information\n")
	s.console.WriteString("  test    - Run security tests\n")
	s.console.WriteString("  audit   - Display security audit log\n")
	s.console.WriteString("  reboot  - Reboot the system\n\n")
}

func (s *Shell) cmdClear() {
	s.console.Clear()
	PrintWelcome(s.console)
}

func (s *Shell) cmdInfo() {
	s.console.SetColor(colorLightCyan, colorBlack)
	s.console.WriteString("\nSystem Information:\n")
	s.console.SetColor(colorLightGrey, colorBlack)
	s.console.WriteString("  Kernel: lainkernel\n")
	s.console.WriteString("  Architecture: x86 (32-bit)\n")
	s.console.WriteString("  Memory Protection: Enabled\n")
	s.console.WriteString("  Paging: Enabled\n")
	s.console.WriteString("  Interrupts: Enabled\n\n")
}

func (s *Shell) cmdTest() {
	s.console.SetColor(colorYellow, colorBlack)
	s.console.WriteString("\nRunning security tests...\n")
	s.console.SetColor(colorLightGrey, colorBlack)

	if security.CheckCanary(security.GetCanary()) {
		s.pass("Stack canary validation")
	}
	if security.ValidatePrivilege(0) {
		s.pass("Privilege level check (Ring 0)")
	}
	if !security.ValidateUserPtr(mem.KernelVirtualBase, 4096) {
		s.pass("Kernel memory protection")
	}

	s.console.SetColor(colorLightGrey, colorBlack)
	s.console.WriteString("\nAll tests passed!\n\n")
}

func (s *Shell) pass(label string) {
	s.console.SetColor(colorLightGreen, colorBlack)
	s.console.WriteString("  [PASS] " + label + "\n")
}

func (s *Shell) cmdReboot() {
	s.console.WriteString("\nRebooting...\n")
	s.outbFn(keyboardPortReboot, rebootCommand)
	s.haltFn()
}

// PrintWelcome renders the kernel's boot banner to cons. It is exported so
// kernel/kmain can print it once at startup before handing off to the
// shell's own "clear" command.
func PrintWelcome(cons display) {
	cons.SetColor(colorLightCyan, colorBlack)
	cons.WriteString("================================================================================\n")
	cons.SetColor(colorLightGreen, colorBlack)
	cons.WriteString("                          lainkernel\n")
	cons.SetColor(colorLightCyan, colorBlack)
	cons.WriteString("================================================================================\n\n")

	cons.SetColor(colorWhite, colorBlack)
	cons.WriteString("Security Features:\n")
	cons.SetColor(colorLightGrey, colorBlack)
	cons.WriteString("  [+] Ring-based protection (Ring 0/Ring 3)\n")
	cons.WriteString("  [+] Memory isolation and paging\n")
	cons.WriteString("  [+] Stack canary protection\n")
	cons.WriteString("  [+] Input validation and sanitization\n")
	cons.WriteString("  [+] Privilege level enforcement\n\n")

	cons.SetColor(colorWhite, colorBlack)
	cons.WriteString("Kernel initialized successfully!\n\n")
	cons.SetColor(colorLightGrey, colorBlack)
}
