package irq

// The trampoline stubs below have no Go body; entry_386.s defines one label
// per vector. Each pushes the vector number (and, where the CPU does not
// already push one, a dummy error code) and jumps to the shared handler
// that builds a Frame/Regs pair and calls dispatch.
//
// Declared as a flat list rather than generated in a loop because Go gives
// no way to synthesize top-level func symbols at compile time; the
// assembly side is equally mechanical, built from two repeated macros.

func isr0()
func isr1()
func isr2()
func isr3()
func isr4()
func isr5()
func isr6()
func isr7()
func isr8()
func isr9()
func isr10()
func isr11()
func isr12()
func isr13()
func isr14()
func isr15()
func isr16()
func isr17()
func isr18()
func isr19()
func isr20()
func isr21()
func isr22()
func isr23()
func isr24()
func isr25()
func isr26()
func isr27()
func isr28()
func isr29()
func isr30()
func isr31()

func irq0()
func irq1()
func irq2()
func irq3()
func irq4()
func irq5()
func irq6()
func irq7()
func irq8()
func irq9()
func irq10()
func irq11()
func irq12()
func irq13()
func irq14()
func irq15()

func syscallStub()

var isrStubs = [32]func(){
	isr0, isr1, isr2, isr3, isr4, isr5, isr6, isr7,
	isr8, isr9, isr10, isr11, isr12, isr13, isr14, isr15,
	isr16, isr17, isr18, isr19, isr20, isr21, isr22, isr23,
	isr24, isr25, isr26, isr27, isr28, isr29, isr30, isr31,
}

var irqStubs = [16]func(){
	irq0, irq1, irq2, irq3, irq4, irq5, irq6, irq7,
	irq8, irq9, irq10, irq11, irq12, irq13, irq14, irq15,
}
