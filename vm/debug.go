package vm

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/skx/spyre/opcode"
)

// dumpStepState is the single-step debugger: before each dispatch
// (when step mode is on) it prints the current stack contents and the
// mnemonic about to execute. Mirrors Spy_dumpStack plus the
// SPY_STEP-gated instruction announcement in Spy_execute, with the
// opcode name colorized instead of waiting on getchar() - this runs
// headless under Go, so the clear-screen-and-wait loop isn't
// reproduced verbatim.
func (m *Machine) dumpStepState(op opcode.Op) {
	ins, _ := opcode.ByOpcode(op)
	m.dumpStack()
	m.log.WithFields(logrusFields(m)).Info(color.YellowString("executing %s", ins.Name))
}

func logrusFields(m *Machine) map[string]interface{} {
	return map[string]interface{}{
		"ip":    m.ip,
		"sp":    m.sp,
		"bp":    m.bp,
		"count": m.instructionCount,
	}
}

// dumpStack renders the stack region from just past ROM-end to the
// current sp, byte by byte - mirroring Spy_dumpStack.
func (m *Machine) dumpStack() {
	var sb strings.Builder
	start := int(StartStack) + 2
	end := int(m.sp) + 7
	if end >= len(m.memory) {
		end = len(m.memory) - 1
	}
	for i := start; i <= end; i++ {
		b := m.memory[i]
		ch := byte('.')
		if b >= 0x20 && b < 0x7f {
			ch = b
		}
		fmt.Fprintf(&sb, "0x%08x: %02x | %c | \n", i, b, ch)
	}
	m.write(sb.String())
}
