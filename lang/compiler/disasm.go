package compiler

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// Disasm writes a human-readable disassembly of the code and every nested
// code constant.
func Disasm(w io.Writer, c *Code) error {
	d := &disasm{w: w}
	d.code(c)
	for _, u := range c.Udcs {
		d.code(u)
	}
	return d.err
}

type disasm struct {
	w   io.Writer
	err error
}

func (d *disasm) printf(format string, args ...any) {
	if d.err == nil {
		_, d.err = fmt.Fprintf(d.w, format, args...)
	}
}

func (d *disasm) code(c *Code) {
	name := c.Name
	if name == "" {
		name = "<" + c.Kind.String() + ">"
	}
	d.printf("%s: %s (locals=%d params=%d stack=%d)\n",
		c.Kind, name, c.LocalVarNum, c.ParamNum, c.MaxStackDepth)

	var nested []*Code
	insns := c.Insns
	for pc := 0; pc < len(insns); {
		op := Opcode(insns[pc])
		d.printf("  %4d: %s", pc, op)
		w := op.Width()
		switch w {
		case 1:
			d.printf(" %d", insns[pc+1])
		case 2:
			d.printf(" %d", binary.BigEndian.Uint16(insns[pc+1:]))
		case 4:
			d.printf(" %d", binary.BigEndian.Uint32(insns[pc+1:]))
		}
		switch op {
		case BRANCH:
			off := int16(binary.BigEndian.Uint16(insns[pc+1:]))
			d.printf(" (to %d)", pc+1+2+int(off))
		case FORK:
			kind := ForkKind(insns[pc+1])
			idx := binary.BigEndian.Uint16(insns[pc+2:])
			d.printf(" %s %d", kind, idx)
		case ADD_REDIR:
			d.printf(" (%s)", RedirOp(insns[pc+1]))
		case CALL_METHOD:
			argc := binary.BigEndian.Uint16(insns[pc+3:])
			d.printf(" argc=%d", argc)
		}
		d.printf("\n")
		if op == FORK {
			pc += 1 + 3
			continue
		}
		if op == CALL_METHOD {
			pc += 1 + 4
			continue
		}
		pc += 1 + w
	}

	if len(c.Constants) > 0 {
		d.printf("  constants:\n")
		for i, ct := range c.Constants {
			switch {
			case ct.Int != nil:
				d.printf("    %3d: int %d\n", i, *ct.Int)
			case ct.Uint != nil:
				d.printf("    %3d: uint %d\n", i, *ct.Uint)
			case ct.Float != nil:
				d.printf("    %3d: float %g\n", i, *ct.Float)
			case ct.Str != nil:
				d.printf("    %3d: string %s\n", i, strconv.Quote(*ct.Str))
			case ct.Code != nil:
				d.printf("    %3d: code %s\n", i, ct.Code.Kind)
				nested = append(nested, ct.Code)
			}
		}
	}

	if len(c.Exceptions) > 0 {
		d.printf("  exceptions:\n")
		for _, e := range c.Exceptions {
			d.printf("    type=%d [%d, %d) handler=%d\n", e.TypeID, e.Begin, e.End, e.Handler)
		}
	}

	for _, nc := range nested {
		d.code(nc)
	}
}
