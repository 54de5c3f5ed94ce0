package kernel

import (
	"fmt"
	"strings"
)

// Lower returns the loop nest computing op, one statement per line.
// It is the listing the CPU target reports as its source.
func Lower(op *Op) string {
	p := &printer{}
	g := op.geom
	out := op.Output.Name
	p.linef("// attr [%s] stride=[%d,%d] padding=[%d,%d]", op.Name(), g.SH, g.SW, g.PH, g.PW)
	for _, in := range op.Inputs {
		p.linef("// buffer %s", in)
	}
	p.linef("// buffer %s", op.Output)
	p.open("produce %s", out)

	switch op.Kind {
	case KindForward:
		x, f := op.Inputs[0].Name, op.Inputs[1].Name
		p.loops([]string{"b", "i", "j", "c", "m"}, []int{g.N, g.HOut, g.WOut, g.C, g.M})
		dst := fmt.Sprintf("%s[b, i, j, c*%d + m]", out, g.M)
		p.linef("%s = 0f", dst)
		p.loops([]string{"di", "dj"}, []int{g.KH, g.KW})
		p.linef("if ((0 <= i*%d + di - %d) && (i*%d + di - %d < %d) && (0 <= j*%d + dj - %d) && (j*%d + dj - %d < %d))",
			g.SH, g.PH, g.SH, g.PH, g.H, g.SW, g.PW, g.SW, g.PW, g.W)
		p.linef("  %s = %s + %s[b, i*%d + di - %d, j*%d + dj - %d, c]*%s[di, dj, c, m]",
			dst, dst, x, g.SH, g.PH, g.SW, g.PW, f)

	case KindBackInput:
		f, dy := op.Inputs[0].Name, op.Inputs[1].Name
		p.loops([]string{"b", "i", "j", "c"}, []int{g.N, g.H, g.W, g.C})
		dst := out + "[b, i, j, c]"
		p.linef("%s = 0f", dst)
		p.loops([]string{"di", "dj", "m"}, []int{g.KH, g.KW, g.M})
		p.linef("if (((i + %d - di) %% %d == 0) && (0 <= i + %d - di) && ((i + %d - di)/%d < %d) && ((j + %d - dj) %% %d == 0) && (0 <= j + %d - dj) && ((j + %d - dj)/%d < %d))",
			g.PH, g.SH, g.PH, g.PH, g.SH, g.HOut, g.PW, g.SW, g.PW, g.PW, g.SW, g.WOut)
		p.linef("  %s = %s + %s[b, (i + %d - di)/%d, (j + %d - dj)/%d, c*%d + m]*%s[di, dj, c, m]",
			dst, dst, dy, g.PH, g.SH, g.PW, g.SW, g.M, f)

	case KindBackWeight:
		x, dy := op.Inputs[0].Name, op.Inputs[1].Name
		p.loops([]string{"di", "dj", "c", "m"}, []int{g.KH, g.KW, g.C, g.M})
		dst := out + "[di, dj, c, m]"
		p.linef("%s = 0f", dst)
		p.loops([]string{"b", "i", "j"}, []int{g.N, g.HOut, g.WOut})
		p.linef("if ((0 <= i*%d + di - %d) && (i*%d + di - %d < %d) && (0 <= j*%d + dj - %d) && (j*%d + dj - %d < %d))",
			g.SH, g.PH, g.SH, g.PH, g.H, g.SW, g.PW, g.SW, g.PW, g.W)
		p.linef("  %s = %s + %s[b, i*%d + di - %d, j*%d + dj - %d, c]*%s[b, i, j, c*%d + m]",
			dst, dst, x, g.SH, g.PH, g.SW, g.PW, dy, g.M)
	}

	p.closeAll()
	return p.String()
}

// printer writes an indented listing with balanced braces.
type printer struct {
	sb    strings.Builder
	depth int
}

func (p *printer) linef(format string, args ...any) {
	p.sb.WriteString(strings.Repeat("  ", p.depth))
	fmt.Fprintf(&p.sb, format, args...)
	p.sb.WriteByte('\n')
}

func (p *printer) open(format string, args ...any) {
	p.linef(format+" {", args...)
	p.depth++
}

func (p *printer) loops(vars []string, extents []int) {
	for i, v := range vars {
		p.open("for (%s, 0, %d)", v, extents[i])
	}
}

func (p *printer) closeAll() {
	for p.depth > 0 {
		p.depth--
		p.linef("}")
	}
}

func (p *printer) String() string { return p.sb.String() }
