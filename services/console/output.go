package console

import (
	"fmt"
	"io"
)

type style uint8

const (
	plain style = iota
	good
	warn
	bad
	heading
)

func (c *Console) errorf(format string, a ...any) {
	fmt.Fprintln(c.out, paint(c.color.Load(), bad, "error: "+fmt.Sprintf(format, a...)))
}

// printer carries the colour setting into command bodies.
type printer struct {
	w     io.Writer
	color bool
}

func (p printer) f(format string, a ...any) { fmt.Fprintf(p.w, format, a...) }

func (p printer) styled(s style, format string, a ...any) {
	fmt.Fprint(p.w, paint(p.color, s, fmt.Sprintf(format, a...)))
}

func (c *Console) printer(w io.Writer) printer { return printer{w: w, color: c.color.Load()} }
