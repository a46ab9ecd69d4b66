//go:build !(rp2040 || rp2350)

package console

import "github.com/fatih/color"

var palette = map[style][]color.Attribute{
	good:    {color.FgGreen},
	warn:    {color.FgYellow},
	bad:     {color.FgRed, color.Bold},
	heading: {color.FgCyan, color.Bold},
}

func paint(on bool, s style, text string) string {
	attrs, ok := palette[s]
	if !on || !ok {
		return text
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}
