// Package console is the line-oriented command interpreter served on the
// debug UART (stdin on host).
//
// A reader goroutine fills a shmring.Ring; the system task calls Process
// once per cycle, which never blocks.
package console

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/shlex"

	"calcpad-go/errcode"
	"calcpad-go/x/logx"
	"calcpad-go/x/shmring"
)

// MaxLine is the longest accepted command line in bytes.
const MaxLine = 100

// Command is one console verb. Run writes its output to w.
type Command struct {
	Name  string
	Usage string
	Help  string
	Run   func(w io.Writer, args []string) error
}

type Console struct {
	in  *shmring.Ring
	out io.Writer
	log logx.Logger

	color atomic.Bool

	mu    sync.RWMutex
	cmds  map[string]Command
	order []string

	line     []byte
	overlong bool
	buf      [64]byte

	executed atomic.Uint32
	rejected atomic.Uint32
}

func New(in *shmring.Ring, out io.Writer, log logx.Logger) *Console {
	if log == nil {
		log = logx.Nop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Console{
		in:   in,
		out:  out,
		log:  log,
		cmds: map[string]Command{},
		line: make([]byte, 0, MaxLine),
	}
}

// SetColor enables ANSI colours where the platform supports them.
func (c *Console) SetColor(on bool) { c.color.Store(on) }

// Register adds a command. Names are case-insensitive.
func (c *Console) Register(cmd Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" || cmd.Run == nil {
		return errcode.New(errcode.InvalidParams, "console.Register", "name and run are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.cmds[name]; dup {
		return errcode.New(errcode.Busy, "console.Register", name+" already registered")
	}
	cmd.Name = name
	c.cmds[name] = cmd
	c.order = append(c.order, name)
	return nil
}

// Commands lists registered commands in registration order.
func (c *Console) Commands() []Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Command, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.cmds[n])
	}
	return out
}

// Process drains buffered input and executes every complete line. It
// returns the number of lines executed.
func (c *Console) Process() int {
	if c.in == nil {
		return 0
	}
	n := 0
	for {
		k := c.in.ReadInto(c.buf[:])
		if k == 0 {
			return n
		}
		for _, b := range c.buf[:k] {
			if b != '\r' && b != '\n' {
				c.push(b)
				continue
			}
			if c.overlong {
				c.overlong = false
				c.line = c.line[:0]
				continue
			}
			if len(c.line) == 0 {
				continue
			}
			line := string(c.line)
			c.line = c.line[:0]
			_ = c.Exec(line)
			n++
		}
	}
}

func (c *Console) push(b byte) {
	if c.overlong {
		return
	}
	if len(c.line) >= MaxLine {
		c.overlong = true
		c.rejected.Add(1)
		c.log.Warn(errcode.InvalidParams, "command line too long, discarded", "max", MaxLine)
		c.errorf("line too long (max %d bytes)", MaxLine)
		return
	}
	c.line = append(c.line, b)
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if b := s[i]; (b < 0x20 && b != '\t') || b > 0x7e {
			return false
		}
	}
	return true
}

// Exec runs one command line and writes its output.
func (c *Console) Exec(line string) error {
	if !printable(line) {
		c.rejected.Add(1)
		c.errorf("invalid characters in command")
		return errcode.New(errcode.InvalidParams, "console.Exec", "non-printable input")
	}
	args, err := shlex.Split(line)
	if err != nil {
		c.rejected.Add(1)
		c.errorf("%v", err)
		return errcode.Wrap(errcode.InvalidParams, "console.Exec", err)
	}
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	c.mu.RLock()
	cmd, ok := c.cmds[name]
	c.mu.RUnlock()
	if !ok {
		c.errorf("unknown command %q, try help", name)
		return errcode.New(errcode.UnknownCommand, "console.Exec", name)
	}
	c.executed.Add(1)
	if err := cmd.Run(c.out, args[1:]); err != nil {
		c.errorf("%s: %v", name, err)
		c.log.Debug("command failed", "cmd", name, "error", err.Error())
		return err
	}
	return nil
}

// Executed counts commands run; Rejected counts lines refused before
// dispatch.
func (c *Console) Executed() uint32 { return c.executed.Load() }
func (c *Console) Rejected() uint32 { return c.rejected.Load() }

// Pump copies r into ring until ctx ends or r fails. It is the producer
// side for stdin and UART readers that implement io.Reader.
func Pump(ctx context.Context, r io.Reader, ring *shmring.Ring) error {
	var buf [64]byte
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := r.Read(buf[:])
		if n > 0 {
			ring.WriteFrom(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
