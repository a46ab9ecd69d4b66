//go:build !(rp2040 || rp2350)

// Package commands is the calcpad host CLI: it runs the firmware on a
// simulated or Linux GPIO board and manages the settings file.
package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"calcpad-go/errcode"
	"calcpad-go/firmware"
	"calcpad-go/services/config"
	"calcpad-go/x/logx"
)

var (
	version = "dev"
	commit  = "none"
)

// SetVersionInfo stamps the CLI and the firmware boot info.
func SetVersionInfo(v, c string) {
	version, commit = v, c
	firmware.Version = v
}

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	level      levelFlag
	format     string
	noColor    bool
}

func (g *globals) logger(w io.Writer) (logx.Logger, *logx.LevelVar) {
	return logx.New(logx.Config{Level: g.level.l, Format: g.format, Output: w})
}

func (g *globals) store() *config.FileStore { return config.NewFileStore(g.configPath) }

// levelFlag parses --log-level.
type levelFlag struct{ l logx.Level }

var _ pflag.Value = (*levelFlag)(nil)

func (f *levelFlag) String() string { return f.l.String() }
func (f *levelFlag) Type() string   { return "level" }

func (f *levelFlag) Set(s string) error {
	l, ok := logx.ParseLevel(s)
	if !ok {
		return errcode.New(errcode.InvalidParams, "log-level", "want debug, info, warn or error, got "+s)
	}
	f.l = l
	return nil
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{level: levelFlag{logx.LevelInfo}}
	root := &cobra.Command{
		Use:   "calcpad",
		Short: "Calculator keypad firmware on the host",
		Long: `calcpad runs the calculator firmware against a simulated key matrix,
or a real one wired to Linux GPIO, and manages its settings file.`,
		Version:       version + " (commit: " + commit + ")",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", config.DefaultPath(), "settings file")
	pf.Var(&g.level, "log-level", "log level: debug, info, warn or error")
	pf.StringVar(&g.format, "log-format", "text", "log format: text or json")
	pf.BoolVar(&g.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newRunCmd(g),
		newProbeCmd(g),
		newConfigCmd(g),
		newTapCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// PrintError reports a command failure.
func PrintError(w io.Writer, err error) {
	color.New(color.FgRed, color.Bold).Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}
