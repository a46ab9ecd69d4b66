//go:build !(rp2040 || rp2350)

package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"periph.io/x/host/v3"

	"calcpad-go/drivers/keymatrix"
	"calcpad-go/errcode"
	"calcpad-go/services/keypad"
	"calcpad-go/types"
)

// keysPerRow lays the probe map out like the calculator face.
const keysPerRow = 5

func newProbeCmd(g *globals) *cobra.Command {
	var pins string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "List GPIO drivers and read the key matrix once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			state, err := host.Init()
			if err != nil {
				return errcode.Wrap(errcode.Unsupported, "probe", err)
			}
			for _, d := range state.Loaded {
				fmt.Fprintf(w, "loaded  %s\n", d)
			}
			for _, f := range state.Skipped {
				fmt.Fprintf(w, "skipped %s: %v\n", f.D, f.Err)
			}
			for _, f := range state.Failed {
				fmt.Fprintf(w, "failed  %s: %v\n", f.D, f.Err)
			}
			if pins == "" {
				return nil
			}

			names, err := parsePins(pins)
			if err != nil {
				return err
			}
			p, err := keymatrix.PeriphPinsByName(names)
			if err != nil {
				return err
			}
			sc, err := keymatrix.New(p, keymatrix.Spin)
			if err != nil {
				return err
			}
			sc.Configure()
			printMatrix(w, sc.ReadMatrix(), keypad.DefaultPositions)
			return nil
		},
	}
	cmd.Flags().StringVar(&pins, "pins", "", "matrix GPIO names: load,clock,enable,data")
	return cmd
}

// printMatrix marks held keys in an active-low raw word.
func printMatrix(w io.Writer, raw uint32, pos keypad.Positions) {
	held := color.New(color.FgGreen, color.Bold)
	fmt.Fprintf(w, "raw %#08x\n", raw)
	for k := types.LogicalKey(1); k <= types.NumKeys; k++ {
		if pos.Pressed(raw, k) {
			held.Fprintf(w, "[%2d]", k)
		} else {
			fmt.Fprintf(w, " %2d ", k)
		}
		if k%keysPerRow == 0 || k == types.NumKeys {
			fmt.Fprintln(w)
		}
	}
}
