//go:build !(rp2040 || rp2350)

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"calcpad-go/services/bridge"
)

func newTapCmd() *cobra.Command {
	var (
		key    uint8
		action string
	)
	cmd := &cobra.Command{
		Use:   "tap <ws-url>",
		Short: "Print bus traffic from a running bridge",
		Long: `Connect to "calcpad run --ws" and print every forwarded message.
With --key, press that key on the remote sim board first.`,
		Example: `  calcpad tap ws://localhost:8088
  calcpad tap ws://localhost:8088 --key 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			rw, err := bridge.DialWS(dctx, args[0])
			cancel()
			if err != nil {
				return err
			}
			defer rw.Close()

			if key != 0 {
				if err := bridge.Send(rw, "key", remoteKey{Key: key, Action: action}); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			return bridge.ReadFrames(ctx, rw, func(e bridge.Envelope) {
				mark := ""
				if e.Retained {
					mark = " (retained)"
				}
				fmt.Fprintf(w, "%s%s %s\n", e.Topic, mark, e.Payload)
			})
		},
	}
	cmd.Flags().Uint8Var(&key, "key", 0, "key to press on the remote board")
	cmd.Flags().StringVar(&action, "action", "tap", "key action: down, up or tap")
	return cmd
}
