//go:build !(rp2040 || rp2350)

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"calcpad-go/bus"
	"calcpad-go/drivers/keymatrix"
	"calcpad-go/errcode"
	"calcpad-go/firmware"
	"calcpad-go/services/bridge"
	"calcpad-go/services/console"
	"calcpad-go/services/hal"
	"calcpad-go/types"
	"calcpad-go/x/logx"
)

// tapHold is how long a simulated tap keeps the key down; longer than
// the debounce window, shorter than a long press.
const tapHold = 80 * time.Millisecond

type runOpts struct {
	board    string
	pins     string
	ws       string
	wsTopics []string
	color    bool
	reset    func()
}

func newRunCmd(g *globals) *cobra.Command {
	o := &runOpts{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the firmware",
		Long: `Run the firmware with the console on stdin and stdout.

On the sim board the console also accepts "key down|up|tap <n>" to drive
the simulated matrix. With --ws, bus traffic is served to websocket
clients and keys can be pressed remotely by sending {"key":n,"action":"tap"}
on topic "key".`,
		Example: `  calcpad run
  calcpad run --board linux --pins GPIO17,GPIO27,GPIO22,GPIO23
  calcpad run --ws :8088`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFirmware(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.board, "board", "sim", "board: sim or linux")
	f.StringVar(&o.pins, "pins", "", "matrix GPIO names for linux: load,clock,enable,data")
	f.StringVar(&o.ws, "ws", "", "serve the bus bridge over websocket on this address")
	f.StringSliceVar(&o.wsTopics, "ws-topics", bridge.DefaultTopics, "topics forwarded to websocket clients")
	f.BoolVar(&o.color, "color", true, "colour console output")
	return cmd
}

// parsePins reads "load,clock,enable,data".
func parsePins(s string) (keymatrix.PinNames, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return keymatrix.PinNames{}, errcode.New(errcode.InvalidParams, "pins", "want load,clock,enable,data")
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if parts[i] == "" {
			return keymatrix.PinNames{}, errcode.New(errcode.InvalidParams, "pins", "empty pin name")
		}
	}
	return keymatrix.PinNames{Load: parts[0], Clock: parts[1], Enable: parts[2], Data: parts[3]}, nil
}

func newBoard(o *runOpts, so hal.SimOptions) (*hal.SimBoard, error) {
	switch o.board {
	case "sim":
		return hal.Sim(so), nil
	case "linux":
		names, err := parsePins(o.pins)
		if err != nil {
			return nil, err
		}
		return hal.Linux(names, so)
	default:
		return nil, errcode.New(errcode.InvalidParams, "board", "unknown board "+strconv.Quote(o.board))
	}
}

func runFirmware(cmd *cobra.Command, g *globals, o *runOpts) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, level := g.logger(cmd.ErrOrStderr())
	sb, err := newBoard(o, hal.SimOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout(), Reset: o.reset})
	if err != nil {
		return err
	}
	store := g.store()
	fw, err := firmware.New(sb.Board, store, firmware.Options{Log: log, Level: level})
	if err != nil {
		return err
	}
	fw.Console().SetColor(o.color && !color.NoColor)

	if o.board == "sim" {
		if err := fw.Console().Register(keyCommand(sb.Keys)); err != nil {
			return err
		}
	}

	err = store.Watch(ctx, func(s types.Settings, err error) {
		if err == nil {
			err = fw.Config().Adopt(s)
		}
		if err != nil {
			log.Warn(err, "settings reload failed", "path", store.Path())
			return
		}
		log.Info("settings reloaded", "path", store.Path())
	})
	switch {
	case errors.Is(err, errcode.NotFound):
		log.Debug("settings file absent, not watching", "path", store.Path())
	case err != nil:
		log.Warn(err, "settings watch failed", "path", store.Path())
	}

	if o.ws != "" {
		stopWS, err := serveBridge(ctx, fw, sb, o, log)
		if err != nil {
			return err
		}
		defer stopWS()
	}

	log.Info("calcpad starting", "board", sb.Name, "version", firmware.Version, "boot", fw.BootID())
	return fw.Run(ctx)
}

func keyCommand(port *keymatrix.SimPort) console.Command {
	return console.Command{
		Name:  "key",
		Usage: "key <down|up|tap> <1..22>",
		Help:  "drive the simulated key matrix",
		Run: func(w io.Writer, args []string) error {
			if len(args) != 2 {
				return errcode.New(errcode.InvalidParams, "key", "usage: key <down|up|tap> <n>")
			}
			n, err := strconv.ParseUint(args[1], 10, 8)
			if err != nil {
				return errcode.Wrap(errcode.InvalidParams, "key", err)
			}
			return driveKey(port, args[0], types.LogicalKey(n))
		},
	}
}

func driveKey(port *keymatrix.SimPort, action string, key types.LogicalKey) error {
	switch action {
	case "down":
		return port.Press(key)
	case "up":
		return port.Release(key)
	case "tap":
		if err := port.Press(key); err != nil {
			return err
		}
		time.AfterFunc(tapHold, func() { _ = port.Release(key) })
		return nil
	default:
		return errcode.New(errcode.InvalidParams, "key", "unknown action "+strconv.Quote(action))
	}
}

// remoteKey is the payload websocket clients send on topic "key".
type remoteKey struct {
	Key    uint8  `json:"key"`
	Action string `json:"action"`
}

func serveBridge(ctx context.Context, fw *firmware.Firmware, sb *hal.SimBoard, o *runOpts, log logx.Logger) (func(), error) {
	log = log.WithComponent("WS")
	srv := &http.Server{
		Addr:              o.ws,
		Handler:           bridge.Handler(fw.Bus().NewConnection("ws"), o.wsTopics, nil, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "websocket server stopped", "addr", o.ws)
		}
	}()
	log.Info("bridge listening", "addr", o.ws)

	keys := fw.Bus().NewConnection("ws_keys")
	sub := keys.Subscribe(append(append(bus.Topic(nil), bridge.RxPrefix...), "key"))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-sub.Channel():
				if !ok {
					return
				}
				raw, ok := m.Payload.(json.RawMessage)
				if !ok {
					continue
				}
				var rk remoteKey
				if err := json.Unmarshal(raw, &rk); err != nil {
					log.Warn(err, "bad remote key")
					continue
				}
				if o.board != "sim" {
					log.Debug("remote key ignored on hardware board", "key", rk.Key)
					continue
				}
				if err := driveKey(sb.Keys, rk.Action, types.LogicalKey(rk.Key)); err != nil {
					log.Warn(err, "remote key rejected", "key", rk.Key)
				}
			}
		}
	}()

	return func() {
		sub.Unsubscribe()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}, nil
}
