//go:build rp2040 || rp2350

package main

import (
	"context"
	"time"

	"calcpad-go/firmware"
	"calcpad-go/services/bridge"
	"calcpad-go/services/config"
	"calcpad-go/services/hal"
	"calcpad-go/types"
	"calcpad-go/x/logx"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)

	log, level := logx.New(logx.Config{Level: logx.LevelInfo})

	board, err := hal.Pico(hal.PicoPlan, types.DefaultSerial())
	if err != nil {
		log.Error(err, "board init failed")
		halt()
	}

	// Settings live in RAM until a flash store exists.
	fw, err := firmware.New(board, config.NewMemoryStore(), firmware.Options{Log: log, Level: level})
	if err != nil {
		log.Error(err, "firmware init failed")
		halt()
	}

	ctx := context.Background()
	bridge.UARTDial = hal.LinkDialer(hal.PicoPlan)
	link := fw.Bus().NewConnection("bridge")
	link.Publish(link.NewMessage(bridge.TopicConfig, bridge.Config{
		Transport: bridge.TransportConfig{Type: "uart", UART: &bridge.UARTConfig{}},
	}, true))
	go bridge.New(link, nil, log.WithComponent("BRIDGE")).Run(ctx)

	if err := fw.Run(ctx); err != nil {
		log.Error(err, "firmware stopped")
	}
	board.Reset()
}

func halt() {
	for {
		time.Sleep(time.Second)
	}
}
