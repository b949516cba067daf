// Command canardctl demonstrates the transport engine end-to-end over the
// virtual loopback bus: it loads bus/node settings from an .ini file,
// constructs an Instance, subscribes it to the bus, periodically broadcasts
// a message, and runs the stale-transfer janitor — the same construct/
// subscribe/run-loop shape as the teacher's cmd/canopen/main.go, minus the
// CANopen object dictionary and NMT state machine this spec does not carry
// over.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canardgo/canard"
	_ "github.com/canardgo/canard/pkg/can/virtual"
)

const demoMessageTypeID = 1000

func main() {
	logger := logrus.StandardLogger()
	logger.SetLevel(logrus.InfoLevel)

	configPath := flag.String("c", "", "path to canardctl .ini config (defaults baked in if omitted)")
	flag.Parse()

	cfg := defaultFileConfig()
	if *configPath != "" {
		loaded, err := loadFileConfig(*configPath)
		if err != nil {
			logger.WithError(err).Fatal("failed to load config")
		}
		cfg = loaded
	}

	bus, err := canard.NewBus(cfg.Interface, cfg.Channel)
	if err != nil {
		logger.WithError(err).Fatal("failed to construct bus")
	}
	if loopback, ok := bus.(interface{ SetReceiveOwn(bool) }); ok {
		loopback.SetReceiveOwn(true)
	}

	ins := canard.NewInstance(
		acceptAll,
		func(transfer *canard.RxTransfer) {
			logger.WithFields(logrus.Fields{
				"dataTypeID": transfer.DataTypeID,
				"source":     transfer.SourceNodeID,
				"len":        transfer.PayloadLen,
			}).Info("received transfer")
		},
		nil,
		canard.WithLogger(logger),
		canard.WithPoolCapacity(cfg.PoolCapacity),
		canard.WithTransferTimeout(cfg.TransferTimeout),
		canard.WithIfaceSwitchDelay(cfg.IfaceSwitchDelay),
		canard.WithCANFD(cfg.CANFD),
	)

	if err := ins.SetLocalNodeID(cfg.NodeID); err != nil {
		logger.WithError(err).Fatal("failed to set local node id")
	}

	if err := bus.Subscribe(ins); err != nil {
		logger.WithError(err).Fatal("failed to subscribe instance to bus")
	}
	if err := bus.Connect(); err != nil {
		logger.WithError(err).Warn("bus connect failed, continuing with loopback only")
	}
	defer bus.Disconnect()

	transferID := uint8(0)
	broadcastTick := time.NewTicker(200 * time.Millisecond)
	defer broadcastTick.Stop()
	janitorTick := time.NewTicker(500 * time.Millisecond)
	defer janitorTick.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	count := 0
	for {
		select {
		case <-broadcastTick.C:
			payload := []byte("canardctl demo")
			if _, err := ins.Broadcast(0, demoMessageTypeID, &transferID, 16, payload); err != nil {
				logger.WithError(err).Warn("broadcast failed")
			}
			for {
				frame, ok := ins.PeekTxQueue()
				if !ok {
					break
				}
				if err := bus.Send(frame); err != nil {
					logger.WithError(err).Warn("send failed")
				}
				ins.PopTxQueue()
			}
			count++
			if count >= 5 {
				return
			}
		case <-janitorTick.C:
			ins.CleanupStaleTransfers(nowMicros())
		case <-quit:
			return
		}
	}
}

func acceptAll(dataTypeID uint16, kind canard.TransferKind, sourceNodeID uint8) (bool, uint64) {
	return true, 0
}

func nowMicros() time.Duration {
	return time.Duration(time.Now().UnixMicro()) * time.Microsecond
}
