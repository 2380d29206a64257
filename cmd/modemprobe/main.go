// Command modemprobe opens a serial port, autodetects the attached SIMCom
// modem and prints its family and identification strings.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/internal/logging"
	"github.com/behrlich/go-atmodem/modem"
	"github.com/behrlich/go-atmodem/port"
	"github.com/behrlich/go-atmodem/sched"
	"github.com/behrlich/go-atmodem/serial"
)

func main() {
	var (
		portPath = flag.String("port", "/dev/ttyUSB0", "Serial port the modem is attached to")
		baud     = flag.Uint("baud", 115200, "Baud rate")
		timeout  = flag.Duration("timeout", 10*time.Second, "Give up after this long")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	raw := port.NewUnix(*portPath)
	if err := raw.SetConfig(uint32(*baud), 8); err != nil {
		logger.Error("invalid serial configuration", "error", err)
		os.Exit(1)
	}

	buffered := serial.NewBuffered(raw,
		make([]byte, atmodem.DefaultSerialBufferSize),
		make([]byte, atmodem.DefaultSerialBufferSize))

	detector := modem.NewDetector(buffered)
	pump := serial.NewPumpTask(buffered)

	clock := sched.NewSystemClock()
	scheduler := sched.New(clock, pump, detector)

	logger.Info("probing for modem", "port", *portPath, "baud", *baud)

	deadline := time.Now().Add(*timeout)
	for !detector.ModemDetected() {
		if time.Now().After(deadline) {
			logger.Error("no modem detected", "port", *portPath)
			os.Exit(1)
		}
		scheduler.RunTask()
	}

	var family string
	switch detector.Detected() {
	case modem.ModemSim800:
		family = "SIM800 (2G)"
	case modem.ModemSim7x00:
		family = "SIM7x00 (4G)"
	}
	fmt.Printf("detected modem family: %s\n", family)

	driver := detector.Driver(
		make([]byte, atmodem.DefaultNetworkBufferSize),
		make([]byte, atmodem.DefaultNetworkBufferSize))

	for _, query := range []struct {
		kind  modem.IDKind
		label string
	}{
		{modem.IDManufacturer, "manufacturer"},
		{modem.IDModel, "model"},
		{modem.IDIMEI, "IMEI"},
	} {
		driver.RequestID(query.kind)
		idDeadline := time.Now().Add(2 * time.Second)
		for driver.IDString() == "" && time.Now().Before(idDeadline) {
			scheduler.RunTask()
		}
		if id := driver.IDString(); id != "" {
			fmt.Printf("%-12s %s\n", query.label+":", id)
		} else {
			fmt.Printf("%-12s (no reply)\n", query.label+":")
		}
	}
}
