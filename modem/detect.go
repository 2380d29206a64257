package modem

import (
	"strings"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/sched"
	"github.com/behrlich/go-atmodem/serial"
)

// DetectedModem identifies the modem family a Detector found.
type DetectedModem int

const (
	ModemNone DetectedModem = iota
	ModemSim800
	ModemSim7x00
)

// CellularDevice is the surface the detector's factory hands out: a SIMCom
// driver of whichever family answered, ready for APN and endpoint
// configuration.
type CellularDevice interface {
	atmodem.StatefulDevice

	SetHostPort(transport atmodem.Transport, host string, port uint16)
	SetAPN(apn string)
	RequestRSSI()
	RSSI() uint8
	RequestID(kind IDKind)
	IDString() string
	Step()
}

// Detector identifies the attached SIMCom modem by its AT+CGMM model reply
// and constructs the matching driver in place. The concrete drivers live
// inside the Detector as a tagged union: detection selects which member
// becomes active, and nothing is allocated per detection.
//
// Register the Detector itself with the scheduler; once a driver is built,
// its sweeps run through the Detector's Step.
type Detector struct {
	sched.TaskBase

	serial serial.Device
	state  detectState

	detected DetectedModem

	drivers struct {
		sim800  Sim800
		sim7x00 Sim7x00
	}
	driver CellularDevice
}

type detectState int

const (
	detectBegin detectState = iota
	detectError
	detectCgmmSent
	detectDone
)

// NewDetector creates a detector over port.
func NewDetector(port serial.Device) *Detector {
	return &Detector{serial: port}
}

// ModemDetected reports whether a supported model string was seen.
func (d *Detector) ModemDetected() bool {
	return d.detected != ModemNone
}

// Detected returns the identified family.
func (d *Detector) Detected() DetectedModem {
	return d.detected
}

// Driver constructs (once) and returns the driver for the detected family,
// wired to the detector's serial port and the supplied payload storage.
// Returns nil while no modem was detected.
func (d *Detector) Driver(readStorage, writeStorage []byte) CellularDevice {
	if d.driver != nil {
		return d.driver
	}
	switch d.detected {
	case ModemSim800:
		drv := &d.drivers.sim800
		drv.initAT(d.serial, readStorage, writeStorage)
		drv.initSim()
		d.driver = drv
	case ModemSim7x00:
		drv := &d.drivers.sim7x00
		drv.initAT(d.serial, readStorage, writeStorage)
		drv.initSim()
		d.driver = drv
	}
	return d.driver
}

// Step runs the detection dialog, then delegates to the constructed driver.
func (d *Detector) Step() {
	if d.driver != nil {
		d.driver.Step()
		return
	}

	if !d.serial.IsOpen() {
		if err := d.serial.Open(); err != nil {
			d.state = detectError
		}
		return
	}

	switch d.state {
	case detectBegin:
		d.serial.FlushReceiveBuffers()
		d.serial.WriteString("AT+CGMM\r\n")
		d.state = detectCgmmSent

	case detectCgmmSent:
		line := make([]byte, 64)
		for d.serial.CanReadLine() {
			n := d.serial.ReadLine(line)
			model := strings.TrimRight(string(line[:n]), "\r\n")
			switch {
			case model == "SIMCOM_SIM800":
				d.detected = ModemSim800
				d.state = detectDone
			case strings.HasPrefix(model, "SIMCOM_SIM7600"):
				d.detected = ModemSim7x00
				d.state = detectDone
			}
		}
		d.serial.FlushReceiveBuffers()
	}
}
