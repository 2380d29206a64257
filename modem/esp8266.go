package modem

import (
	"strconv"
	"strings"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/internal/constants"
	"github.com/behrlich/go-atmodem/serial"
)

// Esp8266 drives Espressif Wi-Fi modules running the NonOS AT firmware
// v1.7 or later.
type Esp8266 struct {
	atDevice

	ssid   string
	passwd string

	macPending bool
	macString  string
}

// Reply interpretation states.
const (
	espReplyOK = iota
	espReplyCiprecvdata
	espReplyMac
)

// Outbound dialog states.
const (
	espNotConnected = iota
	espSerialError
	espConnecting
	espSendCwjap
	espSendCiprecvmode
	espSendCipmode
	espSendCipstart
	espFinalizeConnect
	espConnected
	espSendData
	espSendCiprecvdata
	espWaitReceive
	espReceiving
	espIPUnconnected
	espSendCipclose
	espSendCwqap
	espFinalizeDisconnect
)

// NewEsp8266 creates an ESP8266 driver over port. The storage slices back
// the payload buffers and are borrowed for the driver's lifetime.
func NewEsp8266(port serial.Device, readStorage, writeStorage []byte) *Esp8266 {
	d := &Esp8266{}
	d.initAT(port, readStorage, writeStorage)
	return d
}

// SetSSID sets the Wi-Fi network name. The string is borrowed.
func (d *Esp8266) SetSSID(ssid string) {
	d.ssid = ssid
}

// SetPassword sets the Wi-Fi passphrase. The string is borrowed.
func (d *Esp8266) SetPassword(passwd string) {
	d.passwd = passwd
}

// Connect requires the Wi-Fi credentials on top of the endpoint
// configuration.
func (d *Esp8266) Connect() bool {
	if d.ssid == "" || d.passwd == "" {
		return false
	}
	return d.connectRequest()
}

// RequestMAC asks the module for its station MAC address on an upcoming
// sweep.
func (d *Esp8266) RequestMAC() {
	d.macPending = true
	d.macString = ""
}

// MACString returns the MAC captured by the last RequestMAC, or "" while
// the request is outstanding.
func (d *Esp8266) MACString() string {
	return d.macString
}

// Step performs one sweep of the driver state machine.
func (d *Esp8266) Step() {
	// Hardware gate.
	if !d.serial.IsOpen() {
		if err := d.serial.Open(); err != nil {
			d.sendState = espSerialError
			d.observer.ObserveError("serial")
		}
		return
	}

	// Custom-AT escape gate.
	if d.flags&FlagSerialLocked != 0 {
		return
	}

	// Reset gate.
	d.handleReset(espSendCipclose, constants.ResetRetryDelay)

	// Inbound line assembly and parsing.
	if d.fillLineBuffer("\n>") {
		d.observer.ObserveReply(d.line)

		if d.lineHasPrefix("ERROR") ||
			(d.sendState >= espConnected && d.lineHasPrefix("SEND FAIL")) {
			d.raiseGeneralError()
			return
		}

		d.matchExpectedReply()

		switch d.replyState {
		case espReplyCiprecvdata:
			if d.parseCiprecvdata("+CIPRECVDATA,") {
				d.replyState = espReplyOK
				d.sendState = espReceiving
			}

		case espReplyMac:
			if d.lineHasPrefix("+CIPAPMAC:") {
				d.macString = strings.Trim(strings.TrimRight(d.line[10:], "\r\n"), "\"")
				d.macPending = false
				d.replyState = espReplyOK
			}
		}

		if d.sendState >= espConnected {
			if !d.parseIPD() && d.lineHasPrefix("CLOSE") {
				d.waitForReply = ""
				d.flags &^= FlagIPConnected
			}
		}
	} else if d.flags&FlagDisconnectPending != 0 && d.sendState == espReceiving {
		d.flushReadBuffer()
	}

	// Bail-outs.
	if d.waitForReply != "" || d.replyState != espReplyOK {
		return
	}
	if d.serial.SpaceAvailable() < constants.LowSpaceThreshold {
		return
	}

	// Interleaved MAC query.
	if d.flags&FlagLineRead != 0 && d.macPending && d.macString == "" {
		d.replyState = espReplyMac
		d.waitForReply = okStr
		d.sendCommand("AT+CIPAPMAC?")
		return
	}
	if d.serviceCustomCommand() {
		return
	}

	// Send dispatch.
	switch d.sendState {
	case espNotConnected:
		d.SetDelay(constants.IdlePollDelay)
		d.state = atmodem.StateNotConnected
		d.handleConnect(espConnecting)

	case espConnecting:
		d.SetDelay(constants.IdlePollDelay)
		d.state = atmodem.StateIntermediate
		d.flags |= FlagLineRead
		d.waitForReply = okStr
		d.sendState = espSendCwjap
		d.sendCommand("ATE0")

	case espSendCwjap:
		d.waitForReply = okStr
		d.sendState = espSendCiprecvmode
		d.sendCommand(`AT+CWJAP="` + d.ssid + `","` + d.passwd + `"`)

	case espSendCiprecvmode:
		d.waitForReply = okStr
		d.sendState = espSendCipmode
		d.sendCommand("AT+CIPRECVMODE=1")

	case espSendCipmode:
		d.waitForReply = okStr
		d.sendState = espSendCipstart
		d.sendCommand("AT+CIPMODE=0")

	case espSendCipstart:
		d.sendCommand(`AT+CIPSTART="` + d.transport.String() + `","` + d.host +
			`",` + strconv.Itoa(int(d.port)))
		d.waitForReply = okStr
		d.sendState = espFinalizeConnect

	case espFinalizeConnect:
		d.SetDelay(0)
		d.state = atmodem.StateConnected
		d.sendState = espConnected
		d.flags |= FlagIPConnected
		d.observer.ObserveConnect()

	case espConnected:
		if d.writeBuf.BytesAvailable() > 0 {
			if d.prepareSendingESP(constants.MaxReceiveESP8266) {
				d.state = atmodem.StateTransmitting
				d.sendState = espSendData
			}
		} else if d.flags&FlagDataPending != 0 {
			d.flags &^= FlagDataPending
			d.state = atmodem.StateReceiving
			d.sendState = espSendCiprecvdata
		} else {
			d.state = atmodem.StateConnected
			if d.flags&FlagIPConnected != 0 {
				d.handleDisconnect(espSendCipclose)
			} else {
				d.flags &^= FlagDisconnectPending
				d.sendState = espFinalizeDisconnect
			}
		}

	case espSendData:
		d.sendData()
		d.waitForReply = okStr
		d.state = atmodem.StateConnected
		d.sendState = espConnected

	case espSendCiprecvdata:
		if d.handleDisconnect(espSendCipclose) {
			break
		}
		if d.bytesToReceive > 0 {
			if d.sendCiprecvdata(constants.ReceiveReserveESP, constants.MaxReceiveESP8266) {
				d.sendState = espWaitReceive
				d.replyState = espReplyCiprecvdata
			}
		} else if d.flags&FlagIPConnected != 0 {
			d.sendState = espConnected
		} else {
			d.sendState = espIPUnconnected
		}

	case espWaitReceive:
		// Payload header not yet parsed; stay put.

	case espReceiving:
		if d.bytesToRead > 0 {
			if d.receive() {
				d.replyState = espReplyOK
				d.waitForReply = okStr
			}
		} else if d.bytesToReceive > 0 {
			d.sendState = espSendCiprecvdata
		} else {
			d.sendState = espConnected
		}

	case espIPUnconnected:
		d.state = atmodem.StateIntermediate
		if d.handleDisconnect(espSendCwqap) {
			break
		}
		d.handleConnect(espSendCipstart)

	case espSendCipclose:
		d.state = atmodem.StateIntermediate
		if d.flags&FlagIPConnected != 0 {
			d.waitForReply = okStr
			d.sendState = espSendCwqap
			d.sendCommand("AT+CIPCLOSE")
		} else {
			d.sendState = espSendCwqap
		}

	case espSendCwqap:
		d.state = atmodem.StateIntermediate
		d.waitForReply = okStr
		d.sendState = espFinalizeDisconnect
		d.sendCommand("AT+CWQAP")

	case espFinalizeDisconnect:
		d.flags &^= FlagIPConnected
		d.state = atmodem.StateNotConnected
		d.sendState = espNotConnected
		d.observer.ObserveDisconnect()
	}
}

var _ atmodem.StatefulDevice = (*Esp8266)(nil)
