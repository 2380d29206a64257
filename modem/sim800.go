package modem

import (
	"strings"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/internal/constants"
	"github.com/behrlich/go-atmodem/serial"
)

// Sim800 drives the SIMCom SIM800 series of 2G cellular modems.
type Sim800 struct {
	simDevice
}

// Reply interpretation states.
const (
	sim800ReplyOK = iota
	sim800ReplyCifsr
	sim800ReplyCdnsgip
	sim800ReplyCipstart
	sim800ReplyCiprxget4
	sim800ReplyCiprxget2
	sim800ReplyCsq
	sim800ReplyID
)

// Outbound dialog states.
const (
	sim800NotConnected = iota
	sim800SerialError
	sim800Connecting
	sim800SendCiprxget
	sim800SendCipmux
	sim800SendCstt
	sim800SendCiicr
	sim800SendCifsr
	sim800SendDNSQuery
	sim800SendCipstart
	sim800FinalizeConnect
	sim800Connected
	sim800SendData
	sim800SendCiprxget4
	sim800SendCiprxget2
	sim800WaitReceive
	sim800Receiving
	sim800IPUnconnected
	sim800SendCipclose
	sim800SendCipshut
	sim800FinalizeDisconnect
)

// NewSim800 creates a SIM800 driver over port. The storage slices back the
// payload buffers and are borrowed for the driver's lifetime.
func NewSim800(port serial.Device, readStorage, writeStorage []byte) *Sim800 {
	d := &Sim800{}
	d.initAT(port, readStorage, writeStorage)
	d.initSim()
	return d
}

// Step performs one sweep of the driver state machine.
func (d *Sim800) Step() {
	// Hardware gate.
	if !d.serial.IsOpen() {
		if err := d.serial.Open(); err != nil {
			d.sendState = sim800SerialError
			d.observer.ObserveError("serial")
		}
		return
	}

	// Custom-AT escape gate.
	if d.flags&FlagSerialLocked != 0 {
		return
	}

	// Reset gate. The sweep carries on with the freshly forced states.
	d.handleReset(sim800SendCipshut, constants.ResetRetryDelay)

	// Inbound line assembly and parsing.
	if d.fillLineBuffer("\n>") {
		d.observer.ObserveReply(d.line)

		if d.lineHasPrefix("+PDP: DEACT") || d.lineHasPrefix("+CME ERROR") ||
			d.lineHasPrefix("ERROR") {
			d.raiseGeneralError()
			return
		}

		d.matchExpectedReply()

		switch d.replyState {
		case sim800ReplyCifsr:
			// A dotted quad has exactly three dots; anything else is an
			// echo or blank line to skip.
			if strings.Count(d.line, ".") == 3 {
				d.replyState = sim800ReplyOK
			}

		case sim800ReplyCdnsgip:
			if d.parseDNSReply() {
				d.replyState = sim800ReplyOK
			}

		case sim800ReplyCipstart:
			if d.handleDisconnect(sim800SendCipshut) {
				d.replyState = sim800ReplyOK
			} else if d.waitForReply == "" {
				d.replyState = sim800ReplyOK
			} else if d.lineHasPrefix("0, CONNECT FAIL") {
				d.raiseGeneralError()
				return
			}

		case sim800ReplyCiprxget4:
			if d.parseCiprxget4() {
				d.replyState = sim800ReplyOK
			}

		case sim800ReplyCiprxget2:
			if d.parseCiprxget2() {
				d.replyState = sim800ReplyOK
				d.sendState = sim800Receiving
			}

		case sim800ReplyCsq:
			if d.parseCsq() {
				d.replyState = sim800ReplyOK
			}

		case sim800ReplyID:
			if d.parseIDReply() {
				d.replyState = sim800ReplyOK
			}
		}

		if d.sendState >= sim800Connected {
			d.checkConnectionState("0, CLOSED")
		}
	} else if d.flags&FlagDisconnectPending != 0 && d.sendState == sim800Receiving {
		d.flushReadBuffer()
	}

	// Bail-outs: a reply is outstanding or the serial write path is tight.
	if d.waitForReply != "" || d.replyState != sim800ReplyOK {
		return
	}
	if d.serial.SpaceAvailable() < constants.LowSpaceThreshold {
		return
	}

	// Interleaved queries take the sweep when the dialog is quiet.
	if d.flags&FlagLineRead != 0 {
		if d.rssiWant {
			d.rssiWant = false
			d.replyState = sim800ReplyCsq
			d.waitForReply = okStr
			d.sendCommand("AT+CSQ")
			return
		}
		if d.idPending && d.idString == "" {
			d.replyState = sim800ReplyID
			d.waitForReply = okStr
			d.sendCommand(idCommand(d.idWant))
			return
		}
	}
	if d.serviceCustomCommand() {
		return
	}

	// Send dispatch: one step of the outbound dialog.
	switch d.sendState {
	case sim800NotConnected:
		d.SetDelay(constants.IdlePollDelay)
		d.state = atmodem.StateNotConnected
		d.handleConnect(sim800Connecting)

	case sim800Connecting:
		d.SetDelay(constants.IdlePollDelay)
		d.state = atmodem.StateIntermediate
		d.flags |= FlagLineRead
		d.waitForReply = okStr
		d.sendState = sim800SendCiprxget
		d.sendCommand("ATE0")

	case sim800SendCiprxget:
		d.waitForReply = okStr
		d.sendState = sim800SendCipmux
		d.sendCommand("AT+CIPRXGET=1")

	case sim800SendCipmux:
		d.waitForReply = okStr
		d.sendState = sim800SendCstt
		d.sendCommand("AT+CIPMUX=1")

	case sim800SendCstt:
		d.waitForReply = okStr
		d.sendState = sim800SendCiicr
		d.sendCommand(`AT+CSTT="` + d.apn + `"`)

	case sim800SendCiicr:
		d.waitForReply = okStr
		d.sendState = sim800SendCifsr
		d.sendCommand("AT+CIICR")

	case sim800SendCifsr:
		if d.handleDisconnect(sim800SendCipshut) {
			break
		}
		d.replyState = sim800ReplyCifsr
		d.sendState = sim800SendDNSQuery
		d.sendCommand("AT+CIFSR")

	case sim800SendDNSQuery:
		if d.sendDNSQuery() {
			d.replyState = sim800ReplyCdnsgip
			d.waitForReply = okStr
			d.sendState = sim800SendCipstart
		}

	case sim800SendCipstart:
		d.sendCipstart("START")
		d.replyState = sim800ReplyCipstart
		d.waitForReply = "0, CONNECT OK"
		d.sendState = sim800FinalizeConnect

	case sim800FinalizeConnect:
		d.SetDelay(0)
		d.state = atmodem.StateConnected
		d.replyState = sim800ReplyOK
		d.sendState = sim800Connected
		d.flags |= FlagIPConnected
		d.observer.ObserveConnect()

	case sim800Connected:
		if d.writeBuf.BytesAvailable() > 0 {
			if d.prepareSendingSim() {
				d.state = atmodem.StateTransmitting
				d.sendState = sim800SendData
			}
		} else if d.flags&FlagDataPending != 0 {
			d.flags &^= FlagDataPending
			d.state = atmodem.StateReceiving
			d.sendState = sim800SendCiprxget4
		} else {
			d.handleDisconnect(sim800SendCipclose)
		}

	case sim800SendData:
		d.sendData()
		d.waitForReply = "0, SEND OK"
		d.state = atmodem.StateConnected
		d.sendState = sim800Connected

	case sim800SendCiprxget4:
		d.waitForReply = okStr
		d.sendState = sim800SendCiprxget2
		d.replyState = sim800ReplyCiprxget4
		d.sendCommand("AT+CIPRXGET=4,0")

	case sim800SendCiprxget2:
		if d.handleDisconnect(sim800SendCipclose) {
			break
		}
		if d.bytesToReceive > 0 {
			if d.sendCiprxget2() {
				d.sendState = sim800WaitReceive
				d.replyState = sim800ReplyCiprxget2
			}
		} else if d.flags&FlagIPConnected != 0 {
			d.state = atmodem.StateConnected
			d.sendState = sim800Connected
		} else {
			d.sendState = sim800IPUnconnected
		}

	case sim800WaitReceive:
		// Payload header not yet parsed; stay put.

	case sim800Receiving:
		if d.bytesToRead > 0 {
			if d.receive() {
				d.replyState = sim800ReplyOK
				d.waitForReply = okStr
			}
		} else if d.bytesToReceive > 0 {
			d.sendState = sim800SendCiprxget2
		} else {
			d.sendState = sim800SendCiprxget4
		}

	case sim800IPUnconnected:
		d.state = atmodem.StateIntermediate
		if d.handleDisconnect(sim800FinalizeDisconnect) {
			break
		}
		d.handleConnect(sim800SendCipstart)

	case sim800SendCipclose:
		d.state = atmodem.StateIntermediate
		if d.flags&FlagIPConnected != 0 {
			d.waitForReply = "0, CLOSE OK"
			d.sendState = sim800SendCipshut
			d.sendCommand("AT+CIPCLOSE=0")
		} else {
			d.sendState = sim800SendCipshut
		}

	case sim800SendCipshut:
		d.state = atmodem.StateIntermediate
		d.waitForReply = "SHUT OK"
		d.sendState = sim800FinalizeDisconnect
		d.sendCommand("AT+CIPSHUT")

	case sim800FinalizeDisconnect:
		d.flags &^= FlagIPConnected
		d.state = atmodem.StateNotConnected
		d.sendState = sim800NotConnected
		d.observer.ObserveDisconnect()
	}
}

var _ atmodem.StatefulDevice = (*Sim800)(nil)
