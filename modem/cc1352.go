package modem

import (
	"strconv"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/internal/constants"
	"github.com/behrlich/go-atmodem/serial"
)

// CC1352 drives the TI CC1352P7 WiSUN border-router firmware. The module
// speaks the Espressif CIPSEND / CIPRECVDATA dialect but joins its network
// on its own: there are no credential steps, and one fetch may carry at
// most 1220 bytes.
type CC1352 struct {
	atDevice
}

// Reply interpretation states.
const (
	ccReplyOK = iota
	ccReplyCiprecvdata
)

// Outbound dialog states.
const (
	ccNotConnected = iota
	ccSerialError
	ccConnecting
	ccSendCipstart
	ccFinalizeConnect
	ccConnected
	ccSendData
	ccSendCiprecvdata
	ccWaitReceive
	ccReceiving
	ccSendCipclose
	ccFinalizeDisconnect
)

// NewCC1352 creates a CC1352P7 driver over port. The storage slices back
// the payload buffers and are borrowed for the driver's lifetime.
func NewCC1352(port serial.Device, readStorage, writeStorage []byte) *CC1352 {
	d := &CC1352{}
	d.initAT(port, readStorage, writeStorage)
	return d
}

// Step performs one sweep of the driver state machine.
func (d *CC1352) Step() {
	// Hardware gate.
	if !d.serial.IsOpen() {
		if err := d.serial.Open(); err != nil {
			d.sendState = ccSerialError
			d.observer.ObserveError("serial")
		}
		return
	}

	// Custom-AT escape gate.
	if d.flags&FlagSerialLocked != 0 {
		return
	}

	// Reset gate.
	d.handleReset(ccSendCipclose, constants.ResetRetryDelay)

	// Inbound line assembly and parsing. The '>' terminator completes the
	// bare prompt that answers AT+CIPSEND.
	if d.fillLineBuffer("\n>") {
		d.observer.ObserveReply(d.line)

		if d.lineHasPrefix("ERROR") ||
			(d.sendState >= ccConnected && d.lineHasPrefix("SEND FAIL")) {
			d.raiseGeneralError()
			return
		}

		d.matchExpectedReply()

		if d.replyState == ccReplyCiprecvdata {
			if d.parseCiprecvdata("+CIPRECVDATA:") {
				d.replyState = ccReplyOK
				d.sendState = ccReceiving
			}
		}

		if d.sendState >= ccConnected {
			if n, ok := d.parseIntAfter("+IPD,"); ok {
				// The border router reports the absolute pending count.
				d.bytesToReceive = n
				d.flags |= FlagDataPending
			} else if d.lineHasPrefix("CLOSED") {
				d.flags &^= FlagIPConnected
			}
		}
	} else if d.flags&FlagDisconnectPending != 0 && d.sendState == ccReceiving {
		d.flushReadBuffer()
	}

	// Bail-outs.
	if d.waitForReply != "" || d.replyState != ccReplyOK {
		return
	}
	if d.serial.SpaceAvailable() < constants.LowSpaceThreshold {
		return
	}
	if d.serviceCustomCommand() {
		return
	}

	// Send dispatch.
	switch d.sendState {
	case ccNotConnected:
		d.state = atmodem.StateNotConnected
		d.handleConnect(ccConnecting)

	case ccConnecting:
		d.state = atmodem.StateIntermediate
		d.flags |= FlagLineRead
		d.waitForReply = okStr
		d.sendState = ccSendCipstart
		d.sendCommand("ATE0")

	case ccSendCipstart:
		d.sendCommand(`AT+CIPSTART="` + d.transport.String() + `","` + d.host +
			`",` + strconv.Itoa(int(d.port)))
		d.waitForReply = okStr
		d.sendState = ccFinalizeConnect

	case ccFinalizeConnect:
		d.state = atmodem.StateConnected
		d.sendState = ccConnected
		d.flags |= FlagIPConnected
		d.observer.ObserveConnect()

	case ccConnected:
		if d.writeBuf.BytesAvailable() > 0 {
			if d.prepareSendingESP(constants.MaxReceiveCC1352) {
				d.state = atmodem.StateTransmitting
				d.sendState = ccSendData
			}
		} else if d.flags&FlagDataPending != 0 {
			d.flags &^= FlagDataPending
			d.state = atmodem.StateReceiving
			d.sendState = ccSendCiprecvdata
		} else {
			d.state = atmodem.StateConnected
			if d.flags&FlagIPConnected != 0 {
				d.handleDisconnect(ccSendCipclose)
			} else {
				d.flags &^= FlagDisconnectPending
				d.sendState = ccFinalizeDisconnect
			}
		}

	case ccSendData:
		d.sendData()
		d.waitForReply = okStr
		d.state = atmodem.StateConnected
		d.sendState = ccConnected

	case ccSendCiprecvdata:
		if d.handleDisconnect(ccSendCipclose) {
			break
		}
		if d.bytesToReceive > 0 {
			if d.sendCiprecvdata(constants.ReceiveReserveCC1352, constants.MaxReceiveCC1352) {
				d.sendState = ccWaitReceive
				d.replyState = ccReplyCiprecvdata
			}
		} else {
			d.sendState = ccConnected
		}

	case ccWaitReceive:
		// Payload header not yet parsed; stay put.

	case ccReceiving:
		if d.bytesToRead > 0 {
			if d.receive() {
				d.replyState = ccReplyOK
				d.waitForReply = okStr
			}
		} else if d.bytesToReceive > 0 {
			d.sendState = ccSendCiprecvdata
		} else {
			d.sendState = ccConnected
		}

	case ccSendCipclose:
		d.state = atmodem.StateIntermediate
		d.waitForReply = okStr
		d.sendState = ccFinalizeDisconnect
		d.sendCommand("AT+CIPCLOSE")

	case ccFinalizeDisconnect:
		d.flags &^= FlagIPConnected
		d.state = atmodem.StateNotConnected
		d.sendState = ccNotConnected
		d.observer.ObserveDisconnect()
	}
}

var _ atmodem.StatefulDevice = (*CC1352)(nil)
