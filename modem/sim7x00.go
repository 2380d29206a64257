package modem

import (
	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/internal/constants"
	"github.com/behrlich/go-atmodem/serial"
)

// Sim7x00 drives the SIMCom SIM7x00 series of 4G cellular modems.
type Sim7x00 struct {
	simDevice
}

// Reply interpretation states.
const (
	sim7xReplyOK = iota
	sim7xReplyNetopen
	sim7xReplyCdnsgip
	sim7xReplyCiprxget4
	sim7xReplyCiprxget2
	sim7xReplyCsq
	sim7xReplyID
)

// Outbound dialog states.
const (
	sim7xNotConnected = iota
	sim7xSerialError
	sim7xConnecting
	sim7xSendCgdcont
	sim7xSendAtd
	sim7xSendPpp
	sim7xSendCsocksetpn
	sim7xSendCipmode
	sim7xSendNetopen
	sim7xSendCiprxget
	sim7xSendDNSQuery
	sim7xSendCipopen
	sim7xFinalizeConnect
	sim7xConnected
	sim7xSendData
	sim7xSendCiprxget4
	sim7xSendCiprxget2
	sim7xWaitReceive
	sim7xReceiving
	sim7xIPUnconnected
	sim7xSendNetclose
	sim7xSendAth
	sim7xFinalizeDisconnect
)

// NewSim7x00 creates a SIM7x00 driver over port. The storage slices back
// the payload buffers and are borrowed for the driver's lifetime.
func NewSim7x00(port serial.Device, readStorage, writeStorage []byte) *Sim7x00 {
	d := &Sim7x00{}
	d.initAT(port, readStorage, writeStorage)
	d.initSim()
	return d
}

// Step performs one sweep of the driver state machine.
func (d *Sim7x00) Step() {
	// Hardware gate.
	if !d.serial.IsOpen() {
		if err := d.serial.Open(); err != nil {
			d.sendState = sim7xSerialError
			d.observer.ObserveError("serial")
		}
		return
	}

	// Custom-AT escape gate.
	if d.flags&FlagSerialLocked != 0 {
		return
	}

	// Reset gate: close everything, then redo the whole bearer setup.
	d.handleReset(sim7xSendNetclose, constants.ResetRetryDelay)

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
		case sim7xReplyNetopen:
			if d.waitForReply == "" {
				d.replyState = sim7xReplyOK
			} else if d.lineHasPrefix("+NETOPEN: 1") {
				// Bearer not ready yet; back off and retry the open.
				d.SetDelay(constants.NetOpenRetryDelay)
				d.sendState = sim7xSendNetopen
				d.waitForReply = ""
				d.replyState = sim7xReplyOK
				return
			}

		case sim7xReplyCdnsgip:
			if d.parseDNSReply() {
				d.replyState = sim7xReplyOK
			}

		case sim7xReplyCiprxget4:
			if d.parseCiprxget4() {
				d.replyState = sim7xReplyOK
			}

		case sim7xReplyCiprxget2:
			if d.parseCiprxget2() {
				d.replyState = sim7xReplyOK
				d.sendState = sim7xReceiving
			}

		case sim7xReplyCsq:
			if d.parseCsq() {
				d.replyState = sim7xReplyOK
			}

		case sim7xReplyID:
			if d.parseIDReply() {
				d.replyState = sim7xReplyOK
			}
		}

		if d.sendState >= sim7xConnected {
			d.checkConnectionState("+IPCLOSE: 0,")
		}
	} else if d.flags&FlagDisconnectPending != 0 && d.sendState == sim7xReceiving {
		d.flushReadBuffer()
	}

	// Bail-outs.
	if d.waitForReply != "" || d.replyState != sim7xReplyOK {
		return
	}
	if d.serial.SpaceAvailable() < constants.LowSpaceThreshold {
		return
	}

	// Interleaved queries.
	if d.flags&FlagLineRead != 0 {
		if d.rssiWant {
			d.rssiWant = false
			d.replyState = sim7xReplyCsq
			d.waitForReply = okStr
			d.sendCommand("AT+CSQ")
			return
		}
		if d.idPending {
			d.replyState = sim7xReplyID
			d.waitForReply = okStr
			d.sendCommand(idCommand(d.idWant))
			return
		}
	}
	if d.serviceCustomCommand() {
		return
	}

	// Send dispatch.
	switch d.sendState {
	case sim7xNotConnected:
		d.SetDelay(constants.IdlePollDelay)
		d.state = atmodem.StateNotConnected
		d.handleConnect(sim7xConnecting)

	case sim7xConnecting:
		d.SetDelay(constants.IdlePollDelay)
		d.state = atmodem.StateIntermediate
		d.flags |= FlagLineRead
		d.waitForReply = okStr
		d.sendState = sim7xSendCgdcont
		d.sendCommand("ATE1")

	case sim7xSendCgdcont:
		d.waitForReply = okStr
		d.sendState = sim7xSendAtd
		d.sendCommand(`AT+CGDCONT=1,"IP","` + d.apn + `"`)

	case sim7xSendAtd:
		d.SetDelay(constants.DialSettleDelay)
		d.waitForReply = "CONNECT"
		d.sendState = sim7xSendPpp
		d.sendCommand("ATD*99#")

	case sim7xSendPpp:
		// The +++ escape must sit alone on the line, no terminator, with a
		// guard interval before further commands.
		d.SetDelay(constants.EscapeGuardDelay)
		d.serial.WriteString("+++")
		d.observer.ObserveCommand("+++")
		d.waitForReply = okStr
		d.sendState = sim7xSendCsocksetpn

	case sim7xSendCsocksetpn:
		d.SetDelay(constants.IdlePollDelay)
		d.waitForReply = okStr
		d.sendState = sim7xSendCipmode
		d.sendCommand("AT+CSOCKSETPN=1")

	case sim7xSendCipmode:
		d.waitForReply = okStr
		d.sendState = sim7xSendNetopen
		d.sendCommand("AT+CIPMODE=0")

	case sim7xSendNetopen:
		d.SetDelay(constants.IdlePollDelay)
		d.waitForReply = "+NETOPEN: 0"
		d.sendState = sim7xSendCiprxget
		d.replyState = sim7xReplyNetopen
		d.sendCommand("AT+NETOPEN")

	case sim7xSendCiprxget:
		d.waitForReply = okStr
		d.sendState = sim7xSendDNSQuery
		d.sendCommand("AT+CIPRXGET=1")

	case sim7xSendDNSQuery:
		if d.sendDNSQuery() {
			d.replyState = sim7xReplyCdnsgip
			d.waitForReply = okStr
			d.sendState = sim7xSendCipopen
		}

	case sim7xSendCipopen:
		d.sendCipstart("OPEN")
		d.waitForReply = "+CIPOPEN: 0,0"
		d.sendState = sim7xFinalizeConnect

	case sim7xFinalizeConnect:
		d.SetDelay(0)
		d.state = atmodem.StateConnected
		d.replyState = sim7xReplyOK
		d.sendState = sim7xConnected
		d.flags |= FlagIPConnected
		d.observer.ObserveConnect()

	case sim7xConnected:
		if d.writeBuf.BytesAvailable() > 0 {
			if d.prepareSendingSim() {
				d.state = atmodem.StateTransmitting
				d.sendState = sim7xSendData
			}
		} else if d.flags&FlagDataPending != 0 {
			d.flags &^= FlagDataPending
			d.state = atmodem.StateReceiving
			d.sendState = sim7xSendCiprxget4
		} else {
			d.handleDisconnect(sim7xSendNetclose)
		}

	case sim7xSendData:
		d.sendData()
		d.waitForReply = okStr
		d.state = atmodem.StateConnected
		d.sendState = sim7xConnected

	case sim7xSendCiprxget4:
		d.waitForReply = okStr
		d.sendState = sim7xSendCiprxget2
		d.replyState = sim7xReplyCiprxget4
		d.sendCommand("AT+CIPRXGET=4,0")

	case sim7xSendCiprxget2:
		if d.handleDisconnect(sim7xSendNetclose) {
			break
		}
		if d.bytesToReceive > 0 {
			if d.sendCiprxget2() {
				d.sendState = sim7xWaitReceive
				d.replyState = sim7xReplyCiprxget2
			}
		} else if d.flags&FlagIPConnected != 0 {
			d.state = atmodem.StateConnected
			d.sendState = sim7xConnected
		} else {
			d.sendState = sim7xIPUnconnected
		}

	case sim7xWaitReceive:
		// Payload header not yet parsed; stay put.

	case sim7xReceiving:
		if d.bytesToRead > 0 {
			if d.receive() {
				d.replyState = sim7xReplyOK
				d.waitForReply = okStr
			}
		} else if d.bytesToReceive > 0 {
			d.sendState = sim7xSendCiprxget2
		} else {
			d.sendState = sim7xSendCiprxget4
		}

	case sim7xIPUnconnected:
		d.state = atmodem.StateIntermediate
		if d.handleDisconnect(sim7xSendNetclose) {
			break
		}
		d.handleConnect(sim7xSendCipopen)

	case sim7xSendNetclose:
		d.state = atmodem.StateIntermediate
		d.waitForReply = "+NETCLOSE: 0"
		d.sendState = sim7xSendAth
		d.sendCommand("AT+NETCLOSE")

	case sim7xSendAth:
		d.waitForReply = okStr
		d.sendState = sim7xFinalizeDisconnect
		d.sendCommand("ATH")

	case sim7xFinalizeDisconnect:
		d.flags &^= FlagIPConnected
		d.state = atmodem.StateNotConnected
		d.sendState = sim7xNotConnected
		d.observer.ObserveDisconnect()
	}
}

var _ atmodem.StatefulDevice = (*Sim7x00)(nil)
