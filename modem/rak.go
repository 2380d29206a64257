package modem

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/internal/constants"
	"github.com/behrlich/go-atmodem/serial"
)

// Rak drives LoRaWAN modules speaking the RAKwireless Unified Interface V3
// (RUI3) command set, such as the RAK3172.
//
// LoRaWAN is not a byte stream: each uplink is one confirmed packet whose
// maximum size follows the current data rate. The driver queries the data
// rate before every send, hex-encodes the payload into an AT+SEND, and on a
// failed confirmation rewinds the write buffer so the same bytes go out
// again on the next eligible sweep.
type Rak struct {
	atDevice

	devEUI string
	appEUI string
	appKey string

	portStr string

	currentPacketSize int
	bytesToResend     int
}

// Reply interpretation states.
const (
	rakReplyOK = iota
	rakReplyDataRate
	rakReplySendConfirm
)

// Outbound dialog states.
const (
	rakNotConnected = iota
	rakSerialError
	rakSendDevEUI
	rakSendAppEUI
	rakSendAppKey
	rakSendClass
	rakSendDR
	rakJoin
	rakFinalizeJoin
	rakJoined
	rakSendPacket
	rakWaitForSend
	rakFinalizeDisconnect
)

// NewRak creates a RUI3 driver over port. The storage slices back the
// payload buffers and are borrowed for the driver's lifetime.
func NewRak(port serial.Device, readStorage, writeStorage []byte) *Rak {
	d := &Rak{}
	d.initAT(port, readStorage, writeStorage)
	d.SetPort(1)
	d.currentPacketSize = constants.LoRaPacketSizes[0]
	return d
}

// SetDevEUI sets the device identifier. The string is borrowed.
func (d *Rak) SetDevEUI(eui string) { d.devEUI = eui }

// SetAppEUI sets the application identifier. The string is borrowed.
func (d *Rak) SetAppEUI(eui string) { d.appEUI = eui }

// SetAppKey sets the application key. The string is borrowed.
func (d *Rak) SetAppKey(key string) { d.appKey = key }

// SetPort selects the LoRaWAN port uplinks are sent on. May be changed
// after joining.
func (d *Rak) SetPort(port uint8) {
	d.portStr = strconv.Itoa(int(port))
}

// Connect sets up the module and joins the LoRaWAN network. It requires a
// full-length application key.
func (d *Rak) Connect() bool {
	if len(d.appKey) < 32 {
		return false
	}
	d.flags |= FlagConnectPending | FlagLineRead
	return true
}

// Disconnect leaves the joined state. There is no un-join dialog; the
// driver simply drops back to idle.
func (d *Rak) Disconnect() {
	if d.IsIdle() {
		return
	}
	d.flags |= FlagDisconnectPending
}

// IsConnected reports whether the network is joined.
func (d *Rak) IsConnected() bool {
	return d.sendState >= rakJoined
}

// IsIdle reports whether the driver is fully disconnected.
func (d *Rak) IsIdle() bool {
	return d.sendState == rakNotConnected
}

// SpaceAvailable reports the write-buffer space. Uplinks are buffered
// whenever the network is joined.
func (d *Rak) SpaceAvailable() int {
	if !d.IsConnected() {
		return 0
	}
	return d.writeBuf.SpaceAvailable()
}

// Write queues payload for uplink once the network is joined.
func (d *Rak) Write(p []byte) int {
	if !d.IsConnected() {
		return 0
	}
	return d.writeBuf.Push(p)
}

// WriteBufferProcessed reports whether all queued payload was sent and
// confirmed.
func (d *Rak) WriteBufferProcessed() bool {
	return d.writeBuf.IsEmpty() && d.sendState != rakWaitForSend
}

// Step performs one sweep of the driver state machine.
func (d *Rak) Step() {
	// Hardware gate.
	if !d.serial.IsOpen() {
		if err := d.serial.Open(); err != nil {
			d.sendState = rakSerialError
			d.observer.ObserveError("serial")
		}
		return
	}

	// Custom-AT escape gate.
	if d.flags&FlagSerialLocked != 0 {
		return
	}

	// Inbound line assembly: RUI3 ends some events with a bare '\r'.
	if d.fillLineBuffer("\n\r") {
		d.observer.ObserveReply(d.line)

		d.matchExpectedReply()

		switch d.replyState {
		case rakReplyDataRate:
			// Reply to AT+DR=? echoes the setting: `AT+DR=<n>`.
			if d.lineHasPrefix("AT+DR=") && !d.lineHasPrefix("AT+DR=?") {
				if n, ok := d.parseIntAfter("AT+DR="); ok {
					if n < len(constants.LoRaPacketSizes) {
						d.currentPacketSize = constants.LoRaPacketSizes[n]
					} else {
						d.currentPacketSize = constants.LoRaPacketSizes[0]
					}
					d.replyState = rakReplyOK
				}
			}

		case rakReplySendConfirm:
			if d.lineHasPrefix("+EVT:SEND_CONFIRMED_FAILED") ||
				d.lineHasPrefix("AT_BUSY_ERROR") {
				// The uplink died; expose the consumed bytes again so the
				// next sweep retransmits them.
				d.writeBuf.RewindReadHead(d.bytesToResend)
				d.observer.ObserveSendRetry(d.bytesToResend)
				d.replyState = rakReplyOK
				d.waitForReply = ""
			}
		}

		// Downlink: `+EVT:RX_1:-70:8:UNICAST:1:<hex>` — payload after the
		// fifth colon, hex-encoded.
		if d.sendState >= rakJoined && d.lineHasPrefix("+EVT:RX") {
			d.decodeDownlink()
		}
	}

	// Bail-outs.
	if d.waitForReply != "" {
		return
	}
	if d.serial.SpaceAvailable() < constants.LowSpaceThreshold {
		return
	}
	if (d.sendState == rakNotConnected || d.sendState == rakJoined) &&
		d.serviceCustomCommand() {
		return
	}

	// Send dispatch.
	switch d.sendState {
	case rakNotConnected:
		d.SetDelay(constants.IdlePollDelay)
		if d.flags&FlagConnectPending != 0 {
			d.flags &^= FlagConnectPending
			d.waitForReply = ""
			d.sendState = rakSendDevEUI
		}

	case rakSendDevEUI:
		if d.devEUI != "" {
			d.sendCommand("AT+DEVEUI=" + d.devEUI)
			d.waitForReply = okStr
		}
		d.sendState = rakSendAppEUI

	case rakSendAppEUI:
		if d.appEUI != "" {
			d.sendCommand("AT+APPEUI=" + d.appEUI)
			d.waitForReply = okStr
		}
		d.sendState = rakSendAppKey

	case rakSendAppKey:
		d.sendCommand("AT+APPKEY=" + d.appKey)
		d.waitForReply = okStr
		d.sendState = rakSendClass

	case rakSendClass:
		d.sendCommand("AT+CLASS=C")
		d.waitForReply = okStr
		d.sendState = rakSendDR

	case rakSendDR:
		d.sendCommand("AT+DR=0")
		d.waitForReply = okStr
		d.sendState = rakJoin

	case rakJoin:
		d.waitForReply = "+EVT:JOINED"
		d.sendState = rakFinalizeJoin
		d.sendCommand("AT+JOIN=1:0:8:4")

	case rakFinalizeJoin:
		d.SetDelay(0)
		d.sendState = rakJoined
		d.flags |= FlagIPConnected
		d.observer.ObserveConnect()

	case rakJoined:
		if d.handleDisconnect(rakFinalizeDisconnect) {
			break
		}
		if d.writeBuf.BytesAvailable() > 0 {
			// The packet ceiling follows the data rate, which may have been
			// adapted by the network; ask before every uplink.
			d.waitForReply = okStr
			d.sendState = rakSendPacket
			d.replyState = rakReplyDataRate
			d.sendCommand("AT+DR=?")
		}

	case rakSendPacket:
		d.sendUplink()

	case rakWaitForSend:
		d.sendState = rakJoined

	case rakFinalizeDisconnect:
		d.flags &^= FlagIPConnected
		d.sendState = rakNotConnected
		d.observer.ObserveDisconnect()
	}
}

// sendUplink pulls up to one packet of payload, hex-encodes it into an
// AT+SEND and awaits the delivery confirmation.
func (d *Rak) sendUplink() {
	d.waitForReply = "+EVT:SEND_CONFIRMED_OK"
	d.sendState = rakWaitForSend
	d.replyState = rakReplySendConfirm

	var sb strings.Builder
	sb.WriteString("AT+SEND=")
	sb.WriteString(d.portStr)
	sb.WriteByte(':')

	n := 0
	for n < d.currentPacketSize && d.writeBuf.BytesAvailable() > 0 {
		c, _ := d.writeBuf.PullOne()
		sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		n++
	}
	d.bytesToResend = n
	d.sendCommand(sb.String())
	d.observer.ObserveSend(n)
}

// decodeDownlink hex-decodes the payload after the fifth field separator of
// an +EVT:RX event line into the read buffer.
func (d *Rak) decodeDownlink() {
	rest := d.line[len("+EVT:RX"):]
	for i := 0; i < 5; i++ {
		idx := strings.IndexByte(rest, ':')
		if idx < 0 {
			return
		}
		rest = rest[idx+1:]
	}
	rest = strings.TrimRight(rest, "\r\n")
	for len(rest) >= 2 {
		b, err := hex.DecodeString(rest[:2])
		if err != nil {
			return
		}
		d.readBuf.PushOne(b[0])
		d.observer.ObserveReceive(1)
		rest = rest[2:]
	}
}

var _ atmodem.StatefulDevice = (*Rak)(nil)
