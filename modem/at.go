package modem

import (
	"strconv"
	"strings"

	"github.com/eapache/queue"
	"github.com/rs/xid"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/internal/constants"
	"github.com/behrlich/go-atmodem/internal/interfaces"
	"github.com/behrlich/go-atmodem/sched"
	"github.com/behrlich/go-atmodem/serial"
)

const (
	okStr      = "OK"
	lineEndStr = "\r\n"
)

// atDevice is the shared core of every AT-dialog driver: the line
// assembler, the expected-reply matcher, the byte counters that steer the
// binary payload phases, and the send/reply state cursors the per-family
// sweeps dispatch on.
//
// The sweeps are resumable by construction — every value that must survive
// between scheduler polls lives here, never on the Step stack.
type atDevice struct {
	ipDevice
	sched.TaskBase

	serial serial.Device

	lineBuf [constants.LineMaxLength + 1]byte
	lbFill  int
	line    string

	sendState  int
	replyState int

	// waitForReply is the reply prefix the dialog is blocked on; empty
	// means not waiting.
	waitForReply string

	bytesToWrite   int
	bytesToReceive int
	bytesToRead    int

	// Queued custom AT commands, serviced between dialog steps.
	customCmds *queue.Queue

	id       string
	logger   interfaces.Logger
	observer interfaces.Observer
}

func (d *atDevice) initAT(port serial.Device, readStorage, writeStorage []byte) {
	d.initIP(readStorage, writeStorage)
	d.serial = port
	d.customCmds = queue.New()
	d.id = xid.New().String()
	d.observer = nopObserver{}
}

// ID returns the instance identifier used in logs and metric labels.
func (d *atDevice) ID() string { return d.id }

// IsIdle reports whether the device is fully disconnected. Unlike the plain
// channel state, a driver is only idle when its dialog also sits in the
// family's not-connected state — a port that failed to open never reports
// idle.
func (d *atDevice) IsIdle() bool {
	return d.state == atmodem.StateNotConnected && d.sendState == 0
}

// SetLogger attaches a logger; nil disables logging.
func (d *atDevice) SetLogger(l interfaces.Logger) { d.logger = l }

// SetObserver attaches a metrics observer; nil disables observation.
func (d *atDevice) SetObserver(o interfaces.Observer) {
	if o == nil {
		o = nopObserver{}
	}
	d.observer = o
}

func (d *atDevice) debugf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Debugf("["+d.id+"] "+format, args...)
	}
}

// fillLineBuffer assembles inbound bytes into the line buffer while the
// driver is in line-read mode. A line completes on any byte in terminators
// or when the buffer fills. Returns true when a line is ready in d.line.
func (d *atDevice) fillLineBuffer(terminators string) bool {
	if d.flags&FlagLineRead == 0 {
		return false
	}
	for d.serial.BytesAvailable() > 0 {
		c := d.serial.ReadByte()
		d.lineBuf[d.lbFill] = c
		d.lbFill++
		if strings.IndexByte(terminators, c) >= 0 || d.lbFill == constants.LineMaxLength {
			d.line = string(d.lineBuf[:d.lbFill])
			d.lbFill = 0
			return true
		}
	}
	return false
}

// lineHasPrefix reports whether the assembled line begins with prefix.
func (d *atDevice) lineHasPrefix(prefix string) bool {
	return strings.HasPrefix(d.line, prefix)
}

// matchExpectedReply clears waitForReply when the assembled line starts
// with it.
func (d *atDevice) matchExpectedReply() {
	if d.waitForReply != "" && d.lineHasPrefix(d.waitForReply) {
		d.waitForReply = ""
	}
}

// raiseGeneralError schedules a reset and flags the channel errored.
func (d *atDevice) raiseGeneralError() {
	d.flags |= FlagResetPending
	d.state = atmodem.StateGeneralError
	d.waitForReply = ""
	d.observer.ObserveError("general")
	d.debugf("modem error: %q", d.line)
}

// handleReset services a pending reset: serial buffers are flushed, the
// counters cleared and the dialog forced into the family's close-everything
// state. A connection that was at least underway is re-requested, so
// transient modem errors recover without application help.
func (d *atDevice) handleReset(closeState int, retryDelayMs uint32) bool {
	if d.flags&FlagResetPending == 0 {
		return false
	}
	d.serial.FlushReceiveBuffers()
	d.bytesToRead = 0
	d.bytesToReceive = 0
	d.bytesToWrite = 0
	d.lbFill = 0
	d.sendState = closeState
	d.replyState = 0
	d.waitForReply = ""
	d.flags &^= FlagResetPending
	d.flags |= FlagLineRead
	d.observer.ObserveReset()
	if d.state >= atmodem.StateIntermediate {
		d.SetDelay(retryDelayMs)
		d.connectRequest()
	}
	return true
}

// handleConnect consumes a pending connect request, moving the dialog to
// nextState.
func (d *atDevice) handleConnect(nextState int) bool {
	if d.flags&FlagConnectPending == 0 {
		return false
	}
	d.flags &^= FlagConnectPending
	d.sendState = nextState
	return true
}

// handleDisconnect consumes a pending disconnect request, moving the dialog
// to nextState.
func (d *atDevice) handleDisconnect(nextState int) bool {
	if d.flags&FlagDisconnectPending == 0 {
		return false
	}
	d.flags &^= FlagDisconnectPending
	d.sendState = nextState
	return true
}

// sendCommand writes cmd followed by the line terminator.
func (d *atDevice) sendCommand(cmd string) {
	d.serial.WriteString(cmd)
	d.serial.WriteString(lineEndStr)
	d.observer.ObserveCommand(cmd)
	d.debugf("-> %s", cmd)
}

// prepareSending computes how much payload one send command may carry —
// bounded by the buffered payload, the serial write space minus the
// command-framing reserve, and the family ceiling — and emits the send
// command built by buildCmd. Refuses when the serial reserve is not free.
func (d *atDevice) prepareSending(maxSend int, buildCmd func(n int) string) bool {
	space := d.serial.SpaceAvailable()
	if space < constants.SendReserve {
		return false
	}
	n := d.writeBuf.BytesAvailable()
	if n > space-constants.SendReserve {
		n = space - constants.SendReserve
	}
	if maxSend > 0 && n > maxSend {
		n = maxSend
	}
	d.bytesToWrite = n
	d.sendCommand(buildCmd(n))
	d.waitForReply = ">"
	return true
}

// sendData moves the prepared payload from the write buffer to the serial
// port, after the modem prompted for it.
func (d *atDevice) sendData() {
	n := d.bytesToWrite
	for d.bytesToWrite > 0 {
		c, ok := d.writeBuf.PullOne()
		if !ok {
			break
		}
		d.serial.WriteByte(c)
		d.bytesToWrite--
	}
	d.observer.ObserveSend(n - d.bytesToWrite)
}

// receive drains a counted binary payload from the serial port into the
// read buffer once it arrived in full, then re-enters line-read mode.
func (d *atDevice) receive() bool {
	if d.serial.BytesAvailable() < d.bytesToRead {
		return false
	}
	n := d.bytesToRead
	for d.bytesToRead > 0 {
		d.readBuf.PushOne(d.serial.ReadByte())
		d.bytesToRead--
	}
	d.flags |= FlagLineRead
	d.observer.ObserveReceive(n)
	return true
}

// flushReadBuffer discards a partially fetched payload, used when a
// disconnect interrupts a receive phase.
func (d *atDevice) flushReadBuffer() {
	for d.bytesToRead > 0 && d.serial.BytesAvailable() > 0 {
		d.serial.ReadByte()
		d.bytesToRead--
	}
	d.bytesToReceive = 0
	if d.bytesToRead == 0 {
		d.flags |= FlagLineRead
	}
}

// SerialLock takes exclusive use of the serial port for custom AT traffic.
// It fails while the dialog is mid-exchange.
func (d *atDevice) SerialLock() bool {
	if d.waitForReply != "" || d.replyState != 0 {
		return false
	}
	d.flags |= FlagSerialLocked
	return true
}

// SerialUnlock returns the serial port to the driver.
func (d *atDevice) SerialUnlock() {
	d.flags &^= FlagSerialLocked
}

// SerialWrite writes raw bytes to the modem while the lock is held.
func (d *atDevice) SerialWrite(data []byte) int {
	if d.flags&FlagSerialLocked == 0 {
		return 0
	}
	return d.serial.Write(data)
}

// SerialRead reads raw modem output while the lock is held.
func (d *atDevice) SerialRead(data []byte) int {
	if d.flags&FlagSerialLocked == 0 {
		return 0
	}
	return d.serial.Read(data)
}

// QueueCommand enqueues a custom AT command the driver sends, OK-awaited,
// at the next quiet point between dialog steps. The fire-and-forget
// alternative to the SerialLock escape.
func (d *atDevice) QueueCommand(cmd string) {
	d.customCmds.Add(cmd)
}

// serviceCustomCommand sends one queued custom command when the dialog is
// quiet. Returns true when it consumed the sweep.
func (d *atDevice) serviceCustomCommand() bool {
	if d.customCmds.Length() == 0 {
		return false
	}
	if d.state != atmodem.StateConnected && d.state != atmodem.StateNotConnected {
		return false
	}
	cmd := d.customCmds.Remove().(string)
	d.sendCommand(cmd)
	d.waitForReply = okStr
	return true
}

// parseIntAfter parses the decimal integer following prefix in the current
// line. Returns false when the line does not carry one.
func (d *atDevice) parseIntAfter(prefix string) (int, bool) {
	if !d.lineHasPrefix(prefix) {
		return 0, false
	}
	return parseLeadingInt(d.line[len(prefix):])
}

// parseLeadingInt parses the decimal integer at the start of s, ignoring
// whatever follows it.
func parseLeadingInt(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, false
	}
	n, err := strconv.Atoi(s[i:j])
	if err != nil {
		return 0, false
	}
	return n, true
}

// nopObserver ignores every event.
type nopObserver struct{}

func (nopObserver) ObserveCommand(string)  {}
func (nopObserver) ObserveReply(string)    {}
func (nopObserver) ObserveSend(int)        {}
func (nopObserver) ObserveReceive(int)     {}
func (nopObserver) ObserveSendRetry(int)   {}
func (nopObserver) ObserveConnect()        {}
func (nopObserver) ObserveDisconnect()     {}
func (nopObserver) ObserveReset()          {}
func (nopObserver) ObserveError(string)    {}
