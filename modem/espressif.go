package modem

import "strconv"

// Espressif-dialect helpers shared by the ESP8266 and CC1352P7 drivers.
// Both speak the single-connection CIPSEND / CIPRECVDATA dialect; they
// differ in join steps, receive ceilings and the exact CIPRECVDATA reply
// shape their firmware emits.

// prepareSendingESP emits the single-connection send command for the
// payload size computed by prepareSending.
func (d *atDevice) prepareSendingESP(maxSend int) bool {
	return d.prepareSending(maxSend, func(n int) string {
		return "AT+CIPSEND=" + strconv.Itoa(n)
	})
}

// sendCiprecvdata requests the next payload chunk. The chunk is bounded by
// the serial read-buffer headroom (keeping reserve bytes free for the reply
// framing), the pending byte count, the device read-buffer space and the
// family ceiling.
func (d *atDevice) sendCiprecvdata(reserve, maxRecv int) bool {
	headroom := d.serial.ReadBufferSize() - d.serial.BytesAvailable()
	if headroom <= reserve || d.readBuf.SpaceAvailable() == 0 {
		return false
	}
	n := headroom - reserve
	if n > d.bytesToReceive {
		n = d.bytesToReceive
	}
	if n > d.readBuf.SpaceAvailable() {
		n = d.readBuf.SpaceAvailable()
	}
	if n > maxRecv {
		n = maxRecv
	}
	d.sendCommand("AT+CIPRECVDATA=" + strconv.Itoa(n))
	return true
}

// parseCiprecvdata handles the payload header announcing the chunk the
// modem is about to stream, switching the inbound path to counted binary
// mode. The prefix differs per firmware: the ESP-AT reply is
// `+CIPRECVDATA,<n>:`, the CC1352P7 one is `+CIPRECVDATA:<n>`.
func (d *atDevice) parseCiprecvdata(prefix string) bool {
	n, ok := d.parseIntAfter(prefix)
	if !ok {
		return false
	}
	d.bytesToReceive -= n
	d.bytesToRead += n
	d.flags &^= FlagLineRead
	return true
}

// parseIPD handles the unsolicited `+IPD,<n>` data notification.
func (d *atDevice) parseIPD() bool {
	n, ok := d.parseIntAfter("+IPD,")
	if !ok {
		return false
	}
	d.bytesToReceive += n
	d.flags |= FlagDataPending
	return true
}
