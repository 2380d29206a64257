package modem

import (
	"strconv"
	"strings"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/internal/constants"
)

// IDKind selects which identification string RequestID queries.
type IDKind int

const (
	IDManufacturer IDKind = iota
	IDModel
	IDIMEI
	IDIMSI
)

const rssiUnknown = 0xFF

// simDevice is the state shared by the SIMCom cellular drivers: the APN,
// the DNS-resolved IP, and the signal-strength and identification queries
// both families interleave into their sweeps.
type simDevice struct {
	atDevice

	apn string
	ip  string

	rssi      uint8
	rssiWant  bool
	idWant    IDKind
	idPending bool
	idString  string
}

func (s *simDevice) initSim() {
	s.rssi = rssiUnknown
	s.rssiWant = false
}

// SetAPN sets the cellular access point name. The string is borrowed.
func (s *simDevice) SetAPN(apn string) {
	s.apn = apn
}

// Connect requires an APN on top of the endpoint configuration.
func (s *simDevice) Connect() bool {
	if s.apn == "" {
		return false
	}
	return s.connectRequest()
}

// RequestRSSI asks the modem for signal strength on an upcoming sweep.
func (s *simDevice) RequestRSSI() {
	s.rssi = rssiUnknown
	s.rssiWant = true
}

// RSSI returns the last reported signal strength, or 0xFF while a request
// is outstanding.
func (s *simDevice) RSSI() uint8 {
	return s.rssi
}

// RequestID asks the modem for an identification string on an upcoming
// sweep.
func (s *simDevice) RequestID(kind IDKind) {
	s.idWant = kind
	s.idPending = true
	s.idString = ""
}

// IDString returns the identification captured by the last RequestID, or ""
// while the request is outstanding.
func (s *simDevice) IDString() string {
	return s.idString
}

// parseDNSReply handles `+CDNSGIP: 1,"<host>","<ip>"`, capturing the first
// resolved address. A `+CDNSGIP: 0` failure schedules a reset; a malformed
// success line is a DNS error.
func (s *simDevice) parseDNSReply() bool {
	if s.lineHasPrefix("+CDNSGIP: 1") {
		quotes := strings.Count(s.line, "\"")
		if quotes < 4 || quotes > 10 {
			s.state = atmodem.StateDNSError
			s.observer.ObserveError("dns")
			return false
		}
		// The IP sits between the third and fourth quote.
		rest := s.line
		for i := 0; i < 3; i++ {
			rest = rest[strings.IndexByte(rest, '"')+1:]
		}
		s.ip = rest[:strings.IndexByte(rest, '"')]
		return true
	}
	if s.lineHasPrefix("+CDNSGIP: 0") {
		s.flags |= FlagResetPending
	}
	return false
}

// parseCiprxget4 handles the `+CIPRXGET: 4,0,<n>` pending-length report.
func (s *simDevice) parseCiprxget4() bool {
	n, ok := s.parseIntAfter("+CIPRXGET: 4,0,")
	if !ok {
		return false
	}
	s.bytesToReceive += n
	return true
}

// parseCiprxget2 handles the `+CIPRXGET: 2,0,<n>` payload header and
// switches the inbound path to counted binary mode.
func (s *simDevice) parseCiprxget2() bool {
	n, ok := s.parseIntAfter("+CIPRXGET: 2,0,")
	if !ok {
		return false
	}
	s.bytesToReceive -= n
	s.bytesToRead += n
	s.flags &^= FlagLineRead
	return true
}

// parseCsq handles the `+CSQ: <rssi>,<ber>` signal report.
func (s *simDevice) parseCsq() bool {
	n, ok := s.parseIntAfter("+CSQ: ")
	if !ok {
		return false
	}
	s.rssi = uint8(n)
	return true
}

// parseIDReply captures the first non-status line following an
// identification query.
func (s *simDevice) parseIDReply() bool {
	line := strings.TrimRight(s.line, "\r\n")
	if line == "" || line == okStr || strings.HasPrefix(line, "AT") {
		return false
	}
	s.idString = line
	s.idPending = false
	return true
}

// checkConnectionState watches connected-state lines for the data-pending
// notification and the family's close notification.
func (s *simDevice) checkConnectionState(closeVariant string) {
	if s.lineHasPrefix("+CIPRXGET: 1,0") {
		s.flags |= FlagDataPending
	} else if s.lineHasPrefix(closeVariant) {
		s.flags &^= FlagIPConnected
	}
}

// sendDNSQuery emits `AT+CDNSGIP="<host>"` once the serial buffer has room
// for the whole command.
func (s *simDevice) sendDNSQuery() bool {
	if s.serial.SpaceAvailable() < len(s.host)+20 {
		return false
	}
	s.sendCommand(`AT+CDNSGIP="` + s.host + `"`)
	return true
}

// sendCipstart emits `AT+CIP<variant>=0,"TCP|UDP","<ip>",<port>` against
// the DNS-resolved address.
func (s *simDevice) sendCipstart(variant string) {
	s.sendCommand("AT+CIP" + variant + `=0,"` + s.transport.String() + `","` +
		s.ip + `",` + strconv.Itoa(int(s.port)))
}

// prepareSendingSim emits the SIMCom multi-connection send command for the
// payload size of §prepareSending.
func (s *simDevice) prepareSendingSim() bool {
	return s.prepareSending(0, func(n int) string {
		return "AT+CIPSEND=0," + strconv.Itoa(n)
	})
}

// sendCiprxget2 requests the next payload chunk, bounded by the serial write
// space less the SimCom reserve, the pending byte count and the read-buffer
// space.
func (s *simDevice) sendCiprxget2() bool {
	if s.serial.SpaceAvailable() <= constants.ReceiveReserveSimCom ||
		s.readBuf.SpaceAvailable() == 0 {
		return false
	}
	n := s.serial.SpaceAvailable() - constants.ReceiveReserveSimCom
	if n > s.bytesToReceive {
		n = s.bytesToReceive
	}
	if n > s.readBuf.SpaceAvailable() {
		n = s.readBuf.SpaceAvailable()
	}
	s.sendCommand("AT+CIPRXGET=2,0," + strconv.Itoa(n))
	return true
}

// idCommand maps an IDKind to its query command.
func idCommand(kind IDKind) string {
	switch kind {
	case IDManufacturer:
		return "AT+CGMI"
	case IDModel:
		return "AT+CGMM"
	case IDIMEI:
		return "AT+CGSN"
	default:
		return "AT+CIMI"
	}
}
