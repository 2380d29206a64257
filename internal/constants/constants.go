// Package constants holds the tuning defaults shared across go-atmodem
// packages. Public values are re-exported from the root package.
package constants

const (
	// DefaultSerialBufferSize is the capacity of each serial ring buffer.
	// Sized to hold a full modem receive chunk plus protocol framing.
	DefaultSerialBufferSize = 1504

	// DefaultNetworkBufferSize is the capacity of each device-level payload
	// buffer.
	DefaultNetworkBufferSize = 1200

	// LineMaxLength is the longest AT reply line the drivers assemble.
	// Longer lines are force-terminated and parsed as-is.
	LineMaxLength = 60

	// SendReserve is the serial write space held back for the command
	// prefix and terminator around a payload. A send step refuses to start
	// with less than this free.
	SendReserve = 22

	// LowSpaceThreshold is the serial write space below which a driver
	// sweep does not advance its send state.
	LowSpaceThreshold = 20
)

// Per-family receive ceilings: the most payload one fetch command may
// request from the modem.
const (
	// MaxReceiveESP8266 matches the ESP-AT passthrough buffer.
	MaxReceiveESP8266 = 2048

	// MaxReceiveCC1352 matches the CC1352P7 network buffer.
	MaxReceiveCC1352 = 1220
)

// Reserves held back when sizing a fetch request. The ESP and CC1352 values
// stay free in the serial read buffer for the reply framing around fetched
// payload; the SimCom value is subtracted from the serial write space.
const (
	ReceiveReserveSimCom = 8
	ReceiveReserveESP    = 8
	ReceiveReserveCC1352 = 30
)

// Sweep pacing delays in milliseconds.
const (
	IdlePollDelay     = 10
	ResetRetryDelay   = 2000
	NetOpenRetryDelay = 2000
	DialSettleDelay   = 500
	EscapeGuardDelay  = 1000
)

// LoRaPacketSizes maps a LoRaWAN data-rate index to the largest payload one
// uplink may carry, per the regional parameters payload tables.
var LoRaPacketSizes = [14]int{11, 51, 51, 115, 222, 222, 222, 222, 33, 109, 222, 222, 222, 222}
