package atmodem

import "github.com/behrlich/go-atmodem/internal/constants"

// Re-export configuration constants for the public API.
const (
	DefaultSerialBufferSize  = constants.DefaultSerialBufferSize
	DefaultNetworkBufferSize = constants.DefaultNetworkBufferSize
	LineMaxLength            = constants.LineMaxLength
	SendReserve              = constants.SendReserve
	MaxReceiveESP8266        = constants.MaxReceiveESP8266
	MaxReceiveCC1352         = constants.MaxReceiveCC1352
)

// LoRaPacketSizes maps a LoRaWAN data-rate index to the largest payload one
// uplink may carry.
func LoRaPacketSizes() [14]int {
	return constants.LoRaPacketSizes
}
