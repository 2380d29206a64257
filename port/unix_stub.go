//go:build !linux

package port

import (
	"fmt"

	"github.com/behrlich/go-atmodem/serial"
)

// Unix is unavailable on this platform: Open always fails and no byte is
// ever read or written, while SetConfig, Close and StartTransmit do nothing
// and report no error. The type exists so cross-platform callers compile
// unchanged.
type Unix struct {
	path string
}

// NewUnix creates a stub port for the given device path.
func NewUnix(path string) *Unix { return &Unix{path: path} }

func (u *Unix) Open() error {
	return fmt.Errorf("port %s: unix serial ports are only supported on linux", u.path)
}

func (u *Unix) Close()                                         {}
func (u *Unix) IsOpen() bool                                   { return false }
func (u *Unix) SetConfig(baudRate uint32, dataBits uint8) error { return nil }
func (u *Unix) PortName() string                               { return u.path }
func (u *Unix) RawRead() (byte, bool)                          { return 0, false }
func (u *Unix) RawWrite(b byte) bool                           { return false }
func (u *Unix) StartTransmit()                                 {}

var _ serial.Raw = (*Unix)(nil)
