//go:build linux

package port

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/behrlich/go-atmodem/serial"
)

// Unix is a serial.Raw implementation over a Unix tty device, for running
// the library against a real modem from a hosted Linux build. It reads and
// writes one byte per call through a non-blocking descriptor, which is
// deliberately naive: the buffered layer and its pump provide the batching.
type Unix struct {
	path     string
	fd       int
	isOpen   bool
	speed    uint32
	dataBits uint32
}

// NewUnix creates a port for the given tty device path, e.g. /dev/ttyUSB0.
// The default configuration is 115200 8N1.
func NewUnix(path string) *Unix {
	return &Unix{path: path, fd: -1, speed: unix.B115200, dataBits: unix.CS8}
}

// baudFlags maps baud rates to termios speed constants.
var baudFlags = map[uint32]uint32{
	0: unix.B0, 50: unix.B50, 75: unix.B75, 110: unix.B110,
	134: unix.B134, 150: unix.B150, 200: unix.B200, 300: unix.B300,
	600: unix.B600, 1200: unix.B1200, 1800: unix.B1800, 2400: unix.B2400,
	4800: unix.B4800, 9600: unix.B9600, 19200: unix.B19200,
	38400: unix.B38400, 57600: unix.B57600, 115200: unix.B115200,
	230400: unix.B230400, 460800: unix.B460800, 576000: unix.B576000,
	921600: unix.B921600, 1000000: unix.B1000000,
}

var dataBitFlags = map[uint8]uint32{
	5: unix.CS5, 6: unix.CS6, 7: unix.CS7, 8: unix.CS8,
}

// SetConfig implements serial.Raw. Valid only while the port is closed.
func (u *Unix) SetConfig(baudRate uint32, dataBits uint8) error {
	if u.isOpen {
		return fmt.Errorf("port %s: cannot reconfigure while open", u.path)
	}
	speed, ok := baudFlags[baudRate]
	if !ok {
		return fmt.Errorf("port %s: unsupported baud rate %d", u.path, baudRate)
	}
	bits, ok := dataBitFlags[dataBits]
	if !ok {
		return fmt.Errorf("port %s: unsupported word length %d", u.path, dataBits)
	}
	u.speed = speed
	u.dataBits = bits
	return nil
}

// Open implements serial.Raw: opens the tty non-blocking and puts it in raw
// mode at the configured speed.
func (u *Unix) Open() error {
	fd, err := unix.Open(u.path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("port %s: open: %w", u.path, err)
	}

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("port %s: not a tty: %w", u.path, err)
	}

	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.ICRNL | unix.INLCR |
		unix.PARMRK | unix.INPCK | unix.ISTRIP | unix.IXON
	tio.Oflag = 0
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.IEXTEN | unix.ISIG
	tio.Cflag &^= unix.CSIZE | unix.PARENB
	tio.Cflag |= u.dataBits | unix.CREAD | unix.CLOCAL
	tio.Cflag &^= unix.CBAUD
	tio.Cflag |= u.speed
	tio.Ispeed = u.speed
	tio.Ospeed = u.speed
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETSF, tio); err != nil {
		unix.Close(fd)
		return fmt.Errorf("port %s: configure: %w", u.path, err)
	}

	u.fd = fd
	u.isOpen = true
	return nil
}

// Close implements serial.Raw.
func (u *Unix) Close() {
	if u.fd >= 0 {
		unix.Close(u.fd)
		u.fd = -1
	}
	u.isOpen = false
}

// IsOpen implements serial.Raw.
func (u *Unix) IsOpen() bool { return u.isOpen }

// PortName implements serial.Raw.
func (u *Unix) PortName() string { return u.path }

// RawRead implements serial.Raw.
func (u *Unix) RawRead() (byte, bool) {
	var buf [1]byte
	n, err := unix.Read(u.fd, buf[:])
	if err != nil || n != 1 {
		return 0, false
	}
	return buf[0], true
}

// RawWrite implements serial.Raw.
func (u *Unix) RawWrite(b byte) bool {
	buf := [1]byte{b}
	n, err := unix.Write(u.fd, buf[:])
	return n == 1 && err == nil
}

// StartTransmit implements serial.Raw. The descriptor accepts writes any
// time; there is no interrupt to arm.
func (u *Unix) StartTransmit() {}

var _ serial.Raw = (*Unix)(nil)
