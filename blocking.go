package atmodem

import "github.com/behrlich/go-atmodem/sched"

// YieldFunc is called while a blocking operation waits for buffer progress.
// It typically runs the scheduler once, so the drivers keep sweeping while
// the caller appears to block.
type YieldFunc func()

// BlockingDevice wraps a non-blocking CommDevice with deadline-bounded
// blocking reads and writes. The blocking illusion stays cooperative: the
// wrapper polls the device and calls yield between polls until the transfer
// completes or the clock passes the deadline.
//
// MQTT client libraries and similar synchronous consumers plug in here.
type BlockingDevice struct {
	dev   CommDevice
	clock sched.Clock
	yield YieldFunc
}

// NewBlockingDevice wraps dev. The clock supplies the deadline ticks and
// yield runs between polls; both must be non-nil.
func NewBlockingDevice(dev CommDevice, clock sched.Clock, yield YieldFunc) *BlockingDevice {
	return &BlockingDevice{dev: dev, clock: clock, yield: yield}
}

// Read fills p with up to len(p) bytes, blocking until that many arrived or
// timeoutMs elapsed. Returns the number of bytes read.
func (b *BlockingDevice) Read(p []byte, timeoutMs uint32) int {
	start := b.clock.Millis()
	n := 0
	for {
		if b.dev.BytesAvailable() > 0 {
			n += b.dev.Read(p[n:])
		}
		if n >= len(p) {
			return n
		}
		if b.clock.Millis()-start >= uint64(timeoutMs) {
			return n
		}
		b.yield()
	}
}

// Write queues all of p, blocking until the device accepted every byte or
// timeoutMs elapsed. Returns the number of bytes accepted.
func (b *BlockingDevice) Write(p []byte, timeoutMs uint32) int {
	start := b.clock.Millis()
	n := 0
	for {
		if b.dev.SpaceAvailable() > 0 {
			n += b.dev.Write(p[n:])
		}
		if n >= len(p) {
			return n
		}
		if b.clock.Millis()-start >= uint64(timeoutMs) {
			return n
		}
		b.yield()
	}
}
