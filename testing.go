package atmodem

import (
	"fmt"
	"strings"

	"github.com/behrlich/go-atmodem/serial"
)

// ScriptStep is one exchange in a ScriptedPort script: either a command
// line the driver is expected to write (Expect) or a run of raw payload
// bytes (ExpectData > 0). When the expectation is met, the Reply fragments
// become readable, exactly as written — include "\r\n" terminators and the
// bare ">" prompt where the modem would send them.
type ScriptStep struct {
	Expect     string
	ExpectData int
	Reply      []string

	// Bare marks an expectation that arrives without a line terminator,
	// such as the "+++" escape. It is matched as soon as the written bytes
	// equal Expect.
	Bare bool
}

// ScriptedPort is a buffered-serial test double driven by a script of
// expect/reply steps. It implements the serial.Device surface the modem
// drivers consume, so a driver under test talks to it exactly as it would
// to real hardware behind a buffered port.
//
// Command writes are matched line by line against the script; raw payload
// writes are counted against ExpectData steps and captured. Mismatches and
// writes past the end of the script are recorded, not fatal, so a test can
// assert on Failures afterwards.
type ScriptedPort struct {
	Script  []ScriptStep
	OpenErr error

	// Space reported to the driver; defaults to BufSize when zero.
	Space   int
	BufSize int

	open     bool
	step     int
	dataSeen int
	pending  []byte
	rx       []byte

	writes   []string
	captured [][]byte
	failures []string
}

// NewScriptedPort creates a port that expects the given script.
func NewScriptedPort(script ...ScriptStep) *ScriptedPort {
	return &ScriptedPort{Script: script, BufSize: DefaultSerialBufferSize}
}

// Open implements serial.Device.
func (p *ScriptedPort) Open() error {
	if p.OpenErr != nil {
		return p.OpenErr
	}
	p.open = true
	return nil
}

// IsOpen implements serial.Device.
func (p *ScriptedPort) IsOpen() bool { return p.open }

// Close implements serial.Device.
func (p *ScriptedPort) Close() { p.open = false }

// BytesAvailable implements serial.Device.
func (p *ScriptedPort) BytesAvailable() int { return len(p.rx) }

// SpaceAvailable implements serial.Device.
func (p *ScriptedPort) SpaceAvailable() int {
	if p.Space > 0 {
		return p.Space
	}
	return p.BufSize
}

// ReadByte implements serial.Device.
func (p *ScriptedPort) ReadByte() byte {
	if len(p.rx) == 0 {
		return 0
	}
	c := p.rx[0]
	p.rx = p.rx[1:]
	return c
}

// Read implements serial.Device.
func (p *ScriptedPort) Read(buf []byte) int {
	n := copy(buf, p.rx)
	p.rx = p.rx[n:]
	return n
}

// Write implements serial.Device.
func (p *ScriptedPort) Write(data []byte) int {
	p.consume(data)
	return len(data)
}

// WriteByte implements serial.Device.
func (p *ScriptedPort) WriteByte(c byte) {
	p.consume([]byte{c})
}

// WriteString implements serial.Device.
func (p *ScriptedPort) WriteString(s string) int {
	p.consume([]byte(s))
	return len(s)
}

// CanReadLine implements serial.Device.
func (p *ScriptedPort) CanReadLine() bool {
	for _, c := range p.rx {
		if c == '\n' {
			return true
		}
	}
	return false
}

// ReadLine implements serial.Device.
func (p *ScriptedPort) ReadLine(buf []byte) int {
	n := 0
	for len(p.rx) > 0 {
		c := p.ReadByte()
		if n < len(buf) {
			buf[n] = c
			n++
		}
		if c == '\n' {
			break
		}
	}
	return n
}

// FlushReceiveBuffers implements serial.Device.
func (p *ScriptedPort) FlushReceiveBuffers() { p.rx = nil }

// ReadBufferSize implements serial.Device.
func (p *ScriptedPort) ReadBufferSize() int { return p.BufSize }

// WriteBufferProcessed implements serial.Device.
func (p *ScriptedPort) WriteBufferProcessed() bool { return true }

// Inject makes data readable without a script step, for unsolicited modem
// output such as "+IPD," notifications.
func (p *ScriptedPort) Inject(data string) {
	p.rx = append(p.rx, data...)
}

// Writes returns every command line the driver wrote, in order.
func (p *ScriptedPort) Writes() []string { return p.writes }

// Captured returns the raw payload runs consumed by ExpectData steps.
func (p *ScriptedPort) Captured() [][]byte { return p.captured }

// Failures returns script mismatches observed so far.
func (p *ScriptedPort) Failures() []string { return p.failures }

// Done reports whether the whole script has been consumed.
func (p *ScriptedPort) Done() bool { return p.step >= len(p.Script) }

func (p *ScriptedPort) currentStep() *ScriptStep {
	if p.step < len(p.Script) {
		return &p.Script[p.step]
	}
	return nil
}

func (p *ScriptedPort) consume(data []byte) {
	p.pending = append(p.pending, data...)

	for len(p.pending) > 0 {
		step := p.currentStep()

		// Raw payload expectation: swallow bytes up to the expected count.
		if step != nil && step.ExpectData > 0 {
			want := step.ExpectData - p.dataSeen
			n := len(p.pending)
			if n > want {
				n = want
			}
			p.appendCapture(n)
			p.dataSeen += n
			p.pending = p.pending[n:]
			if p.dataSeen == step.ExpectData {
				p.dataSeen = 0
				p.reply(step)
				p.step++
			}
			continue
		}

		// Bare expectation: matched without a terminator.
		if step != nil && step.Bare {
			if len(p.pending) < len(step.Expect) {
				return
			}
			got := string(p.pending[:len(step.Expect)])
			p.pending = p.pending[len(step.Expect):]
			p.writes = append(p.writes, got)
			if got != step.Expect {
				p.failures = append(p.failures,
					fmt.Sprintf("step %d: wrote %q, want %q", p.step, got, step.Expect))
			}
			p.reply(step)
			p.step++
			continue
		}

		// Command-line expectation: wait for a complete line.
		idx := strings.IndexByte(string(p.pending), '\n')
		if idx < 0 {
			return
		}

		line := strings.TrimRight(string(p.pending[:idx+1]), "\r\n")
		p.pending = p.pending[idx+1:]
		p.writes = append(p.writes, line)

		if step == nil {
			p.failures = append(p.failures,
				fmt.Sprintf("unexpected write %q after script end", line))
			continue
		}
		if line != step.Expect {
			p.failures = append(p.failures,
				fmt.Sprintf("step %d: wrote %q, want %q", p.step, line, step.Expect))
		}
		p.reply(step)
		p.step++
	}
}

func (p *ScriptedPort) appendCapture(n int) {
	if p.dataSeen == 0 {
		p.captured = append(p.captured, nil)
	}
	last := len(p.captured) - 1
	p.captured[last] = append(p.captured[last], p.pending[:n]...)
}

func (p *ScriptedPort) reply(step *ScriptStep) {
	for _, r := range step.Reply {
		p.rx = append(p.rx, r...)
	}
}

var _ serial.Device = (*ScriptedPort)(nil)
