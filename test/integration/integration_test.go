//go:build integration

package integration

import (
	"strconv"
	"strings"
	"testing"

	"github.com/behrlich/go-atmodem"
	"github.com/behrlich/go-atmodem/modem"
	"github.com/behrlich/go-atmodem/port"
	"github.com/behrlich/go-atmodem/sched"
	"github.com/behrlich/go-atmodem/serial"
)

// sim800Emulator stands in for a SIM800 on the far end of a loopback pair:
// it answers the init dialog, accepts one socket, and echoes every payload
// back through the polled-receive flow.
type sim800Emulator struct {
	end *port.Loopback

	line       []byte
	expectData int
	echo       []byte
	sendBuf    []byte
}

func newSim800Emulator(end *port.Loopback) *sim800Emulator {
	end.Open()
	return &sim800Emulator{end: end}
}

func (e *sim800Emulator) reply(s string) {
	for i := 0; i < len(s); i++ {
		e.end.RawWrite(s[i])
	}
}

// pump consumes whatever the driver wrote and produces replies. Call it
// between scheduler polls.
func (e *sim800Emulator) pump() {
	for {
		c, ok := e.end.RawRead()
		if !ok {
			return
		}
		if e.expectData > 0 {
			e.sendBuf = append(e.sendBuf, c)
			e.expectData--
			if e.expectData == 0 {
				e.echo = append(e.echo, e.sendBuf...)
				e.sendBuf = nil
				e.reply("0, SEND OK\r\n")
				e.reply("+CIPRXGET: 1,0\r\n")
			}
			continue
		}
		e.line = append(e.line, c)
		if c == '\n' {
			line := strings.TrimRight(string(e.line), "\r\n")
			e.line = nil
			e.handle(line)
		}
	}
}

func (e *sim800Emulator) handle(cmd string) {
	switch {
	case cmd == "ATE0", cmd == "AT+CIPRXGET=1", cmd == "AT+CIPMUX=1",
		cmd == "AT+CIICR", strings.HasPrefix(cmd, "AT+CSTT="):
		e.reply("OK\r\n")

	case cmd == "AT+CIFSR":
		e.reply("10.0.0.1\r\n")

	case strings.HasPrefix(cmd, "AT+CDNSGIP="):
		host := strings.Trim(cmd[len("AT+CDNSGIP="):], "\"")
		e.reply("OK\r\n")
		e.reply("+CDNSGIP: 1,\"" + host + "\",\"192.0.2.10\"\r\n")

	case strings.HasPrefix(cmd, "AT+CIPSTART="):
		e.reply("OK\r\n")
		e.reply("0, CONNECT OK\r\n")

	case strings.HasPrefix(cmd, "AT+CIPSEND=0,"):
		n, _ := strconv.Atoi(cmd[len("AT+CIPSEND=0,"):])
		e.expectData = n
		e.reply(">")

	case cmd == "AT+CIPRXGET=4,0":
		e.reply("+CIPRXGET: 4,0," + strconv.Itoa(len(e.echo)) + "\r\n")
		e.reply("OK\r\n")

	case strings.HasPrefix(cmd, "AT+CIPRXGET=2,0,"):
		n, _ := strconv.Atoi(cmd[len("AT+CIPRXGET=2,0,"):])
		if n > len(e.echo) {
			n = len(e.echo)
		}
		e.reply("+CIPRXGET: 2,0," + strconv.Itoa(n) + "\r\n")
		e.reply(string(e.echo[:n]))
		e.echo = e.echo[n:]
		e.reply("\r\nOK\r\n")

	case cmd == "AT+CIPCLOSE=0":
		e.reply("0, CLOSE OK\r\n")

	case cmd == "AT+CIPSHUT":
		e.reply("SHUT OK\r\n")

	default:
		e.reply("OK\r\n")
	}
}

// TestEndToEndEcho runs the whole stack — scheduler, pump task, buffered
// serial, SIM800 driver, blocking adapter — against the emulated modem and
// round-trips a payload.
func TestEndToEndEcho(t *testing.T) {
	driverEnd, emulatorEnd := port.NewLoopbackPair()
	emu := newSim800Emulator(emulatorEnd)

	buffered := serial.NewBuffered(driverEnd,
		make([]byte, atmodem.DefaultSerialBufferSize),
		make([]byte, atmodem.DefaultSerialBufferSize))

	dev := modem.NewSim800(buffered,
		make([]byte, atmodem.DefaultNetworkBufferSize),
		make([]byte, atmodem.DefaultNetworkBufferSize))
	dev.SetAPN("internet")
	dev.SetHostPort(atmodem.TCP, "echo.local", 7)

	clock := &fakeClock{}
	scheduler := sched.New(clock, serial.NewPumpTask(buffered), dev)
	tick := func() {
		scheduler.RunTask()
		emu.pump()
		clock.now++
	}

	if !dev.Connect() {
		t.Fatal("Connect refused")
	}
	for i := 0; i < 5000 && !dev.IsConnected(); i++ {
		tick()
	}
	if !dev.IsConnected() {
		t.Fatal("driver never reached the connected state")
	}

	blocking := atmodem.NewBlockingDevice(dev, clock, tick)

	payload := []byte("ping over the emulated bearer")
	if n := blocking.Write(payload, 60_000); n != len(payload) {
		t.Fatalf("Write = %d, want %d", n, len(payload))
	}

	got := make([]byte, len(payload))
	if n := blocking.Read(got, 60_000); n != len(payload) {
		t.Fatalf("Read = %d, want %d", n, len(payload))
	}
	if string(got) != string(payload) {
		t.Errorf("echo mismatch: %q", got)
	}

	dev.Disconnect()
	for i := 0; i < 5000 && !dev.IsIdle(); i++ {
		tick()
	}
	if !dev.IsIdle() {
		t.Error("driver never returned to idle")
	}
}

type fakeClock struct {
	now uint64
}

func (c *fakeClock) Millis() uint64 { return c.now }
