package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/go-atmodem"
)

func newConnectedSim800(t *testing.T, extra ...atmodem.ScriptStep) (*Sim800, *atmodem.ScriptedPort) {
	t.Helper()
	script := []atmodem.ScriptStep{
		{Expect: "ATE0", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIPRXGET=1", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIPMUX=1", Reply: []string{"OK\r\n"}},
		{Expect: `AT+CSTT="internet"`, Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIICR", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIFSR", Reply: []string{"10.23.42.1\r\n"}},
		{Expect: `AT+CDNSGIP="example.com"`,
			Reply: []string{"OK\r\n", "+CDNSGIP: 1,\"example.com\",\"93.184.216.34\"\r\n"}},
		{Expect: `AT+CIPSTART=0,"TCP","93.184.216.34",1883`,
			Reply: []string{"OK\r\n", "0, CONNECT OK\r\n"}},
	}
	script = append(script, extra...)

	port := atmodem.NewScriptedPort(script...)
	d := NewSim800(port, make([]byte, 1200), make([]byte, 1200))
	d.SetAPN("internet")
	d.SetHostPort(atmodem.TCP, "example.com", 1883)
	require.True(t, d.Connect())

	stepUntil(t, d.Step, d.IsConnected, 60)
	return d, port
}

func TestSim800DialogOrder(t *testing.T) {
	_, port := newConnectedSim800(t)

	require.Empty(t, port.Failures())
	assert.Equal(t, []string{
		"ATE0",
		"AT+CIPRXGET=1",
		"AT+CIPMUX=1",
		`AT+CSTT="internet"`,
		"AT+CIICR",
		"AT+CIFSR",
		`AT+CDNSGIP="example.com"`,
		`AT+CIPSTART=0,"TCP","93.184.216.34",1883`,
	}, port.Writes())
}

func TestSim800SendThenReceive(t *testing.T) {
	d, port := newConnectedSim800(t,
		atmodem.ScriptStep{Expect: "AT+CIPSEND=0,5", Reply: []string{">"}},
		atmodem.ScriptStep{ExpectData: 5, Reply: []string{"0, SEND OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+CIPRXGET=4,0",
			Reply: []string{"+CIPRXGET: 4,0,5\r\n", "OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+CIPRXGET=2,0,5",
			Reply: []string{"+CIPRXGET: 2,0,5\r\n", "hello", "\r\n", "OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+CIPRXGET=4,0",
			Reply: []string{"+CIPRXGET: 4,0,0\r\n", "OK\r\n"}},
	)

	n := d.Write([]byte("GET\r\n"))
	require.Equal(t, 5, n)

	// Drain the send dialog.
	stepUntil(t, d.Step, func() bool { return d.WriteBufferProcessed() && d.IsConnected() }, 30)
	require.Len(t, port.Captured(), 1)
	assert.Equal(t, []byte("GET\r\n"), port.Captured()[0])

	// The unsolicited data notification kicks off the receive dialog.
	port.Inject("+CIPRXGET: 1,0\r\n")
	stepUntil(t, d.Step, func() bool { return d.BytesAvailable() == 5 }, 40)

	dst := make([]byte, 5)
	require.Equal(t, 5, d.Read(dst))
	assert.Equal(t, "hello", string(dst))

	// Let the driver settle back into the connected state.
	stepUntil(t, d.Step, func() bool { return port.Done() && d.IsConnected() }, 40)
	assert.Empty(t, port.Failures())
}

func TestSim800WriteRefusedWhileDisconnected(t *testing.T) {
	port := atmodem.NewScriptedPort()
	d := NewSim800(port, make([]byte, 64), make([]byte, 64))

	assert.Zero(t, d.Write([]byte("nope")))
	assert.Zero(t, d.SpaceAvailable(), "space must be zero while not connected")
}

func TestSim800SpaceAvailableWhenConnected(t *testing.T) {
	d, _ := newConnectedSim800(t)
	assert.Equal(t, 1200, d.SpaceAvailable())
}

func TestSim800ConnectFail(t *testing.T) {
	script := []atmodem.ScriptStep{
		{Expect: "ATE0", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIPRXGET=1", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIPMUX=1", Reply: []string{"OK\r\n"}},
		{Expect: `AT+CSTT="internet"`, Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIICR", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIFSR", Reply: []string{"10.23.42.1\r\n"}},
		{Expect: `AT+CDNSGIP="example.com"`,
			Reply: []string{"OK\r\n", "+CDNSGIP: 1,\"example.com\",\"93.184.216.34\"\r\n"}},
		{Expect: `AT+CIPSTART=0,"TCP","93.184.216.34",1883`,
			Reply: []string{"OK\r\n", "0, CONNECT FAIL\r\n"}},
	}
	port := atmodem.NewScriptedPort(script...)
	d := NewSim800(port, make([]byte, 256), make([]byte, 256))
	d.SetAPN("internet")
	d.SetHostPort(atmodem.TCP, "example.com", 1883)
	require.True(t, d.Connect())

	stepUntil(t, d.Step, func() bool { return d.Flags()&FlagResetPending != 0 }, 60)
	assert.Equal(t, atmodem.StateGeneralError, d.ConnectState())
	assert.False(t, d.IsConnected())
}

func TestSim800DNSFailureSchedulesReset(t *testing.T) {
	script := []atmodem.ScriptStep{
		{Expect: "ATE0", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIPRXGET=1", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIPMUX=1", Reply: []string{"OK\r\n"}},
		{Expect: `AT+CSTT="internet"`, Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIICR", Reply: []string{"OK\r\n"}},
		{Expect: "AT+CIFSR", Reply: []string{"10.23.42.1\r\n"}},
		{Expect: `AT+CDNSGIP="example.com"`,
			Reply: []string{"OK\r\n", "+CDNSGIP: 0\r\n"}},
	}
	port := atmodem.NewScriptedPort(script...)
	d := NewSim800(port, make([]byte, 256), make([]byte, 256))
	d.SetAPN("internet")
	d.SetHostPort(atmodem.TCP, "example.com", 1883)
	require.True(t, d.Connect())

	stepUntil(t, d.Step, func() bool { return d.Flags()&FlagResetPending != 0 }, 60)
}

func TestSim800RSSIQuery(t *testing.T) {
	d, port := newConnectedSim800(t,
		atmodem.ScriptStep{Expect: "AT+CSQ", Reply: []string{"+CSQ: 17,0\r\n", "OK\r\n"}},
	)

	d.RequestRSSI()
	assert.Equal(t, uint8(rssiUnknown), d.RSSI(), "RSSI unknown while request pending")
	stepUntil(t, d.Step, func() bool { return d.RSSI() != rssiUnknown }, 30)
	assert.Equal(t, uint8(17), d.RSSI())
	assert.Empty(t, port.Failures())
}

func TestSim800IDQuery(t *testing.T) {
	d, port := newConnectedSim800(t,
		atmodem.ScriptStep{Expect: "AT+CGSN", Reply: []string{"867959031234567\r\n", "OK\r\n"}},
	)

	d.RequestID(IDIMEI)
	assert.Empty(t, d.IDString())
	stepUntil(t, d.Step, func() bool { return d.IDString() != "" }, 30)
	assert.Equal(t, "867959031234567", d.IDString())
	assert.Empty(t, port.Failures())
}

func TestSim800DisconnectSequence(t *testing.T) {
	d, port := newConnectedSim800(t,
		atmodem.ScriptStep{Expect: "AT+CIPCLOSE=0", Reply: []string{"0, CLOSE OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+CIPSHUT", Reply: []string{"SHUT OK\r\n"}},
	)

	d.Disconnect()
	stepUntil(t, d.Step, d.IsIdle, 40)
	assert.Empty(t, port.Failures())
	assert.True(t, port.Done())
}
