package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/go-atmodem"
)

const testAppKey = "0123456789abcdef0123456789abcdef"

func newJoinedRak(t *testing.T, extra ...atmodem.ScriptStep) (*Rak, *atmodem.ScriptedPort) {
	t.Helper()
	script := []atmodem.ScriptStep{
		{Expect: "AT+DEVEUI=70b3d57ed0000001", Reply: []string{"OK\r\n"}},
		{Expect: "AT+APPEUI=70b3d57ed0000002", Reply: []string{"OK\r\n"}},
		{Expect: "AT+APPKEY=" + testAppKey, Reply: []string{"OK\r\n"}},
		{Expect: "AT+CLASS=C", Reply: []string{"OK\r\n"}},
		{Expect: "AT+DR=0", Reply: []string{"OK\r\n"}},
		{Expect: "AT+JOIN=1:0:8:4", Reply: []string{"OK\r\n", "+EVT:JOINED\r\n"}},
	}
	script = append(script, extra...)

	port := atmodem.NewScriptedPort(script...)
	d := NewRak(port, make([]byte, 256), make([]byte, 256))
	d.SetDevEUI("70b3d57ed0000001")
	d.SetAppEUI("70b3d57ed0000002")
	d.SetAppKey(testAppKey)
	require.True(t, d.Connect())

	stepUntil(t, d.Step, d.IsConnected, 60)
	return d, port
}

func TestRakJoinSequence(t *testing.T) {
	_, port := newJoinedRak(t)

	require.Empty(t, port.Failures())
	assert.Equal(t, []string{
		"AT+DEVEUI=70b3d57ed0000001",
		"AT+APPEUI=70b3d57ed0000002",
		"AT+APPKEY=" + testAppKey,
		"AT+CLASS=C",
		"AT+DR=0",
		"AT+JOIN=1:0:8:4",
	}, port.Writes())
}

func TestRakConnectRequiresFullAppKey(t *testing.T) {
	port := atmodem.NewScriptedPort()
	d := NewRak(port, make([]byte, 64), make([]byte, 64))
	assert.False(t, d.Connect())
	d.SetAppKey("too-short")
	assert.False(t, d.Connect())
	d.SetAppKey(testAppKey)
	assert.True(t, d.Connect())
}

func TestRakUplinkHexEncoding(t *testing.T) {
	d, port := newJoinedRak(t,
		atmodem.ScriptStep{Expect: "AT+DR=?", Reply: []string{"AT+DR=0\r\n", "OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+SEND=1:48656C6C6F",
			Reply: []string{"OK\r\n", "+EVT:SEND_CONFIRMED_OK\r\n"}},
	)

	require.Equal(t, 5, d.Write([]byte("Hello")))
	stepUntil(t, d.Step, func() bool { return port.Done() && d.WriteBufferProcessed() }, 60)
	assert.Empty(t, port.Failures())
}

func TestRakRewindOnSendFailure(t *testing.T) {
	payload := []byte("12345678901") // 11 bytes: exactly the DR0 packet cap
	d, port := newJoinedRak(t,
		atmodem.ScriptStep{Expect: "AT+DR=?", Reply: []string{"AT+DR=0\r\n", "OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+SEND=1:3132333435363738393031",
			Reply: []string{"OK\r\n", "+EVT:SEND_CONFIRMED_FAILED\r\n"}},
		atmodem.ScriptStep{Expect: "AT+DR=?", Reply: []string{"AT+DR=0\r\n", "OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+SEND=1:3132333435363738393031",
			Reply: []string{"OK\r\n", "+EVT:SEND_CONFIRMED_OK\r\n"}},
	)

	require.Equal(t, 11, d.Write(payload))

	// First transmission drains the write buffer.
	stepUntil(t, d.Step, func() bool { return d.writeBuf.BytesAvailable() == 0 }, 40)

	// The failed confirmation rewinds the consumed bytes...
	stepUntil(t, d.Step, func() bool { return d.writeBuf.BytesAvailable() == 11 }, 40)

	// ...and the driver retransmits them on the next eligible sweeps.
	stepUntil(t, d.Step, func() bool { return port.Done() && d.WriteBufferProcessed() }, 60)
	assert.Empty(t, port.Failures())
}

func TestRakPacketSizeFollowsDataRate(t *testing.T) {
	// At DR 8 the cap is 33 bytes; a 40-byte payload must split.
	payload := make([]byte, 40)
	hexPayload := ""
	for i := range payload {
		payload[i] = 0xAB
		hexPayload += "AB"
	}
	d, port := newJoinedRak(t,
		atmodem.ScriptStep{Expect: "AT+DR=?", Reply: []string{"AT+DR=8\r\n", "OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+SEND=1:" + hexPayload[:66],
			Reply: []string{"OK\r\n", "+EVT:SEND_CONFIRMED_OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+DR=?", Reply: []string{"AT+DR=8\r\n", "OK\r\n"}},
		atmodem.ScriptStep{Expect: "AT+SEND=1:" + hexPayload[:14],
			Reply: []string{"OK\r\n", "+EVT:SEND_CONFIRMED_OK\r\n"}},
	)

	require.Equal(t, 40, d.Write(payload))
	stepUntil(t, d.Step, func() bool { return port.Done() && d.WriteBufferProcessed() }, 80)
	assert.Empty(t, port.Failures())
}

func TestRakDownlinkDecoding(t *testing.T) {
	d, port := newJoinedRak(t)

	port.Inject("+EVT:RX_1:-70:8:UNICAST:1:706F6E67\r\n")
	stepUntil(t, d.Step, func() bool { return d.BytesAvailable() == 4 }, 20)

	dst := make([]byte, 4)
	d.Read(dst)
	assert.Equal(t, "pong", string(dst))
}

func TestRakDisconnect(t *testing.T) {
	d, _ := newJoinedRak(t)
	d.Disconnect()
	stepUntil(t, d.Step, d.IsIdle, 20)
	assert.False(t, d.IsConnected())
}
