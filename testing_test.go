package atmodem

import "testing"

func TestScriptedPortMatchesLines(t *testing.T) {
	p := NewScriptedPort(
		ScriptStep{Expect: "ATE0", Reply: []string{"OK\r\n"}},
		ScriptStep{Expect: "AT+CIPMUX=1", Reply: []string{"OK\r\n"}},
	)

	p.WriteString("ATE0")
	p.WriteString("\r\n")
	if p.BytesAvailable() != 4 {
		t.Fatalf("reply not queued: %d bytes available", p.BytesAvailable())
	}
	p.WriteString("AT+CIPMUX=1\r\n")

	if len(p.Failures()) != 0 {
		t.Errorf("unexpected failures: %v", p.Failures())
	}
	if !p.Done() {
		t.Error("script not consumed")
	}
	want := []string{"ATE0", "AT+CIPMUX=1"}
	got := p.Writes()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Writes = %v, want %v", got, want)
	}
}

func TestScriptedPortRecordsMismatch(t *testing.T) {
	p := NewScriptedPort(ScriptStep{Expect: "ATE0", Reply: []string{"OK\r\n"}})
	p.WriteString("ATE1\r\n")
	if len(p.Failures()) != 1 {
		t.Fatalf("Failures = %v, want one mismatch", p.Failures())
	}
}

func TestScriptedPortCapturesRawData(t *testing.T) {
	p := NewScriptedPort(
		ScriptStep{Expect: "AT+CIPSEND=0,5", Reply: []string{">"}},
		ScriptStep{ExpectData: 5, Reply: []string{"0, SEND OK\r\n"}},
	)
	p.WriteString("AT+CIPSEND=0,5\r\n")
	// Payload arrives split, as the drivers write it byte-wise.
	p.Write([]byte("GE"))
	p.Write([]byte("T\r\n"))

	if len(p.Captured()) != 1 || string(p.Captured()[0]) != "GET\r\n" {
		t.Errorf("Captured = %q", p.Captured())
	}
	if !p.Done() {
		t.Error("script not consumed")
	}
}

func TestScriptedPortUnterminatedExpect(t *testing.T) {
	p := NewScriptedPort(ScriptStep{Expect: "+++", Bare: true, Reply: []string{"OK\r\n"}})
	p.WriteString("+++")
	if !p.Done() {
		t.Error("escape sequence not matched")
	}
}

func TestScriptedPortReadLine(t *testing.T) {
	p := NewScriptedPort()
	p.Inject("SIMCOM_SIM800\r\nOK\r\n")
	if !p.CanReadLine() {
		t.Fatal("CanReadLine = false")
	}
	buf := make([]byte, 32)
	n := p.ReadLine(buf)
	if string(buf[:n]) != "SIMCOM_SIM800\r\n" {
		t.Errorf("ReadLine = %q", buf[:n])
	}
}

func TestScriptedPortWritePastScriptEnd(t *testing.T) {
	p := NewScriptedPort()
	p.WriteString("AT\r\n")
	if len(p.Failures()) != 1 {
		t.Errorf("Failures = %v, want one entry", p.Failures())
	}
}
