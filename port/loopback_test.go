package port

import "testing"

func TestLoopbackPair(t *testing.T) {
	a, b := NewLoopbackPair()
	if err := a.Open(); err != nil {
		t.Fatal(err)
	}
	if err := b.Open(); err != nil {
		t.Fatal(err)
	}

	for _, c := range []byte("ping") {
		if !a.RawWrite(c) {
			t.Fatal("RawWrite failed")
		}
	}
	var got []byte
	for {
		c, ok := b.RawRead()
		if !ok {
			break
		}
		got = append(got, c)
	}
	if string(got) != "ping" {
		t.Errorf("peer read %q, want %q", got, "ping")
	}

	if _, ok := a.RawRead(); ok {
		t.Error("read from the writing end returned data")
	}
}

func TestLoopbackInject(t *testing.T) {
	a, _ := NewLoopbackPair()
	a.Inject([]byte{0x42})
	c, ok := a.RawRead()
	if !ok || c != 0x42 {
		t.Errorf("RawRead = %#x,%v after Inject", c, ok)
	}
}

func TestLoopbackOpenClose(t *testing.T) {
	a, _ := NewLoopbackPair()
	if a.IsOpen() {
		t.Error("port open before Open")
	}
	a.Open()
	if !a.IsOpen() {
		t.Error("port closed after Open")
	}
	a.Close()
	if a.IsOpen() {
		t.Error("port open after Close")
	}
}
