package ipstack

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/pkg/errors"
)

func TestDatagramRoundTrip(t *testing.T) {
	d := NewDatagram(netip.MustParseAddr("192.168.1.1"), netip.MustParseAddr("192.168.2.2"), TCP_PROTOCOL, 17, []byte("payload"))
	b, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := ParseDatagram(b)
	if err != nil {
		t.Fatalf("ParseDatagram: %v", err)
	}
	if got.Src() != d.Src() || got.Dst() != d.Dst() || got.TTL() != 17 || got.Protocol() != TCP_PROTOCOL {
		t.Errorf("header = %+v, want %+v", got.Header, d.Header)
	}
	if !bytes.Equal(got.Payload, []byte("payload")) {
		t.Errorf("payload = %q", got.Payload)
	}
}

func TestDatagramIgnoresTrailingBytes(t *testing.T) {
	d := NewDatagram(localIP, remoteIP, TEST_PROTOCOL, DEFAULT_TTL, []byte("abc"))
	b, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := ParseDatagram(append(b, 0, 0, 0, 0))
	if err != nil {
		t.Fatalf("ParseDatagram: %v", err)
	}
	if !bytes.Equal(got.Payload, []byte("abc")) {
		t.Errorf("payload = %q, want %q", got.Payload, "abc")
	}
}

func TestDecrementTTLKeepsChecksumValid(t *testing.T) {
	d := NewDatagram(localIP, remoteIP, TEST_PROTOCOL, 5, nil)
	d.DecrementTTL()

	b, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := ParseDatagram(b)
	if err != nil {
		t.Fatalf("ParseDatagram after DecrementTTL: %v", err)
	}
	if got.TTL() != 4 {
		t.Errorf("TTL = %d, want 4", got.TTL())
	}
}

func TestParseDatagramErrors(t *testing.T) {
	d := NewDatagram(localIP, remoteIP, TEST_PROTOCOL, DEFAULT_TTL, []byte("hello"))
	good, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	badSum := append([]byte(nil), good...)
	badSum[8]++ // TTL

	if _, err := ParseDatagram(badSum); !errors.Is(err, ErrBadChecksum) {
		t.Errorf("corrupt header: err = %v, want %v", err, ErrBadChecksum)
	}
	if _, err := ParseDatagram(good[:22]); !errors.Is(err, ErrBadLength) {
		t.Errorf("truncated: err = %v, want %v", err, ErrBadLength)
	}
	if _, err := ParseDatagram(good[:8]); err == nil {
		t.Error("short header parsed")
	}
}
