package ipstack

import (
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

type Protocol uint8

const (
	TEST_PROTOCOL Protocol = 0
	TCP_PROTOCOL  Protocol = 6

	DEFAULT_TTL = 64
)

var (
	ErrBadVersion  = errors.New("not an IPv4 datagram")
	ErrBadLength   = errors.New("bad IPv4 total length")
	ErrBadChecksum = errors.New("bad IPv4 header checksum")
)

// Datagram is an IPv4 header plus its payload.
type Datagram struct {
	Header  ipv4header.IPv4Header
	Payload []byte
}

func NewDatagram(src, dst netip.Addr, protocol Protocol, ttl uint8, payload []byte) Datagram {
	d := Datagram{
		Header: ipv4header.IPv4Header{
			Version:  4,
			Len:      ipv4header.HeaderLen,
			TotalLen: ipv4header.HeaderLen + len(payload),
			TTL:      int(ttl),
			Protocol: int(protocol),
			Src:      src,
			Dst:      dst,
			Options:  []byte{},
		},
		Payload: payload,
	}
	d.Header.Checksum = int(d.ComputeChecksum())
	return d
}

func (d *Datagram) Src() netip.Addr {
	return d.Header.Src
}

func (d *Datagram) Dst() netip.Addr {
	return d.Header.Dst
}

func (d *Datagram) TTL() uint8 {
	return uint8(d.Header.TTL)
}

func (d *Datagram) Protocol() Protocol {
	return Protocol(d.Header.Protocol)
}

// ComputeChecksum returns the header checksum with the checksum field taken as zero.
func (d *Datagram) ComputeChecksum() uint16 {
	h := d.Header
	h.Checksum = 0
	b, err := h.Marshal()
	if err != nil {
		return 0
	}
	return header.Checksum(b, 0) ^ 0xffff
}

// DecrementTTL lowers the hop count by one and refreshes the checksum.
func (d *Datagram) DecrementTTL() {
	d.Header.TTL--
	d.Header.Checksum = int(d.ComputeChecksum())
}

func (d *Datagram) Marshal() ([]byte, error) {
	hdr, err := d.Header.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshalling IPv4 header")
	}

	out := make([]byte, 0, len(hdr)+len(d.Payload))
	out = append(out, hdr...)
	return append(out, d.Payload...), nil
}

func ParseDatagram(b []byte) (Datagram, error) {
	hdr, err := ipv4header.ParseHeader(b)
	if err != nil {
		return Datagram{}, errors.Wrap(err, "parsing IPv4 header")
	}
	if hdr.Version != 4 {
		return Datagram{}, ErrBadVersion
	}
	if hdr.TotalLen < hdr.Len || hdr.TotalLen > len(b) {
		return Datagram{}, errors.Wrapf(ErrBadLength, "total %d, header %d, buffer %d", hdr.TotalLen, hdr.Len, len(b))
	}

	if header.Checksum(b[:hdr.Len], 0) != 0xffff {
		return Datagram{}, ErrBadChecksum
	}

	payload := make([]byte, hdr.TotalLen-hdr.Len)
	copy(payload, b[hdr.Len:hdr.TotalLen])
	return Datagram{Header: *hdr, Payload: payload}, nil
}
