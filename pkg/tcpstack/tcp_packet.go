package tcpstack

import (
	"net/netip"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
)

var (
	ErrShortSegment = errors.New("segment shorter than TCP header")
	ErrBadOffset    = errors.New("bad TCP data offset")
	ErrBadChecksum  = errors.New("bad TCP checksum")
)

// MarshalSegment encodes msg as a TCP segment sent over tuple, checksummed
// against the IPv4 pseudo-header.
func MarshalSegment(msg Message, tuple Tuple) []byte {
	var flags uint8
	if msg.Sender.SYN {
		flags |= uint8(header.TCPFlagSyn)
	}
	if msg.Sender.FIN {
		flags |= uint8(header.TCPFlagFin)
	}
	if msg.Sender.RST || msg.Receiver.RST {
		flags |= uint8(header.TCPFlagRst)
	}
	if msg.Receiver.HasAckno {
		flags |= uint8(header.TCPFlagAck)
	}

	var ackNum uint32
	if msg.Receiver.HasAckno {
		ackNum = uint32(msg.Receiver.Ackno)
	}

	segment := make([]byte, header.TCPMinimumSize+len(msg.Sender.Payload))
	tcp := header.TCP(segment)
	tcp.Encode(&header.TCPFields{
		SrcPort:    tuple.LocalPort,
		DstPort:    tuple.RemotePort,
		SeqNum:     uint32(msg.Sender.Seqno),
		AckNum:     ackNum,
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: msg.Receiver.WindowSize,
	})
	copy(segment[header.TCPMinimumSize:], msg.Sender.Payload)

	xsum := pseudoHeaderChecksum(tuple.LocalAddress, tuple.RemoteAddress, len(segment))
	xsum = header.Checksum(msg.Sender.Payload, xsum)
	tcp.SetChecksum(^tcp.CalculateChecksum(xsum))
	return segment
}

// ParseSegment decodes a TCP segment that travelled from src to dst. The
// returned tuple is from the receiver's point of view.
func ParseSegment(data []byte, src, dst netip.Addr) (Message, Tuple, error) {
	if len(data) < header.TCPMinimumSize {
		return Message{}, Tuple{}, ErrShortSegment
	}

	tcp := header.TCP(data)
	offset := int(tcp.DataOffset())
	if offset < header.TCPMinimumSize || offset > len(data) {
		return Message{}, Tuple{}, errors.Wrapf(ErrBadOffset, "offset %d, length %d", offset, len(data))
	}
	xsum := pseudoHeaderChecksum(src, dst, len(data))
	xsum = header.Checksum(data[offset:], xsum)
	if tcp.CalculateChecksum(xsum) != 0xffff {
		return Message{}, Tuple{}, ErrBadChecksum
	}

	flags := uint8(tcp.Flags())
	has := func(f uint8) bool {
		return flags&f != 0
	}

	payload := make([]byte, len(data)-offset)
	copy(payload, data[offset:])

	rst := has(uint8(header.TCPFlagRst))
	msg := Message{
		Sender: SenderMessage{
			Seqno:   seqnum.Value(tcp.SequenceNumber()),
			SYN:     has(uint8(header.TCPFlagSyn)),
			Payload: payload,
			FIN:     has(uint8(header.TCPFlagFin)),
			RST:     rst,
		},
		Receiver: ReceiverMessage{
			HasAckno:   has(uint8(header.TCPFlagAck)),
			WindowSize: tcp.WindowSize(),
			RST:        rst,
		},
	}
	if msg.Receiver.HasAckno {
		msg.Receiver.Ackno = seqnum.Value(tcp.AckNumber())
	}

	tuple := Tuple{
		LocalAddress:  dst,
		LocalPort:     tcp.DestinationPort(),
		RemoteAddress: src,
		RemotePort:    tcp.SourcePort(),
	}
	return msg, tuple, nil
}

func pseudoHeaderChecksum(src, dst netip.Addr, length int) uint16 {
	return header.PseudoHeaderChecksum(header.TCPProtocolNumber, tcpip.Address(src.AsSlice()), tcpip.Address(dst.AsSlice()), uint16(length))
}
