package tcpstack

import (
	"github.com/google/netstack/tcpip/seqnum"
)

// SenderMessage is the outbound half of a segment: sequence space and flags.
type SenderMessage struct {
	Seqno   seqnum.Value
	SYN     bool
	Payload []byte
	FIN     bool
	RST     bool
}

// SequenceLength is the amount of sequence space the message occupies.
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is the acknowledgment half of a segment.
type ReceiverMessage struct {
	Ackno      seqnum.Value
	HasAckno   bool
	WindowSize uint16
	RST        bool
}

// Message is one full-duplex TCP segment.
type Message struct {
	Sender   SenderMessage
	Receiver ReceiverMessage
}

// Transmitter accepts outbound sender messages.
type Transmitter interface {
	Transmit(msg SenderMessage)
}

type TransmitFunc func(msg SenderMessage)

func (f TransmitFunc) Transmit(msg SenderMessage) {
	f(msg)
}

// SegmentTransmitter accepts complete outbound segments.
type SegmentTransmitter interface {
	TransmitSegment(msg Message)
}

type SegmentTransmitFunc func(msg Message)

func (f SegmentTransmitFunc) TransmitSegment(msg Message) {
	f(msg)
}
