package tcpstack

import (
	"log/slog"

	"github.com/google/netstack/tcpip/seqnum"

	"ip-tcp-in-peace/pkg/bytestream"
)

// outstandingSegment is a sent segment not yet fully acknowledged.
type outstandingSegment struct {
	absSeqno uint64
	msg      SenderMessage
}

func (s outstandingSegment) end() uint64 {
	return s.absSeqno + s.msg.SequenceLength()
}

// Sender reads its input stream and turns it into sender messages, tracking
// what is in flight and retransmitting on timeout.
type Sender struct {
	input          *bytestream.ByteStream
	isn            seqnum.Value
	maxPayloadSize uint64

	nextSeqno  uint64
	lastAcked  uint64
	windowSize uint16

	outstanding     []outstandingSegment
	timer           retransmissionTimer
	retransmissions uint64

	synSent bool
	finSent bool
	state   SenderState
}

func NewSender(input *bytestream.ByteStream, isn seqnum.Value, initialRTO uint64, maxPayloadSize uint64) *Sender {
	return &Sender{
		input:          input,
		isn:            isn,
		maxPayloadSize: maxPayloadSize,
		windowSize:     1,
		timer:          newRetransmissionTimer(initialRTO),
		state:          SEND_CLOSED,
	}
}

// Push fills the peer's window with as many segments as the input allows.
func (s *Sender) Push(out Transmitter) {
	window := uint64(s.windowSize)
	if window == 0 {
		window = 1
	}

	for {
		inFlight := s.SequenceNumbersInFlight()
		if inFlight >= window {
			return
		}
		room := window - inFlight

		msg := SenderMessage{
			Seqno: Wrap(s.nextSeqno, s.isn),
			RST:   s.input.HasError(),
		}
		if !s.synSent {
			msg.SYN = true
			room--
		}

		n := min(room, s.maxPayloadSize, s.input.BytesBuffered())
		if n > 0 {
			msg.Payload = s.input.Read(n)
			room -= uint64(len(msg.Payload))
		}

		if s.input.IsFinished() && !s.finSent && room > 0 {
			msg.FIN = true
		}

		length := msg.SequenceLength()
		if length == 0 {
			return
		}

		s.send(msg, out)
	}
}

func (s *Sender) send(msg SenderMessage, out Transmitter) {
	seg := outstandingSegment{absSeqno: s.nextSeqno, msg: msg}
	s.nextSeqno += msg.SequenceLength()

	if msg.SYN {
		s.onSYNSent()
	}
	if msg.FIN {
		s.onFINSent()
	}

	s.outstanding = append(s.outstanding, seg)
	s.timer.start()
	out.Transmit(msg)
}

func (s *Sender) onSYNSent() {
	s.synSent = true
	s.state = SEND_SYN_SENT
}

func (s *Sender) onFINSent() {
	s.finSent = true
	s.state = SEND_FIN_SENT
}

// Receive applies an acknowledgment and window update from the peer.
func (s *Sender) Receive(msg ReceiverMessage) {
	if msg.RST {
		s.input.SetError()
		return
	}

	s.windowSize = msg.WindowSize
	if !msg.HasAckno {
		return
	}

	ack := Unwrap(msg.Ackno, s.isn, s.nextSeqno)
	if ack > s.nextSeqno || ack <= s.lastAcked {
		slog.Debug("Ignoring ack", "ack", ack, "lastAcked", s.lastAcked, "nextSeqno", s.nextSeqno)
		return
	}
	s.onAck(ack)
}

func (s *Sender) onAck(ack uint64) {
	s.lastAcked = ack

	i := 0
	for i < len(s.outstanding) && s.outstanding[i].end() <= ack {
		i++
	}
	s.outstanding = s.outstanding[i:]

	s.timer.resetRTO()
	s.retransmissions = 0
	if len(s.outstanding) > 0 {
		s.timer.restart()
	} else {
		s.timer.stop()
	}

	switch s.state {
	case SEND_SYN_SENT:
		s.state = SEND_SYN_ACKED
	case SEND_FIN_SENT:
		if len(s.outstanding) == 0 {
			s.state = SEND_FIN_ACKED
		}
	}
}

// Tick advances the retransmission timer by ms milliseconds.
func (s *Sender) Tick(ms uint64, out Transmitter) {
	if !s.timer.advance(ms) {
		return
	}

	if len(s.outstanding) == 0 {
		s.timer.stop()
		return
	}

	out.Transmit(s.outstanding[0].msg)
	if s.windowSize > 0 {
		s.retransmissions++
		s.timer.backoff()
	}
	s.timer.restart()
}

// MakeEmptyMessage returns a message occupying no sequence space.
func (s *Sender) MakeEmptyMessage() SenderMessage {
	return SenderMessage{
		Seqno: Wrap(s.nextSeqno, s.isn),
		RST:   s.input.HasError(),
	}
}

func (s *Sender) SequenceNumbersInFlight() uint64 {
	var n uint64
	for _, seg := range s.outstanding {
		n += seg.msg.SequenceLength()
	}
	return n
}

func (s *Sender) ConsecutiveRetransmissions() uint64 {
	return s.retransmissions
}

func (s *Sender) CurrentRTO() uint64 {
	return s.timer.calculatedRTO
}

func (s *Sender) State() SenderState {
	if s.input.HasError() {
		return SEND_ERROR
	}
	return s.state
}

func (s *Sender) Writer() *bytestream.ByteStream {
	return s.input
}
