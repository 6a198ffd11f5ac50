package tcpstack

import (
	"log/slog"

	"github.com/google/netstack/tcpip/seqnum"

	"ip-tcp-in-peace/pkg/bytestream"
)

// Receiver turns inbound sender messages into an ordered byte stream and
// produces the matching acknowledgments.
type Receiver struct {
	reassembler *Reassembler
	isn         seqnum.Value
	hasISN      bool
	state       ReceiverState
}

func NewReceiver(reassembler *Reassembler) *Receiver {
	return &Receiver{
		reassembler: reassembler,
		state:       RECV_LISTEN,
	}
}

func (r *Receiver) Receive(msg SenderMessage) {
	if msg.RST {
		r.onReset()
		return
	}

	switch r.state {
	case RECV_LISTEN:
		if !msg.SYN {
			return
		}
		r.onSYN(msg.Seqno)
		r.onSegment(msg)
	case RECV_SYN_RECEIVED, RECV_FIN_RECEIVED:
		r.onSegment(msg)
	case RECV_RESET:
		// The stream is already in error; later segments are dropped.
	}
}

func (r *Receiver) onReset() {
	r.reader().SetError()
	r.state = RECV_RESET
}

func (r *Receiver) onSYN(isn seqnum.Value) {
	r.isn = isn
	r.hasISN = true
	r.state = RECV_SYN_RECEIVED
}

func (r *Receiver) onSegment(msg SenderMessage) {
	checkpoint := r.reader().BytesPushed() + r.reassembler.CountBytesPending()
	abs := Unwrap(msg.Seqno, r.isn, checkpoint)

	var index uint64
	if msg.SYN {
		index = abs
	} else {
		if abs == 0 {
			// Only the SYN can occupy absolute sequence number zero.
			slog.Debug("Dropping segment at ISN without SYN", "seqno", msg.Seqno)
			return
		}
		index = abs - 1
	}

	r.reassembler.Insert(index, msg.Payload, msg.FIN)
	if r.reader().IsClosed() {
		r.state = RECV_FIN_RECEIVED
	}
}

// Send builds the acknowledgment for everything received so far.
func (r *Receiver) Send() ReceiverMessage {
	out := r.reader()
	msg := ReceiverMessage{
		WindowSize: uint16(min(out.AvailableCapacity(), MAX_WINDOW_SIZE)),
		RST:        out.HasError(),
	}

	if r.hasISN {
		next := out.BytesPushed() + 1
		if out.IsClosed() {
			next++
		}
		msg.Ackno = Wrap(next, r.isn)
		msg.HasAckno = true
	}
	return msg
}

func (r *Receiver) State() ReceiverState {
	return r.state
}

func (r *Receiver) reader() *bytestream.ByteStream {
	return r.reassembler.Output()
}

func (r *Receiver) Reassembler() *Reassembler {
	return r.reassembler
}
