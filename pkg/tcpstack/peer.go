package tcpstack

import (
	"log/slog"

	"ip-tcp-in-peace/pkg/bytestream"
)

// Peer is one end of a TCP connection: a Sender for the outbound stream and
// a Receiver for the inbound stream, sharing every segment they emit.
type Peer struct {
	cfg      Config
	sender   *Sender
	receiver *Receiver

	lingerAfterStreamsFinish bool
	timeSinceLastSegment     uint64
	reset                    bool
}

func NewPeer(cfg Config) *Peer {
	outbound := bytestream.New(cfg.SendCapacity)
	inbound := bytestream.New(cfg.RecvCapacity)
	return &Peer{
		cfg:                      cfg,
		sender:                   NewSender(outbound, cfg.ISN, cfg.RTO, cfg.MaxPayloadSize),
		receiver:                 NewReceiver(NewReassembler(inbound)),
		lingerAfterStreamsFinish: true,
	}
}

// Outbound is the stream the application writes into.
func (p *Peer) Outbound() *bytestream.ByteStream {
	return p.sender.Writer()
}

// Inbound is the stream the application reads from.
func (p *Peer) Inbound() *bytestream.ByteStream {
	return p.receiver.Reassembler().Output()
}

func (p *Peer) Sender() *Sender {
	return p.sender
}

func (p *Peer) Receiver() *Receiver {
	return p.receiver
}

// Push sends whatever the outbound stream and peer window allow.
func (p *Peer) Push(out SegmentTransmitter) {
	if p.reset {
		return
	}
	p.sender.Push(p.wrap(out))
}

// Receive processes one inbound segment.
func (p *Peer) Receive(msg Message, out SegmentTransmitter) {
	if !p.Active() {
		return
	}
	p.timeSinceLastSegment = 0

	if msg.Sender.RST || msg.Receiver.RST {
		if msg.Sender.RST {
			p.receiver.Receive(msg.Sender)
		}
		if msg.Receiver.RST {
			p.sender.Receive(msg.Receiver)
		}
		p.onReset()
		return
	}

	needsAck := msg.Sender.SequenceLength() > 0

	p.receiver.Receive(msg.Sender)
	p.sender.Receive(msg.Receiver)

	if p.Inbound().IsClosed() && !p.sender.finSent {
		p.lingerAfterStreamsFinish = false
	}

	sent := false
	tx := SegmentTransmitFunc(func(m Message) {
		sent = true
		out.TransmitSegment(m)
	})
	p.Push(tx)

	if needsAck && !sent {
		p.sendEmpty(out)
	}
}

// Tick advances time by ms milliseconds and gives up on the connection after
// too many consecutive retransmissions.
func (p *Peer) Tick(ms uint64, out SegmentTransmitter) {
	if p.reset {
		return
	}
	p.timeSinceLastSegment += ms
	p.sender.Tick(ms, p.wrap(out))

	if p.sender.ConsecutiveRetransmissions() > p.cfg.MaxRetransmissions {
		slog.Debug("Too many retransmissions, resetting connection", "retransmissions", p.sender.ConsecutiveRetransmissions())
		p.onReset()
		p.sendEmpty(out)
	}
}

// Close ends the outbound stream and sends a FIN once the window allows.
func (p *Peer) Close(out SegmentTransmitter) {
	p.Outbound().Close()
	p.Push(out)
}

// Abort resets the connection and notifies the remote end.
func (p *Peer) Abort(out SegmentTransmitter) {
	if p.reset {
		return
	}
	p.onReset()
	p.sendEmpty(out)
}

func (p *Peer) onReset() {
	p.reset = true
	p.Outbound().SetError()
	p.Inbound().SetError()
}

func (p *Peer) sendEmpty(out SegmentTransmitter) {
	out.TransmitSegment(Message{
		Sender:   p.sender.MakeEmptyMessage(),
		Receiver: p.receiver.Send(),
	})
}

// wrap attaches the current acknowledgment to every outbound sender message.
func (p *Peer) wrap(out SegmentTransmitter) Transmitter {
	return TransmitFunc(func(msg SenderMessage) {
		out.TransmitSegment(Message{
			Sender:   msg,
			Receiver: p.receiver.Send(),
		})
	})
}

// Active reports whether the connection still has work to do.
func (p *Peer) Active() bool {
	if p.reset {
		return false
	}
	if !p.Inbound().IsClosed() || p.sender.State() != SEND_FIN_ACKED {
		return true
	}
	if !p.lingerAfterStreamsFinish {
		return false
	}
	return p.timeSinceLastSegment < 10*p.cfg.RTO
}

func (p *Peer) HasError() bool {
	return p.reset
}
