package tcpstack

import (
	"log/slog"

	"github.com/google/netstack/tcpip/seqnum"

	"ip-tcp-in-peace/pkg/ipstack"
)

// HandlePacket is the IP protocol handler for TCP.
func (ts *TCPStack) HandlePacket(d *ipstack.Datagram, _ *ipstack.IPStack) {
	msg, tuple, err := ParseSegment(d.Payload, d.Src(), d.Dst())
	if err != nil {
		slog.Debug("Dropping segment", "Src", d.Src(), "error", err)
		return
	}

	if socket := ts.findConnection(tuple); socket != nil {
		socket.peer.Receive(msg, socket)
		return
	}

	if ls := ts.findListener(tuple.LocalPort); ls != nil && msg.Sender.SYN && !msg.Sender.RST {
		handleSYN(ts, ls, tuple, msg)
		return
	}

	slog.Debug("No socket for segment", "LocalPort", tuple.LocalPort, "Remote", tuple.RemoteAddress, "RemotePort", tuple.RemotePort)
	if !msg.Sender.RST {
		ts.sendReset(msg, tuple)
	}
}

// handleSYN creates a connection for a SYN arriving on a listening port.
func handleSYN(ts *TCPStack, ls *ListenSocket, tuple Tuple, msg Message) {
	socket := ts.newNormalSocket(tuple)
	socket.peer.Receive(msg, socket)
	ls.acceptQueue = append(ls.acceptQueue, socket)
	slog.Debug("New connection", "SID", socket.SID, "Remote", tuple.RemoteAddress, "RemotePort", tuple.RemotePort)
}

// sendReset answers a segment that matches no socket.
func (ts *TCPStack) sendReset(msg Message, tuple Tuple) {
	reply := Message{Sender: SenderMessage{RST: true}}
	if msg.Receiver.HasAckno {
		reply.Sender.Seqno = msg.Receiver.Ackno
	} else {
		reply.Receiver.HasAckno = true
		reply.Receiver.Ackno = msg.Sender.Seqno.Add(seqnum.Size(msg.Sender.SequenceLength()))
	}
	if err := ts.sendSegment(reply, tuple); err != nil {
		slog.Debug("Error sending reset", "error", err)
	}
}

// connectionState maps the sender and receiver states onto the classic TCP states.
func connectionState(p *Peer) TCPState {
	if p.HasError() {
		return TCP_CLOSED
	}

	recv, send := p.Receiver().State(), p.Sender().State()
	switch recv {
	case RECV_LISTEN:
		if send == SEND_CLOSED {
			return TCP_LISTEN
		}
		return TCP_SYN_SENT
	case RECV_SYN_RECEIVED:
		switch send {
		case SEND_CLOSED, SEND_SYN_SENT:
			return TCP_SYN_RECEIVED
		case SEND_SYN_ACKED:
			return TCP_ESTABLISHED
		case SEND_FIN_SENT:
			return TCP_FIN_WAIT_1
		case SEND_FIN_ACKED:
			return TCP_FIN_WAIT_2
		}
	case RECV_FIN_RECEIVED:
		switch send {
		case SEND_CLOSED, SEND_SYN_SENT, SEND_SYN_ACKED:
			return TCP_CLOSE_WAIT
		case SEND_FIN_SENT:
			return TCP_LAST_ACK
		case SEND_FIN_ACKED:
			if p.Active() {
				return TCP_TIME_WAIT
			}
		}
	}
	return TCP_CLOSED
}
