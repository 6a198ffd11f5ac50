package tcpstack

import (
	"net/netip"
)

type ReceiverState int

const (
	RECV_LISTEN       ReceiverState = 0
	RECV_SYN_RECEIVED ReceiverState = 1
	RECV_FIN_RECEIVED ReceiverState = 2
	RECV_RESET        ReceiverState = 3
)

func (s ReceiverState) String() string {
	switch s {
	case RECV_LISTEN:
		return "LISTEN"
	case RECV_SYN_RECEIVED:
		return "SYN_RECEIVED"
	case RECV_FIN_RECEIVED:
		return "FIN_RECEIVED"
	case RECV_RESET:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

type SenderState int

const (
	SEND_CLOSED    SenderState = 0
	SEND_SYN_SENT  SenderState = 1
	SEND_SYN_ACKED SenderState = 2
	SEND_FIN_SENT  SenderState = 3
	SEND_FIN_ACKED SenderState = 4
	SEND_ERROR     SenderState = 5
)

func (s SenderState) String() string {
	switch s {
	case SEND_CLOSED:
		return "CLOSED"
	case SEND_SYN_SENT:
		return "SYN_SENT"
	case SEND_SYN_ACKED:
		return "SYN_ACKED"
	case SEND_FIN_SENT:
		return "FIN_SENT"
	case SEND_FIN_ACKED:
		return "FIN_ACKED"
	case SEND_ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Tuple identifies a connection from the local host's point of view.
type Tuple struct {
	LocalAddress  netip.Addr
	LocalPort     uint16
	RemoteAddress netip.Addr
	RemotePort    uint16
}

type TCPState int

const (
	TCP_LISTEN       TCPState = 0
	TCP_SYN_SENT     TCPState = 1
	TCP_SYN_RECEIVED TCPState = 2
	TCP_ESTABLISHED  TCPState = 3
	TCP_FIN_WAIT_1   TCPState = 4
	TCP_FIN_WAIT_2   TCPState = 5
	TCP_CLOSING      TCPState = 6
	TCP_TIME_WAIT    TCPState = 7
	TCP_CLOSE_WAIT   TCPState = 8
	TCP_LAST_ACK     TCPState = 9
	TCP_CLOSED       TCPState = 10
)

func (s TCPState) String() string {
	switch s {
	case TCP_LISTEN:
		return "LISTEN"
	case TCP_SYN_SENT:
		return "SYN_SENT"
	case TCP_SYN_RECEIVED:
		return "SYN_RECEIVED"
	case TCP_ESTABLISHED:
		return "ESTABLISHED"
	case TCP_FIN_WAIT_1:
		return "FIN_WAIT_1"
	case TCP_FIN_WAIT_2:
		return "FIN_WAIT_2"
	case TCP_CLOSING:
		return "CLOSING"
	case TCP_TIME_WAIT:
		return "TIME_WAIT"
	case TCP_CLOSE_WAIT:
		return "CLOSE_WAIT"
	case TCP_LAST_ACK:
		return "LAST_ACK"
	case TCP_CLOSED:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
