package tcpstack

import (
	"io"
	"log/slog"
	"net/netip"

	"github.com/pkg/errors"
)

// NormalSocket is one established or establishing connection.
type NormalSocket struct {
	SID int
	Tuple
	tcpStack   *TCPStack
	peer       *Peer
	userClosed bool
}

func (ts *TCPStack) newNormalSocket(tuple Tuple) *NormalSocket {
	socket := &NormalSocket{
		SID:      ts.generateSID(),
		Tuple:    tuple,
		tcpStack: ts,
		peer:     NewPeer(ts.connConfig()),
	}
	ts.insertTableEntry(TCPTableEntry{Tuple: tuple, SocketStruct: socket})
	return socket
}

// VConnect opens a connection to addr:port and sends the SYN.
func (ts *TCPStack) VConnect(addr netip.Addr, port uint16) (*NormalSocket, error) {
	local, err := ts.ipStack.SourceFor(addr)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	socket := ts.newNormalSocket(Tuple{
		LocalAddress:  local,
		LocalPort:     ts.allocatePort(),
		RemoteAddress: addr,
		RemotePort:    port,
	})
	socket.peer.Push(socket)
	return socket, nil
}

func (socket *NormalSocket) GetSID() int {
	return socket.SID
}

// TransmitSegment implements SegmentTransmitter.
func (socket *NormalSocket) TransmitSegment(msg Message) {
	if err := socket.tcpStack.sendSegment(msg, socket.Tuple); err != nil {
		slog.Debug("Error sending segment", "SID", socket.SID, "error", err)
	}
}

// VWrite queues as much of data as the send buffer holds and returns how much was taken.
func (socket *NormalSocket) VWrite(data []byte) (int, error) {
	if socket.peer.HasError() {
		return 0, ErrConnectionReset
	}
	if socket.userClosed || socket.peer.Outbound().IsClosed() {
		return 0, ErrClosing
	}

	n := socket.peer.Outbound().Push(data)
	socket.peer.Push(socket)
	return int(n), nil
}

// VRead returns up to n bytes already received. It returns io.EOF once the
// remote side has finished and everything was read.
func (socket *NormalSocket) VRead(n int) ([]byte, error) {
	inbound := socket.peer.Inbound()
	if inbound.HasError() {
		return nil, ErrConnectionReset
	}
	if inbound.IsFinished() {
		return nil, io.EOF
	}
	return inbound.Read(uint64(n)), nil
}

// VClose ends the outbound stream. The socket is removed once the
// connection winds down.
func (socket *NormalSocket) VClose() error {
	if socket.userClosed {
		return ErrClosing
	}
	socket.userClosed = true

	if !socket.peer.Active() {
		socket.tcpStack.deleteTableEntry(socket)
		return nil
	}
	socket.peer.Close(socket)
	return nil
}

// VAbort resets the connection and removes the socket immediately.
func (socket *NormalSocket) VAbort() {
	socket.peer.Abort(socket)
	socket.userClosed = true
	socket.tcpStack.deleteTableEntry(socket)
}

func (socket *NormalSocket) State() TCPState {
	return connectionState(socket.peer)
}

func (socket *NormalSocket) Peer() *Peer {
	return socket.peer
}
