package tcpstack

import (
	"net/netip"

	"github.com/pkg/errors"

	"ip-tcp-in-peace/pkg/ipstack"
)

var (
	ErrUnknownSocket   = errors.New("unknown socket")
	ErrPortInUse       = errors.New("port already in use")
	ErrConnectionReset = errors.New("connection reset")
	ErrClosing         = errors.New("connection closing")
)

// IPLayer is the network service the TCP stack sends segments through.
type IPLayer interface {
	SendIP(dst netip.Addr, protocol ipstack.Protocol, data []byte) error
	SourceFor(dst netip.Addr) (netip.Addr, error)
}

type Socket interface {
	VClose() error
	GetSID() int
}

type TCPTableEntry struct {
	Tuple
	Listening    bool
	SocketStruct Socket
}

// TCPStack demultiplexes segments to sockets by 4-tuple and drives every
// connection's timers.
type TCPStack struct {
	tcpTable []TCPTableEntry
	ipStack  IPLayer
	cfg      Config
	nextPort uint16 // For ephemeral port allocation
	nextSID  int
}

func InitTCPStack(ipStack IPLayer, cfg Config) *TCPStack {
	return &TCPStack{
		tcpTable: make([]TCPTableEntry, 0),
		ipStack:  ipStack,
		cfg:      cfg,
		nextPort: EPHEMERAL_PORT_MIN,
	}
}

func (ts *TCPStack) generateSID() int {
	nextSID := ts.nextSID
	ts.nextSID++
	return nextSID
}

// connConfig returns the stack's settings with a fresh ISN.
func (ts *TCPStack) connConfig() Config {
	cfg := ts.cfg
	cfg.ISN = generateInitialSeqNum()
	return cfg
}

func (ts *TCPStack) GetSocketByID(id int) (Socket, error) {
	for _, e := range ts.tcpTable {
		if e.SocketStruct.GetSID() == id {
			return e.SocketStruct, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownSocket, "sid %d", id)
}

// Entries returns a copy of the socket table.
func (ts *TCPStack) Entries() []TCPTableEntry {
	out := make([]TCPTableEntry, len(ts.tcpTable))
	copy(out, ts.tcpTable)
	return out
}

func (ts *TCPStack) insertTableEntry(entry TCPTableEntry) {
	ts.tcpTable = append(ts.tcpTable, entry)
}

func (ts *TCPStack) deleteTableEntry(socket Socket) {
	for i, e := range ts.tcpTable {
		if e.SocketStruct == socket {
			ts.tcpTable = append(ts.tcpTable[:i], ts.tcpTable[i+1:]...)
			return
		}
	}
}

func (ts *TCPStack) findConnection(tuple Tuple) *NormalSocket {
	for _, e := range ts.tcpTable {
		if !e.Listening && e.Tuple == tuple {
			return e.SocketStruct.(*NormalSocket)
		}
	}
	return nil
}

func (ts *TCPStack) findListener(port uint16) *ListenSocket {
	for _, e := range ts.tcpTable {
		if e.Listening && e.LocalPort == port {
			return e.SocketStruct.(*ListenSocket)
		}
	}
	return nil
}

func (ts *TCPStack) portInUse(port uint16) bool {
	for _, e := range ts.tcpTable {
		if e.LocalPort == port {
			return true
		}
	}
	return false
}

func (ts *TCPStack) allocatePort() uint16 {
	for {
		port := ts.nextPort
		ts.nextPort++
		if ts.nextPort == 0 { // uint wraps
			ts.nextPort = EPHEMERAL_PORT_MIN
		}
		if !ts.portInUse(port) {
			return port
		}
	}
}

func (ts *TCPStack) sendSegment(msg Message, tuple Tuple) error {
	return ts.ipStack.SendIP(tuple.RemoteAddress, ipstack.TCP_PROTOCOL, MarshalSegment(msg, tuple))
}

// Tick advances every connection's clock and reaps connections that are
// both finished and closed by the application.
func (ts *TCPStack) Tick(ms uint64) {
	var done []*NormalSocket
	for _, e := range ts.tcpTable {
		sock, ok := e.SocketStruct.(*NormalSocket)
		if !ok {
			continue
		}
		sock.peer.Tick(ms, sock)
		if sock.userClosed && !sock.peer.Active() {
			done = append(done, sock)
		}
	}
	for _, sock := range done {
		ts.deleteTableEntry(sock)
	}
}
