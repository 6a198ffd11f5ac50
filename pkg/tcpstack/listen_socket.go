package tcpstack

import (
	"github.com/pkg/errors"
)

type ListenSocket struct {
	SID         int
	localPort   uint16
	acceptQueue []*NormalSocket
	tcpStack    *TCPStack
}

func (ts *TCPStack) VListen(localPort uint16) (*ListenSocket, error) {
	if ts.findListener(localPort) != nil {
		return nil, errors.Wrapf(ErrPortInUse, "port %d", localPort)
	}

	ls := &ListenSocket{
		SID:       ts.generateSID(),
		localPort: localPort,
		tcpStack:  ts,
	}
	ts.insertTableEntry(TCPTableEntry{
		Tuple:        Tuple{LocalPort: localPort},
		Listening:    true,
		SocketStruct: ls,
	})
	return ls, nil
}

func (ls *ListenSocket) GetSID() int {
	return ls.SID
}

func (ls *ListenSocket) Port() uint16 {
	return ls.localPort
}

// VAccept pops the oldest connection that arrived on this port, if any.
func (ls *ListenSocket) VAccept() (*NormalSocket, bool) {
	if len(ls.acceptQueue) == 0 {
		return nil, false
	}
	conn := ls.acceptQueue[0]
	ls.acceptQueue = ls.acceptQueue[1:]
	return conn, true
}

// VClose stops listening. Connections already accepted are unaffected.
func (ls *ListenSocket) VClose() error {
	ls.tcpStack.deleteTableEntry(ls)
	return nil
}
